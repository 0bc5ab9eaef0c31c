package hydrus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
)

// API paths.
const (
	PathServices     = "/get_services"
	PathSearchFiles  = "/get_files/search_files"
	PathFileMetadata = "/get_files/file_metadata"
	PathMigrateFiles = "/add_files/migrate_files"
	PathDeleteFiles  = "/add_files/delete_files"
	PathAddTags      = "/add_tags/add_tags"
	PathSetRating    = "/edit_ratings/set_rating"
)

// Tag actions understood by /add_tags/add_tags.
const (
	tagActionAdd    = "0"
	tagActionDelete = "1"
)

// GetServices fetches the service catalog.
func (c *Client) GetServices(ctx context.Context) ([]Service, Response) {
	resp := c.Do(ctx, Request{Method: http.MethodGet, Path: PathServices})
	if !resp.Success {
		return nil, resp
	}

	var payload struct {
		Services map[string]struct {
			Name       string `json:"name"`
			Type       int    `json:"type"`
			TypePretty string `json:"type_pretty"`
			StarShape  string `json:"star_shape"`
			MinStars   int    `json:"min_stars"`
			MaxStars   int    `json:"max_stars"`
		} `json:"services"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, Failure(resp.Status, "get services: %v", err)
	}

	services := make([]Service, 0, len(payload.Services))
	for key, s := range payload.Services {
		services = append(services, Service{
			Key:        key,
			Name:       s.Name,
			Type:       ServiceType(s.Type),
			TypePretty: s.TypePretty,
			StarShape:  s.StarShape,
			MinStars:   s.MinStars,
			MaxStars:   s.MaxStars,
		})
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Key < services[j].Key })
	return services, resp
}

// SearchFiles runs a predicate search and returns matching hashes.
// Predicates are strings or []string OR-groups. An empty tagServiceKey
// searches all known tags.
func (c *Client) SearchFiles(ctx context.Context, predicates []any, tagServiceKey string) ([]string, Response) {
	tags, err := json.Marshal(predicates)
	if err != nil {
		return nil, Failure(0, "encode predicates: %v", err)
	}
	q := url.Values{}
	q.Set("tags", string(tags))
	q.Set("return_hashes", "true")
	q.Set("return_file_ids", "false")
	if tagServiceKey != "" {
		q.Set("tag_service_key", tagServiceKey)
	}

	resp := c.Do(ctx, Request{Method: http.MethodGet, Path: PathSearchFiles, Query: q})
	if !resp.Success {
		return nil, resp
	}
	var payload struct {
		Hashes []string `json:"hashes"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, Failure(resp.Status, "search files: %v", err)
	}
	return payload.Hashes, resp
}

// FileMetadata reports the file services each hash currently belongs to.
// Callers batch; this issues exactly one request.
func (c *Client) FileMetadata(ctx context.Context, hashes []string) ([]FileMetadata, Response) {
	encoded, err := json.Marshal(hashes)
	if err != nil {
		return nil, Failure(0, "encode hashes: %v", err)
	}
	q := url.Values{}
	q.Set("hashes", string(encoded))
	q.Set("include_services_object", "true")

	resp := c.Do(ctx, Request{Method: http.MethodGet, Path: PathFileMetadata, Query: q})
	if !resp.Success {
		return nil, resp
	}

	var payload struct {
		Metadata []struct {
			Hash         string `json:"hash"`
			FileServices struct {
				Current map[string]json.RawMessage `json:"current"`
			} `json:"file_services"`
		} `json:"metadata"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, Failure(resp.Status, "file metadata: %v", err)
	}

	out := make([]FileMetadata, 0, len(payload.Metadata))
	for _, m := range payload.Metadata {
		current := make([]string, 0, len(m.FileServices.Current))
		for key := range m.FileServices.Current {
			current = append(current, key)
		}
		sort.Strings(current)
		out = append(out, FileMetadata{Hash: m.Hash, CurrentServices: current})
	}
	return out, resp
}

// FileMetadata is the subset of per-file metadata the engine consumes.
type FileMetadata struct {
	Hash            string
	CurrentServices []string
}

// MigrateFiles copies hashes into a local file domain.
func MigrateFiles(serviceKey string, hashes []string) Request {
	return hashesRequest(PathMigrateFiles, serviceKey, hashes)
}

// DeleteFiles removes hashes from a local file domain.
func DeleteFiles(serviceKey string, hashes []string) Request {
	return hashesRequest(PathDeleteFiles, serviceKey, hashes)
}

func hashesRequest(path, serviceKey string, hashes []string) Request {
	body := map[string]any{"file_service_key": serviceKey}
	if len(hashes) == 1 {
		body["hash"] = hashes[0]
	} else {
		body["hashes"] = hashes
	}
	return Request{Method: http.MethodPost, Path: path, Body: body}
}

// AddTags adds (or, with remove set, deletes) tags on one tag service.
func AddTags(serviceKey string, tags, hashes []string, remove bool) Request {
	action := tagActionAdd
	body := map[string]any{}
	if remove {
		action = tagActionDelete
		body["create_new_deleted_mappings"] = true
	} else {
		body["override_previously_deleted_mappings"] = true
	}
	if len(hashes) == 1 {
		body["hash"] = hashes[0]
	} else {
		body["hashes"] = hashes
	}
	body["service_keys_to_actions_to_tags"] = map[string]map[string][]string{
		serviceKey: {action: tags},
	}
	return Request{Method: http.MethodPost, Path: PathAddTags, Body: body}
}

// SetRating sets one file's rating. A nil value clears it.
func SetRating(serviceKey, hash string, value any) Request {
	return Request{
		Method: http.MethodPost,
		Path:   PathSetRating,
		Body: map[string]any{
			"hash":               hash,
			"rating_service_key": serviceKey,
			"rating":             value,
		},
	}
}
