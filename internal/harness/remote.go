package harness

import (
	"encoding/json"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/butler/internal/hydrus"
)

// Call is one request received by the scripted remote.
type Call struct {
	Method string   `json:"method"`
	Path   string   `json:"path"`
	Hashes []string `json:"hashes,omitempty"`
}

// scriptedRemote serves the subset of the Hydrus client API the engine
// uses. Searches return the current step's script, and writes mutate
// per-asset file domain membership.
type scriptedRemote struct {
	mu         sync.Mutex
	services   []ServiceDef
	membership map[string]map[string]bool
	step       RunStep
	calls      []Call
	server     *httptest.Server
}

func newScriptedRemote(s *Scenario) *scriptedRemote {
	r := &scriptedRemote{
		services:   s.Services,
		membership: map[string]map[string]bool{},
	}
	for hash, services := range s.Files {
		for _, svc := range services {
			r.place(hash, svc)
		}
	}

	mux := chi.NewRouter()
	mux.Get(hydrus.PathServices, r.getServices)
	mux.Get(hydrus.PathSearchFiles, r.searchFiles)
	mux.Get(hydrus.PathFileMetadata, r.fileMetadata)
	mux.Post(hydrus.PathMigrateFiles, r.write)
	mux.Post(hydrus.PathDeleteFiles, r.write)
	mux.Post(hydrus.PathAddTags, r.write)
	mux.Post(hydrus.PathSetRating, r.write)
	r.server = httptest.NewServer(mux)
	return r
}

func (r *scriptedRemote) URL() string { return r.server.URL }

func (r *scriptedRemote) Close() { r.server.Close() }

// script installs the search results and refusals for the next run.
func (r *scriptedRemote) script(step RunStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step = step
}

func (r *scriptedRemote) place(hash, service string) {
	if r.membership[hash] == nil {
		r.membership[hash] = map[string]bool{}
	}
	r.membership[hash][service] = true
}

// Membership returns the sorted services holding hash.
func (r *scriptedRemote) Membership(hash string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.membership[hash]))
}

// Calls returns every request received so far.
func (r *scriptedRemote) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func (r *scriptedRemote) record(req *http.Request, hashes []string) {
	r.calls = append(r.calls, Call{Method: req.Method, Path: req.URL.Path, Hashes: hashes})
}

func (r *scriptedRemote) getServices(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(req, nil)

	services := make(map[string]any, len(r.services))
	for _, s := range r.services {
		services[s.Key] = map[string]any{
			"name":        s.Name,
			"type":        int(s.Type),
			"type_pretty": s.Name,
			"max_stars":   s.MaxStars,
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (r *scriptedRemote) searchFiles(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(req, nil)

	tags := req.URL.Query().Get("tags")
	found := map[string]bool{}
	if strings.Contains(tags, "system:last viewed time") {
		for _, h := range r.step.Recent {
			found[h] = true
		}
	} else {
		for substr, hashes := range r.step.Search {
			if !strings.Contains(tags, substr) {
				continue
			}
			for _, h := range hashes {
				found[h] = true
			}
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"hashes": slices.Sorted(maps.Keys(found))})
}

func (r *scriptedRemote) fileMetadata(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var hashes []string
	if err := json.Unmarshal([]byte(req.URL.Query().Get("hashes")), &hashes); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	r.record(req, hashes)

	metadata := make([]any, 0, len(hashes))
	for _, h := range hashes {
		current := map[string]any{}
		for svc := range r.membership[h] {
			current[svc] = map[string]any{"time_imported": 0}
		}
		metadata = append(metadata, map[string]any{
			"hash":          h,
			"file_services": map[string]any{"current": current},
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"metadata": metadata})
}

func (r *scriptedRemote) write(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var body struct {
		Hash           string   `json:"hash"`
		Hashes         []string `json:"hashes"`
		FileServiceKey string   `json:"file_service_key"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	hashes := body.Hashes
	if body.Hash != "" {
		hashes = []string{body.Hash}
	}
	r.record(req, hashes)

	for _, refusal := range r.step.Refuse {
		if refusal.Path == req.URL.Path && slices.Contains(hashes, refusal.Hash) {
			respondJSON(w, http.StatusInternalServerError, map[string]any{
				"error":          "refused by scenario",
				"exception_type": "ScriptedRefusal",
			})
			return
		}
	}

	for _, h := range hashes {
		switch req.URL.Path {
		case hydrus.PathMigrateFiles:
			r.place(h, body.FileServiceKey)
		case hydrus.PathDeleteFiles:
			delete(r.membership[h], body.FileServiceKey)
		}
	}
	w.WriteHeader(http.StatusOK)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
