package engine

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/butler/internal/hydrus"
)

// fakeRemote is an in-memory Hydrus: searches return canned hashes,
// migrate and delete mutate per-asset service membership.
type fakeRemote struct {
	mu sync.Mutex

	matches     []string
	recent      []string
	searchFails bool
	recentFails bool
	metaFails   bool
	refuse      func(req hydrus.Request, hashes []string) bool
	membership  map[string]map[string]bool

	searches [][]any
	calls    []hydrus.Request
}

func newFakeRemote(matches ...string) *fakeRemote {
	return &fakeRemote{matches: matches, membership: map[string]map[string]bool{}}
}

func (f *fakeRemote) place(hash string, services ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.membership[hash] == nil {
		f.membership[hash] = map[string]bool{}
	}
	for _, s := range services {
		f.membership[hash][s] = true
	}
}

func (f *fakeRemote) in(hash, service string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.membership[hash][service]
}

func isRecencySearch(predicates []any) bool {
	if len(predicates) != 1 {
		return false
	}
	s, ok := predicates[0].(string)
	return ok && strings.HasPrefix(s, "system:last viewed time > ")
}

func (f *fakeRemote) SearchFiles(_ context.Context, predicates []any, _ string) ([]string, hydrus.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, predicates)

	if isRecencySearch(predicates) {
		if f.recentFails {
			return nil, hydrus.Failure(503, "database is busy")
		}
		return slices.Clone(f.recent), hydrus.Response{Success: true, Status: 200}
	}
	if f.searchFails {
		return nil, hydrus.Failure(500, "search exploded")
	}
	return slices.Clone(f.matches), hydrus.Response{Success: true, Status: 200}
}

func (f *fakeRemote) Do(_ context.Context, req hydrus.Request) hydrus.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	hashes := requestHashes(req)
	if f.refuse != nil && f.refuse(req, hashes) {
		return hydrus.Failure(500, "refused")
	}

	body, _ := req.Body.(map[string]any)
	svc, _ := body["file_service_key"].(string)
	for _, h := range hashes {
		switch req.Path {
		case hydrus.PathMigrateFiles:
			if f.membership[h] == nil {
				f.membership[h] = map[string]bool{}
			}
			f.membership[h][svc] = true
		case hydrus.PathDeleteFiles:
			delete(f.membership[h], svc)
		}
	}
	return hydrus.Response{Success: true, Status: 200, Message: "ok"}
}

func (f *fakeRemote) FileMetadata(_ context.Context, hashes []string) ([]hydrus.FileMetadata, hydrus.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metaFails {
		return nil, hydrus.Failure(503, "metadata unavailable")
	}
	out := make([]hydrus.FileMetadata, 0, len(hashes))
	for _, h := range hashes {
		var current []string
		for svc := range f.membership[h] {
			current = append(current, svc)
		}
		slices.Sort(current)
		out = append(out, hydrus.FileMetadata{Hash: h, CurrentServices: current})
	}
	return out, hydrus.Response{Success: true, Status: 200}
}

func (f *fakeRemote) callsTo(path string) []hydrus.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []hydrus.Request
	for _, c := range f.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRemote) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

func (f *fakeRemote) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.searches = nil
}

func requestHashes(req hydrus.Request) []string {
	body, ok := req.Body.(map[string]any)
	if !ok {
		return nil
	}
	if h, ok := body["hash"].(string); ok {
		return []string{h}
	}
	hs, _ := body["hashes"].([]string)
	return hs
}
