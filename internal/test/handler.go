package test

import (
	"net/http"
	"sync"
)

// HandlerSet is a struct with a mutex that allows us to swap handlers while a test server is running
type HandlerSet struct {
	mu      sync.Mutex
	handler http.Handler
}

// SetHandler sets the handler to `handler`
func (hs *HandlerSet) SetHandler(handler http.Handler) {
	hs.mu.Lock()
	hs.handler = handler
	hs.mu.Unlock()
}

// ServeHTTP serves HTTP using the handler
func (hs *HandlerSet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hs.mu.Lock()
	handler := hs.handler
	hs.mu.Unlock()
	handler.ServeHTTP(w, r)
}

// Files is a handler that serves in-memory files by path
// The files can be changed while the server is running
type Files struct {
	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
}

// NewFiles creates a handler serving files, the keys are the URL paths
func NewFiles(files map[string][]byte) *Files {
	f := &Files{files: make(map[string][]byte), hits: make(map[string]int)}
	for k, v := range files {
		f.files[k] = v
	}
	return f
}

// Set sets the contents for path, a nil body removes the file
func (f *Files) Set(path string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if body == nil {
		delete(f.files, path)
		return
	}
	f.files[path] = body
}

// Hits returns how often path was requested
func (f *Files) Hits(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

// ServeHTTP serves the file or a 404
func (f *Files) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	body, ok := f.files[r.URL.Path]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(body)
}
