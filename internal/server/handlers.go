package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/marklet/marklet/internal/bookmarklet"
)

// notReadyMessage is the stable 503 body served while a rebuild is in
// flight. Clients recover by retrying once the rebuild finishes.
const notReadyMessage = "marklet is rebuilding, retry in a moment"

// unknownHashMessage is surfaced as an executable alert, not an HTTP error:
// the payload runs as a dynamically loaded script, so a hard status would
// never reach the user's eyes.
const unknownHashMessage = "marklet: the requested filename was not found. " +
	"The script set changed; open the index page and re-register the bookmarklet."

// routes builds the request handler: readiness gating wrapped around the
// three-path surface.
func (s *DeliveryServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/file", s.handleFile)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return s.gateReadiness(mux)
}

// gateReadiness answers 503 on every path while a generation install is in
// flight, so no request can observe a half-updated source set.
func (s *DeliveryServer) gateReadiness(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			http.Error(w, notReadyMessage, http.StatusServiceUnavailable)
			return
		}

		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "request served",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// handleIndex renders the bookmarklet index. The "/" pattern catches every
// path the mux knows nothing about, so unknown routes 404 here.
func (s *DeliveryServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	snapshot := s.registry.Snapshot()
	origin := s.Origin()

	entries := make([]bookmarklet.Entry, 0, len(snapshot.Sources()))
	for _, src := range snapshot.Sources() {
		scriptURL := fmt.Sprintf("%s/file?filename=%s", origin, src.Hash)
		entries = append(entries, bookmarklet.Entry{
			DisplayName:     src.Filename,
			BookmarkletHref: bookmarklet.RenderBootstrap(scriptURL),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, bookmarklet.RenderIndex(entries))
}

// handleFile serves the current script body for a protected filename hash.
// Lookups are exact-match against the snapshot captured here; installs
// happening mid-request cannot affect the response.
func (s *DeliveryServer) handleFile(w http.ResponseWriter, r *http.Request) {
	hash := r.URL.Query().Get("filename")
	snapshot := s.registry.Snapshot()

	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")

	src, ok := snapshot.Lookup(hash)
	if !ok {
		fmt.Fprint(w, bookmarklet.AlertScript(unknownHashMessage))
		return
	}

	fmt.Fprint(w, src.Script)
}
