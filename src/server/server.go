package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"galmuri-capture/src/apperr"
	"galmuri-capture/src/bridge"
)

// Bridge is the part of *bridge.Bridge served over HTTP.
type Bridge interface {
	Call(ctx context.Context, method string) (any, error)
	Tap(ctx context.Context) error
	Subscribe() (<-chan bridge.Event, func())
	State() bridge.State
}

// Server is the loopback HTTP transport for the bridge.
type Server struct {
	bridge  Bridge
	version string
	srv     *http.Server
	ln      net.Listener
}

func New(b Bridge, version string) *Server {
	s := &Server{bridge: b, version: version}
	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/v1/state", s.handleState).Methods("GET")
	r.HandleFunc("/v1/call/{method}", s.handleCall).Methods("POST")
	r.HandleFunc("/v1/tap", s.handleTap).Methods("POST")
	r.HandleFunc("/v1/events", s.handleEvents).Methods("GET")
	r.HandleFunc("/", s.handleStatus).Methods("GET")
	return r
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge listen on %s: %w", addr, err)
	}
	s.ln = ln
	log.Printf("Server: bridge listening on http://%s", ln.Addr())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server: serve error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	e := apperr.From(err)
	writeJSON(w, apperr.HTTPStatus(e.Code), map[string]errorBody{
		"error": {Code: string(e.Code), Message: e.Message},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bridge.State{"state": s.bridge.State()})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	method := mux.Vars(r)["method"]
	res, err := s.bridge.Call(r.Context(), method)
	if err != nil {
		log.Printf("Server: %s failed: %v", method, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}

func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.Tap(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := s.bridge.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("Server: encode event: %v", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
			flusher.Flush()
		}
	}
}

const statusMarkdown = `# Galmuri Capture

Version **%s**, workflow state ` + "`%s`" + `.

| Endpoint | Purpose |
|---|---|
| ` + "`POST /v1/call/{method}`" + ` | requestScreenCapture, showOverlay, hideOverlay, checkOverlayPermission, requestOverlayPermission, captureOnce |
| ` + "`POST /v1/tap`" + ` | press the capture trigger |
| ` + "`GET /v1/events`" + ` | server-sent capture events |
| ` + "`GET /v1/state`" + ` | current workflow state |
`

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var statusPage = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Galmuri Capture</title></head>
<body>{{.}}</body></html>
`))

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	md := fmt.Sprintf(statusMarkdown, s.version, s.bridge.State())
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = statusPage.Execute(w, template.HTML(buf.String()))
}
