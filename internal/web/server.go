// Package web serves the recipe catalog as server-rendered HTML.
package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"

	"dapur-kita/internal/app"
	"dapur-kita/internal/config"
	"dapur-kita/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
)

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	app         *app.App
	cfg         *config.Config
	pages       map[string]*template.Template
	flash       *flashSigner
	imageClient *http.Client
	imageHosts  map[string]bool
	upgrader    websocket.Upgrader
}

// NewServer parses the page templates and prepares the handlers.
func NewServer(application *app.App, cfg *config.Config) (*Server, error) {
	if err := cfg.ValidateWeb(); err != nil {
		return nil, err
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	hosts := make(map[string]bool, len(cfg.ImageHosts))
	for _, h := range cfg.ImageHosts {
		hosts[h] = true
	}

	s := &Server{
		app:        application,
		cfg:        cfg,
		pages:      pages,
		flash:      newFlashSigner(cfg.SessionSecret),
		imageHosts: hosts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.imageClient = s.newImageClient()
	return s, nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/recipes/add", s.handleNewForm).Methods(http.MethodGet)
	r.HandleFunc("/recipes/add", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/recipes/{id}", s.handleDetail).Methods(http.MethodGet)
	r.HandleFunc("/image", s.handleImage).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleEvents)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	// Route middleware only runs for matched routes.
	r.NotFoundHandler = recoverPanics(logRequests(http.HandlerFunc(s.handleNotFound)))
	r.MethodNotAllowedHandler = recoverPanics(logRequests(http.HandlerFunc(s.handleMethodNotAllowed)))

	r.Use(recoverPanics, logRequests)

	// Pages are public and carry no credentials across origins.
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", requestIDHeader},
	})

	return c.Handler(r)
}

// Addr is the listen address derived from the configured port.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%s", s.cfg.Port)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status string            `json:"status"`
		System metrics.SysHealth `json:"system"`
	}{
		Status: "ok",
		System: metrics.GetSysHealth(filepath.Dir(s.cfg.DatabasePath)),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusMethodNotAllowed, "error", pageData{
		Title: "Method not allowed",
		Error: fmt.Sprintf("%s is not supported on %s.", r.Method, r.URL.Path),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusNotFound, "error", pageData{
		Title: "Page not found",
		Error: fmt.Sprintf("Nothing lives at %s.", r.URL.Path),
	})
}
