// Package web is the HTTP surface of the chat backend: the streaming chat
// endpoint, the run ledger API and run pages, and health.
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/joestump/awschat/api"
	"github.com/joestump/awschat/internal/chat"
	"github.com/joestump/awschat/internal/completion"
	"github.com/joestump/awschat/internal/config"
	"github.com/joestump/awschat/internal/db"
	"github.com/joestump/awschat/internal/hub"
	"github.com/joestump/awschat/internal/registry"
)

//go:embed templates/*.html
var templateFS embed.FS

// maxBodyBytes caps the chat request body.
const maxBodyBytes = 4 << 20

// Selector picks the tool set for a request's stage.
type Selector interface {
	Select(ctx context.Context, stage chat.Stage) (*registry.Selection, error)
}

// Ledger records run outcomes. *db.DB implements it.
type Ledger interface {
	InsertRun(ctx context.Context, r *db.Run) error
	FinishRun(ctx context.Context, id string, o db.Outcome) error
	GetRun(ctx context.Context, id string) (*db.Run, error)
	ListRuns(ctx context.Context, f db.RunFilter) ([]db.Run, error)
}

// ServerOption configures optional Server features.
type ServerOption func(*Server)

// WithLedger enables the run ledger and its endpoints.
func WithLedger(l Ledger) ServerOption {
	return func(s *Server) { s.ledger = l }
}

// WithHub sets the hub that live-tails runs. Without one, tail requests
// get 404.
func WithHub(h *hub.Hub) ServerOption {
	return func(s *Server) { s.hub = h }
}

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// Server is the HTTP server for the chat backend.
type Server struct {
	cfg      config.Config
	router   Selector
	provider completion.Provider
	ledger   Ledger
	hub      *hub.Hub
	log      *zap.Logger
	mux      *http.ServeMux
	tmpl     *template.Template
	md       goldmark.Markdown
	server   *http.Server
}

// New creates a new web server.
func New(cfg config.Config, router Selector, provider completion.Provider, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		router:   router,
		provider: provider,
		log:      zap.NewNop(),
		mux:      http.NewServeMux(),
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM), // summaries are mostly tables
		),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parseTemplates()
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE needs no write timeout
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins serving HTTP requests. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.log.Info("chat backend listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) parseTemplates() {
	funcMap := template.FuncMap{
		"statusClass": func(status string) string {
			switch status {
			case db.StatusCompleted:
				return "status-healthy"
			case db.StatusCancelled:
				return "status-degraded"
			case db.StatusFailed:
				return "status-down"
			case db.StatusRunning:
				return "status-running"
			default:
				return "status-unknown"
			}
		},
		"deref": func(p *string) string {
			if p == nil {
				return "--"
			}
			return *p
		},
		"renderMarkdown": s.renderMarkdown,
	}

	s.tmpl = template.Must(
		template.New("").Funcs(funcMap).ParseFS(templateFS, "templates/*.html"),
	)
}

// renderMarkdown renders a run summary. Raw HTML in the source is escaped
// by goldmark's default renderer.
func (s *Server) renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)

	s.mux.HandleFunc("GET /api/runs", s.handleAPIListRuns)
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleAPIGetRun)
	s.mux.HandleFunc("GET /api/runs/{id}/events", s.handleRunEvents)
	s.mux.HandleFunc("GET /runs/{id}", s.handleRunPage)

	s.mux.HandleFunc("GET /api/openapi.yaml", s.handleOpenAPISpec)
}

// render executes a page template.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.Error("render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(api.OpenAPISpec)
}
