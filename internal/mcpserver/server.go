// Package mcpserver implements a small demo tool registry served over MCP
// streamable HTTP. It stands in for a stage's real registry during local
// development and in tests: each instance is bound to one stage and tags
// every result with it, so cross-stage leaks are visible.
package mcpserver

import (
	"crypto/subtle"
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/joestump/awschat/internal/chat"
	"github.com/joestump/awschat/internal/config"
)

// APIKeyHeader must match the header the registry client sends.
const APIKeyHeader = "x-api-key"

// Server holds the demo registry state.
type Server struct {
	stage  chat.Stage
	apiKey string
	log    *zap.Logger
}

// NewServer creates a demo registry for stage. An empty apiKey disables
// the header check.
func NewServer(stage chat.Stage, apiKey string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		stage:  stage,
		apiKey: apiKey,
		log:    log.With(zap.String("registry", string(stage))),
	}
}

// Handler returns the streamable HTTP handler for the registry.
func (s *Server) Handler() http.Handler {
	mcpServer := server.NewMCPServer(
		"awschat-"+string(s.stage)+"-registry",
		config.Version,
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTools(
		server.ServerTool{Tool: listRegionsTool(), Handler: s.handleListRegions},
		server.ServerTool{Tool: describeStageTool(), Handler: s.handleDescribeStage},
		server.ServerTool{Tool: echoTool(), Handler: s.handleEcho},
	)

	return s.requireAPIKey(server.NewStreamableHTTPServer(mcpServer))
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	if s.apiKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
			s.log.Warn("rejected registry request", zap.String("remote", r.RemoteAddr))
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
