// Package mcp exposes patch validation as MCP tools over stdio.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/patchguard/internal/config"
	"github.com/ppiankov/patchguard/internal/validator"
)

// Version is reported in the MCP implementation info.
var Version = "0.1.0"

// Config holds MCP server configuration.
type Config struct {
	ConfigPath string
	// Scenario is applied to requests that do not name one.
	Scenario string
}

// Server wraps the MCP SDK server around a validator.
type Server struct {
	mcpServer *mcpsdk.Server
	v         *validator.Validator
	scenario  string
}

// New creates an MCP server with a validator built from cfg.ConfigPath.
func New(cfg Config, logger *zap.Logger) (*Server, error) {
	pgCfg, hash, err := config.LoadConfigWithHash(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	v, err := validator.Open(pgCfg, hash, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build validator: %w", err)
	}
	return NewWithValidator(v, cfg.Scenario), nil
}

// NewWithValidator creates an MCP server around an existing validator. The
// server takes ownership of v.
func NewWithValidator(v *validator.Validator, scenario string) *Server {
	s := &Server{v: v, scenario: scenario}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "patchguard",
			Version: Version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the validator.
func (s *Server) Close() error {
	return s.v.Close()
}

// registerTools adds all patchguard tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "patchguard_validate",
		Description: "Validate a unified diff for security issues and simulate it in the sandbox. Rejected patches return an error result with a Markdown explanation.",
	}, s.handleValidate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "patchguard_explain",
		Description: "Explain a violation type: why it is dangerous, safe alternatives, and further reading.",
	}, s.handleExplain)
}
