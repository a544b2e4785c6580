// Package mcp parses MCP command flags and selects stdio or HTTP transport.
package mcp

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/workprint/internal/platform/cmd"
	"github.com/louisbranch/workprint/internal/platform/config"
	mcpservice "github.com/louisbranch/workprint/internal/services/mcp/service"
)

// Config holds MCP command configuration.
type Config struct {
	QuizAddr  string `env:"WORKPRINT_MCP_QUIZ_ADDR"  envDefault:"localhost:8090"`
	HTTPAddr  string `env:"WORKPRINT_MCP_HTTP_ADDR"  envDefault:"localhost:8081"`
	Transport string `env:"WORKPRINT_MCP_TRANSPORT"  envDefault:"stdio"`
}

// ParseConfig parses environment and flags into a Config. lookup supplies
// environment values so callers and tests control the source.
func ParseConfig(fs *flag.FlagSet, args []string, lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	environment := map[string]string{}
	if lookup != nil {
		for _, key := range []string{"WORKPRINT_MCP_QUIZ_ADDR", "WORKPRINT_MCP_HTTP_ADDR", "WORKPRINT_MCP_TRANSPORT"} {
			if value, ok := lookup(key); ok {
				environment[key] = value
			}
		}
	}
	if err := config.ParseEnvFrom(&cfg, environment); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.QuizAddr, "addr", cfg.QuizAddr, "quiz gRPC server address")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address (for HTTP transport)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP protocol adapter.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		return mcpservice.Run(ctx, mcpservice.Config{
			QuizAddr:  cfg.QuizAddr,
			HTTPAddr:  cfg.HTTPAddr,
			Transport: mcpservice.TransportKind(cfg.Transport),
		})
	})
}
