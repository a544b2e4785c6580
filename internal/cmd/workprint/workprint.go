// Package workprint parses relay command flags and starts the quiz server.
package workprint

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/workprint/internal/platform/cmd"
	server "github.com/louisbranch/workprint/internal/services/quiz/app"
)

// Config holds relay command configuration.
type Config struct {
	HTTPAddr       string        `env:"WORKPRINT_HTTP_ADDR"         envDefault:":3000"`
	Port           string        `env:"PORT"`
	GRPCAddr       string        `env:"WORKPRINT_GRPC_ADDR"         envDefault:":8090"`
	OpenAIAPIKey   string        `env:"OPENAI_API_KEY"`
	AssistantID    string        `env:"ASSISTANT_ID"`
	OpenAIBaseURL  string        `env:"WORKPRINT_OPENAI_BASE_URL"`
	AllowedOrigins []string      `env:"WORKPRINT_ALLOWED_ORIGINS"   envDefault:"*" envSeparator:","`
	DBPath         string        `env:"WORKPRINT_DB_PATH"           envDefault:"data/workprint.db"`
	ScriptPath     string        `env:"WORKPRINT_SCRIPT_PATH"`
	ScoringPath    string        `env:"WORKPRINT_SCORING_PATH"`
	RunTimeout     time.Duration `env:"WORKPRINT_RUN_TIMEOUT"       envDefault:"120s"`
}

// ParseConfig parses environment and flags into a Config. PORT, when set and
// WORKPRINT_HTTP_ADDR is not, selects the HTTP port.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if _, ok := os.LookupEnv("WORKPRINT_HTTP_ADDR"); !ok && strings.TrimSpace(cfg.Port) != "" {
		cfg.HTTPAddr = ":" + strings.TrimSpace(cfg.Port)
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "relay HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "quiz gRPC listen address (empty disables gRPC)")
	fs.StringVar(&cfg.OpenAIBaseURL, "openai-base-url", cfg.OpenAIBaseURL, "Assistants API base URL")
	fs.Func("allowed-origins", "comma-separated CORS origins", func(value string) error {
		cfg.AllowedOrigins = splitOrigins(value)
		return nil
	})
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "outcome ledger SQLite path (empty disables the ledger)")
	fs.StringVar(&cfg.ScriptPath, "script", cfg.ScriptPath, "assessment script YAML override")
	fs.StringVar(&cfg.ScoringPath, "scoring", cfg.ScoringPath, "scoring configuration YAML override")
	fs.DurationVar(&cfg.RunTimeout, "run-timeout", cfg.RunTimeout, "maximum wait for one assistant run")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func splitOrigins(value string) []string {
	var origins []string
	for _, origin := range strings.Split(value, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// Run builds the relay and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorkprint, func(ctx context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:       cfg.HTTPAddr,
			GRPCAddr:       cfg.GRPCAddr,
			OpenAIAPIKey:   cfg.OpenAIAPIKey,
			AssistantID:    cfg.AssistantID,
			OpenAIBaseURL:  cfg.OpenAIBaseURL,
			AllowedOrigins: cfg.AllowedOrigins,
			DBPath:         cfg.DBPath,
			ScriptPath:     cfg.ScriptPath,
			ScoringPath:    cfg.ScoringPath,
			RunTimeout:     cfg.RunTimeout,
		}); err != nil {
			return fmt.Errorf("serve workprint: %w", err)
		}
		return nil
	})
}
