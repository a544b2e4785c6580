// Package cmd holds the startup plumbing shared by workprint commands.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/workprint/internal/platform/config"
	"github.com/louisbranch/workprint/internal/platform/otel"
	"github.com/louisbranch/workprint/internal/platform/timeouts"
)

// Service identifiers for command startup telemetry and CLI naming consistency.
const (
	ServiceWorkprint = "workprint"
	ServiceMCP       = "mcp"
)

// ParseConfig loads environment defaults into cfg.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// ParseConfigFromArgs loads defaults from env and then parses flags.
func ParseConfigFromArgs[T any](cfg *T, fs *flag.FlagSet, args []string) error {
	if err := ParseConfig(cfg); err != nil {
		return err
	}
	return ParseArgs(fs, args)
}

// RunWithTelemetry starts tracing from the WORKPRINT_OTEL_* variables, runs
// the service loop and flushes spans within the configured shutdown timeout.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return fmt.Errorf("service name is required")
	}
	if run == nil {
		return fmt.Errorf("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var telemetry otel.Config
	if err := ParseConfig(&telemetry); err != nil {
		return fmt.Errorf("%s telemetry config: %w", service, err)
	}
	shutdown, err := otel.Setup(ctx, service, telemetry)
	if err != nil {
		return fmt.Errorf("%s otel setup: %w", service, err)
	}
	if telemetry.Active() {
		log.Printf("%s tracing enabled endpoint=%q sample_ratio=%g", service, telemetry.Endpoint, telemetry.SampleRatio)
	}
	if telemetry.ShutdownTimeout <= 0 {
		telemetry.ShutdownTimeout = timeouts.Shutdown
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetry.ShutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("%s otel shutdown: %v", service, err)
		}
	}()
	return run(ctx)
}
