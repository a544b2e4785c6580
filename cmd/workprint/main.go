// Package main starts the workprint relay: HTTP chat, websocket turns and the
// quiz gRPC API.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	workprintcmd "github.com/louisbranch/workprint/internal/cmd/workprint"
	"github.com/louisbranch/workprint/internal/platform/config"
)

func main() {
	cfg, err := workprintcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exit("workprint", err)
	}
	log.SetPrefix("[WORKPRINT] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := workprintcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
