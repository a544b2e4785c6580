// Package server wires the quiz relay: HTTP chat, websocket turns and the
// gRPC quiz API over one progression engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/workprint/internal/platform/timeouts"
	quizservice "github.com/louisbranch/workprint/internal/services/quiz/api/grpc/quiz"
	"github.com/louisbranch/workprint/internal/services/quiz/assistant"
	"github.com/louisbranch/workprint/internal/services/quiz/domain/progression"
	"github.com/louisbranch/workprint/internal/services/quiz/domain/scoring"
	"github.com/louisbranch/workprint/internal/services/quiz/domain/script"
	"github.com/louisbranch/workprint/internal/services/quiz/storage"
	quizsqlite "github.com/louisbranch/workprint/internal/services/quiz/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Config defines the inputs for the quiz relay process.
type Config struct {
	HTTPAddr string
	// GRPCAddr is optional; the gRPC API is not served when empty.
	GRPCAddr       string
	OpenAIAPIKey   string
	AssistantID    string
	OpenAIBaseURL  string
	AllowedOrigins []string
	// DBPath is optional; completed outcomes are not persisted when empty.
	DBPath      string
	ScriptPath  string
	ScoringPath string
	RunTimeout  time.Duration

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the relay HTTP surface and the quiz gRPC API.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server

	grpcListener net.Listener
	grpcServer   *grpc.Server
	health       *health.Server

	store     *quizsqlite.Store
	closeOnce sync.Once
}

// NewServer builds a configured relay.
func NewServer(ctx context.Context, config Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	quizScript := script.Default()
	if path := strings.TrimSpace(config.ScriptPath); path != "" {
		loaded, err := script.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load script: %w", err)
		}
		quizScript = loaded
	}
	scoringEngine := scoring.Default()
	if path := strings.TrimSpace(config.ScoringPath); path != "" {
		loaded, err := scoring.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load scoring config: %w", err)
		}
		scoringEngine = loaded
	}
	progressionEngine := progression.NewEngine(quizScript, progression.NewMemoryStore())

	backend := assistant.NewClient(assistant.Config{
		APIKey:      config.OpenAIAPIKey,
		AssistantID: config.AssistantID,
		BaseURL:     config.OpenAIBaseURL,
		RunTimeout:  config.RunTimeout,
	})
	if !backend.Configured() {
		log.Printf("quiz: assistant credentials missing, /chat disabled and websocket turns answered locally")
	}

	s := &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
	}

	var outcomes storage.OutcomeStore
	if path := strings.TrimSpace(config.DBPath); path != "" {
		store, err := quizsqlite.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open outcome store: %w", err)
		}
		s.store = store
		outcomes = store
	}

	orch := newOrchestrator(progressionEngine, scoringEngine, backend, outcomes)
	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(orch, config.AllowedOrigins),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	if grpcAddr := strings.TrimSpace(config.GRPCAddr); grpcAddr != "" {
		listener, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("listen on %s: %w", grpcAddr, err)
		}
		grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
		healthServer := health.NewServer()
		quizservice.RegisterQuizServer(grpcServer, quizservice.NewService(progressionEngine, scoringEngine, outcomes))
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		healthServer.SetServingStatus(quizservice.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
		s.grpcListener = listener
		s.grpcServer = grpcServer
		s.health = healthServer
	}

	return s, nil
}

// GRPCAddr returns the bound gRPC listener address, or "" when gRPC is off.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// Handler exposes the HTTP surface.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run creates and serves a relay until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(ctx, config)
	if err != nil {
		return fmt.Errorf("init quiz server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve quiz: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server, and the gRPC server when configured,
// until the context ends or either server fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("quiz server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	httpErr := make(chan error, 1)
	log.Printf("quiz http listening on %s", s.httpAddr)
	go func() {
		httpErr <- s.httpServer.ListenAndServe()
	}()

	var grpcErr chan error
	if s.grpcServer != nil {
		grpcErr = make(chan error, 1)
		log.Printf("quiz gRPC listening at %v", s.grpcListener.Addr())
		go func() {
			grpcErr <- s.grpcServer.Serve(s.grpcListener)
		}()
	}

	select {
	case <-ctx.Done():
		return s.shutdown(grpcErr)
	case err := <-httpErr:
		s.stopGRPC(grpcErr)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case err := <-grpcErr:
		_ = s.shutdownHTTP()
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

func (s *Server) shutdown(grpcErr chan error) error {
	s.stopGRPC(grpcErr)
	if err := s.shutdownHTTP(); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) shutdownHTTP() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) stopGRPC(grpcErr chan error) {
	if s.grpcServer == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	s.grpcServer.GracefulStop()
	if grpcErr != nil {
		<-grpcErr
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.health != nil {
			s.health.Shutdown()
		}
		if s.grpcServer != nil {
			s.grpcServer.Stop()
		}
		if s.grpcListener != nil {
			_ = s.grpcListener.Close()
		}
		if s.httpServer != nil {
			_ = s.httpServer.Close()
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				log.Printf("close outcome store: %v", err)
			}
		}
	})
}
