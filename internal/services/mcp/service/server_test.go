package service

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	platformgrpc "github.com/louisbranch/workprint/internal/platform/grpc"
	"github.com/louisbranch/workprint/internal/services/mcp/domain"
	quizapi "github.com/louisbranch/workprint/internal/services/quiz/api/grpc/quiz"
	"github.com/louisbranch/workprint/internal/services/quiz/domain/progression"
	"github.com/louisbranch/workprint/internal/services/quiz/domain/scoring"
	"github.com/louisbranch/workprint/internal/services/quiz/storage"
	quizsqlite "github.com/louisbranch/workprint/internal/services/quiz/storage/sqlite"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

func startQuizServer(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	store, err := quizsqlite.Open(context.Background(), filepath.Join(t.TempDir(), "workprint.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	err = store.RecordOutcome(context.Background(), storage.Outcome{
		SessionID:   "finished",
		Profile:     "Organizer",
		Scores:      map[string]int{"structure": 3},
		Answers:     map[int]string{1: "C"},
		CompletedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	quizapi.RegisterQuizServer(grpcServer, quizapi.NewService(progression.NewEngine(nil, nil), scoring.Default(), store))
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(quizapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()

	t.Cleanup(func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		_ = listener.Close()
		select {
		case <-serveErr:
		case <-time.After(time.Second):
		}
		_ = store.Close()
	})
	return listener.Addr().String()
}

func connectClient(t *testing.T, transport mcp.Transport) *mcp.ClientSession {
	t.Helper()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(func() {
		_ = session.Close()
	})
	return session
}

func decodeStructuredContent[T any](t *testing.T, value any) T {
	t.Helper()

	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	var output T
	if err := json.Unmarshal(data, &output); err != nil {
		t.Fatalf("unmarshal structured content: %v", err)
	}
	return output
}

func TestToolsOverQuizGRPC(t *testing.T) {
	addr := startQuizServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := platformgrpc.DialWithHealth(ctx, addr, quizapi.ServiceName, 2*time.Second, nil)
	if err != nil {
		t.Fatalf("dial quiz: %v", err)
	}
	server := New(conn)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.serveWithTransport(ctx, serverTransport)
	}()

	session := connectClient(t, clientTransport)

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	got := strings.Join(names, ",")
	for _, want := range []string{"quiz_next_block", "quiz_score", "quiz_outcome", "quiz_ledger"} {
		if !strings.Contains(got, want) {
			t.Fatalf("tools = %s, missing %s", got, want)
		}
	}

	first, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "quiz_next_block",
		Arguments: map[string]any{"session_id": "mcp-session"},
	})
	if err != nil {
		t.Fatalf("call quiz_next_block: %v", err)
	}
	if first.IsError {
		t.Fatalf("quiz_next_block returned tool error: %+v", first.Content)
	}
	block := decodeStructuredContent[domain.NextBlockResult](t, first.StructuredContent)
	if block.Kind != "welcome" || block.SessionID != "mcp-session" {
		t.Fatalf("first block = %+v, want welcome for mcp-session", block)
	}

	second, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "quiz_next_block",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("call quiz_next_block: %v", err)
	}
	block = decodeStructuredContent[domain.NextBlockResult](t, second.StructuredContent)
	if block.Kind != "question" || block.Question != 1 || block.SessionID != "mcp-session" {
		t.Fatalf("second block = %+v, want question 1 for the remembered session", block)
	}

	scored, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "quiz_score",
		Arguments: map[string]any{"letters": "ADB"},
	})
	if err != nil {
		t.Fatalf("call quiz_score: %v", err)
	}
	if scored.IsError {
		t.Fatalf("quiz_score returned tool error: %+v", scored.Content)
	}
	result := decodeStructuredContent[domain.ScoreResult](t, scored.StructuredContent)
	if result.Profile != "Catalyst" || result.Answered != 3 {
		t.Fatalf("score = %+v, want Catalyst with 3 answers", result)
	}

	invalid, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "quiz_score",
		Arguments: map[string]any{"letters": "AZ"},
	})
	if err != nil {
		t.Fatalf("call quiz_score: %v", err)
	}
	if !invalid.IsError {
		t.Fatal("expected tool error for invalid letters")
	}

	recorded, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "quiz_outcome",
		Arguments: map[string]any{"session_id": "finished"},
	})
	if err != nil {
		t.Fatalf("call quiz_outcome: %v", err)
	}
	if recorded.IsError {
		t.Fatalf("quiz_outcome returned tool error: %+v", recorded.Content)
	}
	outcome := decodeStructuredContent[domain.OutcomeResult](t, recorded.StructuredContent)
	if outcome.Profile != "Organizer" || outcome.Answers["1"] != "C" || outcome.CompletedAt != "2026-03-01T09:00:00Z" {
		t.Fatalf("outcome = %+v", outcome)
	}

	unfinished, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "quiz_outcome",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("call quiz_outcome: %v", err)
	}
	if !unfinished.IsError {
		t.Fatal("expected tool error for the unfinished current session")
	}

	summary, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "quiz_ledger",
		Arguments: map[string]any{"limit": 10},
	})
	if err != nil {
		t.Fatalf("call quiz_ledger: %v", err)
	}
	if summary.IsError {
		t.Fatalf("quiz_ledger returned tool error: %+v", summary.Content)
	}
	ledger := decodeStructuredContent[domain.LedgerResult](t, summary.StructuredContent)
	if len(ledger.Outcomes) != 1 || ledger.Counts["Organizer"] != 1 {
		t.Fatalf("ledger = %+v", ledger)
	}

	cancel()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestRunUnsupportedTransport(t *testing.T) {
	err := Run(context.Background(), Config{
		QuizAddr:  "localhost:0",
		Transport: "websocket",
	})
	if err == nil {
		t.Fatal("expected error for unsupported transport")
	}
	if !strings.Contains(err.Error(), "not supported") {
		t.Errorf("expected 'not supported' in error, got: %v", err)
	}
}

func TestRunFailsWhenQuizUnavailable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Run(ctx, Config{QuizAddr: addr}); err == nil {
		t.Fatal("expected error when quiz server is unreachable")
	}
}

func TestCloseNilServer(t *testing.T) {
	var s *Server
	if err := s.Close(); err != nil {
		t.Fatalf("close nil server: %v", err)
	}
}
