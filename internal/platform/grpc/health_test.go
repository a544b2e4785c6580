package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const quizService = "workprint.quiz.v1.QuizService"

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *logRecorder) logf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (r *logRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestHealthBackOffSchedule(t *testing.T) {
	policy := newHealthBackOff()
	want := []time.Duration{
		200 * time.Millisecond,
		300 * time.Millisecond,
		450 * time.Millisecond,
		675 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, expected := range want {
		if got := policy.NextBackOff(); got != expected {
			t.Fatalf("interval %d = %v, want %v", i, got, expected)
		}
	}
}

func TestWaitForHealthLogsUntilServing(t *testing.T) {
	addr, server := serveHealth(t, quizService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	conn := dialPlain(t, addr)

	go func() {
		time.Sleep(250 * time.Millisecond)
		server.SetServingStatus(quizService, grpc_health_v1.HealthCheckResponse_SERVING)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var logs logRecorder
	if err := WaitForHealth(ctx, conn, quizService, logs.logf); err != nil {
		t.Fatalf("wait for health: %v", err)
	}
	lines := logs.snapshot()
	if len(lines) < 2 {
		t.Fatalf("log lines = %q, want waiting lines then SERVING", lines)
	}
	if !containsLine(lines, "waiting for gRPC health: status NOT_SERVING") {
		t.Fatalf("log lines = %q, want a NOT_SERVING wait", lines)
	}
	if last := lines[len(lines)-1]; last != "gRPC health check is SERVING" {
		t.Fatalf("last log = %q", last)
	}
}

func TestWaitForHealthUnknownServiceHitsDeadline(t *testing.T) {
	addr, _ := serveHealth(t, "", grpc_health_v1.HealthCheckResponse_SERVING)
	conn := dialPlain(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()

	var logs logRecorder
	err := WaitForHealth(ctx, conn, quizService, logs.logf)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	lines := logs.snapshot()
	if !containsLine(lines, "code = NotFound") {
		t.Fatalf("log lines = %q, want NotFound check failures", lines)
	}
	for _, line := range lines {
		if strings.Contains(line, "is SERVING") {
			t.Fatalf("unexpected SERVING log in %q", lines)
		}
	}
}

func TestWaitForHealthNilLogf(t *testing.T) {
	addr, _ := serveHealth(t, "", grpc_health_v1.HealthCheckResponse_SERVING)
	conn := dialPlain(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := WaitForHealth(ctx, conn, "", nil); err != nil {
		t.Fatalf("wait for health: %v", err)
	}
}

func TestWaitForHealthRequiresConnection(t *testing.T) {
	if err := WaitForHealth(context.Background(), nil, "", nil); err == nil {
		t.Fatal("expected error for nil connection")
	}
}

func containsLine(lines []string, fragment string) bool {
	for _, line := range lines {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

// serveHealth runs a health-only gRPC server reporting status for service.
func serveHealth(t *testing.T, service string, status grpc_health_v1.HealthCheckResponse_ServingStatus) (string, *health.Server) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	grpcServer := gogrpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(service, status)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	t.Cleanup(func() {
		grpcServer.GracefulStop()
		select {
		case <-serveErr:
		case <-time.After(2 * time.Second):
		}
	})
	return listener.Addr().String(), healthServer
}

func dialPlain(t *testing.T, addr string) *gogrpc.ClientConn {
	t.Helper()

	conn, err := gogrpc.NewClient(addr, gogrpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
