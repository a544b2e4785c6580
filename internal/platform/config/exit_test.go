package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "help", err: flag.ErrHelp, want: 0},
		{name: "wrapped help", err: fmt.Errorf("parse flags: %w", flag.ErrHelp), want: 0},
		{name: "env", err: errors.New("parse env: WORKPRINT_RUN_TIMEOUT"), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Fatalf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// os.Exit cannot be intercepted in-process, so Exit runs in a child test
// binary selected by WORKPRINT_EXIT_CASE.
func TestExit(t *testing.T) {
	switch os.Getenv("WORKPRINT_EXIT_CASE") {
	case "env":
		Exit("workprint", errors.New(`parse env: invalid duration "soon"`))
		return
	case "flags":
		Exit("mcp", fmt.Errorf("parse flags: %w", errors.New("unknown transport")))
		return
	}

	tests := []struct {
		name       string
		wantCode   int
		wantStderr string
	}{
		{name: "env", wantCode: 1, wantStderr: "workprint: parse env: invalid duration \"soon\"\n"},
		{name: "flags", wantCode: 1, wantStderr: "mcp: parse flags: unknown transport\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := exec.Command(os.Args[0], "-test.run=^TestExit$")
			cmd.Env = append(os.Environ(), "WORKPRINT_EXIT_CASE="+tt.name)
			var stderr strings.Builder
			cmd.Stderr = &stderr

			err := cmd.Run()
			code := 0
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else if err != nil {
				t.Fatalf("run child: %v", err)
			}
			if code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d", code, tt.wantCode)
			}
			if stderr.String() != tt.wantStderr {
				t.Fatalf("stderr = %q, want %q", stderr.String(), tt.wantStderr)
			}
		})
	}
}
