package domain

import (
	"context"
	"strings"
	"sync"

	"google.golang.org/grpc/metadata"
)

// SessionContext remembers the assessment session the MCP client is working
// on, so tool calls may omit session_id after the first one.
type SessionContext struct {
	mu        sync.RWMutex
	sessionID string
}

// Current returns the remembered session id.
func (c *SessionContext) Current() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Set remembers sessionID.
func (c *SessionContext) Set(sessionID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = strings.TrimSpace(sessionID)
}

// outgoingContext attaches the caller's preferred locale to a gRPC call.
func outgoingContext(ctx context.Context, locale string) context.Context {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "accept-language", locale)
}
