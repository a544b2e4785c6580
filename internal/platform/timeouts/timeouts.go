// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing a gRPC peer.
const GRPCDial = 2 * time.Second

// GRPCRequest caps the time allowed for a single gRPC request made on behalf
// of an MCP tool call.
const GRPCRequest = 5 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// AssistantRun bounds the total wall-clock wait for one assistant run,
// including polling.
const AssistantRun = 120 * time.Second

// AssistantPoll is the first interval between assistant run status polls.
const AssistantPoll = 800 * time.Millisecond

// AssistantRequest caps a single HTTP call to the assistant API.
const AssistantRequest = 30 * time.Second
