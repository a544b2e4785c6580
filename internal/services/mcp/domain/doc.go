// Package domain translates MCP tool calls into quiz gRPC requests and
// shapes the responses as structured tool output.
package domain
