// Package service runs the quiz MCP server over stdio or streamable HTTP and
// delegates tool behavior to the domain package.
package service
