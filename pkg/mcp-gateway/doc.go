// Package mcpgateway implements the federation gateway: an MCP server bound
// to a fixed mount path that exposes a stable, six-tool surface backed by an
// mcpmgr.Manager — list servers, inspect a server's functions, reload one
// or all servers, list ready servers, and delegate a chat turn to the local
// agent collaborator. It never re-exports upstream tools directly; the six
// registered tools are the entire surface a downstream peer ever sees.
package mcpgateway
