// Package mcpmgr orchestrates a federation of Model Context Protocol (MCP)
// upstream servers from a single Go process. It owns the full lifecycle of
// each upstream: loading its declared parameters, dialing its transport
// (stdio subprocess or streaming HTTP), tracking its state machine, and
// exposing its tool catalog as a filterable Toolkit.
//
// # Core entry points
//
//   - Manager is the process-wide orchestrator. Construct it with NewManager,
//     register a catalog via LoadCatalog, and call Initialize once at boot.
//   - ServerParams (StdioParams / HTTPParams) declare how each server is
//     launched or contacted; Loader parses them from the catalog file.
//   - Toolkit and Capability are the filtered, agent-facing view of a
//     session's live tools.
//   - PeerRegistry lets callers add or remove HTTP upstreams after boot.
//
// After Initialize, use GetToolkit to resolve a filtered view of a ready
// server's tools, Reload/ReloadAll to rebuild a session from its params, and
// Shutdown to close every session in reverse registration order. Use the
// narrowing helpers (IsStdio/IsHTTP, AsStdio/AsHTTP, TransportOf) when
// branching on a ServerParams' concrete transport.
package mcpmgr
