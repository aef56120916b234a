package mcpgateway

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// registerResources mounts the gateway's two read-only resources, modeled
// on the common "config" and "health" endpoints other MCP servers expose.
// They never enlarge the fixed six-tool surface.
func (g *Gateway) registerResources() {
	g.server.AddResource(&mcp.Resource{
		URI:         "config://gateway",
		Name:        "gateway-config",
		Description: "Listen address, mount path, and catalog path this gateway was started with.",
		MIMEType:    "application/json",
	}, g.handleConfigResource)

	g.server.AddResource(&mcp.Resource{
		URI:         "health://gateway",
		Name:        "gateway-health",
		Description: "Whether the gateway has been constructed (not whether the manager has run Initialize) and how many servers are ready.",
		MIMEType:    "application/json",
	}, g.handleHealthResource)
}

func (g *Gateway) handleConfigResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	payload := map[string]any{
		"addr":        g.opts.Addr,
		"path":        g.opts.Path,
		"catalogPath": g.opts.CatalogPath,
		"basePath":    g.opts.BasePath,
	}
	return jsonResourceResult(req.Params.URI, payload)
}

func (g *Gateway) handleHealthResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	summaries := g.manager.ListServerSummaries()
	ready := 0
	for _, s := range summaries {
		if s.Connected {
			ready++
		}
	}
	payload := map[string]any{
		"initialized": g.initialized.Load(),
		"readyCount":  ready,
		"totalCount":  len(summaries),
	}
	return jsonResourceResult(req.Params.URI, payload)
}

func jsonResourceResult(uri string, payload any) (*mcp.ReadResourceResult, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "application/json", Text: string(encoded)},
		},
	}, nil
}
