package mcpgateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mcpfederation/gateway/pkg/mcpmgr"
)

func TestGatewayRejectsMissingBearerToken(t *testing.T) {
	t.Parallel()

	manager := mcpmgr.NewManager(mcpmgr.ManagerDefaults{}, nil)
	gateway, err := NewGateway(manager, &Options{Path: "/mcp", AuthToken: "secret"})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	server := httptest.NewServer(gateway.Handler())
	t.Cleanup(server.Close)

	resp, err := server.Client().Post(server.URL+"/mcp", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post without token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", resp.StatusCode)
	}
}

func TestGatewayRejectsWrongBearerToken(t *testing.T) {
	t.Parallel()

	manager := mcpmgr.NewManager(mcpmgr.ManagerDefaults{}, nil)
	gateway, err := NewGateway(manager, &Options{Path: "/mcp", AuthToken: "secret"})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	server := httptest.NewServer(gateway.Handler())
	t.Cleanup(server.Close)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/mcp", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer wrong")
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("post with wrong token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for mismatched token, got %d", resp.StatusCode)
	}
}

func TestGatewayAcceptsCorrectBearerToken(t *testing.T) {
	t.Parallel()

	manager := mcpmgr.NewManager(mcpmgr.ManagerDefaults{}, nil)
	gateway, err := NewGateway(manager, &Options{Path: "/mcp", AuthToken: "secret"})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	server := httptest.NewServer(gateway.Handler())
	t.Cleanup(server.Close)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/mcp", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("post with correct token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		t.Fatalf("expected a correct token to reach the handler, got 401")
	}
}

func TestGatewayWithoutAuthTokenLeavesEndpointOpen(t *testing.T) {
	t.Parallel()

	manager := mcpmgr.NewManager(mcpmgr.ManagerDefaults{}, nil)
	gateway, err := NewGateway(manager, &Options{Path: "/mcp"})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	server := httptest.NewServer(gateway.Handler())
	t.Cleanup(server.Close)

	resp, err := server.Client().Post(server.URL+"/mcp", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post without auth configured: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		t.Fatalf("unexpected 401 when no AuthToken was configured")
	}
}
