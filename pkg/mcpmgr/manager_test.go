package mcpmgr

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestManagerLoadCatalogAndSummaries(t *testing.T) {
	t.Parallel()

	params := map[string]ServerParams{
		"fs": &StdioParams{
			BaseParams: BaseParams{Name: "fs", Enabled: true, TimeoutSeconds: 5},
			Command:    "npx",
			Args:       []string{"@modelcontextprotocol/server-everything"},
		},
		"peer": &HTTPParams{
			BaseParams: BaseParams{Name: "peer", Enabled: false, TimeoutSeconds: 5},
			URL:        "https://example.invalid/mcp",
		},
	}

	m := NewManager(ManagerDefaults{DefaultClientName: "manager-tests"}, nil)
	m.LoadCatalog(params)

	names := m.ListServers()
	expected := []string{"fs", "peer"}
	sortedCopy := append([]string{}, names...)
	if !reflect.DeepEqual(sortInPlace(sortedCopy), expected) {
		t.Fatalf("ListServers() = %v, expected (sorted) %v", names, expected)
	}

	summaries := m.ListServerSummaries()
	if len(summaries) != 2 {
		t.Fatalf("expected two summaries, got %d", len(summaries))
	}
	for _, s := range summaries {
		if s.State != StatePending {
			t.Fatalf("expected Pending state before Initialize, got %s for %s", s.State, s.Name)
		}
		if s.Name == "peer" && s.Enabled {
			t.Fatalf("peer should be disabled")
		}
	}
}

func TestManagerGetToolkitErrorKinds(t *testing.T) {
	t.Parallel()

	params := map[string]ServerParams{
		"disabled": &StdioParams{
			BaseParams: BaseParams{Name: "disabled", Enabled: false, TimeoutSeconds: 5},
			Command:    "npx",
		},
	}
	m := NewManager(ManagerDefaults{}, nil)
	m.LoadCatalog(params)

	if _, err := m.GetToolkit("unknown", nil); KindOfOrFatal(t, err) != KindNotFound {
		t.Fatalf("expected NotFound for unknown server")
	}
	if _, err := m.GetToolkit("disabled", nil); KindOfOrFatal(t, err) != KindDisabled {
		t.Fatalf("expected Disabled for disabled server")
	}

	m.LoadCatalog(map[string]ServerParams{
		"pending": &StdioParams{BaseParams: BaseParams{Name: "pending", Enabled: true, TimeoutSeconds: 5}, Command: "npx"},
	})
	if _, err := m.GetToolkit("pending", nil); KindOfOrFatal(t, err) != KindNotReady {
		t.Fatalf("expected NotReady before Initialize runs")
	}
}

func TestPeerRegistryNameCollision(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerDefaults{}, nil)
	m.LoadCatalog(map[string]ServerParams{
		"taken": &StdioParams{BaseParams: BaseParams{Name: "taken", Enabled: true, TimeoutSeconds: 5}, Command: "npx"},
	})
	registry := NewPeerRegistry(m)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := registry.AddPeer(ctx, "taken", "https://example.invalid/mcp", "")
	if KindOfOrFatal(t, err) != KindInvalidConfig {
		t.Fatalf("expected InvalidConfig on name collision, got %v", err)
	}

	names := m.ListServers()
	if len(names) != 1 {
		t.Fatalf("collision must not mutate state, got %v", names)
	}
}

func TestPeerRegistryRejectsMalformedURL(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerDefaults{}, nil)
	registry := NewPeerRegistry(m)
	ctx := context.Background()
	if _, err := registry.AddPeer(ctx, "b", "not-a-url", "tok"); KindOfOrFatal(t, err) != KindInvalidConfig {
		t.Fatalf("expected InvalidConfig for malformed url")
	}
}

func TestManagerBuildStdioTransportForServerEverything(t *testing.T) {
	t.Parallel()

	cfg := &StdioParams{
		BaseParams: BaseParams{Name: "stdio-example", Enabled: true, TimeoutSeconds: 5},
		Command:    "npx",
		Args:       []string{"@modelcontextprotocol/server-everything"},
		Env:        map[string]string{"MCP_SERVER_MODE": "stdio"},
	}

	transport, err := buildStdioTransport("stdio-example", cfg)
	if err != nil {
		t.Fatalf("buildStdioTransport error: %v", err)
	}

	cmdTransport, ok := transport.(*mcp.CommandTransport)
	if !ok {
		t.Fatalf("expected CommandTransport, got %T", transport)
	}

	expectedArgs := append([]string{cfg.Command}, cfg.Args...)
	if !reflect.DeepEqual(cmdTransport.Command.Args, expectedArgs) {
		t.Fatalf("command args = %v, expected %v", cmdTransport.Command.Args, expectedArgs)
	}
	if !envContains(cmdTransport.Command.Env, "MCP_SERVER_MODE", "stdio") {
		t.Fatalf("env missing MCP_SERVER_MODE from stdio config")
	}
}

func TestManagerReloadBlocksOnAnInFlightReloadOfTheSameServer(t *testing.T) {
	t.Parallel()

	const name = "disabled-one"
	m := NewManager(ManagerDefaults{}, nil)
	m.LoadCatalog(map[string]ServerParams{
		name: &StdioParams{
			BaseParams: BaseParams{Name: name, Enabled: false, TimeoutSeconds: 5},
			Command:    "true",
		},
	})

	srv := m.servers[name]
	srv.reloadMu.Lock()

	done := make(chan error, 1)
	go func() { done <- m.Reload(context.Background(), name) }()

	select {
	case <-done:
		t.Fatalf("Reload returned before the in-flight reload's lock was released")
	case <-time.After(150 * time.Millisecond):
	}

	srv.reloadMu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Reload never proceeded after the lock was released")
	}
}

func TestManagerTwoConcurrentReloadsOnTheSameServerDoNotOverlap(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing-sensitive test in short mode")
	}
	t.Parallel()

	const name = "slow-dial"
	m := NewManager(ManagerDefaults{}, nil)
	m.LoadCatalog(map[string]ServerParams{
		name: &StdioParams{
			BaseParams: BaseParams{Name: name, Enabled: true, TimeoutSeconds: 1},
			Command:    "sleep",
			Args:       []string{"5"},
		},
	})

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			_ = m.Reload(context.Background(), name)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// Each dial attempt against "sleep 5" times out after ~1s. If the two
	// reloads had run concurrently instead of serializing on reloadMu, the
	// total elapsed time would be close to one timeout, not two.
	if elapsed < 1500*time.Millisecond {
		t.Fatalf("expected the two reloads to serialize (~2 timeouts), took %v", elapsed)
	}
}

func TestManagerInitializeIndependentFailures(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	t.Parallel()

	goodID := "good-everything"
	badID := "bad-command"
	m := NewManager(ManagerDefaults{DefaultTimeoutSeconds: 10}, nil)
	m.LoadCatalog(map[string]ServerParams{
		goodID: &StdioParams{
			BaseParams: BaseParams{Name: goodID, Enabled: true, TimeoutSeconds: 10},
			Command:    "npx",
			Args:       []string{"@modelcontextprotocol/server-everything"},
		},
		badID: &StdioParams{
			BaseParams: BaseParams{Name: badID, Enabled: true, TimeoutSeconds: 5},
			Command:    "definitely-not-a-real-binary",
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	summary := m.Initialize(ctx)
	defer m.Shutdown(context.Background())

	if _, failed := summary.Failed[badID]; !failed {
		t.Fatalf("expected %s to fail initialization", badID)
	}
	found := false
	for _, name := range summary.Ready {
		if name == goodID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s to become ready, summary: %+v", goodID, summary)
	}
}

func envContains(env []string, key, value string) bool {
	target := key + "=" + value
	for _, item := range env {
		if item == target {
			return true
		}
	}
	return false
}

func sortInPlace(s []string) []string {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
	return s
}

func KindOfOrFatal(t *testing.T, err error) Kind {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error")
	}
	kind, ok := KindOf(err)
	if !ok {
		t.Fatalf("expected *mcpmgr.Error, got %T: %v", err, err)
	}
	return kind
}
