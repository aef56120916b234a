package mcpmgr

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPeerRegistryListPeersOnlyReturnsHTTPServers(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerDefaults{}, nil)
	m.LoadCatalog(map[string]ServerParams{
		"local-fs": &StdioParams{BaseParams: BaseParams{Name: "local-fs", Enabled: true, TimeoutSeconds: 5}, Command: "npx"},
	})
	registry := NewPeerRegistry(m)

	if len(registry.ListPeers()) != 0 {
		t.Fatalf("expected no peers before any HTTP server is registered")
	}

	m.LoadCatalog(map[string]ServerParams{
		"remote": &HTTPParams{BaseParams: BaseParams{Name: "remote", Enabled: true, TimeoutSeconds: 5}, URL: "https://example.invalid/mcp"},
	})
	peers := registry.ListPeers()
	if len(peers) != 1 || peers[0].Name != "remote" {
		t.Fatalf("expected exactly the remote http server, got %+v", peers)
	}
}

func TestPeerRegistryRemoveUnknownPeerIsNotFound(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerDefaults{}, nil)
	registry := NewPeerRegistry(m)
	_, err := registry.RemovePeer(context.Background(), "ghost")
	if KindOfOrFatal(t, err) != KindNotFound {
		t.Fatalf("expected NotFound for removing an unregistered peer")
	}
}

func TestPeerRegistryRemovePendingPeerDropsItFromCatalog(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerDefaults{}, nil)
	m.LoadCatalog(map[string]ServerParams{
		"remote": &HTTPParams{BaseParams: BaseParams{Name: "remote", Enabled: true, TimeoutSeconds: 5}, URL: "https://example.invalid/mcp"},
	})
	registry := NewPeerRegistry(m)

	status, err := registry.RemovePeer(context.Background(), "remote")
	if err != nil {
		t.Fatalf("RemovePeer() error: %v", err)
	}
	if !status.Success || status.PeerName != "remote" {
		t.Fatalf("unexpected status: %+v", status)
	}

	for _, name := range m.ListServers() {
		if name == "remote" {
			t.Fatalf("remote should have been removed from the catalog")
		}
	}
}

func TestManagerRegisterIfAbsentIsAtomicCheckThenInsert(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerDefaults{}, nil)
	params := &HTTPParams{BaseParams: BaseParams{Name: "dup", Enabled: true, TimeoutSeconds: 1}, URL: "https://example.invalid/mcp"}

	if existed := m.registerIfAbsent("dup", params); existed {
		t.Fatalf("first registerIfAbsent call must report existed=false")
	}
	if existed := m.registerIfAbsent("dup", params); !existed {
		t.Fatalf("second registerIfAbsent call for the same name must report existed=true and mutate nothing")
	}
	if len(m.ListServers()) != 1 {
		t.Fatalf("expected exactly one registered server, got %v", m.ListServers())
	}
}

// TestPeerRegistryAddPeerConcurrentSameNameOnlyOneWins exercises the race
// called out by the TOCTOU review: two goroutines call AddPeer for the same
// name concurrently. Exactly one may win the registration; the other must
// observe InvalidConfig and leave the catalog entry it lost the race for
// untouched (invariant 1 / testable property 3), never silently overwriting
// the winner's params the way routing both through LoadCatalog would.
func TestPeerRegistryAddPeerConcurrentSameNameOnlyOneWins(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerDefaults{}, nil)
	registry := NewPeerRegistry(m)

	const name = "contested"
	urls := []string{"https://example.invalid/mcp-a", "https://example.invalid/mcp-b"}

	var wg sync.WaitGroup
	errs := make([]error, len(urls))
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_, err := registry.AddPeer(ctx, name, u, "")
			errs[i] = err
		}(i, u)
	}
	wg.Wait()

	collisions := 0
	for _, err := range errs {
		if err != nil {
			if kind, ok := KindOf(err); ok && kind == KindInvalidConfig {
				collisions++
			}
		}
	}
	if collisions != 1 {
		t.Fatalf("expected exactly one InvalidConfig collision, got %d across errs=%v", collisions, errs)
	}

	count := 0
	for _, n := range m.ListServers() {
		if n == name {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one catalog entry named %q after the race, got %d", name, count)
	}
}
