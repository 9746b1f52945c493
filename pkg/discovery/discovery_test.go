package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestServiceInfoPeers(t *testing.T) {
	info := &ServiceInfo{Port: 9001, IPs: []string{"192.168.1.10", "bogus", "10.0.0.1"}}
	peers := info.Peers()
	if assert.Len(t, peers, 2) {
		assert.Equal(t, "192.168.1.10:9001", peers[0].String())
		assert.Equal(t, "10.0.0.1:9001", peers[1].String())
	}

	assert.Empty(t, (&ServiceInfo{Port: 0, IPs: []string{"10.0.0.1"}}).Peers())
}

func TestDiscovery(t *testing.T) {
	// Skip in CI/docker environments where multicast might not work
	if testing.Short() {
		t.Skip("Skipping mDNS test in short mode")
	}

	advertiser := NewAdvertiser()
	meta := map[string]string{"test": "true"}
	port := 12345

	err := advertiser.Start("test-service", port, meta)
	if err != nil {
		t.Skipf("mDNS unavailable: %v", err)
	}
	defer advertiser.Stop()

	// Give it a moment to announce
	time.Sleep(500 * time.Millisecond)

	resolver, err := NewResolver()
	if err != nil {
		t.Skipf("mDNS unavailable: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := resolver.Browse(ctx)
	if err != nil {
		t.Fatalf("Failed to browse: %v", err)
	}

	found := false
	for info := range ch {
		if info.Port == port && info.Meta["test"] == "true" {
			found = true
			if len(info.IPs) == 0 {
				t.Error("Discovered service has no IPs")
			}
			t.Logf("Found service: %+v", info)
			break
		}
	}

	if !found {
		t.Error("Failed to discover the test service")
	}
}
