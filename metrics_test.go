package gamenet

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatherValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			}
		}
		return sum
	}
	return 0
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.connected()
	m.disconnect()
	m.connectFailed()
	m.frameReceived(1)
	m.frameSent(1)
	m.sendFailed("x")
}

func TestMetrics_ServerTraffic(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "gamenet", "server")

	server := startTestServer(t, MetricsOption(metrics))
	client := dialTestServer(t, server)
	connected := nextServerEvent(t, server, Connected)

	if got := gatherValue(t, reg, "gamenet_active_connections"); got != 1 {
		t.Errorf("active_connections = %v, want 1", got)
	}

	writeFrame(t, client, []byte("abc"))
	nextServerEvent(t, server, DataReceived).Release()

	if got := gatherValue(t, reg, "gamenet_frames_received_total"); got != 1 {
		t.Errorf("frames_received_total = %v, want 1", got)
	}
	if got := gatherValue(t, reg, "gamenet_received_bytes_total"); got != 5 {
		t.Errorf("received_bytes_total = %v, want 5", got)
	}

	if err := server.Send(connected.ConnID, make([]byte, DefaultMaxMessageSize)); err == nil {
		t.Fatal("oversized send succeeded")
	}
	if got := gatherValue(t, reg, "gamenet_send_errors_total"); got != 1 {
		t.Errorf("send_errors_total = %v, want 1", got)
	}

	if err := server.Disconnect(connected.ConnID); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	nextServerEvent(t, server, Disconnected)

	if got := gatherValue(t, reg, "gamenet_active_connections"); got != 0 {
		t.Errorf("active_connections = %v, want 0", got)
	}
	if got := gatherValue(t, reg, "gamenet_disconnects_total"); got != 1 {
		t.Errorf("disconnects_total = %v, want 1", got)
	}
}
