package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mininerva/openclaw-cardputer/internal/metrics"
	"github.com/mininerva/openclaw-cardputer/internal/protocol"
)

func newTestRegistry() *Registry {
	return NewRegistry(16, 1<<20, metrics.New(prometheus.NewRegistry()), zap.NewNop())
}

func authedSession(t *testing.T, r *Registry, deviceID string) *Session {
	t.Helper()
	sess := r.Create(deviceID)
	if !r.Authenticate(sess.ID, DeviceInfo{DeviceID: deviceID, DeviceName: "Cardputer", Version: "1.0"}) {
		t.Fatalf("Authenticate failed for %s", deviceID)
	}
	return sess
}

func TestRegistryAuthenticate(t *testing.T) {
	r := newTestRegistry()

	sess := r.Create("dev-1")
	if sess.State() != StateConnecting {
		t.Fatalf("new session state = %v, want StateConnecting", sess.State())
	}
	if _, ok := r.GetByDevice("dev-1"); ok {
		t.Fatal("device mapping installed before authentication")
	}

	if !r.Authenticate(sess.ID, DeviceInfo{DeviceID: "dev-1", DeviceName: "Cardputer"}) {
		t.Fatal("Authenticate returned false for live session")
	}
	if sess.State() != StateAuthenticated {
		t.Fatalf("state after auth = %v, want StateAuthenticated", sess.State())
	}

	got, ok := r.GetByDevice("dev-1")
	if !ok || got.ID != sess.ID {
		t.Fatalf("GetByDevice = %v, %v; want session %s", got, ok, sess.ID)
	}
}

func TestRegistryAuthenticateUnknownSession(t *testing.T) {
	r := newTestRegistry()
	if r.Authenticate("nope", DeviceInfo{DeviceID: "dev-1"}) {
		t.Fatal("Authenticate succeeded for unknown session id")
	}
}

func TestRegistryReauthSupersedes(t *testing.T) {
	r := newTestRegistry()

	s1 := authedSession(t, r, "dev-1")
	s2 := authedSession(t, r, "dev-1")

	got, ok := r.GetByDevice("dev-1")
	if !ok || got.ID != s2.ID {
		t.Fatalf("device maps to %v, want newest session %s", got, s2.ID)
	}

	// The superseded session stays alive; it is just unaddressable by
	// device id.
	if _, ok := r.Get(s1.ID); !ok {
		t.Fatal("superseded session was evicted")
	}
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}

	// Removing the newest session must not resurrect the old mapping.
	r.Remove(s2.ID)
	if _, ok := r.GetByDevice("dev-1"); ok {
		t.Fatal("device mapping survived removal of its session")
	}
}

func TestRegistryRemove(t *testing.T) {
	r := newTestRegistry()
	sess := authedSession(t, r, "dev-1")

	closed := false
	sess.setCloseConn(func() { closed = true })

	r.Remove(sess.ID)
	if _, ok := r.Get(sess.ID); ok {
		t.Fatal("session still retrievable after Remove")
	}
	if _, ok := r.GetByDevice("dev-1"); ok {
		t.Fatal("device mapping still present after Remove")
	}
	if !closed {
		t.Fatal("Remove did not tear down the transport")
	}
	if !sess.Outbox().Closed() {
		t.Fatal("Remove left the outbox open")
	}

	// Idempotent.
	r.Remove(sess.ID)
}

func TestRegistrySendToDevice(t *testing.T) {
	r := newTestRegistry()
	sess := authedSession(t, r, "dev-1")

	f := protocol.NewFrame(protocol.TypeResponse, protocol.ResponsePayload("hi", true))
	if !r.SendToDevice("dev-1", f) {
		t.Fatal("SendToDevice failed for connected device")
	}
	if sess.Outbox().Len() != 1 {
		t.Fatalf("outbox length = %d, want 1", sess.Outbox().Len())
	}
	if sess.Stats().MessagesSent != 1 {
		t.Fatalf("MessagesSent = %d, want 1", sess.Stats().MessagesSent)
	}

	if r.SendToDevice("dev-unknown", f) {
		t.Fatal("SendToDevice succeeded for unknown device")
	}
}

func TestRegistrySendFullQueue(t *testing.T) {
	r := NewRegistry(1, 0, metrics.New(prometheus.NewRegistry()), zap.NewNop())
	sess := authedSession(t, r, "dev-1")

	f := protocol.NewFrame(protocol.TypeStatus, protocol.StatusPayload("x"))
	if !r.SendToSession(sess.ID, f) {
		t.Fatal("first send failed")
	}
	if r.SendToSession(sess.ID, f) {
		t.Fatal("send on full queue reported success")
	}
	if sess.Stats().MessagesSent != 1 {
		t.Fatalf("dropped frame counted as sent: MessagesSent = %d", sess.Stats().MessagesSent)
	}
}

func TestRegistryBroadcast(t *testing.T) {
	r := newTestRegistry()
	authedSession(t, r, "dev-1")
	authedSession(t, r, "dev-2")
	r.Create("dev-pending") // still connecting

	f := protocol.NewFrame(protocol.TypeStatus, protocol.StatusPayload("maintenance"))
	if n := r.Broadcast(f, true); n != 2 {
		t.Fatalf("Broadcast(authenticatedOnly) = %d, want 2", n)
	}
	if n := r.Broadcast(f, false); n != 3 {
		t.Fatalf("Broadcast(all) = %d, want 3", n)
	}
}

func TestRegistrySweepStale(t *testing.T) {
	r := newTestRegistry()

	stale := authedSession(t, r, "dev-stale")
	fresh := authedSession(t, r, "dev-fresh")

	stale.mu.Lock()
	stale.lastActivity = time.Now().Add(-10 * time.Minute)
	stale.mu.Unlock()

	if n := r.SweepStale(5 * time.Minute); n != 1 {
		t.Fatalf("SweepStale = %d, want 1", n)
	}
	if _, ok := r.Get(stale.ID); ok {
		t.Fatal("stale session survived the sweep")
	}
	if _, ok := r.Get(fresh.ID); !ok {
		t.Fatal("fresh session was swept")
	}
	if _, ok := r.GetByDevice("dev-stale"); ok {
		t.Fatal("stale device mapping survived the sweep")
	}
}

func TestRegistryActiveSessions(t *testing.T) {
	r := newTestRegistry()
	authedSession(t, r, "dev-1")
	r.Create("dev-pending")

	infos := r.ActiveSessions()
	if len(infos) != 1 {
		t.Fatalf("ActiveSessions = %d entries, want 1", len(infos))
	}
	if infos[0].DeviceID != "dev-1" || !infos[0].Authenticated {
		t.Fatalf("unexpected snapshot: %+v", infos[0])
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := newTestRegistry()
	f := protocol.NewFrame(protocol.TypePing, map[string]interface{}{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sess := r.Create("dev-race")
				r.Authenticate(sess.ID, DeviceInfo{DeviceID: "dev-race"})
				r.SendToDevice("dev-race", f)
				r.Broadcast(f, true)
				r.Remove(sess.ID)
			}
		}()
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Fatalf("sessions leaked: Len = %d", r.Len())
	}
}
