package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func sampleEvent(image, date string) *Event {
	return &Event{
		Render: RenderInfo{
			Image:      image,
			Date:       date,
			Checksum:   "sha256:abc",
			StorageURI: "file:///out/" + image + ".jpg",
			ByteSize:   2048,
			Width:      1024,
		},
		Producer: ProducerInfo{Name: "mandalagen", Version: "test"},
	}
}

func TestComputeEventHashStable(t *testing.T) {
	evt := sampleEvent("lighthouse", "2024-06-01")
	evt.Timestamp = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	evt.EventID = "evt_fixed"

	h1 := ComputeEventHash(evt)
	h2 := ComputeEventHash(evt)
	if h1 != h2 {
		t.Fatalf("hash not stable: %s vs %s", h1, h2)
	}
	if len(h1) != len("sha256:")+64 {
		t.Fatalf("hash length = %d", len(h1))
	}

	// The stored hash must not feed back into the computation.
	evt.Chain.EventHash = h1
	if ComputeEventHash(evt) != h1 {
		t.Fatal("event_hash field affected the hash")
	}

	evt.Render.Checksum = "sha256:other"
	if ComputeEventHash(evt) == h1 {
		t.Fatal("hash ignored payload change")
	}
}

func TestFileEmitterChains(t *testing.T) {
	dir := t.TempDir()
	e, err := NewFileEmitter(dir)
	if err != nil {
		t.Fatalf("NewFileEmitter: %v", err)
	}
	defer e.Close()

	first := sampleEvent("lighthouse", "2024-06-01")
	if err := e.EmitRender(context.Background(), first); err != nil {
		t.Fatalf("emit first: %v", err)
	}
	if first.Chain.PrevEventHash != "" {
		t.Errorf("first event has prev hash %q", first.Chain.PrevEventHash)
	}
	if first.Chain.EventHash == "" {
		t.Error("first event missing hash")
	}

	second := sampleEvent("lighthouse", "2024-06-02")
	if err := e.EmitRender(context.Background(), second); err != nil {
		t.Fatalf("emit second: %v", err)
	}
	if second.Chain.PrevEventHash != first.Chain.EventHash {
		t.Errorf("chain broken: prev = %q, want %q", second.Chain.PrevEventHash, first.Chain.EventHash)
	}

	// A different image starts its own chain.
	other := sampleEvent("harbor", "2024-06-01")
	if err := e.EmitRender(context.Background(), other); err != nil {
		t.Fatalf("emit other: %v", err)
	}
	if other.Chain.PrevEventHash != "" {
		t.Errorf("separate image inherited chain head %q", other.Chain.PrevEventHash)
	}

	data, err := os.ReadFile(filepath.Join(dir, "events", "lighthouse_2024-06-02.json"))
	if err != nil {
		t.Fatalf("read event file: %v", err)
	}
	var stored Event
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("unmarshal event file: %v", err)
	}
	if stored.EventType != "mandala_published" {
		t.Errorf("event type = %q", stored.EventType)
	}
}

func TestChainSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	e1, err := NewFileEmitter(dir)
	if err != nil {
		t.Fatalf("NewFileEmitter: %v", err)
	}
	first := sampleEvent("lighthouse", "2024-06-01")
	if err := e1.EmitRender(context.Background(), first); err != nil {
		t.Fatalf("emit: %v", err)
	}
	e1.Close()

	e2, err := NewFileEmitter(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	second := sampleEvent("lighthouse", "2024-06-02")
	if err := e2.EmitRender(context.Background(), second); err != nil {
		t.Fatalf("emit after reopen: %v", err)
	}
	if second.Chain.PrevEventHash != first.Chain.EventHash {
		t.Errorf("chain lost across restart: prev = %q, want %q",
			second.Chain.PrevEventHash, first.Chain.EventHash)
	}
}

func TestHTTPEmitterPosts(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			t.Errorf("decode posted event: %v", err)
		}
		if evt.Render.Image != "lighthouse" {
			t.Errorf("posted image = %q", evt.Render.Image)
		}
		received.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	e, err := NewHTTPEmitter(srv.URL, t.TempDir())
	if err != nil {
		t.Fatalf("NewHTTPEmitter: %v", err)
	}
	defer e.Close()

	if err := e.EmitRender(context.Background(), sampleEvent("lighthouse", "2024-06-01")); err != nil {
		t.Fatalf("EmitRender: %v", err)
	}
	if received.Load() != 1 {
		t.Errorf("received = %d posts, want 1", received.Load())
	}
}

func TestHTTPEmitterToleratesDeadReceiver(t *testing.T) {
	dir := t.TempDir()
	e, err := NewHTTPEmitter("http://127.0.0.1:1/events", dir)
	if err != nil {
		t.Fatalf("NewHTTPEmitter: %v", err)
	}
	defer e.Close()

	// Delivery fails but the local copy makes the emit succeed.
	if err := e.EmitRender(context.Background(), sampleEvent("lighthouse", "2024-06-01")); err != nil {
		t.Fatalf("EmitRender: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "events", "lighthouse_2024-06-01.json")); err != nil {
		t.Errorf("local event copy missing: %v", err)
	}
}

func TestDisabledEmitterIsNoop(t *testing.T) {
	e := NewEmitter(Config{Enabled: false})
	if err := e.EmitRender(context.Background(), sampleEvent("lighthouse", "2024-06-01")); err != nil {
		t.Fatalf("noop emit: %v", err)
	}
	e.Close()
}
