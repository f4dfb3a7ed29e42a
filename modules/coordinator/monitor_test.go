package coordinator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/uplo-tech/chunkfs/modules"
)

// fakeDatanode is a minimal stand-in for a storage node's HTTP surface. It
// records the replicate instructions it receives.
type fakeDatanode struct {
	mu         sync.Mutex
	replicated []map[string]string
	failNext   bool

	server *httptest.Server
}

// newFakeDatanode spins up a fake storage node.
func newFakeDatanode() *fakeDatanode {
	fdn := &fakeDatanode{}
	mux := http.NewServeMux()
	mux.HandleFunc("/replicate_chunk", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		fdn.mu.Lock()
		fail := fdn.failNext
		fdn.failNext = false
		if !fail {
			fdn.replicated = append(fdn.replicated, body)
		}
		fdn.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "target_failed"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "replicated"})
	})
	fdn.server = httptest.NewServer(mux)
	return fdn
}

// instructions returns a copy of the recorded replicate instructions.
func (fdn *fakeDatanode) instructions() []map[string]string {
	fdn.mu.Lock()
	defer fdn.mu.Unlock()
	return append([]map[string]string(nil), fdn.replicated...)
}

// TestReplicationSweep verifies that the death of a holder triggers a copy
// from the surviving replica to a fresh node and that the holder set grows
// accordingly.
func TestReplicationSweep(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}
	c := newTestingCoordinator(t)
	defer func() {
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	dn1 := newFakeDatanode()
	defer dn1.server.Close()

	// dn1 and dn2 hold the chunk, dn3 joins later.
	if err := c.Heartbeat("dn1", dn1.server.URL); err != nil {
		t.Fatal(err)
	}
	if err := c.Heartbeat("dn2", "http://dn2:9010"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.UploadPlan("f.txt", 1, nil, ""); err != nil {
		t.Fatal(err)
	}
	if err := c.Heartbeat("dn3", "http://dn3:9010"); err != nil {
		t.Fatal(err)
	}

	// Silence dn2 past the timeout and run a monitor pass.
	c.mu.Lock()
	c.datanodes["dn2"].LastSeen = nowSeconds() - (c.heartbeatTimeout + time.Second).Seconds()
	c.mu.Unlock()
	died := c.managedUpdateLiveness()
	if !reflect.DeepEqual(died, []string{"dn2"}) {
		t.Fatal("expected dn2 to die, got", died)
	}
	c.managedReplicationSweep("dn2")

	// dn1 must have been instructed to copy the chunk to dn3.
	instructions := dn1.instructions()
	if len(instructions) != 1 {
		t.Fatal("expected one replicate instruction, got", len(instructions))
	}
	if instructions[0]["chunk_id"] != "f.txt.chunk.0" || instructions[0]["target_host"] != "http://dn3:9010" {
		t.Error("unexpected instruction:", instructions[0])
	}

	// The holder set now includes the target.
	info, err := c.FileMetadata("f.txt")
	if err != nil {
		t.Fatal(err)
	}
	holders := info[modules.NewChunkID("f.txt", 0)]
	if !reflect.DeepEqual(holders, []string{"dn1", "dn2", "dn3"}) {
		t.Error("unexpected holder set after the sweep:", holders)
	}
}

// TestReplicationSweepSatisfied verifies that chunks that still meet the
// replication factor are left alone.
func TestReplicationSweepSatisfied(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}
	c := newTestingCoordinator(t)
	defer func() {
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	dn1 := newFakeDatanode()
	defer dn1.server.Close()

	for dn, host := range map[string]string{
		"dn1": dn1.server.URL,
		"dn2": "http://dn2:9010",
		"dn3": "http://dn3:9010",
	} {
		if err := c.Heartbeat(dn, host); err != nil {
			t.Fatal(err)
		}
	}
	// Replica factor 2 with three holders: losing one leaves two alive.
	if _, err := c.UploadPlan("f.txt", 1, nil, ""); err != nil {
		t.Fatal(err)
	}
	chunkID := modules.NewChunkID("f.txt", 0)
	if err := c.RegisterChunk("f.txt", chunkID, "dn3"); err != nil {
		t.Fatal(err)
	}

	c.mu.Lock()
	c.datanodes["dn2"].LastSeen = nowSeconds() - (c.heartbeatTimeout + time.Second).Seconds()
	c.mu.Unlock()
	c.managedUpdateLiveness()
	c.managedReplicationSweep("dn2")

	if len(dn1.instructions()) != 0 {
		t.Error("sweep issued an instruction although the replication factor was met")
	}
}

// TestReplicationSweepFailure verifies that a failing source does not grow
// the holder set and does not abort the sweep for later chunks.
func TestReplicationSweepFailure(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}
	c := newTestingCoordinator(t)
	defer func() {
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	dn1 := newFakeDatanode()
	defer dn1.server.Close()

	if err := c.Heartbeat("dn1", dn1.server.URL); err != nil {
		t.Fatal(err)
	}
	if err := c.Heartbeat("dn2", "http://dn2:9010"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.UploadPlan("f.txt", 2, nil, ""); err != nil {
		t.Fatal(err)
	}
	if err := c.Heartbeat("dn3", "http://dn3:9010"); err != nil {
		t.Fatal(err)
	}

	// Fail the first replicate instruction; the second chunk must still be
	// attempted.
	dn1.mu.Lock()
	dn1.failNext = true
	dn1.mu.Unlock()

	c.mu.Lock()
	c.datanodes["dn2"].LastSeen = nowSeconds() - (c.heartbeatTimeout + time.Second).Seconds()
	c.mu.Unlock()
	c.managedUpdateLiveness()
	c.managedReplicationSweep("dn2")

	if len(dn1.instructions()) != 1 {
		t.Fatal("expected the sweep to continue past the failure, got", len(dn1.instructions()), "instructions")
	}
	info, err := c.FileMetadata("f.txt")
	if err != nil {
		t.Fatal(err)
	}
	holders0 := info[modules.NewChunkID("f.txt", 0)]
	holders1 := info[modules.NewChunkID("f.txt", 1)]
	if containsDN(holders0, "dn3") {
		t.Error("failed replication grew the holder set:", holders0)
	}
	if !containsDN(holders1, "dn3") {
		t.Error("successful replication did not grow the holder set:", holders1)
	}
}
