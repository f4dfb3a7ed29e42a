package storagenode

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/uplo-tech/fastrand"

	"github.com/uplo-tech/chunkfs/modules"
)

// TestSendHeartbeat verifies the heartbeat payload and that a successful post
// is not retried.
func TestSendHeartbeat(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}
	var mu sync.Mutex
	var beats []map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		beats = append(beats, body)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	coord := httptest.NewServer(mux)
	defer coord.Close()

	sn := newTestingStorageNode(t, "dn1", coord.URL)
	defer func() {
		if err := sn.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	sn.managedSendHeartbeat()
	mu.Lock()
	defer mu.Unlock()
	if len(beats) != 1 {
		t.Fatal("expected one heartbeat, got", len(beats))
	}
	if beats[0]["dn_id"] != "dn1" || beats[0]["host"] != sn.staticHost {
		t.Error("unexpected heartbeat payload:", beats[0])
	}
}

// TestRecoveryPull verifies that a recovery pass pulls a hinted missing
// chunk from its source, writes the side-car and re-registers it.
func TestRecoveryPull(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}
	data := fastrand.Bytes(512)
	chunkID := modules.NewChunkID("f.bin", 0)

	// The source node serves the chunk.
	sourceMux := http.NewServeMux()
	sourceMux.HandleFunc("/get_chunk", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("chunk_id") != string(chunkID) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(getChunkResponse{Data: data, SHA256: computeSHA256(data)})
	})
	source := httptest.NewServer(sourceMux)
	defer source.Close()

	// The coordinator lists the chunk with a source hint, plus one chunk
	// without a hint that must be ignored.
	fc := newFakeCoordinator()
	defer fc.server.Close()
	coordMux := http.NewServeMux()
	coordMux.HandleFunc("/get_chunks_for_dn", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chunksForDNResponse{Chunks: []modules.RecoveryChunk{
			{ChunkID: chunkID, SourceDN: "dn1", SourceHost: source.URL},
			{ChunkID: modules.NewChunkID("unhinted.bin", 0)},
		}})
	})
	coordMux.HandleFunc("/register_chunk", fc.server.Config.Handler.ServeHTTP)
	coord := httptest.NewServer(coordMux)
	defer coord.Close()

	sn := newTestingStorageNode(t, "dn2", coord.URL)
	defer func() {
		if err := sn.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	sn.managedRecoverMissingChunks()

	read, err := ioutil.ReadFile(sn.chunkPath(chunkID))
	if err != nil {
		t.Fatal("recovered chunk not on disk:", err)
	}
	if !bytes.Equal(read, data) {
		t.Error("recovered bytes differ from the source")
	}
	if sn.VerifyChunk(chunkID) != modules.VerifyValid {
		t.Error("recovered chunk does not verify")
	}
	if sn.hasChunk(modules.NewChunkID("unhinted.bin", 0)) {
		t.Error("unhinted chunk was pulled")
	}

	// The recovered chunk was re-registered under its filename.
	regs := fc.registrations()
	if len(regs) != 1 || regs[0]["filename"] != "f.bin" || regs[0]["dn_id"] != "dn2" {
		t.Error("unexpected re-registration:", regs)
	}
}
