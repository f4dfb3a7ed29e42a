package coordinator

import (
	"reflect"
	"testing"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/uplo-tech/chunkfs/build"
	"github.com/uplo-tech/chunkfs/modules"
)

// newTestingCoordinator creates a Coordinator for testing, with a monitor
// cadence long enough that liveness passes only happen when a test invokes
// them directly.
func newTestingCoordinator(t *testing.T) *Coordinator {
	c, err := NewCustom(build.TempDir("coordinator", t.Name()), modules.DefaultReplicaFactor, modules.DefaultHeartbeatTimeout, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// newTestingCoordinatorCustom creates a Coordinator for testing with a
// custom replica factor.
func newTestingCoordinatorCustom(t *testing.T, replicaFactor int) *Coordinator {
	c, err := NewCustom(build.TempDir("coordinator", t.Name()), replicaFactor, modules.DefaultHeartbeatTimeout, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// TestRegisterChunkIdempotent verifies that repeated registrations of the
// same holder leave it in the holder set exactly once.
func TestRegisterChunkIdempotent(t *testing.T) {
	c := newTestingCoordinator(t)
	defer func() {
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	chunkID := modules.NewChunkID("f.txt", 0)
	for i := 0; i < 3; i++ {
		if err := c.RegisterChunk("f.txt", chunkID, "dn1"); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.RegisterChunk("f.txt", chunkID, "dn2"); err != nil {
		t.Fatal(err)
	}

	info, err := c.FileMetadata("f.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(info[chunkID], []string{"dn1", "dn2"}) {
		t.Error("unexpected holder set:", info[chunkID])
	}
}

// TestUploadPlanNoDatanodes verifies that planning fails when no datanode is
// alive.
func TestUploadPlanNoDatanodes(t *testing.T) {
	c := newTestingCoordinator(t)
	defer func() {
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	_, err := c.UploadPlan("f.txt", 2, nil, "")
	if !errors.Contains(err, modules.ErrNoDatanodesAvailable) {
		t.Fatal("expected ErrNoDatanodesAvailable, got", err)
	}
}

// TestUploadPlanDeterministic verifies that two plans for the same file and
// alive-set produce identical assignments.
func TestUploadPlanDeterministic(t *testing.T) {
	c := newTestingCoordinator(t)
	defer func() {
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	for _, dn := range []string{"dn1", "dn2", "dn3"} {
		if err := c.Heartbeat(dn, "http://"+dn+":9010"); err != nil {
			t.Fatal(err)
		}
	}
	plan1, err := c.UploadPlan("f.txt", 4, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	plan2, err := c.UploadPlan("f.txt", 4, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(plan1, plan2) {
		t.Error("plans differ across calls with a fixed alive-set")
	}

	// The round-robin shape with 3 alive nodes and 4 chunks.
	expected := [][]string{
		{"dn1", "dn2"},
		{"dn2", "dn3"},
		{"dn3", "dn1"},
		{"dn1", "dn2"},
	}
	for i, placement := range plan1 {
		if !reflect.DeepEqual(placement.Datanodes, expected[i]) {
			t.Errorf("chunk %v assigned %v, expected %v", i, placement.Datanodes, expected[i])
		}
	}
}

// TestUploadPlanDegenerate verifies planning with a single alive datanode
// and replica factor two: the slot list repeats the node while the persisted
// holder set contains it once.
func TestUploadPlanDegenerate(t *testing.T) {
	c := newTestingCoordinator(t)
	defer func() {
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	if err := c.Heartbeat("dn1", "http://dn1:9010"); err != nil {
		t.Fatal(err)
	}
	plan, err := c.UploadPlan("f.txt", 2, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, placement := range plan {
		if !reflect.DeepEqual(placement.Datanodes, []string{"dn1", "dn1"}) {
			t.Error("expected the slot list to repeat dn1, got", placement.Datanodes)
		}
	}
	info, err := c.FileMetadata("f.txt")
	if err != nil {
		t.Fatal(err)
	}
	for chunkID, holders := range info {
		if !reflect.DeepEqual(holders, []string{"dn1"}) {
			t.Errorf("chunk %v holder set is %v, expected [dn1]", chunkID, holders)
		}
	}
}

// TestUploadPlanChecksums verifies that supplied checksums are recorded as
// the expected digests of the planned chunks.
func TestUploadPlanChecksums(t *testing.T) {
	c := newTestingCoordinator(t)
	defer func() {
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	if err := c.Heartbeat("dn1", "http://dn1:9010"); err != nil {
		t.Fatal(err)
	}
	chunk0 := modules.NewChunkID("f.txt", 0)
	_, err := c.UploadPlan("f.txt", 1, map[modules.ChunkID]string{chunk0: "abc123"}, "")
	if err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	sum := c.files["f.txt"].Checksums[chunk0]
	c.mu.Unlock()
	if sum != "abc123" {
		t.Error("expected digest to be recorded, got", sum)
	}
}

// TestPersistReload verifies that the metadata document survives a restart.
func TestPersistReload(t *testing.T) {
	testDir := build.TempDir("coordinator", t.Name())
	c, err := NewCustom(testDir, modules.DefaultReplicaFactor, modules.DefaultHeartbeatTimeout, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Heartbeat("dn1", "http://dn1:9010"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.UploadPlan("f.txt", 2, nil, ""); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c2, err := NewCustom(testDir, modules.DefaultReplicaFactor, modules.DefaultHeartbeatTimeout, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := c2.Close(); err != nil {
			t.Fatal(err)
		}
	}()
	info, err := c2.FileMetadata("f.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(info) != 2 {
		t.Error("expected 2 chunks after reload, got", len(info))
	}
	c2.mu.Lock()
	dn, exists := c2.datanodes["dn1"]
	c2.mu.Unlock()
	if !exists || dn.Host != "http://dn1:9010" {
		t.Error("datanode registry did not survive the reload")
	}
}

// TestLivenessHysteresis verifies the liveness verdicts around the heartbeat
// timeout and the revival on a fresh heartbeat.
func TestLivenessHysteresis(t *testing.T) {
	c := newTestingCoordinator(t)
	defer func() {
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	if err := c.Heartbeat("dn1", "http://dn1:9010"); err != nil {
		t.Fatal(err)
	}

	// A node within the timeout stays alive.
	c.mu.Lock()
	c.datanodes["dn1"].LastSeen = nowSeconds() - (c.heartbeatTimeout - time.Second).Seconds()
	c.mu.Unlock()
	if died := c.managedUpdateLiveness(); len(died) != 0 {
		t.Fatal("node within the timeout was marked dead")
	}

	// A node strictly past the timeout dies.
	c.mu.Lock()
	c.datanodes["dn1"].LastSeen = nowSeconds() - (c.heartbeatTimeout + time.Second).Seconds()
	c.mu.Unlock()
	died := c.managedUpdateLiveness()
	if len(died) != 1 || died[0] != "dn1" {
		t.Fatal("node past the timeout was not marked dead:", died)
	}
	c.mu.Lock()
	alive := c.datanodes["dn1"].Alive
	c.mu.Unlock()
	if alive {
		t.Fatal("dead node still flagged alive")
	}

	// A dead node that heartbeats again becomes alive immediately.
	if err := c.Heartbeat("dn1", "http://dn1:9010"); err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	alive = c.datanodes["dn1"].Alive
	c.mu.Unlock()
	if !alive {
		t.Fatal("heartbeat did not revive the node")
	}

	// A dead node with a fresh timestamp is revived by the monitor pass.
	c.mu.Lock()
	c.datanodes["dn1"].Alive = false
	c.datanodes["dn1"].LastSeen = nowSeconds()
	c.mu.Unlock()
	if died := c.managedUpdateLiveness(); len(died) != 0 {
		t.Fatal("revival pass reported a death")
	}
	c.mu.Lock()
	alive = c.datanodes["dn1"].Alive
	c.mu.Unlock()
	if !alive {
		t.Fatal("monitor pass did not revive the node")
	}
}

// TestChunkMapProximity verifies that the chunk map orders each chunk's
// alive holders by proximity to the caller.
func TestChunkMapProximity(t *testing.T) {
	c := newTestingCoordinatorCustom(t, 3)
	defer func() {
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	hosts := map[string]string{
		"dn1": "http://10.0.1.1:9010",
		"dn2": "http://10.1.2.2:9010",
		"dn3": "http://192.0.0.1:9010",
	}
	for dn, host := range hosts {
		if err := c.Heartbeat(dn, host); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.UploadPlan("f.txt", 1, nil, ""); err != nil {
		t.Fatal(err)
	}

	locations, err := c.ChunkMap("f.txt", "10.0.7.7:40000")
	if err != nil {
		t.Fatal(err)
	}
	if len(locations) != 1 {
		t.Fatal("expected one chunk, got", len(locations))
	}
	expected := []string{"http://10.0.1.1:9010", "http://10.1.2.2:9010", "http://192.0.0.1:9010"}
	if !reflect.DeepEqual(locations[0].DNHosts, expected) {
		t.Error("unexpected host order:", locations[0].DNHosts)
	}

	// Unknown files are rejected.
	_, err = c.ChunkMap("nope.txt", "")
	if !errors.Contains(err, modules.ErrFileNotFound) {
		t.Error("expected ErrFileNotFound, got", err)
	}
}

// TestChunksForDN verifies the expected-chunk listing and its source hints.
func TestChunksForDN(t *testing.T) {
	c := newTestingCoordinator(t)
	defer func() {
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	for _, dn := range []string{"dn1", "dn2"} {
		if err := c.Heartbeat(dn, "http://"+dn+":9010"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.UploadPlan("f.txt", 1, nil, ""); err != nil {
		t.Fatal(err)
	}

	chunks := c.ChunksForDN("dn2")
	if len(chunks) != 1 {
		t.Fatal("expected one chunk for dn2, got", len(chunks))
	}
	if chunks[0].ChunkID != modules.NewChunkID("f.txt", 0) {
		t.Error("unexpected chunk id:", chunks[0].ChunkID)
	}
	if chunks[0].SourceDN != "dn1" || chunks[0].SourceHost != "http://dn1:9010" {
		t.Error("unexpected source hint:", chunks[0].SourceDN, chunks[0].SourceHost)
	}

	// With the only other holder dead, no source hint is offered.
	c.mu.Lock()
	c.datanodes["dn1"].Alive = false
	c.mu.Unlock()
	chunks = c.ChunksForDN("dn2")
	if len(chunks) != 1 || chunks[0].SourceDN != "" {
		t.Error("expected no source hint with the other holder dead:", chunks)
	}
}
