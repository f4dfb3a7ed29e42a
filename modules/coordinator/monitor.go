package coordinator

import (
	"sort"
	"time"

	"github.com/uplo-tech/chunkfs/modules"
)

// threadedMonitorDatanodes runs the liveness monitor. At a fixed cadence it
// walks the datanode registry, flips liveness flags based on heartbeat
// recency, and launches a replication sweep for every node that just died.
func (c *Coordinator) threadedMonitorDatanodes() {
	if err := c.tg.Add(); err != nil {
		return
	}
	defer c.tg.Done()

	for {
		select {
		case <-c.tg.StopChan():
			return
		case <-time.After(c.monitorInterval):
		}

		// Each dead node gets its own sweep. Sweeps are serialized per dead
		// node but may run in parallel across different dead nodes.
		for _, dnID := range c.managedUpdateLiveness() {
			deadDN := dnID
			err := c.tg.Launch(func() {
				c.managedReplicationSweep(deadDN)
			})
			if err != nil {
				return
			}
		}
	}
}

// managedUpdateLiveness performs one monitor pass over the datanode
// registry, flipping liveness flags based on heartbeat recency. It returns
// the ids of the nodes that just died. A node whose last heartbeat is
// exactly heartbeatTimeout old stays alive; strictly older means dead.
func (c *Coordinator) managedUpdateLiveness() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var died []string
	changed := false
	now := nowSeconds()
	for dnID, dn := range c.datanodes {
		silent := now-dn.LastSeen > c.heartbeatTimeout.Seconds()
		if silent && dn.Alive {
			c.log.Printf("INFO: marking %v as DEAD (no heartbeat for %.1fs)", dnID, now-dn.LastSeen)
			dn.Alive = false
			changed = true
			died = append(died, dnID)
		} else if !silent && !dn.Alive {
			c.log.Printf("INFO: marking %v as ALIVE again (heartbeat received)", dnID)
			dn.Alive = true
			changed = true
		}
	}
	if changed {
		if err := c.save(); err != nil {
			c.log.Println("ERROR: unable to persist liveness change:", err)
		}
	}
	return died
}

// managedReplicationSweep scans all files for chunks that list deadDN in
// their holder set and have fallen below the replication factor, and
// re-issues copies from an alive holder to restore it. Failures are logged
// and skipped; the next monitor cycle retries implicitly.
func (c *Coordinator) managedReplicationSweep(deadDN string) {
	c.mu.Lock()
	var filenames []string
	for filename := range c.files {
		filenames = append(filenames, filename)
	}
	c.mu.Unlock()
	sort.Strings(filenames)

	for _, filename := range filenames {
		c.mu.Lock()
		record, exists := c.files[filename]
		var chunks []modules.ChunkID
		if exists {
			chunks = append(chunks, record.Chunks...)
		}
		c.mu.Unlock()
		if !exists {
			continue
		}

		for _, chunkID := range chunks {
			select {
			case <-c.tg.StopChan():
				return
			default:
			}
			c.managedRestoreChunk(filename, chunkID, deadDN)
		}
	}
}

// managedRestoreChunk restores the replication factor of a single chunk that
// may have lost a replica on deadDN.
func (c *Coordinator) managedRestoreChunk(filename string, chunkID modules.ChunkID, deadDN string) {
	// Snapshot holders and liveness under the lock, then do all network I/O
	// outside of it.
	c.mu.Lock()
	record, exists := c.files[filename]
	if !exists {
		c.mu.Unlock()
		return
	}
	holders := append([]string(nil), record.ChunksInfo[chunkID]...)
	aliveReplicas := sortedAliveHolders(holders, c.datanodes)
	aliveNodes, hosts := c.aliveDatanodes()
	c.mu.Unlock()
	sort.Strings(aliveNodes)

	if !containsDN(holders, deadDN) || len(aliveReplicas) >= c.replicaFactor {
		return
	}

	// Pick the target: the first alive node that does not yet hold the
	// chunk. If every alive node already holds it, fall back to the first
	// alive replica, which keeps the placement a no-op while still
	// reporting liveness.
	var target string
	var candidates []string
	for _, dn := range aliveNodes {
		if !containsDN(aliveReplicas, dn) {
			candidates = append(candidates, dn)
		}
	}
	if len(candidates) > 0 {
		target = candidates[0]
	} else if len(aliveReplicas) > 0 {
		target = aliveReplicas[0]
	} else {
		return
	}

	// Pick the source: the first alive replica.
	if len(aliveReplicas) == 0 {
		return
	}
	source := aliveReplicas[0]

	srcHost := hosts[source]
	tgtHost := hosts[target]
	err := postJSON(nodeEndpoint(srcHost, "/replicate_chunk"), map[string]interface{}{
		"chunk_id":    chunkID,
		"target_host": tgtHost,
	}, modules.ReplicateInstructTimeout, nil)
	if err != nil {
		c.log.Println("ERROR: replication error:", err)
		return
	}

	c.mu.Lock()
	record, exists = c.files[filename]
	if exists {
		if !containsDN(record.ChunksInfo[chunkID], target) {
			record.ChunksInfo[chunkID] = append(record.ChunksInfo[chunkID], target)
		}
		if err := c.save(); err != nil {
			c.log.Println("ERROR: unable to persist replication result:", err)
		}
	}
	c.mu.Unlock()
	c.log.Printf("INFO: replicated %v to %v", chunkID, target)
}
