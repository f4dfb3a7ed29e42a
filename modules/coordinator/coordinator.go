// Package coordinator implements the naming service of the chunk store. The
// coordinator holds the authoritative mapping from filename to ordered chunk
// list to replica set, tracks storage node liveness through heartbeats, picks
// placements at write time, and re-replicates chunks when a node dies.
//
// All metadata lives in a single in-memory document guarded by one coarse
// lock and persisted to metadata.json after every accepted mutation. Network
// calls to storage nodes always happen outside of the lock.
package coordinator

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/threadgroup"

	"github.com/uplo-tech/chunkfs/modules"
	"github.com/uplo-tech/chunkfs/persist"
)

// Coordinator implements the modules.Coordinator interface.
type Coordinator struct {
	// files and datanodes together form the metadata document. Both are
	// guarded by mu; snapshots are taken under the lock and all network I/O
	// happens after release.
	files     map[string]*modules.FileRecord
	datanodes map[string]*modules.DataNode

	replicaFactor    int
	heartbeatTimeout time.Duration
	monitorInterval  time.Duration

	persistDir string
	log        *persist.Logger
	mu         sync.Mutex
	tg         threadgroup.ThreadGroup
}

// New returns an initialized Coordinator using the default replication and
// liveness parameters.
func New(persistDir string) (*Coordinator, error) {
	return NewCustom(persistDir, modules.DefaultReplicaFactor, modules.DefaultHeartbeatTimeout, modules.DefaultMonitorInterval)
}

// NewCustom returns an initialized Coordinator with caller-chosen replication
// and liveness parameters.
func NewCustom(persistDir string, replicaFactor int, heartbeatTimeout, monitorInterval time.Duration) (*Coordinator, error) {
	if replicaFactor < 1 {
		return nil, errors.New("replica factor must be at least 1")
	}
	c := &Coordinator{
		files:     make(map[string]*modules.FileRecord),
		datanodes: make(map[string]*modules.DataNode),

		replicaFactor:    replicaFactor,
		heartbeatTimeout: heartbeatTimeout,
		monitorInterval:  monitorInterval,

		persistDir: persistDir,
	}

	// Create the persist directory if it does not yet exist.
	err := os.MkdirAll(persistDir, 0700)
	if err != nil {
		return nil, err
	}

	// Create the logger.
	c.log, err = persist.NewFileLogger(filepath.Join(persistDir, logFile))
	if err != nil {
		return nil, err
	}
	// Establish the closing of the logger.
	c.tg.AfterStop(func() error {
		err := c.log.Close()
		if err != nil {
			// The logger may or may not be working here, so use a println
			// instead of a Critical.
			println("Failed to close the coordinator logger:", err.Error())
		}
		return err
	})
	c.log.Println("INFO: coordinator created, started logging")

	// Load the previous metadata document, if any.
	err = c.load()
	if err != nil {
		return nil, errors.AddContext(err, "unable to load coordinator metadata")
	}

	// Spawn the liveness monitor.
	go c.threadedMonitorDatanodes()

	return c, nil
}

// Close shuts down the coordinator's background loops.
func (c *Coordinator) Close() error {
	return c.tg.Stop()
}

// nowSeconds returns the current wall-clock time in seconds, matching the
// resolution of the persisted last_seen timestamps.
func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// Heartbeat upserts the storage node record, refreshes its last_seen
// timestamp and marks it alive. Holder lists are never touched.
func (c *Coordinator) Heartbeat(dnID, host string) error {
	if err := c.tg.Add(); err != nil {
		return err
	}
	defer c.tg.Done()

	c.mu.Lock()
	defer c.mu.Unlock()
	dn, exists := c.datanodes[dnID]
	if !exists {
		dn = &modules.DataNode{}
		c.datanodes[dnID] = dn
		c.log.Printf("INFO: registered new datanode %v at %v", dnID, host)
	} else if !dn.Alive {
		c.log.Printf("INFO: marking %v as ALIVE again (heartbeat received)", dnID)
	}
	dn.Host = host
	dn.LastSeen = nowSeconds()
	dn.Alive = true
	return c.save()
}

// AcknowledgeReplication records a storage node's report that it has copied a
// chunk to another node. The holder set itself is updated when the target
// registers the chunk, so this is purely informational.
func (c *Coordinator) AcknowledgeReplication(chunkID modules.ChunkID, fromDN, toDN string) {
	c.log.Printf("INFO: replication confirmed: %v copied from %v to %v", chunkID, fromDN, toDN)
}

// managedAliveDatanodes returns the ids and hosts of all currently alive
// datanodes.
func (c *Coordinator) managedAliveDatanodes() ([]string, map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aliveDatanodes()
}

// aliveDatanodes returns the ids and hosts of all currently alive datanodes.
// The caller must hold the lock.
func (c *Coordinator) aliveDatanodes() ([]string, map[string]string) {
	var ids []string
	hosts := make(map[string]string)
	for id, dn := range c.datanodes {
		if dn.Alive {
			ids = append(ids, id)
			hosts[id] = dn.Host
		}
	}
	return ids, hosts
}
