// Package storagenode implements a chunk server of the chunk store. A
// storage node persists opaque byte chunks under stable chunk ids inside its
// data directory, each with a hex SHA-256 digest side-car, serves reads with
// integrity verification, and acts as a replication source when the
// coordinator instructs it to. Two background loops keep the node wired into
// the cluster: a heartbeat loop announcing liveness to the coordinator and a
// recovery loop that pulls back chunks the node should hold but lost.
package storagenode

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/uplo-tech/threadgroup"

	"github.com/uplo-tech/chunkfs/modules"
	"github.com/uplo-tech/chunkfs/persist"
)

// StorageNode implements the modules.StorageNode interface.
type StorageNode struct {
	// staticDNID is the node's stable identifier in the cluster.
	staticDNID string
	// staticHost is the base URL under which other processes reach this
	// node; it is announced with every heartbeat.
	staticHost string
	// staticCoordinator is the coordinator's base URL.
	staticCoordinator string
	// staticDataDir is the directory holding the chunks and their digest
	// side-cars. The local filesystem is the only shared resource; per-chunk
	// races resolve at filesystem granularity.
	staticDataDir string

	heartbeatInterval time.Duration
	recoveryInterval  time.Duration
	heartbeatRetries  int

	log *persist.Logger
	tg  threadgroup.ThreadGroup
}

// New returns an initialized StorageNode using the default loop cadences.
func New(dnID, host, coordinatorAddr, dataDir string) (*StorageNode, error) {
	return NewCustom(dnID, host, coordinatorAddr, dataDir, modules.DefaultHeartbeatInterval, modules.DefaultRecoveryInterval, modules.DefaultHeartbeatRetries)
}

// NewCustom returns an initialized StorageNode with caller-chosen loop
// cadences. A zero interval disables the corresponding loop.
func NewCustom(dnID, host, coordinatorAddr, dataDir string, heartbeatInterval, recoveryInterval time.Duration, heartbeatRetries int) (*StorageNode, error) {
	sn := &StorageNode{
		staticDNID:        dnID,
		staticHost:        strings.TrimSuffix(host, "/"),
		staticCoordinator: strings.TrimSuffix(coordinatorAddr, "/"),
		staticDataDir:     dataDir,

		heartbeatInterval: heartbeatInterval,
		recoveryInterval:  recoveryInterval,
		heartbeatRetries:  heartbeatRetries,
	}

	// Create the data directory if it does not yet exist.
	err := os.MkdirAll(dataDir, 0700)
	if err != nil {
		return nil, err
	}

	// Create the logger.
	sn.log, err = persist.NewFileLogger(filepath.Join(dataDir, logFile))
	if err != nil {
		return nil, err
	}
	sn.tg.AfterStop(func() error {
		err := sn.log.Close()
		if err != nil {
			println("Failed to close the storage node logger:", err.Error())
		}
		return err
	})
	sn.log.Printf("INFO: datanode %v created with data dir %v", dnID, dataDir)

	// Spawn the background loops.
	if heartbeatInterval > 0 {
		go sn.threadedHeartbeatLoop()
	}
	if recoveryInterval > 0 {
		go sn.threadedRecoveryLoop()
	}

	return sn, nil
}

// Close shuts down the storage node's background loops.
func (sn *StorageNode) Close() error {
	return sn.tg.Stop()
}

// DNID returns the node's identifier.
func (sn *StorageNode) DNID() string {
	return sn.staticDNID
}
