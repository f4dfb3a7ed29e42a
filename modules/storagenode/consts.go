package storagenode

import (
	"time"

	"github.com/uplo-tech/chunkfs/modules"
)

const (
	// logFile is the name of the storage node's log file.
	logFile = modules.StorageNodeDir + ".log"

	// shaSuffix is the suffix of a chunk's digest side-car.
	shaSuffix = ".sha256"

	// heartbeatRetrySleep is the pause between heartbeat attempts within one
	// tick.
	heartbeatRetrySleep = time.Second
)
