package coordinator

import (
	"github.com/uplo-tech/chunkfs/modules"
)

const (
	// logFile is the name of the coordinator's log file.
	logFile = modules.CoordinatorDir + ".log"

	// metadataFile is the name of the single document holding the
	// coordinator's authoritative state.
	metadataFile = "metadata.json"
)
