package storagenode

import (
	"time"

	"github.com/uplo-tech/chunkfs/modules"
)

// threadedHeartbeatLoop periodically announces this node to the coordinator.
// Each tick gets a small retry budget on transport errors; a tick that
// exhausts it gives up until the next one. The loop is independent of
// request handling and never blocks chunk operations.
func (sn *StorageNode) threadedHeartbeatLoop() {
	if err := sn.tg.Add(); err != nil {
		return
	}
	defer sn.tg.Done()

	for {
		sn.managedSendHeartbeat()
		select {
		case <-sn.tg.StopChan():
			return
		case <-time.After(sn.heartbeatInterval):
		}
	}
}

// managedSendHeartbeat posts one heartbeat, retrying on transport errors up
// to the configured budget.
func (sn *StorageNode) managedSendHeartbeat() {
	for attempt := 1; attempt <= sn.heartbeatRetries; attempt++ {
		_, err := postJSON(nodeEndpoint(sn.staticCoordinator, "/heartbeat"), map[string]interface{}{
			"dn_id": sn.staticDNID,
			"host":  sn.staticHost,
		}, modules.HeartbeatPostTimeout, nil)
		if err == nil {
			return
		}
		sn.log.Printf("WARN: heartbeat attempt %v failed: %v", attempt, err)
		select {
		case <-sn.tg.StopChan():
			return
		case <-time.After(heartbeatRetrySleep):
		}
	}
}
