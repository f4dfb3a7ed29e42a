package storagenode

import (
	"net/url"
	"time"

	"github.com/uplo-tech/chunkfs/modules"
)

type (
	// chunksForDNResponse is the coordinator's answer to
	// /get_chunks_for_dn.
	chunksForDNResponse struct {
		Chunks []modules.RecoveryChunk `json:"chunks"`
	}

	// getChunkResponse is a peer node's answer to /get_chunk.
	getChunkResponse struct {
		Data   []byte `json:"data"`
		SHA256 string `json:"sha256"`
	}
)

// threadedRecoveryLoop periodically asks the coordinator which chunks should
// be present on this node and pulls back any that are missing locally.
// Missing chunks without a source hint are left to the coordinator's
// replication sweep.
func (sn *StorageNode) threadedRecoveryLoop() {
	if err := sn.tg.Add(); err != nil {
		return
	}
	defer sn.tg.Done()

	for {
		select {
		case <-sn.tg.StopChan():
			return
		case <-time.After(sn.recoveryInterval):
		}
		sn.managedRecoverMissingChunks()
	}
}

// managedRecoverMissingChunks performs one recovery pass.
func (sn *StorageNode) managedRecoverMissingChunks() {
	var listing chunksForDNResponse
	query := url.Values{}
	query.Set("dn_id", sn.staticDNID)
	_, err := getJSON(nodeEndpoint(sn.staticCoordinator, "/get_chunks_for_dn"), query, modules.RecoveryPullTimeout, &listing)
	if err != nil {
		sn.log.Println("WARN: recovery check failed:", err)
		return
	}

	for _, entry := range listing.Chunks {
		select {
		case <-sn.tg.StopChan():
			return
		default:
		}
		if sn.hasChunk(entry.ChunkID) || entry.SourceHost == "" {
			continue
		}
		err := sn.managedPullChunk(entry)
		if err != nil {
			sn.log.Printf("WARN: failed to recover chunk %v from %v: %v", entry.ChunkID, entry.SourceHost, err)
		}
	}
}

// managedPullChunk fetches one missing chunk from the hinted source, writes
// it locally with its side-car, and re-registers it with the coordinator.
func (sn *StorageNode) managedPullChunk(entry modules.RecoveryChunk) error {
	sn.log.Printf("INFO: missing chunk %v, fetching from %v", entry.ChunkID, entry.SourceHost)
	var resp getChunkResponse
	query := url.Values{}
	query.Set("chunk_id", string(entry.ChunkID))
	_, err := getJSON(nodeEndpoint(entry.SourceHost, "/get_chunk"), query, modules.RecoveryPullTimeout, &resp)
	if err != nil {
		return err
	}
	sum, err := sn.writeChunk(entry.ChunkID, resp.Data)
	if err != nil {
		return err
	}
	sn.log.Printf("INFO: recovered chunk %v from %v with checksum %v...", entry.ChunkID, entry.SourceHost, shortSHA(sum))

	filename, err := entry.ChunkID.Filename()
	if err != nil {
		filename = string(entry.ChunkID)
	}
	err = sn.managedRegisterChunk(entry.ChunkID, filename)
	if err != nil {
		sn.log.Printf("WARN: failed to re-register recovered chunk %v: %v", entry.ChunkID, err)
	}
	return nil
}
