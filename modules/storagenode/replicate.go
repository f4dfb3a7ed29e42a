package storagenode

import (
	"io/ioutil"
	"os"

	"github.com/uplo-tech/errors"

	"github.com/uplo-tech/chunkfs/modules"
)

type (
	// storeChunkRequest is the body pushed to a replication target's
	// /store_chunk endpoint.
	storeChunkRequest struct {
		ChunkID  modules.ChunkID `json:"chunk_id"`
		Filename string          `json:"filename"`
		Data     []byte          `json:"data"`
	}

	// storeChunkResponse is the body a replication target returns.
	storeChunkResponse struct {
		Status string `json:"status"`
		SHA256 string `json:"sha256"`
	}
)

// ReplicateChunk pushes the local copy of chunkID to targetHost and verifies
// the digest the target reports against the local side-car. On a verified
// copy the coordinator is notified best-effort. The local copy is never
// removed, regardless of outcome.
func (sn *StorageNode) ReplicateChunk(chunkID modules.ChunkID, targetHost string) error {
	if err := sn.tg.Add(); err != nil {
		return err
	}
	defer sn.tg.Done()

	data, err := ioutil.ReadFile(sn.chunkPath(chunkID))
	if os.IsNotExist(err) {
		return modules.ErrMissingChunk
	}
	if err != nil {
		return errors.AddContext(err, "unable to read chunk for replication")
	}

	filename, err := chunkID.Filename()
	if err != nil {
		filename = string(chunkID)
	}
	var resp storeChunkResponse
	code, err := postJSON(nodeEndpoint(targetHost, "/store_chunk"), storeChunkRequest{
		ChunkID:  chunkID,
		Filename: filename,
		Data:     data,
	}, modules.ReplicatePushTimeout, &resp)
	if err != nil || code != 200 {
		return errors.Compose(modules.ErrTargetFailed, err)
	}

	localSHA, err := sn.storedSHA(chunkID)
	if err != nil || localSHA == "" {
		localSHA = computeSHA256(data)
	}
	if resp.SHA256 != localSHA {
		return modules.ErrChecksumMismatch
	}
	sn.log.Printf("INFO: replicated %v to %v with checksum %v...", chunkID, targetHost, shortSHA(localSHA))

	// Report the replication to the coordinator.
	_, err = postJSON(nodeEndpoint(sn.staticCoordinator, "/replication_success"), map[string]interface{}{
		"chunk_id": chunkID,
		"from_dn":  sn.staticDNID,
		"to_dn":    targetHost,
	}, modules.RegisterChunkTimeout, nil)
	if err != nil {
		sn.log.Printf("WARN: failed to report replication of %v: %v", chunkID, err)
	}
	return nil
}
