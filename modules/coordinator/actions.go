package coordinator

import (
	"net/url"
	"sort"

	"github.com/uplo-tech/chunkfs/modules"
)

// verifyChunkResponse is the body a storage node returns from /verify_chunk.
type verifyChunkResponse struct {
	Status modules.VerifyStatus `json:"status"`
}

// DeleteFile issues best-effort chunk deletes to every holder of every chunk
// of filename, then removes the file record. Delete failures on individual
// nodes are logged and ignored; the record is removed regardless.
func (c *Coordinator) DeleteFile(filename string) error {
	if err := c.tg.Add(); err != nil {
		return err
	}
	defer c.tg.Done()

	// Snapshot the holder map and the node hosts under the lock.
	c.mu.Lock()
	record, exists := c.files[filename]
	if !exists {
		c.mu.Unlock()
		return modules.ErrFileNotFound
	}
	info := copyChunksInfo(record.ChunksInfo)
	hosts := make(map[string]string, len(c.datanodes))
	for dnID, dn := range c.datanodes {
		hosts[dnID] = dn.Host
	}
	c.mu.Unlock()

	for chunkID, holders := range info {
		for _, dn := range holders {
			host, ok := hosts[dn]
			if !ok {
				continue
			}
			err := postJSON(nodeEndpoint(host, "/delete_chunk"), map[string]interface{}{
				"chunk_id": chunkID,
			}, modules.DeleteChunkTimeout, nil)
			if err != nil {
				c.log.Printf("WARN: delete of %v failed on %v: %v", chunkID, dn, err)
			}
		}
	}

	c.mu.Lock()
	delete(c.files, filename)
	err := c.save()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.log.Printf("INFO: deleted file %v and its chunks from all datanodes", filename)
	return nil
}

// VerifyFile contacts every holder of every chunk of filename and reports
// one boolean per holder, in holder order. A replica counts as good only
// when the node answers with status "valid".
func (c *Coordinator) VerifyFile(filename string) (map[modules.ChunkID][]bool, error) {
	if err := c.tg.Add(); err != nil {
		return nil, err
	}
	defer c.tg.Done()

	c.mu.Lock()
	record, exists := c.files[filename]
	if !exists {
		c.mu.Unlock()
		return nil, modules.ErrFileNotFound
	}
	info := copyChunksInfo(record.ChunksInfo)
	hosts := make(map[string]string, len(c.datanodes))
	for dnID, dn := range c.datanodes {
		hosts[dnID] = dn.Host
	}
	c.mu.Unlock()

	status := make(map[modules.ChunkID][]bool, len(info))
	for chunkID, holders := range info {
		replicasOK := make([]bool, 0, len(holders))
		for _, dn := range holders {
			host, ok := hosts[dn]
			if !ok {
				replicasOK = append(replicasOK, false)
				continue
			}
			var resp verifyChunkResponse
			query := url.Values{}
			query.Set("chunk_id", string(chunkID))
			code, err := getJSON(nodeEndpoint(host, "/verify_chunk"), query, modules.VerifyChunkTimeout, &resp)
			replicasOK = append(replicasOK, err == nil && code == 200 && resp.Status == modules.VerifyValid)
		}
		status[chunkID] = replicasOK
	}
	return status, nil
}

// RequestRecovery handles a datanode's report of a missing chunk: it finds a
// healthy holder and instructs it to replicate the chunk to the requesting
// node.
func (c *Coordinator) RequestRecovery(chunkID modules.ChunkID, dnID string) error {
	if err := c.tg.Add(); err != nil {
		return err
	}
	defer c.tg.Done()

	c.mu.Lock()
	holders := c.holdersOf(chunkID)
	if len(holders) == 0 {
		c.mu.Unlock()
		c.log.Printf("WARN: no replicas exist for chunk %v; cannot recover", chunkID)
		return modules.ErrNoSource
	}
	healthy := sortedAliveHolders(holders, c.datanodes)
	if len(healthy) == 0 {
		c.mu.Unlock()
		c.log.Printf("WARN: no healthy replicas found for %v", chunkID)
		return modules.ErrNoHealthySource
	}
	source := healthy[0]
	sourceHost := c.datanodes[source].Host
	targetNode, ok := c.datanodes[dnID]
	if !ok || !targetNode.Alive {
		c.mu.Unlock()
		return modules.ErrTargetNotActive
	}
	targetHost := targetNode.Host
	c.mu.Unlock()

	c.log.Printf("INFO: coordinating recovery for %v: %v -> %v", chunkID, source, dnID)
	err := postJSON(nodeEndpoint(sourceHost, "/replicate_chunk"), map[string]interface{}{
		"chunk_id":    chunkID,
		"target_host": targetHost,
	}, modules.ReplicateInstructTimeout, nil)
	if err != nil {
		c.log.Printf("WARN: failed to instruct replication from %v to %v for %v: %v", source, dnID, chunkID, err)
		return modules.ErrReplicationFailed
	}
	return nil
}

// holdersOf returns the holder set of a chunk, searching the file derived
// from the chunk id first and falling back to a full scan. The caller must
// hold the lock.
func (c *Coordinator) holdersOf(chunkID modules.ChunkID) []string {
	if filename, err := chunkID.Filename(); err == nil {
		if record, exists := c.files[filename]; exists {
			if holders, ok := record.ChunksInfo[chunkID]; ok {
				return append([]string(nil), holders...)
			}
		}
	}
	var filenames []string
	for filename := range c.files {
		filenames = append(filenames, filename)
	}
	sort.Strings(filenames)
	for _, filename := range filenames {
		if holders, ok := c.files[filename].ChunksInfo[chunkID]; ok {
			return append([]string(nil), holders...)
		}
	}
	return nil
}
