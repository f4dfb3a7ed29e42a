package coordinator

import (
	"sort"

	"github.com/uplo-tech/chunkfs/modules"
)

// UploadPlan assigns replica slots for numChunks chunks of filename across
// the alive datanodes and persists the resulting file record before
// returning, so that concurrent registrations see a consistent structure.
// Supplied checksums are recorded as the expected digests of the chunks.
func (c *Coordinator) UploadPlan(filename string, numChunks int, checksums map[modules.ChunkID]string, clientHint string) ([]modules.ChunkPlacement, error) {
	if err := c.tg.Add(); err != nil {
		return nil, err
	}
	defer c.tg.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	aliveDNs, hosts := c.aliveDatanodes()
	if len(aliveDNs) == 0 {
		return nil, modules.ErrNoDatanodesAvailable
	}
	clientIP := modules.NetAddress(clientHint).Host()
	prioritized := sortDatanodesByPriority(aliveDNs, hosts, clientIP)

	chunks, slots := buildPlan(filename, numChunks, c.replicaFactor, prioritized)
	record := &modules.FileRecord{
		Chunks:     chunks,
		ChunksInfo: make(map[modules.ChunkID][]string),
	}
	for _, chunkID := range chunks {
		record.ChunksInfo[chunkID] = dedupe(slots[chunkID])
		if sum, ok := checksums[chunkID]; ok {
			if record.Checksums == nil {
				record.Checksums = make(map[modules.ChunkID]string)
			}
			record.Checksums[chunkID] = sum
		}
	}
	c.files[filename] = record
	err := c.save()
	if err != nil {
		return nil, err
	}

	plan := make([]modules.ChunkPlacement, 0, len(chunks))
	for _, chunkID := range chunks {
		selected := slots[chunkID]
		dnHosts := make([]string, 0, len(selected))
		for _, dn := range selected {
			dnHosts = append(dnHosts, hosts[dn])
		}
		plan = append(plan, modules.ChunkPlacement{
			ChunkID:   chunkID,
			Datanodes: selected,
			DNHosts:   dnHosts,
		})
	}
	c.log.Printf("INFO: prepared upload plan for %v (%v alive datanodes)", filename, len(aliveDNs))
	return plan, nil
}

// RegisterChunk records dnID as a holder of chunkID. The call is idempotent:
// the file record and the chunk entry are created if missing and the holder
// set grows only if dnID is not yet present.
func (c *Coordinator) RegisterChunk(filename string, chunkID modules.ChunkID, dnID string) error {
	if err := c.tg.Add(); err != nil {
		return err
	}
	defer c.tg.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	record, exists := c.files[filename]
	if !exists {
		record = &modules.FileRecord{
			ChunksInfo: make(map[modules.ChunkID][]string),
		}
		c.files[filename] = record
	}
	holders := record.ChunksInfo[chunkID]
	for _, holder := range holders {
		if holder == dnID {
			return nil
		}
	}
	record.ChunksInfo[chunkID] = append(holders, dnID)
	err := c.save()
	if err != nil {
		return err
	}
	c.log.Printf("INFO: registered %v from %v for %v", chunkID, dnID, filename)
	return nil
}

// ChunkMap returns the ordered chunk list of filename. Each chunk's holder
// set is filtered down to alive datanodes and sorted by proximity to the
// caller.
func (c *Coordinator) ChunkMap(filename, clientHint string) ([]modules.ChunkLocation, error) {
	if err := c.tg.Add(); err != nil {
		return nil, err
	}
	defer c.tg.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	record, exists := c.files[filename]
	if !exists {
		return nil, modules.ErrFileNotFound
	}
	clientIP := modules.NetAddress(clientHint).Host()
	locations := make([]modules.ChunkLocation, 0, len(record.Chunks))
	for _, chunkID := range record.Chunks {
		var aliveHolders []string
		hosts := make(map[string]string)
		for _, dn := range record.ChunksInfo[chunkID] {
			if node, ok := c.datanodes[dn]; ok && node.Alive {
				aliveHolders = append(aliveHolders, dn)
				hosts[dn] = node.Host
			}
		}
		prioritized := sortDatanodesByPriority(aliveHolders, hosts, clientIP)
		dnHosts := make([]string, 0, len(prioritized))
		for _, dn := range prioritized {
			dnHosts = append(dnHosts, hosts[dn])
		}
		locations = append(locations, modules.ChunkLocation{
			ChunkID: chunkID,
			DNHosts: dnHosts,
		})
	}
	return locations, nil
}

// FileMetadata returns a copy of the holder map of filename.
func (c *Coordinator) FileMetadata(filename string) (map[modules.ChunkID][]string, error) {
	if err := c.tg.Add(); err != nil {
		return nil, err
	}
	defer c.tg.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	record, exists := c.files[filename]
	if !exists {
		return nil, modules.ErrFileNotFound
	}
	return copyChunksInfo(record.ChunksInfo), nil
}

// ListFiles returns the holder map of every stored file.
func (c *Coordinator) ListFiles() map[string]map[modules.ChunkID][]string {
	if err := c.tg.Add(); err != nil {
		return nil
	}
	defer c.tg.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[string]map[modules.ChunkID][]string, len(c.files))
	for filename, record := range c.files {
		result[filename] = copyChunksInfo(record.ChunksInfo)
	}
	return result
}

// ChunksForDN lists the chunks dnID is expected to hold. Each entry carries
// a pull-source hint naming the lowest-id alive holder other than dnID, when
// one exists.
func (c *Coordinator) ChunksForDN(dnID string) []modules.RecoveryChunk {
	if err := c.tg.Add(); err != nil {
		return nil
	}
	defer c.tg.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	var filenames []string
	for filename := range c.files {
		filenames = append(filenames, filename)
	}
	sort.Strings(filenames)

	var result []modules.RecoveryChunk
	for _, filename := range filenames {
		record := c.files[filename]
		var chunkIDs []string
		for chunkID := range record.ChunksInfo {
			chunkIDs = append(chunkIDs, string(chunkID))
		}
		sort.Strings(chunkIDs)
		for _, raw := range chunkIDs {
			chunkID := modules.ChunkID(raw)
			holders := record.ChunksInfo[chunkID]
			if !containsDN(holders, dnID) {
				continue
			}
			entry := modules.RecoveryChunk{ChunkID: chunkID}
			for _, holder := range sortedAliveHolders(holders, c.datanodes) {
				if holder != dnID {
					entry.SourceDN = holder
					entry.SourceHost = c.datanodes[holder].Host
					break
				}
			}
			result = append(result, entry)
		}
	}
	return result
}

// copyChunksInfo deep-copies a holder map.
func copyChunksInfo(info map[modules.ChunkID][]string) map[modules.ChunkID][]string {
	result := make(map[modules.ChunkID][]string, len(info))
	for chunkID, holders := range info {
		result[chunkID] = append([]string(nil), holders...)
	}
	return result
}

// containsDN reports whether dnID appears in the holder list.
func containsDN(holders []string, dnID string) bool {
	for _, holder := range holders {
		if holder == dnID {
			return true
		}
	}
	return false
}

// sortedAliveHolders filters a holder list down to alive datanodes, ordered
// ascending by id.
func sortedAliveHolders(holders []string, datanodes map[string]*modules.DataNode) []string {
	var alive []string
	for _, holder := range holders {
		if dn, ok := datanodes[holder]; ok && dn.Alive {
			alive = append(alive, holder)
		}
	}
	sort.Strings(alive)
	return alive
}
