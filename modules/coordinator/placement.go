package coordinator

import (
	"net"
	"sort"
	"strings"

	"github.com/uplo-tech/chunkfs/modules"
)

// proximityScore counts how many of the first two address octets the client
// and the datanode host share. Unparseable addresses score zero.
func proximityScore(clientIP, dnHost string) int {
	dnIP := modules.NetAddress(dnHost).Host()
	if net.ParseIP(clientIP) == nil || net.ParseIP(dnIP) == nil {
		return 0
	}
	clientOctets := strings.Split(clientIP, ".")
	dnOctets := strings.Split(dnIP, ".")
	score := 0
	for i := 0; i < 2 && i < len(clientOctets) && i < len(dnOctets); i++ {
		if clientOctets[i] == dnOctets[i] {
			score++
		}
	}
	return score
}

// sortDatanodesByPriority orders datanode ids by simulated network proximity
// to the client. Without a client address the order is simply ascending by
// id. With one, nodes sharing more leading octets with the client come
// first; ties break ascending by id.
func sortDatanodesByPriority(dns []string, hosts map[string]string, clientIP string) []string {
	sorted := append([]string(nil), dns...)
	if clientIP == "" {
		sort.Strings(sorted)
		return sorted
	}
	sort.Slice(sorted, func(i, j int) bool {
		si := proximityScore(clientIP, hosts[sorted[i]])
		sj := proximityScore(clientIP, hosts[sorted[j]])
		if si != sj {
			return si > sj
		}
		return sorted[i] < sorted[j]
	})
	return sorted
}

// buildPlan assigns replica slots for numChunks chunks round-robin across
// the prioritized datanodes, slot r of chunk i landing on node (i+r) mod N.
// With fewer nodes than the replica factor the slot list repeats nodes; the
// holder sets persisted alongside deduplicate on insertion.
func buildPlan(filename string, numChunks, replicaFactor int, prioritized []string) ([]modules.ChunkID, map[modules.ChunkID][]string) {
	chunks := make([]modules.ChunkID, 0, numChunks)
	slots := make(map[modules.ChunkID][]string)
	for i := 0; i < numChunks; i++ {
		chunkID := modules.NewChunkID(filename, i)
		selected := make([]string, 0, replicaFactor)
		for r := 0; r < replicaFactor; r++ {
			selected = append(selected, prioritized[(i+r)%len(prioritized)])
		}
		chunks = append(chunks, chunkID)
		slots[chunkID] = selected
	}
	return chunks, slots
}

// dedupe collapses a slot list into a holder set, preserving first-seen
// order.
func dedupe(dns []string) []string {
	seen := make(map[string]struct{})
	holders := make([]string, 0, len(dns))
	for _, dn := range dns {
		if _, ok := seen[dn]; ok {
			continue
		}
		seen[dn] = struct{}{}
		holders = append(holders, dn)
	}
	return holders
}
