// Package modules contains the types and interfaces that are shared between
// the coordinator, the storage nodes, and the HTTP surface. The coordinator
// and the storage nodes only ever exchange ids and base URLs, never Go
// objects, so everything in here is either a plain value type or a wire
// struct.
package modules

import (
	"time"

	"github.com/uplo-tech/errors"
)

const (
	// CoordinatorDir is the name of the directory used to store the
	// coordinator's persistent data.
	CoordinatorDir = "coordinator"

	// StorageNodeDir is the name of the directory used to store the storage
	// node's persistent data.
	StorageNodeDir = "storagenode"
)

const (
	// DefaultReplicaFactor is the number of live replicas the coordinator
	// attempts to maintain for every chunk.
	DefaultReplicaFactor = 2

	// DefaultHeartbeatTimeout is how long a storage node may stay silent
	// before the coordinator marks it dead. A node whose last heartbeat is
	// exactly this long ago is still considered alive.
	DefaultHeartbeatTimeout = 12 * time.Second

	// DefaultMonitorInterval is the cadence of the coordinator's liveness
	// monitor.
	DefaultMonitorInterval = 3 * time.Second

	// DefaultHeartbeatInterval is the cadence of the storage node's heartbeat
	// loop.
	DefaultHeartbeatInterval = 10 * time.Second

	// DefaultRecoveryInterval is the cadence of the storage node's recovery
	// loop.
	DefaultRecoveryInterval = 30 * time.Second

	// DefaultHeartbeatRetries is the number of attempts the storage node makes
	// per heartbeat tick before giving up until the next tick.
	DefaultHeartbeatRetries = 3
)

const (
	// DeleteChunkTimeout bounds coordinator → node delete calls.
	DeleteChunkTimeout = 5 * time.Second

	// VerifyChunkTimeout bounds coordinator → node verify calls.
	VerifyChunkTimeout = 5 * time.Second

	// ReplicateInstructTimeout bounds coordinator → node replicate
	// instructions.
	ReplicateInstructTimeout = 8 * time.Second

	// HeartbeatPostTimeout bounds node → coordinator heartbeat posts.
	HeartbeatPostTimeout = 2 * time.Second

	// RegisterChunkTimeout bounds node → coordinator chunk registrations.
	RegisterChunkTimeout = 3 * time.Second

	// ReplicatePushTimeout bounds node → node replication pushes.
	ReplicatePushTimeout = 10 * time.Second

	// RecoveryPullTimeout bounds node → node recovery pulls and the node →
	// coordinator recovery listing.
	RecoveryPullTimeout = 5 * time.Second
)

var (
	// ErrNoDatanodesAvailable is returned when an upload plan is requested
	// while no storage node is alive.
	ErrNoDatanodesAvailable = errors.New("no_datanodes_available")

	// ErrFileNotFound is returned when an operation references an unknown
	// filename.
	ErrFileNotFound = errors.New("file_not_found")

	// ErrMissingChunk is returned by a storage node when a chunk is absent
	// from its data directory.
	ErrMissingChunk = errors.New("missing_chunk")

	// ErrCorruptedChunk is returned when a chunk's bytes no longer match its
	// digest side-car.
	ErrCorruptedChunk = errors.New("corrupted_chunk")

	// ErrChecksumMismatch is returned when a replication target reports a
	// digest that differs from the source's side-car.
	ErrChecksumMismatch = errors.New("checksum_mismatch")

	// ErrTargetFailed is returned when a replication target refuses or fails
	// the store.
	ErrTargetFailed = errors.New("target_failed")

	// ErrNoSource is returned by recovery when no holder exists for a chunk.
	ErrNoSource = errors.New("no_source")

	// ErrNoHealthySource is returned by recovery when holders exist but none
	// is alive.
	ErrNoHealthySource = errors.New("no_healthy_source")

	// ErrTargetNotActive is returned by recovery when the requesting node is
	// not registered or not alive.
	ErrTargetNotActive = errors.New("target_not_active")

	// ErrReplicationFailed is returned when instructing a source node to
	// replicate fails.
	ErrReplicationFailed = errors.New("replication_failed")
)

// VerifyStatus is the verdict of a chunk verification.
type VerifyStatus string

const (
	// VerifyValid indicates the chunk bytes match the digest side-car.
	VerifyValid VerifyStatus = "valid"

	// VerifyCorrupted indicates the chunk bytes diverge from the side-car.
	VerifyCorrupted VerifyStatus = "corrupted"

	// VerifyMissing indicates the chunk is not present on the node.
	VerifyMissing VerifyStatus = "missing"
)

type (
	// DataNode is the coordinator's record of a storage node. The record is
	// created on first heartbeat and never deleted; only the Alive flag
	// toggles afterwards.
	DataNode struct {
		Host     string  `json:"host"`
		LastSeen float64 `json:"last_seen"`
		Alive    bool    `json:"alive"`
	}

	// FileRecord is the coordinator's record of a stored file. Chunks fixes
	// the reconstruction order, ChunksInfo maps each chunk to its holder set.
	// Holder sets preserve insertion order but behave as sets on insert.
	FileRecord struct {
		Chunks     []ChunkID            `json:"chunks"`
		ChunksInfo map[ChunkID][]string `json:"chunks_info"`
		Checksums  map[ChunkID]string   `json:"checksums,omitempty"`
	}

	// ChunkPlacement is one entry of an upload plan.
	ChunkPlacement struct {
		ChunkID   ChunkID  `json:"chunk_id"`
		Datanodes []string `json:"datanodes"`
		DNHosts   []string `json:"dn_hosts"`
	}

	// ChunkLocation is one entry of a chunk map, holding the hosts a chunk
	// can currently be read from, ordered by proximity to the caller.
	ChunkLocation struct {
		ChunkID ChunkID  `json:"chunk_id"`
		DNHosts []string `json:"dn_hosts"`
	}

	// RecoveryChunk is one entry of a node's expected-chunk listing. The
	// source fields are a hint naming an alive holder the node can pull the
	// chunk from; they are empty when no other alive holder exists.
	RecoveryChunk struct {
		ChunkID    ChunkID `json:"chunk_id"`
		SourceDN   string  `json:"source_dn,omitempty"`
		SourceHost string  `json:"source_host,omitempty"`
	}
)

type (
	// A Coordinator is the singleton naming service. It owns the authoritative
	// mapping from filename to chunk list to replica set, tracks storage node
	// liveness, drives placement at write time and re-replication on failure.
	Coordinator interface {
		// Heartbeat upserts the storage node record and marks it alive.
		Heartbeat(dnID, host string) error

		// UploadPlan assigns replica slots for numChunks chunks of filename
		// across the alive nodes and persists the resulting file record.
		UploadPlan(filename string, numChunks int, checksums map[ChunkID]string, clientHint string) ([]ChunkPlacement, error)

		// RegisterChunk idempotently records dnID as a holder of chunkID.
		RegisterChunk(filename string, chunkID ChunkID, dnID string) error

		// ChunkMap returns the ordered chunk list of filename with each
		// chunk's alive holders sorted by proximity to clientHint.
		ChunkMap(filename, clientHint string) ([]ChunkLocation, error)

		// FileMetadata returns the raw holder map of filename.
		FileMetadata(filename string) (map[ChunkID][]string, error)

		// ListFiles returns the holder map of every stored file.
		ListFiles() map[string]map[ChunkID][]string

		// DeleteFile removes the file record after issuing best-effort chunk
		// deletes to every holder.
		DeleteFile(filename string) error

		// VerifyFile asks every holder of every chunk of filename to verify
		// its copy and reports one boolean per holder, in holder order.
		VerifyFile(filename string) (map[ChunkID][]bool, error)

		// ChunksForDN lists the chunks dnID is expected to hold, each with a
		// pull-source hint when one exists.
		ChunksForDN(dnID string) []RecoveryChunk

		// RequestRecovery instructs a healthy holder of chunkID to replicate
		// it to dnID's host.
		RequestRecovery(chunkID ChunkID, dnID string) error

		// AcknowledgeReplication records a node's report that it copied
		// chunkID to another node.
		AcknowledgeReplication(chunkID ChunkID, fromDN, toDN string)

		// Close shuts down the coordinator's background loops.
		Close() error
	}

	// A StorageNode persists opaque byte chunks under stable chunk ids with a
	// digest side-car, serves reads, and acts as a replication source when
	// instructed by the coordinator.
	StorageNode interface {
		// StoreChunk writes the chunk bytes and their digest side-car and
		// returns the hex SHA-256 of the bytes written.
		StoreChunk(chunkID ChunkID, filename string, data []byte) (string, error)

		// Chunk reads a chunk back, verifying it against its side-car.
		Chunk(chunkID ChunkID) ([]byte, string, error)

		// DeleteChunk removes a chunk and its side-car.
		DeleteChunk(chunkID ChunkID) error

		// VerifyChunk recomputes a chunk's digest and compares it to the
		// side-car.
		VerifyChunk(chunkID ChunkID) VerifyStatus

		// ReplicateChunk pushes a local chunk to another node and confirms
		// the target's digest matches the local side-car.
		ReplicateChunk(chunkID ChunkID, targetHost string) error

		// Close shuts down the storage node's background loops.
		Close() error
	}
)
