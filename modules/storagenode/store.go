package storagenode

import (
	"crypto/sha256"
	"encoding/hex"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/uplo-tech/errors"

	"github.com/uplo-tech/chunkfs/modules"
	"github.com/uplo-tech/chunkfs/persist"
)

// chunkPath returns the on-disk location of a chunk's bytes.
func (sn *StorageNode) chunkPath(chunkID modules.ChunkID) string {
	return filepath.Join(sn.staticDataDir, string(chunkID))
}

// shaPath returns the on-disk location of a chunk's digest side-car.
func (sn *StorageNode) shaPath(chunkID modules.ChunkID) string {
	return sn.chunkPath(chunkID) + shaSuffix
}

// computeSHA256 returns the hex SHA-256 of data.
func computeSHA256(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// writeChunk writes the chunk bytes atomically and then the digest side-car.
// The bytes land before the side-car, so an I/O error can never leave a
// side-car describing bytes that were not written.
func (sn *StorageNode) writeChunk(chunkID modules.ChunkID, data []byte) (string, error) {
	path := sn.chunkPath(chunkID)
	tmp := path + "_tmp" + persist.RandomSuffix()
	err := ioutil.WriteFile(tmp, data, 0600)
	if err != nil {
		return "", errors.AddContext(err, "unable to write chunk bytes")
	}
	err = os.Rename(tmp, path)
	if err != nil {
		_ = os.Remove(tmp)
		return "", errors.AddContext(err, "unable to move chunk into place")
	}
	sum := computeSHA256(data)
	err = ioutil.WriteFile(sn.shaPath(chunkID), []byte(sum), 0600)
	if err != nil {
		return "", errors.AddContext(err, "unable to write digest side-car")
	}
	return sum, nil
}

// StoreChunk persists the chunk bytes and their digest side-car, then
// notifies the coordinator best-effort. Overwrites are allowed and
// idempotent: the latest write wins and the digest is recomputed. The hex
// SHA-256 of the bytes written is returned so that callers, including
// replication sources, can verify end-to-end.
func (sn *StorageNode) StoreChunk(chunkID modules.ChunkID, filename string, data []byte) (string, error) {
	if err := sn.tg.Add(); err != nil {
		return "", err
	}
	defer sn.tg.Done()

	sum, err := sn.writeChunk(chunkID, data)
	if err != nil {
		return "", err
	}
	sn.log.Printf("INFO: stored chunk %v with checksum %v...", chunkID, shortSHA(sum))

	// Notify the coordinator. A registration failure does not fail the
	// store; the holder set catches up through recovery.
	if filename == "" {
		filename = string(chunkID)
	}
	err = sn.managedRegisterChunk(chunkID, filename)
	if err != nil {
		sn.log.Printf("WARN: failed to register chunk %v: %v", chunkID, err)
	}
	return sum, nil
}

// Chunk reads a chunk back. The digest is recomputed and, when a side-car is
// present, compared against it; divergence marks the chunk corrupted and it
// is not served.
func (sn *StorageNode) Chunk(chunkID modules.ChunkID) ([]byte, string, error) {
	if err := sn.tg.Add(); err != nil {
		return nil, "", err
	}
	defer sn.tg.Done()

	data, err := ioutil.ReadFile(sn.chunkPath(chunkID))
	if os.IsNotExist(err) {
		return nil, "", modules.ErrMissingChunk
	}
	if err != nil {
		return nil, "", errors.AddContext(err, "unable to read chunk bytes")
	}
	actual := computeSHA256(data)
	stored, err := sn.storedSHA(chunkID)
	if err == nil && stored != "" && stored != actual {
		return nil, "", modules.ErrCorruptedChunk
	}
	sn.log.Printf("INFO: retrieved chunk %v with checksum %v...", chunkID, shortSHA(actual))
	return data, actual, nil
}

// DeleteChunk removes a chunk's bytes and its digest side-car.
func (sn *StorageNode) DeleteChunk(chunkID modules.ChunkID) error {
	if err := sn.tg.Add(); err != nil {
		return err
	}
	defer sn.tg.Done()

	path := sn.chunkPath(chunkID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return modules.ErrMissingChunk
	}
	err := os.Remove(path)
	if err != nil {
		return errors.AddContext(err, "unable to remove chunk bytes")
	}
	err = os.Remove(sn.shaPath(chunkID))
	if err != nil && !os.IsNotExist(err) {
		return errors.AddContext(err, "unable to remove digest side-car")
	}
	sn.log.Printf("INFO: deleted chunk %v with checksum removed", chunkID)
	return nil
}

// VerifyChunk recomputes a chunk's digest and compares it to the side-car. A
// missing side-car cannot prove corruption, so the chunk passes with a
// warning.
func (sn *StorageNode) VerifyChunk(chunkID modules.ChunkID) modules.VerifyStatus {
	if err := sn.tg.Add(); err != nil {
		return modules.VerifyMissing
	}
	defer sn.tg.Done()

	data, err := ioutil.ReadFile(sn.chunkPath(chunkID))
	if err != nil {
		return modules.VerifyMissing
	}
	actual := computeSHA256(data)
	stored, err := sn.storedSHA(chunkID)
	if err != nil || stored == "" {
		sn.log.Printf("WARN: chunk %v has no digest side-car, treating as valid", chunkID)
		return modules.VerifyValid
	}
	if stored != actual {
		sn.log.Printf("WARN: verification of chunk %v: corrupted", chunkID)
		return modules.VerifyCorrupted
	}
	return modules.VerifyValid
}

// storedSHA reads a chunk's digest side-car. A missing side-car yields an
// empty digest and a nil error.
func (sn *StorageNode) storedSHA(chunkID modules.ChunkID) (string, error) {
	raw, err := ioutil.ReadFile(sn.shaPath(chunkID))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// hasChunk reports whether the chunk bytes are present on disk.
func (sn *StorageNode) hasChunk(chunkID modules.ChunkID) bool {
	_, err := os.Stat(sn.chunkPath(chunkID))
	return err == nil
}

// shortSHA truncates a digest for logging.
func shortSHA(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
