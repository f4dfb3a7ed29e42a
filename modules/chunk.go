package modules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/uplo-tech/errors"
)

// chunkInfix separates the filename from the chunk index in a chunk id.
const chunkInfix = ".chunk."

var (
	// ErrInvalidChunkID is returned when a chunk id does not have the
	// canonical <filename>.chunk.<index> form.
	ErrInvalidChunkID = errors.New("invalid chunk id")
)

// A ChunkID identifies one fixed-size byte range of a file. The canonical
// form is "<filename>.chunk.<index>", where the trailing integer is the
// reconstruction order key.
type ChunkID string

// NewChunkID builds the canonical chunk id for the given file and index.
func NewChunkID(filename string, index int) ChunkID {
	return ChunkID(fmt.Sprintf("%s%s%d", filename, chunkInfix, index))
}

// Index returns the reconstruction order key of the chunk.
func (c ChunkID) Index() (int, error) {
	i := strings.LastIndex(string(c), chunkInfix)
	if i < 0 {
		return 0, ErrInvalidChunkID
	}
	index, err := strconv.Atoi(string(c)[i+len(chunkInfix):])
	if err != nil || index < 0 {
		return 0, ErrInvalidChunkID
	}
	return index, nil
}

// Filename returns the filename component of the chunk id.
func (c ChunkID) Filename() (string, error) {
	i := strings.LastIndex(string(c), chunkInfix)
	if i < 0 {
		return "", ErrInvalidChunkID
	}
	if _, err := strconv.Atoi(string(c)[i+len(chunkInfix):]); err != nil {
		return "", ErrInvalidChunkID
	}
	return string(c)[:i], nil
}

// String implements the fmt.Stringer interface.
func (c ChunkID) String() string {
	return string(c)
}
