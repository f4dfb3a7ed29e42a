package coordinator

import (
	"os"
	"path/filepath"

	"github.com/uplo-tech/errors"

	"github.com/uplo-tech/chunkfs/modules"
	"github.com/uplo-tech/chunkfs/persist"
)

// persistMetadata contains the header and version strings that identify the
// coordinator's metadata document.
var persistMetadata = persist.Metadata{
	Header:  "Coordinator Metadata",
	Version: "1.0.0",
}

// persistence is the shape of the metadata.json document.
type persistence struct {
	Files     map[string]*modules.FileRecord `json:"files"`
	Datanodes map[string]*modules.DataNode   `json:"datanodes"`
}

// save writes the metadata document to disk atomically. The caller must hold
// the lock.
func (c *Coordinator) save() error {
	data := persistence{
		Files:     c.files,
		Datanodes: c.datanodes,
	}
	return persist.SaveJSON(persistMetadata, data, filepath.Join(c.persistDir, metadataFile))
}

// load reads the metadata document from disk. A missing document means this
// is the coordinator's first start and is not an error.
func (c *Coordinator) load() error {
	var data persistence
	err := persist.LoadJSON(persistMetadata, &data, filepath.Join(c.persistDir, metadataFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.AddContext(err, "unable to load metadata document")
	}
	if data.Files != nil {
		c.files = data.Files
	}
	if data.Datanodes != nil {
		c.datanodes = data.Datanodes
	}
	// Records written by older runs may miss maps.
	for _, fr := range c.files {
		if fr.ChunksInfo == nil {
			fr.ChunksInfo = make(map[modules.ChunkID][]string)
		}
	}
	return nil
}
