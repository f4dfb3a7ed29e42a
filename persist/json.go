package persist

import (
	"encoding/json"
	"os"

	"github.com/uplo-tech/errors"
)

// readJSON will try to read a persisted json object from a file.
func readJSON(meta Metadata, object interface{}, filename string) (err error) {
	// Open the file.
	file, err := os.Open(filename)
	if os.IsNotExist(err) {
		return err
	}
	if err != nil {
		return errors.AddContext(err, "unable to open persisted json object file")
	}
	defer func() {
		err = errors.Compose(err, file.Close())
	}()

	// Read the metadata from the file.
	var header, version string
	dec := json.NewDecoder(file)
	err = dec.Decode(&header)
	if err != nil {
		return errors.AddContext(err, "unable to read header from persisted json object file")
	}
	if header != meta.Header {
		return ErrBadHeader
	}
	err = dec.Decode(&version)
	if err != nil {
		return errors.AddContext(err, "unable to read version from persisted json object file")
	}
	if version != meta.Version {
		return ErrBadVersion
	}

	// Read the object.
	err = dec.Decode(object)
	if err != nil {
		return errors.AddContext(err, "unable to parse the json object")
	}
	return nil
}

// LoadJSON will load a persisted json object from disk.
func LoadJSON(meta Metadata, object interface{}, filename string) error {
	// Verify that the filename does not have the persist temp suffix.
	if len(filename) >= len(tempSuffix) && filename[len(filename)-len(tempSuffix):] == tempSuffix {
		return ErrBadFilenameSuffix
	}

	// Verify that no other thread is using this filename.
	err := func() error {
		activeFilesMu.Lock()
		defer activeFilesMu.Unlock()

		_, exists := activeFiles[filename]
		if exists {
			return ErrFileInUse
		}
		activeFiles[filename] = struct{}{}
		return nil
	}()
	if err != nil {
		return err
	}
	// Release the lock at the end of the function.
	defer func() {
		activeFilesMu.Lock()
		delete(activeFiles, filename)
		activeFilesMu.Unlock()
	}()

	// Try loading the primary file.
	err = readJSON(meta, object, filename)
	if err == nil {
		return nil
	}
	if err != nil && !os.IsNotExist(err) {
		return errors.AddContext(err, "unable to read persisted json object from disk")
	}

	// Try loading the temp file. If the temp file does not exist either, the
	// raw error is returned so that callers can detect a first start with
	// os.IsNotExist.
	err = readJSON(meta, object, filename+tempSuffix)
	if err != nil && os.IsNotExist(err) {
		return err
	}
	if err != nil {
		return errors.AddContext(err, "unable to load persisted json object from temp file")
	}
	return nil
}

// SaveJSON will save a json object to disk in a durable, atomic way. The
// resulting file will have a metadata header, followed by the json encoding
// of the object.
func SaveJSON(meta Metadata, object interface{}, filename string) error {
	// Verify that the filename does not have the persist temp suffix.
	if len(filename) >= len(tempSuffix) && filename[len(filename)-len(tempSuffix):] == tempSuffix {
		return ErrBadFilenameSuffix
	}

	// Verify that no other thread is using this filename.
	err := func() error {
		activeFilesMu.Lock()
		defer activeFilesMu.Unlock()

		_, exists := activeFiles[filename]
		if exists {
			return ErrFileInUse
		}
		activeFiles[filename] = struct{}{}
		return nil
	}()
	if err != nil {
		return err
	}
	// Release the lock at the end of the function.
	defer func() {
		activeFilesMu.Lock()
		delete(activeFiles, filename)
		activeFilesMu.Unlock()
	}()

	// Write the metadata and the object to a buffer.
	headerBytes, err := json.Marshal(meta.Header)
	if err != nil {
		return errors.AddContext(err, "unable to marshal metadata header")
	}
	versionBytes, err := json.Marshal(meta.Version)
	if err != nil {
		return errors.AddContext(err, "unable to marshal metadata version")
	}
	objBytes, err := json.MarshalIndent(object, "", "\t")
	if err != nil {
		return errors.AddContext(err, "unable to marshal the provided object")
	}
	data := append(headerBytes, '\n')
	data = append(data, versionBytes...)
	data = append(data, '\n')
	data = append(data, objBytes...)
	data = append(data, '\n')

	// Write the data to the temp file first, then sync and rename over the
	// target so that a crash mid-write cannot destroy the previous state.
	writeFile := func(fname string) (err error) {
		file, err := os.OpenFile(fname, os.O_RDWR|os.O_TRUNC|os.O_CREATE, defaultFilePermissions)
		if err != nil {
			return errors.AddContext(err, "unable to open file "+fname)
		}
		defer func() {
			err = errors.Compose(err, file.Close())
		}()
		_, err = file.Write(data)
		if err != nil {
			return errors.AddContext(err, "unable to write file "+fname)
		}
		err = file.Sync()
		if err != nil {
			return errors.AddContext(err, "unable to sync file "+fname)
		}
		return nil
	}
	err = writeFile(filename + tempSuffix)
	if err != nil {
		return err
	}
	err = os.Rename(filename+tempSuffix, filename)
	if err != nil {
		return errors.AddContext(err, "unable to move temp file into place")
	}
	return nil
}
