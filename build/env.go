package build

var (
	// chunkfsDataDir is the environment variable that tells chunkfsd where to
	// put the general chunkfs data, e.g. configuration, logs, metadata.
	chunkfsDataDir = "CHUNKFS_DATA_DIR"
)
