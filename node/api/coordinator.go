package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/uplo-tech/errors"

	"github.com/uplo-tech/chunkfs/modules"
)

type (
	// HeartbeatPOST is the body of a /heartbeat request.
	HeartbeatPOST struct {
		DNID string `json:"dn_id"`
		Host string `json:"host"`
	}

	// UploadMetadataPOST is the body of an /upload_metadata request.
	UploadMetadataPOST struct {
		Filename  string                     `json:"filename"`
		NumChunks int                        `json:"num_chunks"`
		Checksums map[modules.ChunkID]string `json:"checksums,omitempty"`
	}

	// UploadMetadataResponse is the coordinator's upload plan.
	UploadMetadataResponse struct {
		Chunks []modules.ChunkPlacement `json:"chunks"`
	}

	// RegisterChunkPOST is the body of a /register_chunk request.
	RegisterChunkPOST struct {
		Filename string          `json:"filename"`
		ChunkID  modules.ChunkID `json:"chunk_id"`
		DNID     string          `json:"dn_id"`
	}

	// ChunkMapGET is the response of a /get_chunk_map request.
	ChunkMapGET struct {
		Chunks []modules.ChunkLocation `json:"chunks"`
	}

	// DownloadMetadataPOST is the body of a /download_metadata request.
	DownloadMetadataPOST struct {
		Filename string `json:"filename"`
	}

	// DownloadMetadataResponse is the raw holder map of a file.
	DownloadMetadataResponse struct {
		Filename   string                       `json:"filename"`
		ChunksInfo map[modules.ChunkID][]string `json:"chunks_info"`
	}

	// DeleteFilePOST is the body of a /delete_file request.
	DeleteFilePOST struct {
		Filename string `json:"filename"`
	}

	// DeleteFileResponse acknowledges a file deletion.
	DeleteFileResponse struct {
		Status   string `json:"status"`
		Filename string `json:"filename"`
	}

	// VerifyFileGET is the response of a /verify_file request, reporting one
	// boolean per holder per chunk, in holder order.
	VerifyFileGET struct {
		Filename string                     `json:"filename"`
		Status   map[modules.ChunkID][]bool `json:"status"`
	}

	// ChunksForDNGET is the response of a /get_chunks_for_dn request.
	ChunksForDNGET struct {
		Chunks []modules.RecoveryChunk `json:"chunks"`
	}

	// ReplicationSuccessPOST is the body of a /replication_success report.
	ReplicationSuccessPOST struct {
		ChunkID modules.ChunkID `json:"chunk_id"`
		FromDN  string          `json:"from_dn"`
		ToDN    string          `json:"to_dn"`
	}

	// RequestRecoveryPOST is the body of a /request_recovery request.
	RequestRecoveryPOST struct {
		ChunkID modules.ChunkID `json:"chunk_id"`
		DNID    string          `json:"dn_id"`
	}

	// statusResponse is a generic status acknowledgement.
	statusResponse struct {
		Status string `json:"status"`
	}
)

// heartbeatHandler handles the API call that storage nodes use to announce
// their liveness.
func (api *API) heartbeatHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body HeartbeatPOST
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.DNID == "" || body.Host == "" {
		WriteError(w, Error{"bad_request"}, http.StatusBadRequest)
		return
	}
	err := api.coordinator.Heartbeat(body.DNID, body.Host)
	if err != nil {
		WriteError(w, Error{err.Error()}, http.StatusInternalServerError)
		return
	}
	WriteJSON(w, statusResponse{Status: "ok"})
}

// uploadMetadataHandler handles the API call that clients use to request an
// upload plan.
func (api *API) uploadMetadataHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body UploadMetadataPOST
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Filename == "" || body.NumChunks < 1 {
		WriteError(w, Error{"bad_request"}, http.StatusBadRequest)
		return
	}
	plan, err := api.coordinator.UploadPlan(body.Filename, body.NumChunks, body.Checksums, r.RemoteAddr)
	if errors.Contains(err, modules.ErrNoDatanodesAvailable) {
		WriteError(w, Error{modules.ErrNoDatanodesAvailable.Error()}, http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		WriteError(w, Error{err.Error()}, http.StatusInternalServerError)
		return
	}
	WriteJSON(w, UploadMetadataResponse{Chunks: plan})
}

// registerChunkHandler handles the API call that storage nodes use to report
// a stored chunk.
func (api *API) registerChunkHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body RegisterChunkPOST
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Filename == "" || body.ChunkID == "" || body.DNID == "" {
		WriteError(w, Error{"missing_parameters"}, http.StatusBadRequest)
		return
	}
	err := api.coordinator.RegisterChunk(body.Filename, body.ChunkID, body.DNID)
	if err != nil {
		WriteError(w, Error{err.Error()}, http.StatusInternalServerError)
		return
	}
	WriteJSON(w, statusResponse{Status: "registered"})
}

// getChunkMapHandler handles the API call that clients use to locate the
// chunks of a file for download.
func (api *API) getChunkMapHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	filename := r.FormValue("filename")
	chunks, err := api.coordinator.ChunkMap(filename, r.RemoteAddr)
	if errors.Contains(err, modules.ErrFileNotFound) {
		WriteError(w, Error{modules.ErrFileNotFound.Error()}, http.StatusNotFound)
		return
	}
	if err != nil {
		WriteError(w, Error{err.Error()}, http.StatusInternalServerError)
		return
	}
	WriteJSON(w, ChunkMapGET{Chunks: chunks})
}

// downloadMetadataHandler handles the API call that returns a file's raw
// holder map.
func (api *API) downloadMetadataHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body DownloadMetadataPOST
	if !decodeJSON(w, r, &body) {
		return
	}
	info, err := api.coordinator.FileMetadata(body.Filename)
	if errors.Contains(err, modules.ErrFileNotFound) {
		WriteError(w, Error{modules.ErrFileNotFound.Error()}, http.StatusNotFound)
		return
	}
	if err != nil {
		WriteError(w, Error{err.Error()}, http.StatusInternalServerError)
		return
	}
	WriteJSON(w, DownloadMetadataResponse{Filename: body.Filename, ChunksInfo: info})
}

// listFilesHandler handles the API call that lists every stored file with
// its holder map.
func (api *API) listFilesHandler(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	WriteJSON(w, api.coordinator.ListFiles())
}

// deleteFileHandler handles the API call that deletes a file and its chunks
// from all datanodes.
func (api *API) deleteFileHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body DeleteFilePOST
	if !decodeJSON(w, r, &body) {
		return
	}
	err := api.coordinator.DeleteFile(body.Filename)
	if errors.Contains(err, modules.ErrFileNotFound) {
		WriteError(w, Error{modules.ErrFileNotFound.Error()}, http.StatusNotFound)
		return
	}
	if err != nil {
		WriteError(w, Error{err.Error()}, http.StatusInternalServerError)
		return
	}
	WriteJSON(w, DeleteFileResponse{Status: "deleted", Filename: body.Filename})
}

// verifyFileHandler handles the API call that verifies every replica of
// every chunk of a file.
func (api *API) verifyFileHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	filename := r.FormValue("filename")
	status, err := api.coordinator.VerifyFile(filename)
	if errors.Contains(err, modules.ErrFileNotFound) {
		WriteError(w, Error{modules.ErrFileNotFound.Error()}, http.StatusNotFound)
		return
	}
	if err != nil {
		WriteError(w, Error{err.Error()}, http.StatusInternalServerError)
		return
	}
	WriteJSON(w, VerifyFileGET{Filename: filename, Status: status})
}

// getChunksForDNHandler handles the API call that storage nodes use to learn
// which chunks they are expected to hold.
func (api *API) getChunksForDNHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	dnID := r.FormValue("dn_id")
	if dnID == "" {
		WriteError(w, Error{"missing_dn_id"}, http.StatusBadRequest)
		return
	}
	chunks := api.coordinator.ChunksForDN(dnID)
	if chunks == nil {
		chunks = []modules.RecoveryChunk{}
	}
	WriteJSON(w, ChunksForDNGET{Chunks: chunks})
}

// replicationSuccessHandler handles a storage node's report of a completed
// replication.
func (api *API) replicationSuccessHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body ReplicationSuccessPOST
	if !decodeJSON(w, r, &body) {
		return
	}
	api.coordinator.AcknowledgeReplication(body.ChunkID, body.FromDN, body.ToDN)
	WriteJSON(w, statusResponse{Status: "ok"})
}

// requestRecoveryHandler handles a storage node's report of a missing chunk.
// The coordinator finds a healthy source and instructs it to replicate the
// chunk to the requesting node.
func (api *API) requestRecoveryHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body RequestRecoveryPOST
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.ChunkID == "" || body.DNID == "" {
		WriteError(w, Error{"missing_parameters"}, http.StatusBadRequest)
		return
	}
	err := api.coordinator.RequestRecovery(body.ChunkID, body.DNID)
	switch {
	case err == nil:
		WriteJSON(w, statusResponse{Status: "recovery_started"})
	case errors.Contains(err, modules.ErrNoSource),
		errors.Contains(err, modules.ErrNoHealthySource),
		errors.Contains(err, modules.ErrTargetNotActive):
		WriteError(w, Error{err.Error()}, http.StatusNotFound)
	default:
		WriteError(w, Error{modules.ErrReplicationFailed.Error()}, http.StatusInternalServerError)
	}
}
