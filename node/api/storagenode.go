package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/uplo-tech/errors"

	"github.com/uplo-tech/chunkfs/modules"
)

type (
	// StoreChunkPOST is the body of a /store_chunk request. The Data field
	// carries the chunk bytes base64-encoded, which encoding/json handles
	// natively for byte slices.
	StoreChunkPOST struct {
		ChunkID  modules.ChunkID `json:"chunk_id"`
		Filename string          `json:"filename"`
		Data     *[]byte         `json:"data"`
	}

	// StoreChunkResponse acknowledges a stored chunk with its digest.
	StoreChunkResponse struct {
		Status string `json:"status"`
		SHA256 string `json:"sha256"`
	}

	// GetChunkResponse carries a chunk's bytes and digest.
	GetChunkResponse struct {
		Data   []byte `json:"data"`
		SHA256 string `json:"sha256"`
	}

	// ReplicateChunkPOST is the body of a /replicate_chunk instruction.
	ReplicateChunkPOST struct {
		ChunkID    modules.ChunkID `json:"chunk_id"`
		TargetHost string          `json:"target_host"`
	}

	// VerifyChunkGET is the response of a /verify_chunk request.
	VerifyChunkGET struct {
		Status modules.VerifyStatus `json:"status"`
	}
)

// storeChunkHandler handles the API call that writes a chunk and its digest
// side-car to the node.
func (api *API) storeChunkHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body StoreChunkPOST
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.ChunkID == "" || body.Data == nil {
		WriteError(w, Error{"bad_request"}, http.StatusBadRequest)
		return
	}
	sum, err := api.storagenode.StoreChunk(body.ChunkID, body.Filename, *body.Data)
	if err != nil {
		WriteError(w, Error{err.Error()}, http.StatusInternalServerError)
		return
	}
	WriteJSON(w, StoreChunkResponse{Status: "stored", SHA256: sum})
}

// getChunkHandler handles the API call that reads a chunk back, verifying it
// against its digest side-car.
func (api *API) getChunkHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	chunkID := modules.ChunkID(r.FormValue("chunk_id"))
	if chunkID == "" {
		WriteError(w, Error{"missing_chunk_id"}, http.StatusBadRequest)
		return
	}
	data, sum, err := api.storagenode.Chunk(chunkID)
	if errors.Contains(err, modules.ErrMissingChunk) {
		WriteError(w, Error{"not_found"}, http.StatusNotFound)
		return
	}
	if errors.Contains(err, modules.ErrCorruptedChunk) {
		WriteError(w, Error{modules.ErrCorruptedChunk.Error()}, http.StatusInternalServerError)
		return
	}
	if err != nil {
		WriteError(w, Error{err.Error()}, http.StatusInternalServerError)
		return
	}
	WriteJSON(w, GetChunkResponse{Data: data, SHA256: sum})
}

// replicateChunkHandler handles the coordinator's instruction to push a
// local chunk to another node.
func (api *API) replicateChunkHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body ReplicateChunkPOST
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.ChunkID == "" || body.TargetHost == "" {
		WriteError(w, Error{"bad_request"}, http.StatusBadRequest)
		return
	}
	err := api.storagenode.ReplicateChunk(body.ChunkID, body.TargetHost)
	switch {
	case err == nil:
		WriteJSON(w, statusResponse{Status: "replicated"})
	case errors.Contains(err, modules.ErrMissingChunk):
		WriteError(w, Error{modules.ErrMissingChunk.Error()}, http.StatusNotFound)
	case errors.Contains(err, modules.ErrChecksumMismatch):
		WriteError(w, Error{modules.ErrChecksumMismatch.Error()}, http.StatusInternalServerError)
	case errors.Contains(err, modules.ErrTargetFailed):
		WriteError(w, Error{modules.ErrTargetFailed.Error()}, http.StatusInternalServerError)
	default:
		WriteError(w, Error{err.Error()}, http.StatusInternalServerError)
	}
}

// deleteChunkHandler handles the API call that removes a chunk and its
// side-car from the node.
func (api *API) deleteChunkHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		ChunkID modules.ChunkID `json:"chunk_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.ChunkID == "" {
		WriteError(w, Error{"missing_chunk_id"}, http.StatusBadRequest)
		return
	}
	err := api.storagenode.DeleteChunk(body.ChunkID)
	if errors.Contains(err, modules.ErrMissingChunk) {
		writeJSONCode(w, statusResponse{Status: "not_found"}, http.StatusNotFound)
		return
	}
	if err != nil {
		WriteError(w, Error{err.Error()}, http.StatusInternalServerError)
		return
	}
	WriteJSON(w, statusResponse{Status: "deleted"})
}

// verifyChunkHandler handles the API call that checks a chunk against its
// digest side-car. Corruption is reported as a structured body with an error
// status code so that callers can act on either.
func (api *API) verifyChunkHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	chunkID := modules.ChunkID(r.FormValue("chunk_id"))
	if chunkID == "" {
		WriteError(w, Error{"missing_chunk_id"}, http.StatusBadRequest)
		return
	}
	status := api.storagenode.VerifyChunk(chunkID)
	switch status {
	case modules.VerifyMissing:
		writeJSONCode(w, VerifyChunkGET{Status: status}, http.StatusNotFound)
	case modules.VerifyCorrupted:
		writeJSONCode(w, VerifyChunkGET{Status: status}, http.StatusInternalServerError)
	default:
		WriteJSON(w, VerifyChunkGET{Status: status})
	}
}
