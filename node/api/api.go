// Package api exposes the coordinator and storage node modules over HTTP
// with JSON bodies. A process typically runs exactly one of the two roles;
// routes are only registered for the modules that are present.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/uplo-tech/chunkfs/modules"
)

// Error is a type that is encoded as JSON and returned in an API response in
// the event of an error. Only the Message field is required.
type Error struct {
	// Message is a short machine-readable error kind, e.g.
	// "no_datanodes_available". It is serialized under the "error" key,
	// which is the key every client and node in the cluster parses.
	Message string `json:"error"`
}

// Error implements the error interface for the Error type. It returns only
// the Message field.
func (err Error) Error() string {
	return err.Message
}

// API encapsulates a coordinator and/or a storage node and exposes an
// http.Handler to access their methods.
type API struct {
	coordinator modules.Coordinator
	storagenode modules.StorageNode

	router http.Handler
}

// New creates a new API from the provided modules. Either module may be nil;
// its routes are then not registered.
func New(c modules.Coordinator, sn modules.StorageNode) *API {
	api := &API{
		coordinator: c,
		storagenode: sn,
	}
	api.buildHTTPRoutes()
	return api
}

// ServeHTTP implements the http.Handler interface.
func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.router.ServeHTTP(w, r)
}

// buildHTTPRoutes determines which functions handle each API call.
func (api *API) buildHTTPRoutes() {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(api.unrecognizedCallHandler)

	// Coordinator API calls.
	if api.coordinator != nil {
		router.POST("/heartbeat", api.heartbeatHandler)
		router.POST("/upload_metadata", api.uploadMetadataHandler)
		router.POST("/register_chunk", api.registerChunkHandler)
		router.GET("/get_chunk_map", api.getChunkMapHandler)
		router.POST("/download_metadata", api.downloadMetadataHandler)
		router.GET("/list_files", api.listFilesHandler)
		router.POST("/delete_file", api.deleteFileHandler)
		router.GET("/verify_file", api.verifyFileHandler)
		router.GET("/get_chunks_for_dn", api.getChunksForDNHandler)
		router.POST("/replication_success", api.replicationSuccessHandler)
		router.POST("/request_recovery", api.requestRecoveryHandler)
	}

	// Storage node API calls.
	if api.storagenode != nil {
		router.POST("/store_chunk", api.storeChunkHandler)
		router.GET("/get_chunk", api.getChunkHandler)
		router.POST("/replicate_chunk", api.replicateChunkHandler)
		router.POST("/delete_chunk", api.deleteChunkHandler)
		router.GET("/verify_chunk", api.verifyChunkHandler)
	}

	api.router = router
}

// unrecognizedCallHandler handles calls to unknown endpoints.
func (api *API) unrecognizedCallHandler(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, Error{"404 - no such endpoint"}, http.StatusNotFound)
}

// WriteError writes an error to the API caller.
func WriteError(w http.ResponseWriter, err Error, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if json.NewEncoder(w).Encode(err) != nil {
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}

// WriteJSON writes the object to the ResponseWriter. If the encoding fails,
// an error is written instead. The Content-Type of the response header is
// set accordingly.
func WriteJSON(w http.ResponseWriter, obj interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if json.NewEncoder(w).Encode(obj) != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeJSONCode writes the object to the ResponseWriter with a non-200
// status code. It is used for responses that carry a structured body and an
// error status at the same time, e.g. a corrupted verification verdict.
func writeJSONCode(w http.ResponseWriter, obj interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if json.NewEncoder(w).Encode(obj) != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// decodeJSON decodes a request body into obj and reports a bad_request to
// the caller on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, obj interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(obj)
	if err != nil {
		WriteError(w, Error{"bad_request"}, http.StatusBadRequest)
		return false
	}
	return true
}
