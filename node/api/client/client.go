// Package client provides a typed Go client for the coordinator and storage
// node HTTP APIs. External tooling, e.g. an upload CLI, sits on top of this
// package rather than talking HTTP directly.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/uplo-tech/chunkfs/modules"
	"github.com/uplo-tech/chunkfs/node/api"
)

// A Client makes requests to one process of the cluster, either the
// coordinator or a storage node, identified by its base URL.
type Client struct {
	// Address is the base URL of the process, e.g. "http://10.0.1.1:5000".
	Address string

	// Timeout bounds every request made through the client. A zero timeout
	// means no bound.
	Timeout time.Duration
}

// New creates a client for the process at the given base URL.
func New(address string) *Client {
	return &Client{Address: strings.TrimSuffix(address, "/")}
}

// do performs a request and decodes the JSON response into result, which may
// be nil. Structured errors returned by the API surface as api.Error.
func (c *Client) do(req *http.Request, result interface{}) error {
	httpClient := http.Client{Timeout: c.Timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(ioutil.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr api.Error
		raw, _ := ioutil.ReadAll(resp.Body)
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return apiErr
		}
		return fmt.Errorf("%v returned status %v: %v", req.URL.Path, resp.StatusCode, string(bytes.TrimSpace(raw)))
	}
	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// get performs a GET request against the process.
func (c *Client) get(path string, query url.Values, result interface{}) error {
	endpoint := c.Address + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, result)
}

// post performs a POST request with a JSON body against the process.
func (c *Client) post(path string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.AddContext(err, "unable to marshal request body")
	}
	req, err := http.NewRequest("POST", c.Address+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

// Heartbeat announces a storage node to the coordinator.
func (c *Client) Heartbeat(dnID, host string) error {
	return c.post("/heartbeat", api.HeartbeatPOST{DNID: dnID, Host: host}, nil)
}

// UploadMetadata requests an upload plan for a file.
func (c *Client) UploadMetadata(filename string, numChunks int, checksums map[modules.ChunkID]string) (api.UploadMetadataResponse, error) {
	var resp api.UploadMetadataResponse
	err := c.post("/upload_metadata", api.UploadMetadataPOST{
		Filename:  filename,
		NumChunks: numChunks,
		Checksums: checksums,
	}, &resp)
	return resp, err
}

// RegisterChunk reports a stored chunk to the coordinator.
func (c *Client) RegisterChunk(filename string, chunkID modules.ChunkID, dnID string) error {
	return c.post("/register_chunk", api.RegisterChunkPOST{
		Filename: filename,
		ChunkID:  chunkID,
		DNID:     dnID,
	}, nil)
}

// GetChunkMap fetches the ordered, proximity-sorted chunk map of a file.
func (c *Client) GetChunkMap(filename string) (api.ChunkMapGET, error) {
	var resp api.ChunkMapGET
	query := url.Values{}
	query.Set("filename", filename)
	err := c.get("/get_chunk_map", query, &resp)
	return resp, err
}

// DownloadMetadata fetches the raw holder map of a file.
func (c *Client) DownloadMetadata(filename string) (api.DownloadMetadataResponse, error) {
	var resp api.DownloadMetadataResponse
	err := c.post("/download_metadata", api.DownloadMetadataPOST{Filename: filename}, &resp)
	return resp, err
}

// ListFiles fetches the holder map of every stored file.
func (c *Client) ListFiles() (map[string]map[modules.ChunkID][]string, error) {
	var resp map[string]map[modules.ChunkID][]string
	err := c.get("/list_files", nil, &resp)
	return resp, err
}

// DeleteFile deletes a file and its chunks from all datanodes.
func (c *Client) DeleteFile(filename string) error {
	return c.post("/delete_file", api.DeleteFilePOST{Filename: filename}, nil)
}

// VerifyFile verifies every replica of every chunk of a file.
func (c *Client) VerifyFile(filename string) (api.VerifyFileGET, error) {
	var resp api.VerifyFileGET
	query := url.Values{}
	query.Set("filename", filename)
	err := c.get("/verify_file", query, &resp)
	return resp, err
}

// GetChunksForDN lists the chunks a storage node is expected to hold.
func (c *Client) GetChunksForDN(dnID string) (api.ChunksForDNGET, error) {
	var resp api.ChunksForDNGET
	query := url.Values{}
	query.Set("dn_id", dnID)
	err := c.get("/get_chunks_for_dn", query, &resp)
	return resp, err
}

// RequestRecovery asks the coordinator to restore a chunk onto a node.
func (c *Client) RequestRecovery(chunkID modules.ChunkID, dnID string) error {
	return c.post("/request_recovery", api.RequestRecoveryPOST{ChunkID: chunkID, DNID: dnID}, nil)
}

// StoreChunk pushes chunk bytes to a storage node.
func (c *Client) StoreChunk(chunkID modules.ChunkID, filename string, data []byte) (api.StoreChunkResponse, error) {
	var resp api.StoreChunkResponse
	err := c.post("/store_chunk", api.StoreChunkPOST{
		ChunkID:  chunkID,
		Filename: filename,
		Data:     &data,
	}, &resp)
	return resp, err
}

// GetChunk fetches chunk bytes from a storage node.
func (c *Client) GetChunk(chunkID modules.ChunkID) (api.GetChunkResponse, error) {
	var resp api.GetChunkResponse
	query := url.Values{}
	query.Set("chunk_id", string(chunkID))
	err := c.get("/get_chunk", query, &resp)
	return resp, err
}

// ReplicateChunk instructs a storage node to push a chunk to another node.
func (c *Client) ReplicateChunk(chunkID modules.ChunkID, targetHost string) error {
	return c.post("/replicate_chunk", api.ReplicateChunkPOST{ChunkID: chunkID, TargetHost: targetHost}, nil)
}

// DeleteChunk removes a chunk from a storage node.
func (c *Client) DeleteChunk(chunkID modules.ChunkID) error {
	return c.post("/delete_chunk", map[string]interface{}{"chunk_id": chunkID}, nil)
}

// VerifyChunk checks a chunk against its digest side-car on a storage node.
// The verdict is returned even when the node answers with an error status
// code, as corrupted and missing verdicts do.
func (c *Client) VerifyChunk(chunkID modules.ChunkID) (modules.VerifyStatus, error) {
	endpoint := c.Address + "/verify_chunk?chunk_id=" + url.QueryEscape(string(chunkID))
	httpClient := http.Client{Timeout: c.Timeout}
	resp, err := httpClient.Get(endpoint)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	var verdict api.VerifyChunkGET
	err = json.NewDecoder(resp.Body).Decode(&verdict)
	if err != nil {
		return "", errors.AddContext(err, "unable to decode verify response")
	}
	if verdict.Status == "" {
		return "", fmt.Errorf("verify_chunk returned status %v without a verdict", resp.StatusCode)
	}
	return verdict.Status, nil
}
