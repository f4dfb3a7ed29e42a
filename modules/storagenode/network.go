package storagenode

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
)

// postJSON posts a JSON body to an endpoint and decodes the JSON response
// into result, which may be nil. The response status code is returned so
// that callers can distinguish structured failures from transport errors.
func postJSON(endpoint string, body interface{}, timeout time.Duration, result interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, errors.AddContext(err, "unable to marshal request body")
	}
	client := http.Client{Timeout: timeout}
	resp, err := client.Post(endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, errors.AddContext(err, "post to "+endpoint+" failed")
	}
	defer func() {
		_, _ = io.Copy(ioutil.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if result != nil && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		err = json.NewDecoder(resp.Body).Decode(result)
		if err != nil {
			return resp.StatusCode, errors.AddContext(err, "unable to decode response from "+endpoint)
		}
	} else if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := ioutil.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("post to %v returned status %v: %v", endpoint, resp.StatusCode, string(bytes.TrimSpace(raw)))
	}
	return resp.StatusCode, nil
}

// getJSON performs a GET against an endpoint with the provided query values
// and decodes the JSON response into result.
func getJSON(endpoint string, query url.Values, timeout time.Duration, result interface{}) (int, error) {
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}
	client := http.Client{Timeout: timeout}
	resp, err := client.Get(endpoint)
	if err != nil {
		return 0, errors.AddContext(err, "get from "+endpoint+" failed")
	}
	defer func() {
		_, _ = io.Copy(ioutil.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("get from %v returned status %v", endpoint, resp.StatusCode)
	}
	if result != nil {
		err = json.NewDecoder(resp.Body).Decode(result)
		if err != nil {
			return resp.StatusCode, errors.AddContext(err, "unable to decode response from "+endpoint)
		}
	}
	return resp.StatusCode, nil
}

// nodeEndpoint joins a base URL with an endpoint path.
func nodeEndpoint(host, path string) string {
	return strings.TrimSuffix(host, "/") + path
}

// managedRegisterChunk notifies the coordinator that this node holds
// chunkID.
func (sn *StorageNode) managedRegisterChunk(chunkID modules.ChunkID, filename string) error {
	_, err := postJSON(nodeEndpoint(sn.staticCoordinator, "/register_chunk"), map[string]interface{}{
		"filename": filename,
		"chunk_id": chunkID,
		"dn_id":    sn.staticDNID,
	}, modules.RegisterChunkTimeout, nil)
	return err
}
