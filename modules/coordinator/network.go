package coordinator

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
)

// postJSON posts a JSON body to a storage node endpoint and decodes the JSON
// response into result, which may be nil. Non-2xx responses are returned as
// errors carrying the response body.
func postJSON(endpoint string, body interface{}, timeout time.Duration, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.AddContext(err, "unable to marshal request body")
	}
	client := http.Client{Timeout: timeout}
	resp, err := client.Post(endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return errors.AddContext(err, "post to "+endpoint+" failed")
	}
	defer func() {
		_, _ = io.Copy(ioutil.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := ioutil.ReadAll(resp.Body)
		return fmt.Errorf("post to %v returned status %v: %v", endpoint, resp.StatusCode, string(bytes.TrimSpace(raw)))
	}
	if result == nil {
		return nil
	}
	err = json.NewDecoder(resp.Body).Decode(result)
	if err != nil {
		return errors.AddContext(err, "unable to decode response from "+endpoint)
	}
	return nil
}

// getJSON performs a GET against a storage node endpoint with the provided
// query values and decodes the JSON response into result. The response
// status code is returned alongside so that callers can distinguish
// structured failures from transport errors.
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
	if result != nil {
		err = json.NewDecoder(resp.Body).Decode(result)
		if err != nil {
			return resp.StatusCode, errors.AddContext(err, "unable to decode response from "+endpoint)
		}
	}
	return resp.StatusCode, nil
}

// nodeEndpoint joins a node's base URL with an endpoint path.
func nodeEndpoint(host, path string) string {
	return strings.TrimSuffix(host, "/") + path
}
