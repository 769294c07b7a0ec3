package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// postJSON POSTs body as JSON to path on the control API and returns the
// raw response body, which is itself already-encoded JSON from the node.
func postJSON(path string, body interface{}) (string, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Post(controlAddr+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("xrouter-cli: request to %s: %w", path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("xrouter-cli: %s returned %s: %s", path, resp.Status, string(out))
	}
	return string(out), nil
}

func getJSON(path string) (string, error) {
	resp, err := httpClient.Get(controlAddr + path)
	if err != nil {
		return "", fmt.Errorf("xrouter-cli: request to %s: %w", path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("xrouter-cli: %s returned %s: %s", path, resp.Status, string(out))
	}
	return string(out), nil
}
