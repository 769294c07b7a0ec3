package xrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// RPCClient is a minimal basic-auth JSON-RPC 1.0 client shared by the
// plugin executor's "rpc" plugin type and the per-currency connectors.
// Grounded in the reference HTTP RPC client pattern (POST + basic auth +
// JSON body/response), generalized here instead of duplicated per caller.
type RPCClient struct {
	Addr     string // host:port
	User     string
	Password string
	HTTP     *http.Client
}

// NewRPCClient builds a client targeting ip:port with basic-auth credentials.
func NewRPCClient(ip, port, user, password string) *RPCClient {
	return &RPCClient{
		Addr:     fmt.Sprintf("%s:%s", ip, port),
		User:     user,
		Password: password,
		HTTP:     http.DefaultClient,
	}
}

type rpcRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
	ID     int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call invokes method with params against the configured node and returns
// the raw "result" field, or the node's "error" object as an error.
func (c *RPCClient) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	reqBody, err := json.Marshal(rpcRequest{Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("http://%s/", c.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.User, c.Password)
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rpc: %s responded with %d %s", url, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, err
	}
	if rr.Error != nil {
		return nil, rr.Error
	}
	return rr.Result, nil
}
