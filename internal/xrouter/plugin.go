package xrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var pluginLog = logrus.WithField("component", "plugin-executor")

// PluginExecutor runs a CustomCall request against a configured plugin.
// Two plugin types are supported: "rpc" relays the call to a JSON-RPC
// node, "shell" runs a local executable. A single executor is shared
// across every inbound stream handler, so its rpc-client cache is
// reached concurrently and needs its own lock.
type PluginExecutor struct {
	rpcMu      sync.Mutex
	rpcClients map[string]*RPCClient
}

// NewPluginExecutor returns an executor with an empty rpc-client cache.
func NewPluginExecutor() *PluginExecutor {
	return &PluginExecutor{rpcClients: make(map[string]*RPCClient)}
}

// Execute validates params against the plugin's arity bounds, coerces each
// into the declared ParamsType, and dispatches to the rpc or shell backend.
// The returned string is always a JSON reply payload, never a bare error.
func (pe *PluginExecutor) Execute(ctx context.Context, ps *PluginSettings, params []string) (string, error) {
	if len(params) < ps.MinParamCount || (ps.MaxParamCount > 0 && len(params) > ps.MaxParamCount) {
		return "", fmt.Errorf("%w: got %d, want %d..%d", ErrPluginArity, len(params), ps.MinParamCount, ps.MaxParamCount)
	}

	converted, err := coerceParams(ps, params)
	if err != nil {
		return "", err
	}

	switch ps.Type {
	case "rpc":
		return pe.executeRPC(ctx, ps, converted)
	case "shell":
		return pe.executeShell(ctx, ps, converted)
	default:
		return "", fmt.Errorf("xrouter: unknown plugin type %q", ps.Type)
	}
}

// coerceParams converts each positional string argument to the Go type its
// ParamsType entry names. Unlisted trailing params pass through as strings.
// "false" (case-insensitively) coerces to the bool false, not just the
// empty string.
func coerceParams(ps *PluginSettings, params []string) ([]interface{}, error) {
	out := make([]interface{}, len(params))
	for i, raw := range params {
		kind := "string"
		if i < len(ps.ParamsType) {
			kind = ps.ParamsType[i]
		}
		switch strings.ToLower(kind) {
		case "int":
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: param %d: %v", ErrBadArg, i, err)
			}
			out[i] = n
		case "bool":
			out[i] = strings.EqualFold(raw, "true")
		default:
			out[i] = raw
		}
	}
	return out, nil
}

func (pe *PluginExecutor) executeRPC(ctx context.Context, ps *PluginSettings, params []interface{}) (string, error) {
	key := ps.RPCIp + ":" + ps.RPCPort + ":" + ps.RPCUser
	pe.rpcMu.Lock()
	client, ok := pe.rpcClients[key]
	if !ok {
		client = NewRPCClient(ps.RPCIp, ps.RPCPort, ps.RPCUser, ps.RPCPassword)
		pe.rpcClients[key] = client
	}
	pe.rpcMu.Unlock()

	raw, err := client.Call(ctx, ps.RPCCommand, params)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "{}", nil
	}
	return string(raw), nil
}

// executeShell runs the plugin's configured command with params as literal
// argv entries, never through a shell. Plugin manifests are trusted, not
// sandboxed, but argv entries are passed as-is with no string
// concatenation, so shell metacharacters in a param can't inject
// additional commands.
func (pe *PluginExecutor) executeShell(ctx context.Context, ps *PluginSettings, params []interface{}) (string, error) {
	args := make([]string, len(params))
	for i, v := range params {
		args[i] = fmt.Sprint(v)
	}

	cmd := exec.CommandContext(ctx, ps.Cmd, args...)
	out, err := cmd.Output()
	if err != nil {
		pluginLog.WithError(err).WithField("cmd", ps.Cmd).Warn("shell plugin failed")
		return "", fmt.Errorf("xrouter: shell plugin failed: %w", err)
	}

	trimmed := strings.TrimSpace(string(out))
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	b, err := json.Marshal(map[string]string{"reply": trimmed})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
