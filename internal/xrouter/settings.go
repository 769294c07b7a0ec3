package xrouter

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Settings is a read-only view over a node's XRouter command-and-plugin
// configuration tree. It wraps a viper instance reading an INI-style
// xrouter.conf, expressed through the config library the rest of this
// repository already depends on for node configuration (pkg/config).
//
// viper lowercases every key it reads, so all lookups here go through a
// lowercased dotted path; callers may pass mixed-case command/currency
// names (e.g. "BTC.GetBlockCount.timeout").
type Settings struct {
	raw     string
	v       *viper.Viper
	plugins map[string]*PluginSettings
}

// PluginSettings is the parsed view of a Plugins.<name> section.
type PluginSettings struct {
	raw           string
	Type          string // "rpc" or "shell"
	ParamsType    []string
	MinParamCount int
	MaxParamCount int
	Timeout       float64

	// rpc
	RPCUser     string
	RPCPassword string
	RPCIp       string
	RPCPort     string
	RPCCommand  string

	// shell
	Cmd string
}

// RawText returns the plugin's original configuration text, used when
// relaying plugin manifests through a ConfigReply.
func (p *PluginSettings) RawText() string { return p.raw }

// LoadSettings parses raw xrouter.conf text (INI syntax: "[Section]" then
// "key = value" lines) into a Settings snapshot, discovering Plugins.<name>
// sections along the way.
func LoadSettings(raw string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("ini")
	if err := v.ReadConfig(bytes.NewBufferString(raw)); err != nil {
		return nil, fmt.Errorf("xrouter: parse settings: %w", err)
	}

	s := &Settings{raw: raw, v: v, plugins: make(map[string]*PluginSettings)}

	pluginsSection, _ := v.Get("plugins").(map[string]interface{})
	for name := range pluginsSection {
		ps, err := s.loadPlugin(name)
		if err != nil {
			return nil, err
		}
		s.plugins[name] = ps
	}

	return s, nil
}

func (s *Settings) loadPlugin(name string) (*PluginSettings, error) {
	prefix := "plugins." + strings.ToLower(name) + "."
	ps := &PluginSettings{
		raw:           extractSectionText(s.raw, "plugins."+name),
		Type:          s.v.GetString(prefix + "type"),
		MinParamCount: s.v.GetInt(prefix + "minparamcount"),
		MaxParamCount: s.v.GetInt(prefix + "maxparamcount"),
		Timeout:       s.v.GetFloat64(prefix + "timeout"),
		RPCUser:       s.v.GetString(prefix + "rpcuser"),
		RPCPassword:   s.v.GetString(prefix + "rpcpassword"),
		RPCIp:         s.v.GetString(prefix + "rpcip"),
		RPCPort:       s.v.GetString(prefix + "rpcport"),
		RPCCommand:    s.v.GetString(prefix + "rpccommand"),
		Cmd:           s.v.GetString(prefix + "cmd"),
	}
	if ps.RPCIp == "" {
		ps.RPCIp = "127.0.0.1"
	}
	if typesStr := s.v.GetString(prefix + "paramstype"); typesStr != "" {
		for _, t := range strings.Split(typesStr, ",") {
			ps.ParamsType = append(ps.ParamsType, strings.TrimSpace(t))
		}
	}
	return ps, nil
}

// RawText returns the original configuration text, used by GetConfig
// replies.
func (s *Settings) RawText() string { return s.raw }

// LoadSettingsFile reads and parses xrouter.conf from disk, used by
// ReloadConfigs.
func LoadSettingsFile(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("xrouter: read settings file: %w", err)
	}
	return LoadSettings(string(raw))
}

// GetString, GetInt, GetFloat64 and GetBool read path (case-insensitively)
// and return def if the key is unset.
func (s *Settings) GetString(path, def string) string {
	key := strings.ToLower(path)
	if !s.v.IsSet(key) {
		return def
	}
	return s.v.GetString(key)
}

func (s *Settings) GetInt(path string, def int) int {
	key := strings.ToLower(path)
	if !s.v.IsSet(key) {
		return def
	}
	return s.v.GetInt(key)
}

func (s *Settings) GetFloat64(path string, def float64) float64 {
	key := strings.ToLower(path)
	if !s.v.IsSet(key) {
		return def
	}
	return s.v.GetFloat64(key)
}

func (s *Settings) GetBool(path string, def bool) bool {
	key := strings.ToLower(path)
	if !s.v.IsSet(key) {
		return def
	}
	return s.v.GetBool(key)
}

// WalletEnabled reports whether currency is enabled for this node; a
// currency section that is present and not explicitly disabled is enabled.
func (s *Settings) WalletEnabled(currency string) bool {
	key := strings.ToLower(currency)
	if !s.v.IsSet(key) {
		return false
	}
	return !s.v.GetBool(key + ".disabled")
}

// IsAvailableCommand reports whether currency.command has not been
// disabled via "<currency>.<Command>.disabled".
func (s *Settings) IsAvailableCommand(cmd Command, currency string) bool {
	if !s.WalletEnabled(currency) {
		return false
	}
	key := strings.ToLower(currency) + "." + strings.ToLower(cmd.String()) + ".disabled"
	return !s.v.GetBool(key)
}

// GetCommandTimeout returns the per-currency, per-command rate-limit window
// in seconds, read from "<currency>.<Command>.timeout".
func (s *Settings) GetCommandTimeout(cmd Command, currency string) float64 {
	key := strings.ToLower(currency) + "." + strings.ToLower(cmd.String()) + ".timeout"
	return s.v.GetFloat64(key)
}

// XRouterEnabled reports Main.xrouter != 0.
func (s *Settings) XRouterEnabled() bool {
	return s.v.GetInt("main.xrouter") != 0
}

// WaitMillis returns Main.wait, defaulting to DefaultTimeoutMillis.
func (s *Settings) WaitMillis() int {
	if !s.v.IsSet("main.wait") {
		return DefaultTimeoutMillis
	}
	return s.v.GetInt("main.wait")
}

// Plugins returns the set of configured plugin names.
func (s *Settings) Plugins() []string {
	names := make([]string, 0, len(s.plugins))
	for n := range s.plugins {
		names = append(names, n)
	}
	return names
}

// HasPlugin reports whether name is a configured plugin.
func (s *Settings) HasPlugin(name string) bool {
	_, ok := s.plugins[name]
	return ok
}

// GetPluginSettings returns the parsed settings for plugin name, or nil.
func (s *Settings) GetPluginSettings(name string) *PluginSettings {
	return s.plugins[name]
}

// AddPlugin registers plugin settings parsed from a peer's ConfigReply,
// where the reply's "plugins" map is parsed and stored per-plugin.
func (s *Settings) AddPlugin(name string, ps *PluginSettings) {
	s.plugins[name] = ps
}

// ParsePluginSettings parses a single plugin's raw INI-style section text
// (as relayed inside a ConfigReply's "plugins" map) into a PluginSettings.
func ParsePluginSettings(raw string) (*PluginSettings, error) {
	wrapped := "[plugin]\n" + raw
	v := viper.New()
	v.SetConfigType("ini")
	if err := v.ReadConfig(bytes.NewBufferString(wrapped)); err != nil {
		return nil, fmt.Errorf("xrouter: parse plugin settings: %w", err)
	}
	ps := &PluginSettings{
		raw:           raw,
		Type:          v.GetString("plugin.type"),
		MinParamCount: v.GetInt("plugin.minparamcount"),
		MaxParamCount: v.GetInt("plugin.maxparamcount"),
		Timeout:       v.GetFloat64("plugin.timeout"),
		RPCUser:       v.GetString("plugin.rpcuser"),
		RPCPassword:   v.GetString("plugin.rpcpassword"),
		RPCIp:         v.GetString("plugin.rpcip"),
		RPCPort:       v.GetString("plugin.rpcport"),
		RPCCommand:    v.GetString("plugin.rpccommand"),
		Cmd:           v.GetString("plugin.cmd"),
	}
	if ps.RPCIp == "" {
		ps.RPCIp = "127.0.0.1"
	}
	if typesStr := v.GetString("plugin.paramstype"); typesStr != "" {
		for _, t := range strings.Split(typesStr, ",") {
			ps.ParamsType = append(ps.ParamsType, strings.TrimSpace(t))
		}
	}
	return ps, nil
}

// extractSectionText returns the body of an INI "[section]" block from
// raw (case-insensitive header match), excluding the header line itself
// and stopping at the next "[...]" header or end of text. Used so a
// plugin's GetStatus/ConfigReply text matches exactly what the operator
// wrote, rather than a value re-serialized from the parsed fields.
func extractSectionText(raw, section string) string {
	header := "[" + strings.ToLower(section) + "]"
	var buf []string
	capturing := false
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			if capturing {
				break
			}
			capturing = strings.ToLower(trimmed) == header
			continue
		}
		if capturing {
			buf = append(buf, line)
		}
	}
	return strings.TrimSpace(strings.Join(buf, "\n"))
}

// parseIntArg is a small helper shared by the dispatcher for the integer
// positional arguments several commands carry.
func parseIntArg(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadArg, err)
	}
	return n, nil
}
