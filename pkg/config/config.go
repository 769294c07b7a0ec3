package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for an xrouter-network node. It
// mirrors the structure of config/default.yaml.
type Config struct {
	Node struct {
		ID             string   `mapstructure:"id" json:"id"`
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		ControlAddr    string   `mapstructure:"control_addr" json:"control_addr"`
	} `mapstructure:"node" json:"node"`

	XRouter struct {
		SettingsPath  string `mapstructure:"settings_path" json:"settings_path"`
		MaxAttempts   int    `mapstructure:"max_send_attempts" json:"max_send_attempts"`
		Confirmations int    `mapstructure:"default_confirmations" json:"default_confirmations"`
	} `mapstructure:"xrouter" json:"xrouter"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment-specific
// overrides. The resulting configuration is stored in AppConfig and
// returned. If env is empty, only the default configuration is loaded.
//
// Before the YAML is read, a .env file (if present in the working
// directory or one level up) is loaded into the process environment so
// XROUTER_* overrides can live outside the checked-in config tree; a
// missing .env is not an error.
func Load(env string) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: load config: %w", err)
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("config: merge %s config: %w", env, err)
		}
	}

	viper.SetEnvPrefix("XROUTER")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("config: unmarshal config: %w", err)
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the XROUTER_ENV environment
// variable, defaulting to the bare default config when unset.
func LoadFromEnv() (*Config, error) {
	env := os.Getenv("XROUTER_ENV")
	return Load(env)
}
