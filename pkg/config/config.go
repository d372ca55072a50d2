// Package config provides a reusable loader for the indexer engine's
// configuration files and environment variables. It is versioned so that
// applications can depend on a stable API contract.
//
// Version: v0.2.0
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"indexer-engine/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.2.0"

// Config is the process-wide configuration governing every indexer in this
// host process (spec.md §6 "Configuration").
type Config struct {
	// IndexerHandlerTimeoutSecs bounds a single handle_events invocation,
	// in seconds (spec.md §4.4, §4.7, §8 scenario 6).
	IndexerHandlerTimeoutSecs int `mapstructure:"indexer_handler_timeout" json:"indexer_handler_timeout"`

	// StopIdleIndexers enables idle-timeout termination of a pull loop
	// once it exhausts MaxEmptyBlockReqs consecutive empty pages.
	StopIdleIndexers bool `mapstructure:"stop_idle_indexers" json:"stop_idle_indexers"`

	// IndexerNetConfig controls whether a manifest's fuel_client override
	// is honored; when false, every indexer uses FuelNode regardless of
	// its manifest.
	IndexerNetConfig bool `mapstructure:"indexer_net_config" json:"indexer_net_config"`

	// FuelNode is the default node address used when a manifest carries
	// no override (or IndexerNetConfig forbids honoring one).
	FuelNode string `mapstructure:"fuel_node" json:"fuel_node"`

	// DatabaseURL is a postgres:// connection string (spec.md §6
	// "Database").
	DatabaseURL string `mapstructure:"database_url" json:"database_url"`

	// NodeGraphQLPageSize is the page_size passed to full_blocks.
	NodeGraphQLPageSize int `mapstructure:"node_graphql_page_size" json:"node_graphql_page_size"`

	// MaxEmptyBlockReqs is the idle budget honored when StopIdleIndexers
	// is set (spec.md §4.7).
	MaxEmptyBlockReqs int `mapstructure:"max_empty_block_requests" json:"max_empty_block_requests"`

	// IndexerFailedCalls is the retry budget before a task gives up
	// (spec.md §4.7, §7).
	IndexerFailedCalls int `mapstructure:"indexer_failed_calls" json:"indexer_failed_calls"`

	// DelayForServiceErrorMillis and DelayForEmptyPageMillis are the two
	// sleep durations the pull loop applies on its error/empty-page
	// branches (spec.md §4.7).
	DelayForServiceErrorMillis int `mapstructure:"delay_for_service_error_ms" json:"delay_for_service_error_ms"`
	DelayForEmptyPageMillis    int `mapstructure:"delay_for_empty_page_ms" json:"delay_for_empty_page_ms"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// HandlerTimeout returns IndexerHandlerTimeoutSecs as a time.Duration.
func (c Config) HandlerTimeout() time.Duration {
	return time.Duration(c.IndexerHandlerTimeoutSecs) * time.Second
}

// DelayForServiceError returns DelayForServiceErrorMillis as a time.Duration.
func (c Config) DelayForServiceError() time.Duration {
	return time.Duration(c.DelayForServiceErrorMillis) * time.Millisecond
}

// DelayForEmptyPage returns DelayForEmptyPageMillis as a time.Duration.
func (c Config) DelayForEmptyPage() time.Duration {
	return time.Duration(c.DelayForEmptyPageMillis) * time.Millisecond
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

func setDefaults() {
	viper.SetDefault("indexer_handler_timeout", 5)
	viper.SetDefault("stop_idle_indexers", false)
	viper.SetDefault("indexer_net_config", true)
	viper.SetDefault("fuel_node", "http://127.0.0.1:4000/graphql")
	viper.SetDefault("node_graphql_page_size", 50)
	viper.SetDefault("max_empty_block_requests", 10)
	viper.SetDefault("indexer_failed_calls", 5)
	viper.SetDefault("delay_for_service_error_ms", 2000)
	viper.SetDefault("delay_for_empty_page_ms", 1000)
	viper.SetDefault("logging.level", "info")
}

// Load reads configuration files and merges any environment-specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is
// loaded.
func Load(env string) (*Config, error) {
	setDefaults()

	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the INDEXER_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("INDEXER_ENV", ""))
}
