package main

import (
	"github.com/spf13/cobra"

	"go.bryk.io/hive/cli"
	"go.bryk.io/hive/cli/konf"
)

// config holds every broker startup setting. Values are sourced, in
// increasing precedence order, from: built-in defaults, a configuration
// file (config.yaml, looked up via konf.DefaultLocations), HIVE_-prefixed
// environment variables, and command-line flags.
type config struct {
	ListenAddr     string `yaml:"listen_addr"`
	MetaDBPath     string `yaml:"meta_db_path"`
	QueueBasedir   string `yaml:"queue_basedir"`
	MaxConnections int    `yaml:"max_connections"`
	Workers        int    `yaml:"workers"`
	QueueDepth     int    `yaml:"queue_depth"`
	MetricsAddr    string `yaml:"metrics_addr"`
	LogJSON        bool   `yaml:"log_json"`
}

// params lists the broker's command-line flags; FlagKey matches the
// `broker.<field>` namespace config.Unmarshal reads from.
var params = []cli.Param{
	{Name: "listen", FlagKey: "broker.listen_addr", ByDefault: "0.0.0.0:5671", Usage: "TCP address the broker accepts connections on"},
	{Name: "meta-db", FlagKey: "broker.meta_db_path", ByDefault: "./data/meta.db", Usage: "path to the metadata store database file"},
	{Name: "queue-basedir", FlagKey: "broker.queue_basedir", ByDefault: "./data/queues", Usage: "base directory for durable queue message logs"},
	{Name: "max-connections", FlagKey: "broker.max_connections", ByDefault: 1024, Usage: "maximum number of simultaneously accepted connections"},
	{Name: "workers", FlagKey: "broker.workers", ByDefault: 8, Usage: "number of delivery-task worker goroutines"},
	{Name: "queue-depth", FlagKey: "broker.queue_depth", ByDefault: 256, Usage: "depth of the delivery-task worker queue"},
	{Name: "metrics", FlagKey: "broker.metrics_addr", ByDefault: "127.0.0.1:9471", Usage: "address the Prometheus metrics endpoint listens on"},
	{Name: "log-json", FlagKey: "broker.log_json", ByDefault: false, Usage: "emit structured logs as JSON instead of console output"},
}

func loadConfig(cmd *cobra.Command) (config, error) {
	cfg := config{}
	if err := readFlags(cmd, &cfg); err != nil {
		return cfg, err
	}

	// Layer a config file plus HIVE_-prefixed ENV overrides on top of the
	// flag-derived defaults, when a file is actually found; konf.Setup fails
	// outright when none of DefaultLocations resolves, which is the common
	// case for a fresh install running on flags/defaults alone.
	locations := konf.DefaultLocations("hive-broker", "config.yaml")
	k, err := konf.Setup(
		konf.WithFileLocations(locations),
		konf.WithEnv("hive"),
		konf.WithPflags(cmd.Flags()),
	)
	if err != nil {
		return cfg, nil
	}
	if err := k.Unmarshal("broker", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func readFlags(cmd *cobra.Command, cfg *config) error {
	var err error
	get := func(fn func() error) {
		if err == nil {
			err = fn()
		}
	}
	get(func() (e error) { cfg.ListenAddr, e = cmd.Flags().GetString("listen"); return })
	get(func() (e error) { cfg.MetaDBPath, e = cmd.Flags().GetString("meta-db"); return })
	get(func() (e error) { cfg.QueueBasedir, e = cmd.Flags().GetString("queue-basedir"); return })
	get(func() (e error) { cfg.MaxConnections, e = cmd.Flags().GetInt("max-connections"); return })
	get(func() (e error) { cfg.Workers, e = cmd.Flags().GetInt("workers"); return })
	get(func() (e error) { cfg.QueueDepth, e = cmd.Flags().GetInt("queue-depth"); return })
	get(func() (e error) { cfg.MetricsAddr, e = cmd.Flags().GetString("metrics"); return })
	get(func() (e error) { cfg.LogJSON, e = cmd.Flags().GetBool("log-json"); return })
	return err
}
