package config

import (
	"github.com/spf13/pflag"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Snapshot  string
	In        string
	Out       string
	Final     string
	StateFile string
	PGDSN     string
	Name      string
	BatchSize int
	Strict    bool
	LogLevel  string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"snapshot":   "./data/snapshot.json",
		"out":        "./data/results.jsonl",
		"name":       "default",
		"batch-size": 500,
		"log-level":  "info",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		Snapshot:  v.GetString("snapshot"),
		In:        v.GetString("in"),
		Out:       v.GetString("out"),
		Final:     v.GetString("final-snapshot"),
		StateFile: v.GetString("state-file"),
		PGDSN:     v.GetString("pg-dsn"),
		Name:      v.GetString("name"),
		BatchSize: v.GetInt("batch-size"),
		Strict:    v.GetBool("strict"),
		LogLevel:  v.GetString("log-level"),
	}

	return cfg, nil
}
