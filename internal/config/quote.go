package config

import (
	"time"

	"github.com/spf13/pflag"
)

// QuoteConfig holds configuration for the quote command.
type QuoteConfig struct {
	Snapshot     string
	Op           string
	From         int
	To           int
	Amount       string
	Amounts      []string
	Out          string
	PGDSN        string
	Verify       bool
	RPCURL       string
	Pool         string
	Strict       bool
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"snapshot":      "./data/snapshot.json",
		"op":            "swap",
		"to":            1,
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"log-level":     "info",
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	cfg := QuoteConfig{
		Snapshot:     v.GetString("snapshot"),
		Op:           v.GetString("op"),
		From:         v.GetInt("from"),
		To:           v.GetInt("to"),
		Amount:       v.GetString("amount"),
		Amounts:      getStringSlice(v, "amounts"),
		Out:          v.GetString("out"),
		PGDSN:        v.GetString("pg-dsn"),
		Verify:       v.GetBool("verify"),
		RPCURL:       v.GetString("rpc"),
		Pool:         v.GetString("pool"),
		Strict:       v.GetBool("strict"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}

	return cfg, nil
}
