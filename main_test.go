package main

import (
	"bytes"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-ingest/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:              "8080",
		MaxUploadBytes:    1 << 20,
		SQLiteDBPath:      "statements.db",
		DateReferenceYear: 2025,
		LogLevel:          "info",
		AMQPExchange:      "statements",
		AMQPQueue:         "statement_extracted",
	}
}

func TestParseIgnoresInvalidEnvironment(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = "loud"
	cfg.Port = "http"

	var cli CLI
	k, err := newParser(&cli, cfg)
	require.NoError(t, err)

	_, err = k.Parse([]string{"settings", "list"})
	require.NoError(t, err)
	assert.Equal(t, "loud", cli.LogLevel)

	err = cli.resolve(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level 'loud'")
	assert.Contains(t, err.Error(), "invalid port 'http'")
}

func TestVersionWithInvalidEnvironment(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = "loud"

	var (
		cli      CLI
		out      bytes.Buffer
		exitCode = -1
	)
	k, err := newParser(&cli, cfg,
		kong.Writers(&out, &out),
		kong.Exit(func(code int) { exitCode = code }),
	)
	require.NoError(t, err)

	_, _ = k.Parse([]string{"--version"})
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, out.String(), version)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = "loud"

	var cli CLI
	k, err := newParser(&cli, cfg)
	require.NoError(t, err)

	_, err = k.Parse([]string{"--log-level", "debug", "--db", "other.db", "--reference-year", "2024", "serve", "--port", "9090"})
	require.NoError(t, err)
	require.NoError(t, cli.resolve(cfg))

	assert.Equal(t, "other.db", cfg.SQLiteDBPath)
	assert.Equal(t, 2024, cfg.DateReferenceYear)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, log.DebugLevel, cfg.Logger().GetLevel())
	assert.Equal(t, 2024, cli.dates().ReferenceYear)
}
