package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/insightdelivered/statement-ingest/internal/config"
	"github.com/insightdelivered/statement-ingest/internal/events"
	"github.com/insightdelivered/statement-ingest/internal/parser"
)

const version = "2.0.0"

type CLI struct {
	LogLevel      string           `help:"Log level (debug, info, warn, error)" default:"${log_level}"`
	DB            string           `help:"SQLite database path" default:"${db_path}" name:"db"`
	ReferenceYear int              `help:"Year assumed for dates printed without one" default:"${reference_year}"`
	Version       kong.VersionFlag `help:"Print version and exit"`

	Extract  ExtractCmd  `cmd:"" help:"Extract transactions from PDF statements into CSV files."`
	Serve    ServeCmd    `cmd:"" help:"Run the HTTP API."`
	Settings SettingsCmd `cmd:"" help:"Inspect or change stored statement layouts."`
}

// resolve lays the global flags over the environment config and validates
// the result. Parsing never validates, so --help and --version always work.
func (c *CLI) resolve(cfg *config.Config) error {
	cfg.LogLevel = c.LogLevel
	cfg.SQLiteDBPath = c.DB
	cfg.DateReferenceYear = c.ReferenceYear
	if c.Serve.Port != "" {
		cfg.Port = c.Serve.Port
	}
	return cfg.Validate()
}

func (c *CLI) dates() parser.DateNormalizer {
	return parser.NewDateNormalizer(c.ReferenceYear)
}

// newPublisher connects to the broker when one is configured. A broker that
// cannot be reached disables publishing rather than failing the command.
func newPublisher(ctx context.Context, cfg *config.Config, logger *log.Logger) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.NoopPublisher{}
	}

	pub, err := events.NewAMQPPublisher(ctx, events.AMQPConfig{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		Queue:    cfg.AMQPQueue,
	}, logger)
	if err != nil {
		logger.Warn("AMQP unavailable, extraction events disabled", "error", err)
		return events.NoopPublisher{}
	}
	return pub
}

func newParser(cli *CLI, cfg *config.Config, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("statement-ingest"),
		kong.Description("Extract transactions from bank statement PDFs using per-statement-type layouts."),
		kong.UsageOnError(),
		kong.Vars{
			"version":        version,
			"log_level":      cfg.LogLevel,
			"db_path":        cfg.SQLiteDBPath,
			"reference_year": strconv.Itoa(cfg.DateReferenceYear),
			"port":           cfg.Port,
		},
	}, options...)
	return kong.New(cli, options...)
}

func main() {
	cfg := config.Load()

	var cli CLI
	k, err := newParser(&cli, cfg)
	if err != nil {
		panic(err)
	}
	ctx, err := k.Parse(os.Args[1:])
	k.FatalIfErrorf(err)

	if err := cli.resolve(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := ctx.Run(&cli, cfg, cfg.Logger()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
