package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/insightdelivered/statement-ingest/internal/layout"
	"github.com/insightdelivered/statement-ingest/internal/storage"
)

type SettingsCmd struct {
	Get  SettingsGetCmd  `cmd:"" help:"Print the layout stored for a statement type."`
	Set  SettingsSetCmd  `cmd:"" help:"Store a layout JSON file for a statement type."`
	List SettingsListCmd `cmd:"" help:"List every stored layout."`
}

type SettingsGetCmd struct {
	Type string `arg:"" help:"Statement type."`
}

type SettingsSetCmd struct {
	Type string `arg:"" help:"Statement type."`
	File string `arg:"" type:"existingfile" help:"Layout JSON file."`
}

type SettingsListCmd struct{}

func (c *SettingsGetCmd) Run(cli *CLI) error {
	repo, err := storage.Open(cli.DB)
	if err != nil {
		return err
	}
	defer repo.Close()

	s, err := repo.GetSettings(context.Background(), layout.ParseStatementType(c.Type))
	if err != nil {
		return err
	}
	return printJSON(s)
}

func (c *SettingsSetCmd) Run(cli *CLI, logger *log.Logger) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("read settings %s: %w", c.File, err)
	}
	s, err := layout.Decode(string(data))
	if err != nil {
		return err
	}

	repo, err := storage.Open(cli.DB)
	if err != nil {
		return err
	}
	defer repo.Close()

	t := layout.ParseStatementType(c.Type)
	if err := repo.PutSettings(context.Background(), t, s); err != nil {
		return err
	}
	logger.Info("Stored statement settings", "statement_type", t, "usable", s.Usable())
	return nil
}

func (c *SettingsListCmd) Run(cli *CLI) error {
	repo, err := storage.Open(cli.DB)
	if err != nil {
		return err
	}
	defer repo.Close()

	all, err := repo.ListSettings(context.Background())
	if err != nil {
		return err
	}
	if all == nil {
		all = []storage.StoredSettings{}
	}
	return printJSON(all)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
