package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/insightdelivered/statement-ingest/internal/config"
	"github.com/insightdelivered/statement-ingest/internal/layout"
	"github.com/insightdelivered/statement-ingest/internal/statement"
	"github.com/insightdelivered/statement-ingest/internal/storage"
	"github.com/insightdelivered/statement-ingest/internal/writer"
)

type ExtractCmd struct {
	Files         []string `arg:"" type:"existingfile" help:"PDF statements to extract."`
	StatementType string   `help:"Statement type (metro, hsbc, barclays, default); detected when omitted." short:"t"`
	Settings      string   `help:"Layout JSON file to use instead of the stored layout." type:"existingfile"`
	Output        string   `help:"Output directory (defaults to each input's directory)." type:"existingdir"`
	Concurrency   int      `help:"Number of files processed at once." default:"4"`
	NoProgress    bool     `help:"Disable progress bar." default:"false"`
	Persist       bool     `help:"Also store the extracted records in the database." default:"false"`
	Header        bool     `help:"Include metadata rows in the CSV." default:"true" negatable:""`
}

func (c *ExtractCmd) Run(cli *CLI, cfg *config.Config, logger *log.Logger) error {
	ctx := context.Background()

	if err := checkOutputs(c.Files, c.Output); err != nil {
		return err
	}

	var (
		repo *storage.Repository
		err  error
	)
	if c.Settings == "" || c.Persist {
		repo, err = storage.Open(cli.DB)
		if err != nil {
			return err
		}
		defer repo.Close()
	}

	var settings statement.SettingsStore = repo
	if c.Settings != "" {
		settings, err = loadSettingsFile(c.Settings)
		if err != nil {
			return err
		}
	}

	publisher := newPublisher(ctx, cfg, logger)
	defer publisher.Close()

	svc := statement.NewService(settings, cli.dates(), publisher, logger)
	statementType := layout.ParseStatementType(c.StatementType)
	csvWriter := &writer.CSVWriter{IncludeHeader: c.Header}

	var progress *progressbar.ProgressBar
	if !c.NoProgress {
		progress = progressbar.NewOptions(len(c.Files),
			progressbar.OptionSetDescription("Extracting statements"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	var failed atomic.Int32
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Concurrency, 1))

	for _, file := range c.Files {
		file := file
		g.Go(func() error {
			if progress != nil {
				defer progress.Add(1)
			}
			if err := c.extractOne(gCtx, file, svc, statementType, csvWriter, repo, logger); err != nil {
				failed.Add(1)
				logger.Error("Failed to extract statement", "file", file, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d files failed", n, len(c.Files))
	}
	return nil
}

func (c *ExtractCmd) extractOne(ctx context.Context, file string, svc *statement.Service, t layout.StatementType,
	csvWriter *writer.CSVWriter, repo *storage.Repository, logger *log.Logger) error {
	info, err := svc.ExtractFile(ctx, file, t)
	if err != nil {
		return err
	}

	if c.Persist {
		if _, err := repo.SaveTransactions(ctx, info.Transactions); err != nil {
			return err
		}
	}

	out := outputPath(file, c.Output)
	if err := csvWriter.WriteToFile(out, info); err != nil {
		return err
	}

	logger.Info("Wrote statement",
		"file", file,
		"output", out,
		"statement_type", info.StatementType,
		"transactions", len(info.Transactions),
		"fallbacks", info.FallbackCount())
	return nil
}

func loadSettingsFile(path string) (statement.StaticSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return statement.StaticSettings{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	s, err := layout.Decode(string(data))
	if err != nil {
		return statement.StaticSettings{}, fmt.Errorf("settings %s: %w", path, err)
	}
	if !s.Usable() {
		return statement.StaticSettings{}, errors.New("settings file has no description_indices")
	}
	return statement.StaticSettings(s), nil
}

// checkOutputs rejects input sets where two files would write the same CSV.
func checkOutputs(files []string, dir string) error {
	seen := make(map[string]string, len(files))
	for _, file := range files {
		out := outputPath(file, dir)
		if prev, ok := seen[out]; ok {
			return fmt.Errorf("%s and %s both write %s", prev, file, out)
		}
		seen[out] = file
	}
	return nil
}

// outputPath replaces the input extension with .csv, in dir when set.
func outputPath(input, dir string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".csv"
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, base)
}
