package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-ingest/internal/layout"
)

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input    string
		dir      string
		expected string
	}{
		{"statements/may.pdf", "", filepath.Join("statements", "may.csv")},
		{"may.PDF", "", "may.csv"},
		{"statements/may.pdf", "out", filepath.Join("out", "may.csv")},
		{"archive.2024.pdf", "", "archive.2024.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := outputPath(tt.input, tt.dir)
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCheckOutputs(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		dir     string
		wantErr bool
	}{
		{"distinct names", []string{"a/may.pdf", "a/june.pdf"}, "out", false},
		{"same name in place", []string{"a/may.pdf", "b/may.pdf"}, "", false},
		{"same name into one dir", []string{"a/may.pdf", "b/may.pdf"}, "out", true},
		{"same base different extension", []string{"a/may.pdf", "b/may.PDF"}, "out", true},
		{"file listed twice", []string{"a/may.pdf", "a/./may.pdf"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkOutputs(tt.files, tt.dir)
			if tt.wantErr {
				assert.ErrorContains(t, err, "may.csv")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadSettingsFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{
		"transaction_page_keywords": ["Date"],
		"transaction_lines_to_skip": [],
		"description_indices": [1],
		"amount_index": 2,
		"credit_index": 0
	}`), 0o600))

	s, err := loadSettingsFile(good)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, layout.Settings(s).DescriptionOffsets)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = loadSettingsFile(empty)
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"amount_index":`), 0o600))
	_, err = loadSettingsFile(broken)
	assert.ErrorIs(t, err, layout.ErrInvalidSettings)
}
