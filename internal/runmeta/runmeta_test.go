package runmeta

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanyang-dev/govpulse/internal/worldbank"
)

func TestNewRunIDFormat(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 15, 9, 30, 0, 0, time.UTC)
	id := NewRunID(now)
	assert.Regexp(t, regexp.MustCompile(`^run_20240315_093000_[0-9a-f]{8}$`), id)
}

func TestNewRunIDUnique(t *testing.T) {
	t.Parallel()

	now := time.Now()
	assert.NotEqual(t, NewRunID(now), NewRunID(now))
}

func TestManifestWriteRoundTrip(t *testing.T) {
	t.Parallel()

	runsDir := filepath.Join(t.TempDir(), "runs")
	m := Manifest{
		RunID:      "run_20240315_093000_abcd1234",
		StartedAt:  "2024-03-15T09:30:00+0800",
		FinishedAt: "2024-03-15T09:35:12+0800",
		Params: map[string]any{
			"query":     "金融 五篇 大文章",
			"max_pages": 3,
		},
		Outputs: Outputs{
			GovNews:     "data/news/gov_search_run_x.jsonl",
			WorldBank:   "data/wb/worldbank_run_x.csv",
			RequestsLog: "logs/requests_run_x.csv",
		},
		Counts: Counts{
			GovItems: 10,
			WBRows:   48,
			WBErrors: []worldbank.IndicatorError{{Indicator: "BAD", Error: "http_404"}},
		},
	}

	path, err := m.Write(runsDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(runsDir, "manifest_run_20240315_093000_abcd1234.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Manifest
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, m.RunID, got.RunID)
	assert.Equal(t, m.Outputs, got.Outputs)
	assert.Equal(t, 10, got.Counts.GovItems)
	require.Len(t, got.Counts.WBErrors, 1)
	assert.Equal(t, "http_404", got.Counts.WBErrors[0].Error)
	// CJK params stay readable in the artifact.
	assert.Contains(t, string(data), "金融")
}
