// Package runmeta owns run identity and the run manifest, the sole durable
// index for discovering a run's artifacts downstream.
package runmeta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fanyang-dev/govpulse/internal/worldbank"
)

// NewRunID returns a token grouping all artifacts of one invocation. The
// timestamp keeps artifacts sortable on disk; the uuid suffix keeps two
// runs started in the same second distinct.
func NewRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("run_%s_%s", now.Format("20060102_150405"), suffix)
}

// Outputs lists the artifact paths produced by a run.
type Outputs struct {
	GovNews     string `json:"gov_news"`
	WorldBank   string `json:"worldbank"`
	RequestsLog string `json:"requests_log"`
}

// Counts summarizes what the run wrote. WBErrors carries the per-indicator
// error entries themselves, matching what consumers expect to find there.
type Counts struct {
	GovItems int                        `json:"gov_items"`
	WBRows   int                        `json:"wb_rows"`
	WBErrors []worldbank.IndicatorError `json:"wb_errors"`
}

// Manifest is the single durable record describing one run.
type Manifest struct {
	RunID      string         `json:"run_id"`
	StartedAt  string         `json:"started_at"`
	FinishedAt string         `json:"finished_at"`
	Params     map[string]any `json:"params"`
	Outputs    Outputs        `json:"outputs"`
	Counts     Counts         `json:"counts"`
}

// Write persists the manifest as runsDir/manifest_<run_id>.json and returns
// the path. Manifest write failure is the one run-fatal persistence error.
func (m Manifest) Write(runsDir string) (string, error) {
	if err := os.MkdirAll(runsDir, 0o750); err != nil {
		return "", fmt.Errorf("create runs dir %s: %w", runsDir, err)
	}
	path := filepath.Join(runsDir, fmt.Sprintf("manifest_%s.json", m.RunID))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create manifest %s: %w", path, err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close manifest: %w", err)
	}
	return path, nil
}
