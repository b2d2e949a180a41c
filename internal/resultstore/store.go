package resultstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"BandScanner/internal/model"
)

// ErrNotFound indicates no analysis result exists for the symbol.
var ErrNotFound = errors.New("no analysis result")

// Store persists per-symbol analysis documents and daily summaries as JSON
// files. Every write goes through a temp file and an atomic rename, so a
// reader can never observe a half-written document.
type Store struct {
	symbolsDir string
	dailyDir   string
}

// Open creates the store layout under baseDir.
func Open(baseDir string) (*Store, error) {
	s := &Store{
		symbolsDir: filepath.Join(baseDir, "symbols"),
		dailyDir:   filepath.Join(baseDir, "daily"),
	}
	for _, dir := range []string{s.symbolsDir, s.dailyDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

// SaveResult writes a symbol's analysis document, replacing the previous one.
func (s *Store) SaveResult(res *model.ScanResult) error {
	return writeJSON(filepath.Join(s.symbolsDir, res.Symbol+".json"), res)
}

// LoadResult reads a symbol's analysis document. Returns ErrNotFound when the
// symbol has never been analyzed; a corrupt document is treated the same, so
// the next scan rebuilds it from scratch.
func (s *Store) LoadResult(symbol string) (*model.ScanResult, error) {
	data, err := os.ReadFile(filepath.Join(s.symbolsDir, symbol+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", symbol, ErrNotFound)
		}
		return nil, fmt.Errorf("read result for %s: %w", symbol, err)
	}
	var res model.ScanResult
	if err := json.Unmarshal(data, &res); err != nil {
		log.Printf("[WARN] corrupt result document for %s, rebuilding: %v", symbol, err)
		return nil, fmt.Errorf("%s: %w", symbol, ErrNotFound)
	}
	return &res, nil
}

// SaveSummary writes the dated summary document for a scan run.
func (s *Store) SaveSummary(sum *model.DailySummary) error {
	return writeJSON(filepath.Join(s.dailyDir, sum.ScanDate+".json"), sum)
}

// PublishLatest atomically repoints the "latest" alias at the given summary.
// Callers must only publish after the dated summary write has succeeded.
func (s *Store) PublishLatest(sum *model.DailySummary) error {
	return writeJSON(filepath.Join(s.dailyDir, "latest.json"), sum)
}

// LoadLatest reads the most recently published summary.
// Returns ErrNotFound when no run has ever been published.
func (s *Store) LoadLatest() (*model.DailySummary, error) {
	data, err := os.ReadFile(filepath.Join(s.dailyDir, "latest.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read latest summary: %w", err)
	}
	var sum model.DailySummary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, fmt.Errorf("decode latest summary: %w", err)
	}
	return &sum, nil
}

// writeJSON marshals v and swaps it into place with a rename, which is atomic
// on the same filesystem.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
