package universe

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"
)

// DefaultCacheDays is how long a cached symbol list stays fresh.
const DefaultCacheDays = 7

// fallbackSymbols is used when neither the cache nor the symbols file can
// provide a universe.
var fallbackSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA"}

// Provider supplies the scan universe: a newline-delimited symbols file,
// cached in the shared SQLite database with a freshness window so the file is
// only re-read occasionally.
type Provider struct {
	db        *sql.DB
	filePath  string
	CacheDays int
}

// NewProvider creates a Provider on the shared cache database.
func NewProvider(db *sql.DB, filePath string) *Provider {
	return &Provider{db: db, filePath: filePath, CacheDays: DefaultCacheDays}
}

// Symbols returns the deduplicated, sorted symbol universe. Cache first, then
// the symbols file, then the hardcoded fallback list (which is not cached, so
// a later run retries the file).
func (p *Provider) Symbols(ctx context.Context) ([]string, error) {
	cached, err := p.loadCached(ctx)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		log.Printf("[INFO] loaded %d universe symbols from cache", len(cached))
		return cached, nil
	}

	symbols, err := p.readFile()
	if err != nil || len(symbols) == 0 {
		log.Printf("[WARN] universe file unavailable (%v), using fallback list", err)
		return append([]string{}, fallbackSymbols...), nil
	}
	if err := p.saveCached(ctx, symbols); err != nil {
		log.Printf("[WARN] cache universe symbols: %v", err)
	}
	log.Printf("[INFO] loaded %d universe symbols from %s", len(symbols), p.filePath)
	return symbols, nil
}

func (p *Provider) loadCached(ctx context.Context) ([]string, error) {
	cutoff := time.Now().AddDate(0, 0, -p.CacheDays).Unix()
	rows, err := p.db.QueryContext(ctx,
		"SELECT symbol FROM universe_symbols WHERE last_updated > ? ORDER BY symbol", cutoff)
	if err != nil {
		return nil, fmt.Errorf("query universe cache: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan universe symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

func (p *Provider) saveCached(ctx context.Context, symbols []string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM universe_symbols"); err != nil {
		return err
	}
	now := time.Now().Unix()
	for _, s := range symbols {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO universe_symbols (symbol, last_updated) VALUES (?, ?)", s, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Provider) readFile() ([]string, error) {
	f, err := os.Open(p.filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]bool)
	var symbols []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.ToUpper(strings.TrimSpace(sc.Text()))
		if s == "" || strings.HasPrefix(s, "#") || seen[s] {
			continue
		}
		seen[s] = true
		symbols = append(symbols, s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.Strings(symbols)
	return symbols, nil
}
