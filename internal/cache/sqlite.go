package cache

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"BandScanner/internal/model"
)

const dateLayout = "2006-01-02"

// PriceCache is the durable store of per-symbol daily and weekly bars plus
// precomputed moving averages and freshness metadata, backed by SQLite.
//
// Writes for a given symbol are single-owner per scan run, so no locking
// beyond SQLite's own transaction handling is needed.
type PriceCache struct {
	db *sql.DB
}

// Open opens (or creates) the cache database and runs migrations.
// Pass ":memory:" for an ephemeral cache in tests.
func Open(dbPath string) (*PriceCache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single connection: SQLite serializes writes anyway and the in-memory
	// database only exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	c := &PriceCache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] price cache opened: %s", dbPath)
	return c, nil
}

func (c *PriceCache) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS daily_prices (
			symbol       TEXT NOT NULL,
			date         TEXT NOT NULL,
			open         REAL NOT NULL,
			high         REAL NOT NULL,
			low          REAL NOT NULL,
			close        REAL NOT NULL,
			volume       REAL NOT NULL,
			sma200       REAL,
			ema200       REAL,
			last_updated INTEGER NOT NULL,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_symbol_date ON daily_prices(symbol, date DESC)`,

		`CREATE TABLE IF NOT EXISTS weekly_prices (
			symbol          TEXT NOT NULL,
			week_start_date TEXT NOT NULL,
			open            REAL NOT NULL,
			high            REAL NOT NULL,
			low             REAL NOT NULL,
			close           REAL NOT NULL,
			volume          REAL NOT NULL,
			sma200          REAL,
			last_updated    INTEGER NOT NULL,
			PRIMARY KEY (symbol, week_start_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_weekly_symbol_date ON weekly_prices(symbol, week_start_date DESC)`,

		`CREATE TABLE IF NOT EXISTS data_metadata (
			symbol       TEXT PRIMARY KEY,
			first_date   TEXT,
			last_date    TEXT,
			last_updated INTEGER,
			daily_count  INTEGER,
			weekly_count INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metadata_last_date ON data_metadata(last_date)`,

		`CREATE TABLE IF NOT EXISTS universe_symbols (
			symbol       TEXT PRIMARY KEY,
			last_updated INTEGER NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := c.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func tableFor(freq model.Frequency) (table, dateCol string, withEMA bool) {
	if freq == model.FreqWeekly {
		return "weekly_prices", "week_start_date", false
	}
	return "daily_prices", "date", true
}

// Upsert writes bars for one symbol, replacing any existing row with the same
// (symbol, date) key, and recomputes the symbol's metadata in the same
// transaction so bars and metadata never diverge. Returns the number of bars
// written.
func (c *PriceCache) Upsert(ctx context.Context, symbol string, freq model.Frequency, bars []model.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	table, dateCol, withEMA := tableFor(freq)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var stmt *sql.Stmt
	if withEMA {
		stmt, err = tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s
			(symbol, %s, open, high, low, close, volume, sma200, ema200, last_updated)
			VALUES (?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(symbol, %s) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume,
			sma200=excluded.sma200, ema200=excluded.ema200,
			last_updated=excluded.last_updated`, table, dateCol, dateCol))
	} else {
		stmt, err = tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s
			(symbol, %s, open, high, low, close, volume, sma200, last_updated)
			VALUES (?,?,?,?,?,?,?,?,?)
			ON CONFLICT(symbol, %s) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume,
			sma200=excluded.sma200,
			last_updated=excluded.last_updated`, table, dateCol, dateCol))
	}
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	written := 0
	for _, b := range bars {
		var execErr error
		if withEMA {
			_, execErr = stmt.ExecContext(ctx, symbol, b.DateKey(),
				b.Open, b.High, b.Low, b.Close, b.Volume,
				nullable(b.SMA200), nullable(b.EMA200), now)
		} else {
			_, execErr = stmt.ExecContext(ctx, symbol, b.DateKey(),
				b.Open, b.High, b.Low, b.Close, b.Volume,
				nullable(b.SMA200), now)
		}
		if execErr != nil {
			return 0, fmt.Errorf("upsert bar %s/%s: %w", symbol, b.DateKey(), execErr)
		}
		written++
	}

	if err := rebuildMetadataTx(ctx, tx, symbol); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return written, nil
}

// GetRange returns the symbol's bars ordered by date ascending. Zero from/to
// values leave that side of the window unbounded.
func (c *PriceCache) GetRange(ctx context.Context, symbol string, freq model.Frequency, from, to time.Time) ([]model.Bar, error) {
	table, dateCol, withEMA := tableFor(freq)

	cols := "open, high, low, close, volume, sma200"
	if withEMA {
		cols += ", ema200"
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE symbol = ?", dateCol, cols, table)
	args := []any{symbol}
	if !from.IsZero() {
		query += fmt.Sprintf(" AND %s >= ?", dateCol)
		args = append(args, from.Format(dateLayout))
	}
	if !to.IsZero() {
		query += fmt.Sprintf(" AND %s <= ?", dateCol)
		args = append(args, to.Format(dateLayout))
	}
	query += fmt.Sprintf(" ORDER BY %s ASC", dateCol)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s for %s: %w", table, symbol, err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var (
			dateStr  string
			b        model.Bar
			sma, ema sql.NullFloat64
		)
		if withEMA {
			err = rows.Scan(&dateStr, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &sma, &ema)
		} else {
			err = rows.Scan(&dateStr, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &sma)
		}
		if err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Symbol = symbol
		b.Date, err = time.ParseInLocation(dateLayout, dateStr, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", dateStr, err)
		}
		if sma.Valid {
			b.SMA200 = &sma.Float64
		}
		if ema.Valid {
			b.EMA200 = &ema.Float64
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// GetMetadata returns the symbol's freshness metadata, or nil if the symbol
// has never been ingested.
func (c *PriceCache) GetMetadata(ctx context.Context, symbol string) (*model.SymbolMetadata, error) {
	row := c.db.QueryRowContext(ctx, `SELECT first_date, last_date, last_updated, daily_count, weekly_count
		FROM data_metadata WHERE symbol = ?`, symbol)

	var (
		first, last sql.NullString
		updated     sql.NullInt64
		md          = model.SymbolMetadata{Symbol: symbol}
	)
	err := row.Scan(&first, &last, &updated, &md.DailyCount, &md.WeeklyCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query metadata for %s: %w", symbol, err)
	}
	if first.Valid {
		md.FirstDate, _ = time.ParseInLocation(dateLayout, first.String, time.UTC)
	}
	if last.Valid {
		md.LastDate, _ = time.ParseInLocation(dateLayout, last.String, time.UTC)
	}
	if updated.Valid {
		md.LastUpdated = time.Unix(updated.Int64, 0)
	}
	return &md, nil
}

// RebuildMetadata recomputes a symbol's metadata row from the bar tables.
// Used when bars and metadata are found to have diverged.
func (c *PriceCache) RebuildMetadata(ctx context.Context, symbol string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := rebuildMetadataTx(ctx, tx, symbol); err != nil {
		return err
	}
	return tx.Commit()
}

func rebuildMetadataTx(ctx context.Context, tx *sql.Tx, symbol string) error {
	var (
		dailyCount  int
		first, last sql.NullString
	)
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(date), MAX(date) FROM daily_prices WHERE symbol = ?", symbol).
		Scan(&dailyCount, &first, &last)
	if err != nil {
		return fmt.Errorf("daily stats for %s: %w", symbol, err)
	}

	var weeklyCount int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM weekly_prices WHERE symbol = ?", symbol).
		Scan(&weeklyCount)
	if err != nil {
		return fmt.Errorf("weekly stats for %s: %w", symbol, err)
	}

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO data_metadata
		(symbol, first_date, last_date, last_updated, daily_count, weekly_count)
		VALUES (?,?,?,?,?,?)`,
		symbol, first, last, time.Now().Unix(), dailyCount, weeklyCount)
	if err != nil {
		return fmt.Errorf("update metadata for %s: %w", symbol, err)
	}
	return nil
}

// DB exposes the underlying handle for stores sharing the cache database,
// such as the universe symbol list.
func (c *PriceCache) DB() *sql.DB { return c.db }

// Close closes the underlying database.
func (c *PriceCache) Close() error {
	log.Println("[INFO] closing price cache")
	return c.db.Close()
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
