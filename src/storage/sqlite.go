package storage

import (
	"database/sql"
	"fmt"
	"market-sentinel/src/helpers"
	"market-sentinel/src/logger"
	"market-sentinel/src/models"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// TimestampLayout is fixed width so that lexical order on the ts column
// equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

const tickColumns = "symbol, ts, price, volume, open, high, low, vwap"

// -----------------------------------------------------------------------------

// SQLiteTickStore is the append-only tick store. Writes are serialized by
// writeMu; reads go through the connection pool and see the last committed
// state (WAL mode). mu guards the db handle itself. Lock order is writeMu
// before mu.
type SQLiteTickStore struct {
	Path    string
	Logger  *logger.Logger
	db      *sql.DB
	mu      sync.RWMutex
	writeMu sync.Mutex
}

// -----------------------------------------------------------------------------

func NewSQLiteTickStore(path string, log *logger.Logger) *SQLiteTickStore {
	if log == nil {
		log = logger.NewLogger("TickStore")
	}
	return &SQLiteTickStore{
		Path:   path,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

func (d *SQLiteTickStore) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		if dir := filepath.Dir(d.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return helpers.NewStorageError(err, "failed to create data directory %s", dir)
			}
		}

		// busy_timeout is per connection, so it goes in the DSN for the whole pool
		dsn := d.Path + "?_pragma=busy_timeout(5000)"

		// Open DB
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return helpers.NewStorageError(err, "failed to open %s", d.Path)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return helpers.NewStorageError(err, "failed to ping %s", d.Path)
		}
		d.db = db

		// PRAGMA optimizations
		if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
			d.Logger.Warning("Failed to set WAL mode: %v", err)
		}
		if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
			d.Logger.Warning("Failed to set synchronous mode: %v", err)
		}
	}

	if err := createTables(d.db); err != nil {
		return err
	}

	d.Logger.Info("TickStore ready at %s", d.Path)
	return nil
}

// -----------------------------------------------------------------------------

func createTables(db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS ticks (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol  TEXT    NOT NULL,
			ts      TEXT    NOT NULL,
			price   REAL    NOT NULL,
			volume  INTEGER NOT NULL,
			open    REAL,
			high    REAL,
			low     REAL,
			vwap    REAL
		);
	`
	if _, err := db.Exec(query); err != nil {
		return helpers.NewStorageError(err, "failed to create ticks")
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_symbol_ts ON ticks(symbol, ts)"); err != nil {
		return helpers.NewStorageError(err, "failed to create idx_symbol_ts")
	}
	return nil
}

// -----------------------------------------------------------------------------

// handle returns the open pool. A reader that loses a race with Close gets
// "sql: database is closed" from the pool rather than a nil handle.
func (d *SQLiteTickStore) handle() (*sql.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil, helpers.NewStorageError(nil, "store is not initialized or closed")
	}
	return d.db, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteTickStore) Insert(tick models.MTick) error {
	if tick.Symbol == "" {
		return helpers.NewStorageError(nil, "tick has no symbol")
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	// Close waits on writeMu, so db stays open for the whole transaction
	db, err := d.handle()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return helpers.NewStorageError(err, "begin insert %s", tick.Symbol)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO ticks ("+tickColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		tick.Symbol,
		FormatTimestamp(tick.Timestamp),
		tick.Price,
		tick.Volume,
		nullable(tick.Open),
		nullable(tick.High),
		nullable(tick.Low),
		nullable(tick.VWAP),
	)
	if err != nil {
		return helpers.NewStorageError(err, "insert %s", tick.Symbol)
	}

	if err := tx.Commit(); err != nil {
		return helpers.NewStorageError(err, "commit %s", tick.Symbol)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteTickStore) GetRecent(symbol string, n int) ([]models.MTick, error) {
	if n <= 0 {
		return []models.MTick{}, nil
	}
	db, err := d.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(
		"SELECT "+tickColumns+" FROM ticks WHERE symbol = ? ORDER BY ts DESC, id DESC LIMIT ?",
		symbol, n,
	)
	if err != nil {
		return nil, helpers.NewStorageError(err, "query recent %s", symbol)
	}
	ticks, err := scanTicks(rows)
	if err != nil {
		return nil, err
	}

	// Newest first from SQL, callers want oldest first
	for i, j := 0, len(ticks)-1; i < j; i, j = i+1, j-1 {
		ticks[i], ticks[j] = ticks[j], ticks[i]
	}
	return ticks, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteTickStore) GetRange(symbol string, start, end time.Time) ([]models.MTick, error) {
	db, err := d.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(
		"SELECT "+tickColumns+" FROM ticks WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC, id ASC",
		symbol, FormatTimestamp(start), FormatTimestamp(end),
	)
	if err != nil {
		return nil, helpers.NewStorageError(err, "query range %s", symbol)
	}
	return scanTicks(rows)
}

// -----------------------------------------------------------------------------

func (d *SQLiteTickStore) GetSymbols() ([]string, error) {
	db, err := d.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query("SELECT DISTINCT symbol FROM ticks ORDER BY symbol")
	if err != nil {
		return nil, helpers.NewStorageError(err, "query symbols")
	}
	defer rows.Close()

	symbols := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, helpers.NewStorageError(err, "scan symbol")
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewStorageError(err, "iterate symbols")
	}
	return symbols, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteTickStore) Close() error {
	// Let an in-flight insert finish first
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// -----------------------------------------------------------------------------
// Row helpers
// -----------------------------------------------------------------------------

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func parseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(TimestampLayout, raw); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", raw, err)
	}
	return ts.UTC(), nil
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func scanTicks(rows *sql.Rows) ([]models.MTick, error) {
	defer rows.Close()

	ticks := []models.MTick{}
	for rows.Next() {
		var (
			t                     models.MTick
			ts                    string
			open, high, low, vwap sql.NullFloat64
		)
		if err := rows.Scan(&t.Symbol, &ts, &t.Price, &t.Volume, &open, &high, &low, &vwap); err != nil {
			return nil, helpers.NewStorageError(err, "scan tick")
		}
		parsed, err := parseTimestamp(ts)
		if err != nil {
			return nil, helpers.NewStorageError(err, "decode tick timestamp")
		}
		t.Timestamp = parsed
		t.Open = fromNull(open)
		t.High = fromNull(high)
		t.Low = fromNull(low)
		t.VWAP = fromNull(vwap)
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewStorageError(err, "iterate ticks")
	}
	return ticks, nil
}
