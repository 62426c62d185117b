package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dreadwatch/dreadwatch/internal/dread"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS area_death_counts (
    area_id      TEXT PRIMARY KEY,
    death_count  REAL NOT NULL DEFAULT 0,
    last_updated INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS dread_levels (
    area_id      TEXT PRIMARY KEY,
    level        INTEGER NOT NULL DEFAULT 0,
    last_updated INTEGER NOT NULL
);
`

// Store is the SQLite-backed durable store for both death counters and dread
// levels. It implements dread.CounterStore and dread.RankStore.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time // injectable for deterministic tests
}

// Open opens (creating if necessary) the SQLite database at path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store: path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: ping sqlite db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}

	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// --- death counters ---------------------------------------------------------

// ListDeathCounts returns every area death counter, ordered by area_id.
func (s *Store) ListDeathCounts(ctx context.Context) ([]dread.AreaDeathCount, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT area_id, death_count, last_updated
		 FROM area_death_counts
		 ORDER BY area_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list death counts: %w", err)
	}
	defer rows.Close()

	var out []dread.AreaDeathCount
	for rows.Next() {
		var c dread.AreaDeathCount
		var updated int64
		if err := rows.Scan(&c.AreaID, &c.DeathCount, &updated); err != nil {
			return nil, fmt.Errorf("store: scan death count: %w", err)
		}
		c.LastUpdated = unixMillisToTime(updated)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate death counts: %w", err)
	}
	return out, nil
}

// IncrementDeathCount adds one death to the area's counter, creating the row
// on first death, and returns the new total.
func (s *Store) IncrementDeathCount(ctx context.Context, areaID string) (float64, error) {
	areaID = strings.TrimSpace(areaID)
	if areaID == "" {
		return 0, fmt.Errorf("store: area id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`INSERT INTO area_death_counts (area_id, death_count, last_updated)
		 VALUES (?, 1, ?)
		 ON CONFLICT(area_id) DO UPDATE SET
		    death_count = death_count + 1,
		    last_updated = excluded.last_updated
		 RETURNING death_count`,
		areaID, timeToUnixMillis(s.now()),
	)

	var count float64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("store: increment death count: %w", err)
	}
	return count, nil
}

// ApplyDecay rewrites the given counters and deletes the healed ones in a
// single transaction. Either everything commits or nothing does.
func (s *Store) ApplyDecay(ctx context.Context, updates []dread.CounterUpdate, deletes []string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin decay tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	updated := timeToUnixMillis(s.now())
	for _, u := range updates {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE area_death_counts SET death_count = ?, last_updated = ? WHERE area_id = ?`,
			u.DeathCount, updated, u.AreaID,
		); err != nil {
			return fmt.Errorf("store: decay update %q: %w", u.AreaID, err)
		}
	}
	for _, areaID := range deletes {
		if _, err := tx.ExecContext(
			ctx,
			`DELETE FROM area_death_counts WHERE area_id = ?`,
			areaID,
		); err != nil {
			return fmt.Errorf("store: decay delete %q: %w", areaID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit decay tx: %w", err)
	}
	return nil
}

// --- dread levels -----------------------------------------------------------

// ListDreadLevels returns every dread level row, ordered by area_id.
func (s *Store) ListDreadLevels(ctx context.Context) ([]dread.DreadLevel, error) {
	return s.listLevels(ctx, `SELECT area_id, level, last_updated
		 FROM dread_levels
		 ORDER BY area_id`)
}

// ListElevatedDreadLevels returns the areas with a non-zero level, highest
// first.
func (s *Store) ListElevatedDreadLevels(ctx context.Context) ([]dread.DreadLevel, error) {
	return s.listLevels(ctx, `SELECT area_id, level, last_updated
		 FROM dread_levels
		 WHERE level > 0
		 ORDER BY level DESC, area_id`)
}

func (s *Store) listLevels(ctx context.Context, query string) ([]dread.DreadLevel, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list dread levels: %w", err)
	}
	defer rows.Close()

	var out []dread.DreadLevel
	for rows.Next() {
		var l dread.DreadLevel
		var updated int64
		if err := rows.Scan(&l.AreaID, &l.Level, &updated); err != nil {
			return nil, fmt.Errorf("store: scan dread level: %w", err)
		}
		l.LastUpdated = unixMillisToTime(updated)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate dread levels: %w", err)
	}
	return out, nil
}

// GetDreadLevel returns the area's current level. Absent rows read as 0.
func (s *Store) GetDreadLevel(ctx context.Context, areaID string) (int, error) {
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT level FROM dread_levels WHERE area_id = ?`,
		areaID,
	)

	var level int
	if err := row.Scan(&level); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("store: get dread level: %w", err)
	}
	return level, nil
}

// ApplyRanking resets every existing level to zero and upserts the given
// assignments, all in one transaction. An empty assignment list is a pure
// reset.
func (s *Store) ApplyRanking(ctx context.Context, assignments []dread.LevelAssignment) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin ranking tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE dread_levels SET level = 0`); err != nil {
		return fmt.Errorf("store: reset dread levels: %w", err)
	}

	updated := timeToUnixMillis(s.now())
	for _, a := range assignments {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO dread_levels (area_id, level, last_updated)
			 VALUES (?, ?, ?)
			 ON CONFLICT(area_id) DO UPDATE SET
			    level = excluded.level,
			    last_updated = excluded.last_updated`,
			a.AreaID, a.Level, updated,
		); err != nil {
			return fmt.Errorf("store: assign level %d to %q: %w", a.Level, a.AreaID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit ranking tx: %w", err)
	}
	return nil
}

// --- helpers ----------------------------------------------------------------

func timeToUnixMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func unixMillisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
