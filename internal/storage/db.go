package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"congreso/internal"
	"congreso/internal/dataset"
)

type DB struct {
	conn *sql.DB
}

// RunRow is one recorded pipeline run.
type RunRow struct {
	ID        int
	TraceID   string
	Command   string
	Timings   internal.RunTimings
	Counts    internal.RunCounts
	CreatedAt string
}

type TranslationRow struct {
	Entity internal.EntityType
	Raw    string
	Result internal.MatchResult
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS datasets (
  name TEXT PRIMARY KEY,
  keyColumn TEXT NOT NULL,
  columnsJson TEXT NOT NULL,
  traceId TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS master_records (
  dataset TEXT NOT NULL,
  recordKey TEXT NOT NULL,
  position INTEGER NOT NULL,
  rowJson TEXT NOT NULL,
  traceId TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(dataset, recordKey),
  FOREIGN KEY(dataset) REFERENCES datasets(name)
);
CREATE INDEX IF NOT EXISTS idx_master_records_position ON master_records(dataset, position);

CREATE TABLE IF NOT EXISTS translations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  entity TEXT NOT NULL,
  raw TEXT NOT NULL,
  label TEXT NOT NULL,
  score REAL NOT NULL,
  stage TEXT NOT NULL,
  status TEXT NOT NULL,
  side TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(traceId, entity, raw)
);
CREATE INDEX IF NOT EXISTS idx_translations_entity_status ON translations(entity, status);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  command TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// SaveMasterRecords replaces the stored records of a dataset with the rows
// of t, keyed by keyColumn. Row order is kept.
func (d *DB) SaveMasterRecords(name, keyColumn, traceID string, t *dataset.Table) error {
	keyIdx, ok := t.ColumnIndex(keyColumn)
	if !ok {
		return fmt.Errorf("key column %q not in table", keyColumn)
	}
	columnsJSON, err := json.Marshal(t.Columns)
	if err != nil {
		return err
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
INSERT INTO datasets (name, keyColumn, columnsJson, traceId) VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
  keyColumn=excluded.keyColumn,
  columnsJson=excluded.columnsJson,
  traceId=excluded.traceId,
  updatedAt=CURRENT_TIMESTAMP
`, name, keyColumn, string(columnsJSON), traceID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM master_records WHERE dataset = ?`, name); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO master_records (dataset, recordKey, position, rowJson, traceId)
VALUES (?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, row := range t.Rows {
		rowJSON, _ := json.Marshal(row)
		if _, err := stmt.Exec(name, row[keyIdx], i, string(rowJSON), traceID); err != nil {
			return fmt.Errorf("record %q: %w", row[keyIdx], err)
		}
	}

	return tx.Commit()
}

// MasterRecords loads a stored dataset. A dataset never saved yields nil.
func (d *DB) MasterRecords(name string) (*dataset.Table, error) {
	var columnsJSON string
	err := d.conn.QueryRow(`SELECT columnsJson FROM datasets WHERE name = ?`, name).Scan(&columnsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var columns []string
	if err := json.Unmarshal([]byte(columnsJSON), &columns); err != nil {
		return nil, err
	}

	rows, err := d.conn.Query(`SELECT rowJson FROM master_records WHERE dataset = ? ORDER BY position ASC`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := dataset.New(columns...)
	for rows.Next() {
		var rowJSON string
		if err := rows.Scan(&rowJSON); err != nil {
			return nil, err
		}
		var cells []string
		if err := json.Unmarshal([]byte(rowJSON), &cells); err != nil {
			return nil, err
		}
		t.Append(cells)
	}
	return t, rows.Err()
}

func (d *DB) GetMasterRecord(name, key string) (map[string]string, error) {
	t, err := d.MasterRecords(name)
	if err != nil || t == nil {
		return nil, err
	}
	var keyColumn string
	if err := d.conn.QueryRow(`SELECT keyColumn FROM datasets WHERE name = ?`, name).Scan(&keyColumn); err != nil {
		return nil, err
	}
	for i := range t.Rows {
		if t.Get(i, keyColumn) == key {
			return t.Record(i), nil
		}
	}
	return nil, nil
}

// SaveTranslations stores the translation map of one standardized column.
func (d *DB) SaveTranslations(traceID string, entity internal.EntityType, tm map[string]internal.MatchResult) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO translations (traceId, entity, raw, label, score, stage, status, side)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(traceId, entity, raw) DO UPDATE SET
  label=excluded.label,
  score=excluded.score,
  stage=excluded.stage,
  status=excluded.status,
  side=excluded.side
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for raw, res := range tm {
		if _, err := stmt.Exec(traceID, string(entity), raw, res.Label, res.Score, string(res.Stage), string(res.Status), res.Side); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListTranslations returns the stored translations of a run, optionally
// restricted to one status ("" for all).
func (d *DB) ListTranslations(traceID string, status internal.MatchStatus) ([]TranslationRow, error) {
	rows, err := d.conn.Query(`
SELECT entity, raw, label, score, stage, status, COALESCE(side, '')
FROM translations
WHERE traceId = ? AND (? = '' OR status = ?)
ORDER BY entity ASC, raw ASC
`, traceID, string(status), string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TranslationRow
	for rows.Next() {
		var row TranslationRow
		var entity, stage, st string
		if err := rows.Scan(&entity, &row.Raw, &row.Result.Label, &row.Result.Score, &stage, &st, &row.Result.Side); err != nil {
			return nil, err
		}
		row.Entity = internal.EntityType(entity)
		row.Result.Stage = internal.MatchStage(stage)
		row.Result.Status = internal.MatchStatus(st)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) InsertRun(traceID, command string, timings internal.RunTimings, counts internal.RunCounts) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, command, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, command, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) ListRuns(limit int) ([]RunRow, error) {
	rows, err := d.conn.Query(`
SELECT id, traceId, command, timingsJson, countsJson, createdAt
FROM runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var row RunRow
		var timingsJSON, countsJSON string
		if err := rows.Scan(&row.ID, &row.TraceID, &row.Command, &timingsJSON, &countsJSON, &row.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(timingsJSON), &row.Timings)
		_ = json.Unmarshal([]byte(countsJSON), &row.Counts)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
