package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
)

// DB is the local processing ledger. It never holds the target table's rows;
// those only exist as generated SQL.
type DB struct {
	conn *sql.DB
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
CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL UNIQUE,
  startedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  finishedAt TEXT,
  consolidatedPath TEXT,
  countsJson TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS documents (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL,
  emailId INTEGER,
  sourcePath TEXT NOT NULL,
  source TEXT NOT NULL,
  status TEXT NOT NULL,
  guideNumber TEXT,
  registrationId TEXT,
  principalValue TEXT,
  totalValue TEXT,
  usedTotalAsPrincipal INTEGER NOT NULL DEFAULT 0,
  reason TEXT,
  artifactPath TEXT,
  fieldsJson TEXT NOT NULL DEFAULT '{}',
  traceJson TEXT NOT NULL DEFAULT '{}',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(runId) REFERENCES runs(traceId),
  FOREIGN KEY(emailId) REFERENCES emails(id)
);
CREATE INDEX IF NOT EXISTS idx_documents_run ON documents(runId);
CREATE INDEX IF NOT EXISTS idx_documents_guide ON documents(guideNumber);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) StartRun(traceID string) error {
	_, err := d.conn.Exec(`INSERT INTO runs (traceId) VALUES (?)`, traceID)
	return err
}

func (d *DB) FinishRun(traceID string, counts map[string]int, consolidatedPath *string) error {
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`
UPDATE runs SET finishedAt = CURRENT_TIMESTAMP, countsJson = ?, consolidatedPath = ?
WHERE traceId = ?
`, string(countsJSON), consolidatedPath, traceID)
	return err
}

func (d *DB) GetRun(traceID string) (*internal.RunRow, error) {
	var row internal.RunRow
	err := d.conn.QueryRow(`
SELECT id, traceId, startedAt, finishedAt, consolidatedPath, countsJson
FROM runs WHERE traceId = ?
`, traceID).Scan(&row.ID, &row.TraceID, &row.StartedAt, &row.FinishedAt, &row.ConsolidatedPath, &row.CountsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// LatestRun returns the most recent run, or nil on an empty ledger.
func (d *DB) LatestRun() (*internal.RunRow, error) {
	var row internal.RunRow
	err := d.conn.QueryRow(`
SELECT id, traceId, startedAt, finishedAt, consolidatedPath, countsJson
FROM runs ORDER BY id DESC LIMIT 1
`).Scan(&row.ID, &row.TraceID, &row.StartedAt, &row.FinishedAt, &row.ConsolidatedPath, &row.CountsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) InsertDocument(row internal.DocumentRow) (int64, error) {
	if row.FieldsJSON == "" {
		row.FieldsJSON = "{}"
	}
	if row.TraceJSON == "" {
		row.TraceJSON = "{}"
	}
	result, err := d.conn.Exec(`
INSERT INTO documents (
  runId, emailId, sourcePath, source, status, guideNumber, registrationId,
  principalValue, totalValue, usedTotalAsPrincipal, reason, artifactPath, fieldsJson, traceJson
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, row.RunID, row.EmailID, row.SourcePath, row.Source, row.Status, row.GuideNumber, row.RegistrationID,
		row.PrincipalValue, row.TotalValue, row.UsedTotalAsPrincipal, row.Reason, row.ArtifactPath, row.FieldsJSON, row.TraceJSON)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// UpdateDocumentStatus is used when a document is rolled back after its row was written.
func (d *DB) UpdateDocumentStatus(id int64, status string, reason string) error {
	_, err := d.conn.Exec(`UPDATE documents SET status = ?, reason = ? WHERE id = ?`, status, reason, id)
	return err
}

func (d *DB) ListDocuments(runID string) ([]internal.DocumentRow, error) {
	rows, err := d.conn.Query(`
SELECT id, runId, emailId, sourcePath, source, status, guideNumber, registrationId,
       principalValue, totalValue, usedTotalAsPrincipal, reason, artifactPath, fieldsJson, traceJson, createdAt
FROM documents WHERE runId = ? ORDER BY id ASC
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.DocumentRow
	for rows.Next() {
		var row internal.DocumentRow
		if err := rows.Scan(
			&row.ID, &row.RunID, &row.EmailID, &row.SourcePath, &row.Source, &row.Status, &row.GuideNumber, &row.RegistrationID,
			&row.PrincipalValue, &row.TotalValue, &row.UsedTotalAsPrincipal, &row.Reason, &row.ArtifactPath,
			&row.FieldsJSON, &row.TraceJSON, &row.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	var row internal.EmailRow
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE provider = ? AND messageId = ?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		var row internal.EmailRow
		if err := rows.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
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
