package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/tagsync/pkg/tagsync/internalerr"
	"github.com/cognicore/tagsync/pkg/tagsync/store"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	// per-connection pragmas go in the DSN so every pooled connection gets them
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Initialize schema
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	name TEXT,
	text TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS annotations (
	id TEXT PRIMARY KEY,
	doc_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	type TEXT NOT NULL,
	begin_offset INTEGER NOT NULL,
	end_offset INTEGER NOT NULL,
	UNIQUE(doc_id, position),
	FOREIGN KEY(doc_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS annotations_by_type ON annotations(doc_id, type);

CREATE TABLE IF NOT EXISTS feature_values (
	annotation_id TEXT NOT NULL,
	feature TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY(annotation_id, feature),
	FOREIGN KEY(annotation_id) REFERENCES annotations(id) ON DELETE CASCADE
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// SaveDocument inserts or replaces a document and its annotations
func (s *sqliteStore) SaveDocument(ctx context.Context, r store.Record) error {
	if r.ID == "" {
		return internalerr.ErrInvalidInput
	}
	updated := r.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const stmt = `
INSERT INTO documents (id, name, text, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name=excluded.name,
	text=excluded.text,
	updated_at=excluded.updated_at;
`
	if _, err := tx.ExecContext(ctx, stmt, r.ID, r.Name, r.Text, updated.UTC().Format(timeLayout)); err != nil {
		return err
	}

	if err := replaceAnnotations(ctx, tx, r.ID, r.Annotations); err != nil {
		return err
	}

	return tx.Commit()
}

func replaceAnnotations(ctx context.Context, tx *sql.Tx, docID string, anns []store.AnnotationRecord) error {
	if err := deleteAnnotations(ctx, tx, docID); err != nil {
		return err
	}
	if len(anns) == 0 {
		return nil
	}

	annStmt, err := tx.PrepareContext(ctx, `
INSERT INTO annotations (id, doc_id, position, type, begin_offset, end_offset)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer annStmt.Close()

	valStmt, err := tx.PrepareContext(ctx, `INSERT INTO feature_values (annotation_id, feature, value) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer valStmt.Close()

	for pos, a := range anns {
		if _, err := annStmt.ExecContext(ctx, a.ID, docID, pos, a.Type, a.Begin, a.End); err != nil {
			return err
		}
		for feat, val := range a.Features {
			if _, err := valStmt.ExecContext(ctx, a.ID, feat, val); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadDocument retrieves a document with its annotations in index order
func (s *sqliteStore) LoadDocument(ctx context.Context, id string) (store.Record, error) {
	var (
		r       store.Record
		name    sql.NullString
		updated string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, name, text, updated_at
FROM documents
WHERE id = ?;
`, id).Scan(&r.ID, &name, &r.Text, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, internalerr.ErrNotFound
	}
	if err != nil {
		return store.Record{}, err
	}
	r.Name = name.String
	if parsed, perr := time.Parse(timeLayout, updated); perr == nil {
		r.UpdatedAt = parsed
	}

	r.Annotations, err = s.loadAnnotations(ctx, id)
	if err != nil {
		return store.Record{}, err
	}
	return r, nil
}

func (s *sqliteStore) loadAnnotations(ctx context.Context, docID string) ([]store.AnnotationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT a.id, a.type, a.begin_offset, a.end_offset, v.feature, v.value
FROM annotations a
LEFT JOIN feature_values v ON v.annotation_id = a.id
WHERE a.doc_id = ?
ORDER BY a.position, v.feature;
`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anns []store.AnnotationRecord
	for rows.Next() {
		var (
			a         store.AnnotationRecord
			feat, val sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Type, &a.Begin, &a.End, &feat, &val); err != nil {
			return nil, err
		}
		if n := len(anns); n == 0 || anns[n-1].ID != a.ID {
			anns = append(anns, a)
		}
		if feat.Valid {
			last := &anns[len(anns)-1]
			if last.Features == nil {
				last.Features = make(map[string]string)
			}
			last.Features[feat.String] = val.String
		}
	}
	return anns, rows.Err()
}

// ListDocuments returns document summaries, most recently updated first
func (s *sqliteStore) ListDocuments(ctx context.Context) ([]store.DocInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT d.id, d.name, length(d.text), d.updated_at,
	(SELECT COUNT(*) FROM annotations a WHERE a.doc_id = d.id)
FROM documents d
ORDER BY d.updated_at DESC, d.id;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.DocInfo
	for rows.Next() {
		var (
			info    store.DocInfo
			name    sql.NullString
			updated string
		)
		if err := rows.Scan(&info.ID, &name, &info.Length, &updated, &info.Annotations); err != nil {
			return nil, err
		}
		info.Name = name.String
		if parsed, perr := time.Parse(timeLayout, updated); perr == nil {
			info.UpdatedAt = parsed
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document and its annotations
func (s *sqliteStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteAnnotations(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id=?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteAnnotations clears a document's annotations and their feature values.
func deleteAnnotations(ctx context.Context, tx *sql.Tx, docID string) error {
	if _, err := tx.ExecContext(ctx, `
DELETE FROM feature_values
WHERE annotation_id IN (SELECT id FROM annotations WHERE doc_id=?)`, docID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM annotations WHERE doc_id=?`, docID)
	return err
}
