/*
Copyright 2021 The Feedwire Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package sqlstorage implements the storage port on top of an SQL
// database. PostgreSQL (via lib/pq) is the production backend; SQLite
// (via modernc.org/sqlite) backs tests and small deployments.
//
// All statements are written with ? placeholders; the PostgreSQL
// flavor rewrites them into the corresponding $n.
package sqlstorage // import "feedwire.org/pkg/storage/sqlstorage"

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go4.org/jsonconfig"
	"go4.org/syncutil"

	"feedwire.org/pkg/model"
	"feedwire.org/pkg/storage"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DB implements storage.Storage over a *sql.DB.
type DB struct {
	db *sql.DB

	// ph, if non-nil, rewrites ? placeholders for the backend's
	// dialect before a statement runs.
	ph func(string) string

	// gate, if non-nil, bounds statement concurrency. SQLite allows a
	// single writer, so its gate has size 1.
	gate *syncutil.Gate
}

var _ storage.Storage = (*DB)(nil)

// New returns a DB speaking the ? placeholder dialect (SQLite, MySQL).
func New(db *sql.DB) *DB {
	return &DB{db: db, gate: syncutil.NewGate(1)}
}

// NewPostgres returns a DB that rewrites placeholders into $n form.
func NewPostgres(db *sql.DB) *DB {
	return &DB{db: db, ph: replacePlaceHolders}
}

// NewStorage opens (creating and initializing if needed) an SQLite
// database in file and returns storage over it.
func NewStorage(file string) (*DB, error) {
	db, err := sql.Open("sqlite", file)
	if err != nil {
		return nil, err
	}
	if err := initTables(db, DialectSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize sqlite storage at %s: %w", file, err)
	}
	return New(db), nil
}

// FromConfig opens storage from a jsonconfig object of the form
//
//	{"type": "postgres", "user": ..., "database": ..., "host": ..., "password": ..., "sslmode": ...}
//	{"type": "sqlite", "file": ...}
func FromConfig(cfg jsonconfig.Obj) (*DB, error) {
	typ := cfg.RequiredString("type")
	switch typ {
	case "sqlite":
		file := cfg.RequiredString("file")
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return NewStorage(file)
	case "postgres":
		conninfo := fmt.Sprintf("user=%s dbname=%s host=%s password=%s sslmode=%s",
			cfg.RequiredString("user"),
			cfg.RequiredString("database"),
			cfg.OptionalString("host", "localhost"),
			cfg.OptionalString("password", ""),
			cfg.OptionalString("sslmode", "require"),
		)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		db, err := sql.Open("postgres", conninfo)
		if err != nil {
			return nil, err
		}
		if err := initTables(db, DialectPostgres); err != nil {
			db.Close()
			return nil, fmt.Errorf("postgres storage unreachable or uninitializable: %w", err)
		}
		return NewPostgres(db), nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("invalid storage type %q", typ)
}

// Close closes the underlying database handle.
func (s *DB) Close() error { return s.db.Close() }

var qmark = regexp.MustCompile(`\?`)

// replace all ? placeholders with the corresponding $n in queries
func replacePlaceHolders(query string) string {
	i := 0
	dollarInc := func(b []byte) []byte {
		i++
		return []byte(fmt.Sprintf("$%d", i))
	}
	return string(qmark.ReplaceAllFunc([]byte(query), dollarInc))
}

func (s *DB) sql(q string) string {
	if s.ph != nil {
		return s.ph(q)
	}
	return q
}

func (s *DB) start() {
	if s.gate != nil {
		s.gate.Start()
	}
}

func (s *DB) done() {
	if s.gate != nil {
		s.gate.Done()
	}
}

func opErr(op string, err error) error { return &storage.Error{Op: op, Err: err} }

const sourceCols = "id, name, origin, kind, image, last_scrape_time, external_link"

func scanSource(row interface{ Scan(...any) error }) (model.Source, error) {
	var src model.Source
	var kind string
	err := row.Scan(&src.ID, &src.Name, &src.Origin, &kind, &src.Image, &src.LastScrapeTime, &src.ExternalLink)
	if err != nil {
		return model.Source{}, err
	}
	src.Kind = model.SourceKind(kind)
	src.LastScrapeTime = src.LastScrapeTime.UTC()
	return src, nil
}

func (s *DB) SaveSources(ctx context.Context, sources []model.NewSource) ([]model.Source, error) {
	s.start()
	defer s.done()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, opErr("SaveSources", err)
	}
	defer tx.Rollback()

	q := s.sql(`INSERT INTO sources (name, origin, kind, image, last_scrape_time, external_link)
 VALUES (?, ?, ?, ?, ?, ?)
 ON CONFLICT (origin, kind) DO UPDATE SET name = excluded.name
 RETURNING ` + sourceCols)
	saved := make([]model.Source, 0, len(sources))
	for _, ns := range sources {
		row := tx.QueryRowContext(ctx, q,
			ns.Name, ns.Origin, string(ns.Kind), ns.Image, time.Now().UTC(), ns.ExternalLink)
		src, err := scanSource(row)
		if err != nil {
			return nil, opErr("SaveSources", err)
		}
		saved = append(saved, src)
	}
	if err := tx.Commit(); err != nil {
		return nil, opErr("SaveSources", err)
	}
	return saved, nil
}

func (s *DB) SearchSource(ctx context.Context, query string) ([]model.Source, error) {
	s.start()
	defer s.done()
	like := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, s.sql(`SELECT `+sourceCols+` FROM sources
 WHERE origin LIKE ? OR external_link LIKE ? OR name LIKE ?`), like, like, like)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, opErr("SearchSource", err)
	}
	defer rows.Close()
	return collectSources(rows, "SearchSource")
}

func (s *DB) Sources(ctx context.Context, kind model.SourceKind) ([]model.Source, error) {
	s.start()
	defer s.done()
	var (
		rows *sql.Rows
		err  error
	)
	if kind == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+sourceCols+` FROM sources`)
	} else {
		rows, err = s.db.QueryContext(ctx, s.sql(`SELECT `+sourceCols+` FROM sources WHERE kind = ?`), string(kind))
	}
	if err != nil {
		return nil, opErr("Sources", err)
	}
	defer rows.Close()
	return collectSources(rows, "Sources")
}

func (s *DB) SourcesForScrape(ctx context.Context, kind model.SourceKind, interval time.Duration) ([]model.Source, error) {
	s.start()
	defer s.done()
	cutoff := time.Now().UTC().Add(-interval)
	rows, err := s.db.QueryContext(ctx, s.sql(`SELECT `+sourceCols+` FROM sources
 WHERE kind = ? AND last_scrape_time <= ?`), string(kind), cutoff)
	if err != nil {
		return nil, opErr("SourcesForScrape", err)
	}
	defer rows.Close()
	return collectSources(rows, "SourcesForScrape")
}

func collectSources(rows *sql.Rows, op string) ([]model.Source, error) {
	var out []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, opErr(op, err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr(op, err)
	}
	return out, nil
}

func (s *DB) SetSourceScrapedNow(ctx context.Context, src model.Source) error {
	s.start()
	defer s.done()
	_, err := s.db.ExecContext(ctx, s.sql(`UPDATE sources SET last_scrape_time = ? WHERE id = ?`),
		time.Now().UTC(), src.ID)
	if err != nil {
		return opErr("SetSourceScrapedNow", err)
	}
	return nil
}

const recordCols = "id, title, source_record_id, source_id, content, date, image, external_link"

func scanRecord(row interface{ Scan(...any) error }) (model.Record, error) {
	var r model.Record
	err := row.Scan(&r.ID, &r.Title, &r.SourceRecordID, &r.SourceID, &r.Content, &r.Date, &r.Image, &r.ExternalLink)
	if err != nil {
		return model.Record{}, err
	}
	r.Date = r.Date.UTC()
	return r, nil
}

func (s *DB) SaveRecords(ctx context.Context, records []model.NewRecord) ([]model.Record, error) {
	s.start()
	defer s.done()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, opErr("SaveRecords", err)
	}
	defer tx.Rollback()

	ins := s.sql(`INSERT INTO records (title, source_record_id, source_id, content, date, image, external_link)
 VALUES (?, ?, ?, ?, ?, ?, ?)
 ON CONFLICT (source_record_id, source_id) DO NOTHING
 RETURNING ` + recordCols)
	upd := s.sql(`UPDATE records SET content = ? WHERE source_record_id = ? AND source_id = ?`)

	var inserted []model.Record
	for _, nr := range records {
		date := nr.Date
		if date.IsZero() {
			date = time.Now()
		}
		row := tx.QueryRowContext(ctx, ins,
			nr.Title, nr.SourceRecordID, nr.SourceID, nr.Content, date.UTC(), nr.Image, "")
		rec, err := scanRecord(row)
		switch {
		case err == nil:
			inserted = append(inserted, rec)
		case errors.Is(err, sql.ErrNoRows):
			// Conflict: the row exists. Refresh its content only.
			if _, err := tx.ExecContext(ctx, upd, nr.Content, nr.SourceRecordID, nr.SourceID); err != nil {
				return nil, opErr("SaveRecords", err)
			}
		default:
			return nil, opErr("SaveRecords", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, opErr("SaveRecords", err)
	}
	return inserted, nil
}

func (s *DB) SetRecordExternalLink(ctx context.Context, sourceRecordID string, sourceID int64, link string) error {
	s.start()
	defer s.done()
	_, err := s.db.ExecContext(ctx, s.sql(`UPDATE records SET external_link = ?
 WHERE source_record_id = ? AND source_id = ?`), link, sourceRecordID, sourceID)
	if err != nil {
		return opErr("SetRecordExternalLink", err)
	}
	return nil
}

func (s *DB) Records(ctx context.Context, sourceID int64, limit, offset int) ([]model.Record, error) {
	s.start()
	defer s.done()
	var (
		rows *sql.Rows
		err  error
	)
	if sourceID == 0 {
		rows, err = s.db.QueryContext(ctx, s.sql(`SELECT `+recordCols+` FROM records
 ORDER BY date DESC LIMIT ? OFFSET ?`), limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, s.sql(`SELECT `+recordCols+` FROM records
 WHERE source_id = ? ORDER BY date DESC LIMIT ? OFFSET ?`), sourceID, limit, offset)
	}
	if err != nil {
		return nil, opErr("Records", err)
	}
	defer rows.Close()
	var out []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, opErr("Records", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("Records", err)
	}
	return out, nil
}

const fileCols = "id, record_id, kind, local_path, remote_path, remote_id, file_name, type, meta"

func scanFile(row interface{ Scan(...any) error }) (model.File, error) {
	var f model.File
	var kind, typ string
	var remoteID sql.NullString
	err := row.Scan(&f.ID, &f.RecordID, &kind, &f.LocalPath, &f.RemotePath, &remoteID, &f.FileName, &typ, &f.Meta)
	if err != nil {
		return model.File{}, err
	}
	f.Kind = model.SourceKind(kind)
	f.Type = model.FileType(typ)
	f.RemoteID = remoteID.String
	return f, nil
}

func (s *DB) SaveFiles(ctx context.Context, files []model.NewFile) error {
	s.start()
	defer s.done()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opErr("SaveFiles", err)
	}
	defer tx.Rollback()

	ins := s.sql(`INSERT INTO files (record_id, kind, local_path, remote_path, remote_id, file_name, type, meta)
 VALUES (?, ?, '', ?, ?, ?, ?, ?)
 ON CONFLICT (remote_id) DO NOTHING`)
	upd := s.sql(`UPDATE files SET file_name = ? WHERE remote_id = ? AND file_name = ''`)

	for _, nf := range files {
		if nf.RemoteID == "" {
			// No remote identity to dedup on; plain insert.
			q := s.sql(`INSERT INTO files (record_id, kind, local_path, remote_path, remote_id, file_name, type, meta)
 VALUES (?, ?, '', ?, NULL, ?, ?, ?)`)
			if _, err := tx.ExecContext(ctx, q,
				nf.RecordID, string(nf.Kind), nf.RemotePath, nf.FileName, string(nf.Type), nf.Meta); err != nil {
				return opErr("SaveFiles", err)
			}
			continue
		}
		res, err := tx.ExecContext(ctx, ins,
			nf.RecordID, string(nf.Kind), nf.RemotePath, nf.RemoteID, nf.FileName, string(nf.Type), nf.Meta)
		if err != nil {
			return opErr("SaveFiles", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 && nf.FileName != "" {
			// The row already existed; fill in a file name it may
			// still be missing.
			if _, err := tx.ExecContext(ctx, upd, nf.FileName, nf.RemoteID); err != nil {
				return opErr("SaveFiles", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return opErr("SaveFiles", err)
	}
	return nil
}

func (s *DB) FileByRemoteID(ctx context.Context, remoteID string) (*model.File, error) {
	s.start()
	defer s.done()
	rows, err := s.db.QueryContext(ctx, s.sql(`SELECT `+fileCols+` FROM files WHERE remote_id = ?`), remoteID)
	if err != nil {
		return nil, opErr("FileByRemoteID", err)
	}
	defer rows.Close()
	var out []model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, opErr("FileByRemoteID", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("FileByRemoteID", err)
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		f := out[0]
		return &f, nil
	}
	return nil, opErr("FileByRemoteID", fmt.Errorf("%d files share remote id %q", len(out), remoteID))
}

func (s *DB) SaveFile(ctx context.Context, f *model.File) error {
	s.start()
	defer s.done()
	_, err := s.db.ExecContext(ctx, s.sql(`UPDATE files SET local_path = ?, file_name = ? WHERE id = ?`),
		f.LocalPath, f.FileName, f.ID)
	if err != nil {
		return opErr("SaveFile", err)
	}
	return nil
}
