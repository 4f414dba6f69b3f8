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

package sqlstorage

import (
	"database/sql"
	"fmt"
)

const requiredSchemaVersion = 1

// SchemaVersion returns the schema version this package requires.
func SchemaVersion() int { return requiredSchemaVersion }

// Dialect selects the SQL flavor for schema DDL.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) serialPK() string {
	if d == DialectPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d Dialect) timestamp() string {
	if d == DialectPostgres {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

// SQLCreateTables returns the DDL for the three tables of the record
// store. Statements are idempotent.
func SQLCreateTables(d Dialect) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS sources (
 id ` + d.serialPK() + `,
 name TEXT NOT NULL DEFAULT '',
 origin TEXT NOT NULL,
 kind TEXT NOT NULL,
 image TEXT NOT NULL DEFAULT '',
 last_scrape_time ` + d.timestamp() + ` NOT NULL,
 external_link TEXT NOT NULL DEFAULT '',
 UNIQUE (origin, kind))`,

		`CREATE TABLE IF NOT EXISTS records (
 id ` + d.serialPK() + `,
 title TEXT NOT NULL DEFAULT '',
 source_record_id TEXT NOT NULL,
 source_id BIGINT NOT NULL REFERENCES sources (id),
 content TEXT NOT NULL DEFAULT '',
 date ` + d.timestamp() + ` NOT NULL,
 image TEXT NOT NULL DEFAULT '',
 external_link TEXT NOT NULL DEFAULT '',
 UNIQUE (source_record_id, source_id))`,

		`CREATE TABLE IF NOT EXISTS files (
 id ` + d.serialPK() + `,
 record_id BIGINT NOT NULL REFERENCES records (id),
 kind TEXT NOT NULL,
 local_path TEXT NOT NULL DEFAULT '',
 remote_path TEXT NOT NULL DEFAULT '',
 remote_id TEXT UNIQUE,
 file_name TEXT NOT NULL DEFAULT '',
 type TEXT NOT NULL,
 meta TEXT NOT NULL DEFAULT '')`,

		`CREATE TABLE IF NOT EXISTS meta (
 metakey TEXT NOT NULL PRIMARY KEY,
 value TEXT NOT NULL)`,
	}
}

func initTables(db *sql.DB, d Dialect) error {
	for _, tableSQL := range SQLCreateTables(d) {
		if _, err := db.Exec(tableSQL); err != nil {
			return fmt.Errorf("error creating table with %q: %w", tableSQL, err)
		}
	}
	var version int
	err := db.QueryRow(`SELECT value FROM meta WHERE metakey = 'version'`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec(`INSERT INTO meta (metakey, value) VALUES ('version', '1')`); err != nil {
			return fmt.Errorf("error setting schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("error getting schema version: %w", err)
	case version != requiredSchemaVersion:
		return fmt.Errorf("database schema version is %d; expect %d (need to re-init/upgrade database?)",
			version, requiredSchemaVersion)
	}
	return nil
}
