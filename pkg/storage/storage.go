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

// Package storage defines the persistence port the ingestion engine
// depends on. Implementations back it with a relational database; the
// contracts below (conflict keys, what an upsert returns) are what the
// providers rely on for idempotent re-ingestion.
package storage // import "feedwire.org/pkg/storage"

import (
	"context"
	"fmt"
	"time"

	"feedwire.org/pkg/model"
)

// Storage is the persistence interface of the ingestion engine.
//
// All methods report failures as *Error. A "not found" from the
// underlying driver is never an error at this boundary: lookups return
// empty slices or nil pointers instead.
type Storage interface {
	// SaveSources bulk-upserts by (Origin, Kind). On conflict only
	// Name is updated; IDs are never reassigned. It returns the
	// persisted rows, in unspecified order, with IDs assigned.
	SaveSources(ctx context.Context, sources []model.NewSource) ([]model.Source, error)

	// SearchSource matches the query as a substring of Origin,
	// ExternalLink, or Name.
	SearchSource(ctx context.Context, query string) ([]model.Source, error)

	// Sources lists sources of the given kind; an empty kind lists all.
	Sources(ctx context.Context, kind model.SourceKind) ([]model.Source, error)

	// SourcesForScrape returns sources of the given kind whose
	// LastScrapeTime is older than now minus interval.
	SourcesForScrape(ctx context.Context, kind model.SourceKind, interval time.Duration) ([]model.Source, error)

	// SetSourceScrapedNow stamps the source's LastScrapeTime with the
	// current time.
	SetSourceScrapedNow(ctx context.Context, src model.Source) error

	// SaveRecords upserts by (SourceRecordID, SourceID). On conflict
	// only Content is updated; Title and Image keep their first-insert
	// values. It returns only the rows that were newly inserted, so
	// callers can back-fill external links and register files for
	// those alone.
	SaveRecords(ctx context.Context, records []model.NewRecord) ([]model.Record, error)

	// SetRecordExternalLink sets the record's canonical upstream link.
	// It is idempotent.
	SetRecordExternalLink(ctx context.Context, sourceRecordID string, sourceID int64, link string) error

	// Records lists records ordered by date descending. A sourceID of
	// zero lists across all sources.
	Records(ctx context.Context, sourceID int64, limit, offset int) ([]model.Record, error)

	// SaveFiles upserts by RemoteID. New rows are inserted with
	// duplicate-silence; rows that already exist get an empty
	// FileName backfilled.
	SaveFiles(ctx context.Context, files []model.NewFile) error

	// FileByRemoteID returns the at-most-one file with the given
	// remote id, or nil. More than one matching row is a database
	// integrity error.
	FileByRemoteID(ctx context.Context, remoteID string) (*model.File, error)

	// SaveFile updates the file's LocalPath and FileName by ID.
	SaveFile(ctx context.Context, f *model.File) error
}

// Error is the failure type of every Storage operation.
type Error struct {
	Op  string // the failing operation, e.g. "SaveRecords"
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }
