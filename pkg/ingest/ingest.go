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

// Package ingest defines the source provider framework: the contract
// a content source (web feeds, chat channels) implements, and the
// Aggregator that runs all providers over one shared update stream.
package ingest // import "feedwire.org/pkg/ingest"

import (
	"context"

	"feedwire.org/pkg/model"
)

// An Update is one unit of work emitted by a provider's listening
// side: a new message, a finished download, a crawled feed. Updates
// are routed back to the provider registered for their source kind.
type Update interface {
	SourceKind() model.SourceKind
}

// A Result carries an Update or the error that replaced it through
// the shared stream.
type Result struct {
	Update Update
	Err    error
}

// updateStreamSize is the capacity of the shared update stream. It
// absorbs bursts (a synchronize pass, a large feed batch) without
// blocking providers.
const updateStreamSize = 2000

// A SourceProvider integrates one kind of content source.
//
// Run is the listening side: it blocks, emitting updates on out until
// ctx is done. ProcessUpdates is the persisting side: it handles one
// update routed back from the stream and reports how many records it
// stored. The two halves are called from different goroutines; a
// provider must be safe for that.
type SourceProvider interface {
	SourceKind() model.SourceKind

	Run(ctx context.Context, out chan<- Result)

	// SearchSource finds (and may register) sources matching query
	// at the upstream service.
	SearchSource(ctx context.Context, query string) ([]model.Source, error)

	// Synchronize backfills history secsDepth seconds deep for all
	// of the provider's sources.
	Synchronize(ctx context.Context, secsDepth int) error

	ProcessUpdates(ctx context.Context, upd Update) (int, error)
}
