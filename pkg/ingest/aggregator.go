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

package ingest

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"feedwire.org/pkg/model"
	"feedwire.org/pkg/storage"
)

// An Aggregator owns the shared update stream: it runs every
// configured provider's listening side and routes each update back to
// the provider registered for its kind.
type Aggregator struct {
	store     storage.Storage
	providers map[model.SourceKind]SourceProvider
	results   chan Result
}

// New returns an Aggregator over store and providers. Two providers
// may not claim the same source kind.
func New(store storage.Storage, providers ...SourceProvider) (*Aggregator, error) {
	byKind := make(map[model.SourceKind]SourceProvider, len(providers))
	for _, p := range providers {
		kind := p.SourceKind()
		if _, dup := byKind[kind]; dup {
			return nil, fmt.Errorf("ingest: duplicate provider for source kind %s", kind)
		}
		byKind[kind] = p
	}
	return &Aggregator{
		store:     store,
		providers: byKind,
		results:   make(chan Result, updateStreamSize),
	}, nil
}

// Run starts every provider and dispatches updates until ctx is done.
// A failing update is logged and dropped; the stream keeps flowing.
func (a *Aggregator) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, p := range a.providers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx, a.results)
		}()
	}
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-a.results:
			if res.Err != nil {
				log.Printf("ingest: update dropped: %v", res.Err)
				continue
			}
			kind := res.Update.SourceKind()
			p, ok := a.providers[kind]
			if !ok {
				log.Printf("ingest: update dropped: %v", &KindConflictError{Kind: kind})
				continue
			}
			if _, err := p.ProcessUpdates(ctx, res.Update); err != nil {
				log.Printf("ingest: processing %s update: %v", kind, err)
			}
		}
	}
}

// SearchSource queries every provider and the local store for sources
// matching query, merging the results. Sources found in more than one
// place appear once.
func (a *Aggregator) SearchSource(ctx context.Context, query string) ([]model.Source, error) {
	var (
		mu  sync.Mutex
		all []model.Source
	)
	collect := func(srcs []model.Source) {
		mu.Lock()
		all = append(all, srcs...)
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range a.providers {
		p := p
		g.Go(func() error {
			srcs, err := p.SearchSource(ctx, query)
			if err != nil {
				return err
			}
			collect(srcs)
			return nil
		})
	}
	g.Go(func() error {
		srcs, err := a.store.SearchSource(ctx, query)
		if err != nil {
			return err
		}
		collect(srcs)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(all))
	uniq := all[:0]
	for _, s := range all {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		uniq = append(uniq, s)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i].ID < uniq[j].ID })
	return uniq, nil
}

// Synchronize backfills history for the given kind, or for every
// configured provider when kind is nil. Providers synchronize in
// parallel; the call waits for all of them and reports the first
// error. Asking for a kind with no provider is a KindConflictError.
func (a *Aggregator) Synchronize(ctx context.Context, secsDepth int, kind *model.SourceKind) error {
	if kind != nil {
		p, ok := a.providers[*kind]
		if !ok {
			return &KindConflictError{Kind: *kind}
		}
		return p.Synchronize(ctx, secsDepth)
	}
	var g errgroup.Group
	for _, p := range a.providers {
		p := p
		g.Go(func() error {
			return p.Synchronize(ctx, secsDepth)
		})
	}
	return g.Wait()
}

// Records returns up to limit records of the given source, newest
// first, skipping offset.
func (a *Aggregator) Records(ctx context.Context, sourceID int64, limit, offset int) ([]model.Record, error) {
	return a.store.Records(ctx, sourceID, limit, offset)
}

// Sources lists the stored sources of one kind.
func (a *Aggregator) Sources(ctx context.Context, kind model.SourceKind) ([]model.Source, error) {
	return a.store.Sources(ctx, kind)
}
