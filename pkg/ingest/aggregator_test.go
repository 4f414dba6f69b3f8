/*
Copyright 2022 The Feedwire Authors

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
	"errors"
	"testing"
	"time"

	"feedwire.org/pkg/model"
	"feedwire.org/pkg/storage"
)

type fakeUpdate struct {
	kind model.SourceKind
}

func (u fakeUpdate) SourceKind() model.SourceKind { return u.kind }

type fakeProvider struct {
	kind      model.SourceKind
	emits     []Result
	processed chan Update
	searchRes []model.Source
	synced    chan int
	syncErr   error

	// When set, Synchronize announces itself on syncStarted and
	// blocks until syncRelease closes.
	syncStarted chan struct{}
	syncRelease chan struct{}
}

func (p *fakeProvider) SourceKind() model.SourceKind { return p.kind }

func (p *fakeProvider) Run(ctx context.Context, out chan<- Result) {
	for _, r := range p.emits {
		select {
		case <-ctx.Done():
			return
		case out <- r:
		}
	}
	<-ctx.Done()
}

func (p *fakeProvider) SearchSource(ctx context.Context, query string) ([]model.Source, error) {
	return p.searchRes, nil
}

func (p *fakeProvider) Synchronize(ctx context.Context, secsDepth int) error {
	if p.syncStarted != nil {
		p.syncStarted <- struct{}{}
		<-p.syncRelease
	}
	if p.synced != nil {
		p.synced <- secsDepth
	}
	return p.syncErr
}

func (p *fakeProvider) ProcessUpdates(ctx context.Context, upd Update) (int, error) {
	if p.processed != nil {
		p.processed <- upd
	}
	return 1, nil
}

// fakeStore stubs out source search; every other storage call is
// unused by these tests.
type fakeStore struct {
	storage.Storage
	searchRes []model.Source
}

func (s *fakeStore) SearchSource(ctx context.Context, query string) ([]model.Source, error) {
	return s.searchRes, nil
}

func TestNewRejectsDuplicateKinds(t *testing.T) {
	_, err := New(&fakeStore{},
		&fakeProvider{kind: model.KindWeb},
		&fakeProvider{kind: model.KindWeb},
	)
	if err == nil {
		t.Fatal("New accepted two providers for the same kind")
	}
}

func TestSynchronizeUnknownKind(t *testing.T) {
	web := &fakeProvider{kind: model.KindWeb, synced: make(chan int, 1)}
	a, err := New(&fakeStore{}, web)
	if err != nil {
		t.Fatal(err)
	}

	kind := model.KindTelegram
	err = a.Synchronize(context.Background(), 3600, &kind)
	var kce *KindConflictError
	if !errors.As(err, &kce) {
		t.Fatalf("Synchronize error = %v, want *KindConflictError", err)
	}
	if kce.Kind != model.KindTelegram {
		t.Errorf("conflict kind = %s", kce.Kind)
	}
	select {
	case <-web.synced:
		t.Error("mismatched synchronize still reached a provider")
	default:
	}
}

func TestSynchronizeFanOut(t *testing.T) {
	web := &fakeProvider{kind: model.KindWeb, synced: make(chan int, 1)}
	tg := &fakeProvider{kind: model.KindTelegram, synced: make(chan int, 1)}
	a, err := New(&fakeStore{}, web, tg)
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Synchronize(context.Background(), 60, nil); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	for _, p := range []*fakeProvider{web, tg} {
		select {
		case depth := <-p.synced:
			if depth != 60 {
				t.Errorf("%s synchronized with depth %d, want 60", p.kind, depth)
			}
		default:
			t.Errorf("%s provider was not synchronized", p.kind)
		}
	}
}

// All-provider synchronize must run the providers concurrently: each
// fake blocks until every one has started, which only resolves when
// they overlap in time.
func TestSynchronizeAllConcurrent(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	web := &fakeProvider{kind: model.KindWeb, syncStarted: started, syncRelease: release}
	tg := &fakeProvider{kind: model.KindTelegram, syncStarted: started, syncRelease: release}
	a, err := New(&fakeStore{}, web, tg)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Synchronize(context.Background(), 60, nil) }()

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of 2 providers synchronizing after 5s", i)
		}
	}
	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Synchronize: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Synchronize did not return after release")
	}
}

// One provider's failure surfaces but must not skip the others.
func TestSynchronizeAllSurfacesErrorAfterAll(t *testing.T) {
	syncErr := errors.New("history unavailable")
	web := &fakeProvider{kind: model.KindWeb, synced: make(chan int, 1), syncErr: syncErr}
	tg := &fakeProvider{kind: model.KindTelegram, synced: make(chan int, 1)}
	a, err := New(&fakeStore{}, web, tg)
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Synchronize(context.Background(), 60, nil); !errors.Is(err, syncErr) {
		t.Errorf("Synchronize error = %v, want %v", err, syncErr)
	}
	select {
	case <-tg.synced:
	default:
		t.Error("healthy provider was skipped because another failed")
	}
}

func TestSearchSourceMergesAndDedups(t *testing.T) {
	web := &fakeProvider{
		kind: model.KindWeb,
		searchRes: []model.Source{
			{ID: 1, Origin: "https://a.test", Kind: model.KindWeb},
			{ID: 2, Origin: "https://b.test", Kind: model.KindWeb},
		},
	}
	store := &fakeStore{searchRes: []model.Source{
		{ID: 2, Origin: "https://b.test", Kind: model.KindWeb},
		{ID: 3, Origin: "300", Kind: model.KindTelegram},
	}}
	a, err := New(store, web)
	if err != nil {
		t.Fatal(err)
	}

	srcs, err := a.SearchSource(context.Background(), "test")
	if err != nil {
		t.Fatalf("SearchSource: %v", err)
	}
	if len(srcs) != 3 {
		t.Fatalf("SearchSource = %d sources, want 3 after dedup", len(srcs))
	}
	for i, want := range []int64{1, 2, 3} {
		if srcs[i].ID != want {
			t.Errorf("srcs[%d].ID = %d, want %d", i, srcs[i].ID, want)
		}
	}
}

// One failing update must not stop the dispatch loop, and updates with
// no matching provider are dropped.
func TestRunDispatchKeepsGoing(t *testing.T) {
	web := &fakeProvider{
		kind:      model.KindWeb,
		processed: make(chan Update, 4),
		emits: []Result{
			{Update: fakeUpdate{kind: model.KindWeb}},
			{Err: errors.New("parse failure")},
			{Update: fakeUpdate{kind: model.KindTelegram}}, // no provider
			{Update: fakeUpdate{kind: model.KindWeb}},
		},
	}
	a, err := New(&fakeStore{}, web)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case upd := <-web.processed:
			if upd.SourceKind() != model.KindWeb {
				t.Errorf("processed update of kind %s", upd.SourceKind())
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("dispatch delivered %d updates within 5s, want 2", i)
		}
	}
	select {
	case upd := <-web.processed:
		t.Errorf("unexpected extra update: %+v", upd)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
