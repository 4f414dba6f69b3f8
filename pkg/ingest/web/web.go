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

// Package web is the source provider for web feeds. It periodically
// asks storage which sources are due for a crawl, hands them to the
// feed collector, and persists the crawled items as records.
package web // import "feedwire.org/pkg/ingest/web"

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go4.org/syncutil"

	"feedwire.org/pkg/feed"
	"feedwire.org/pkg/ingest"
	"feedwire.org/pkg/model"
	"feedwire.org/pkg/storage"
)

const (
	defaultScrapeInterval = 30 * time.Minute
	defaultSleep          = time.Minute
)

type Config struct {
	// ScrapeIntervalSecs is how stale a source must be before it is
	// crawled again. Zero means 30 minutes.
	ScrapeIntervalSecs int
	// SleepSecs is the pause between polls of the due-source list.
	// Zero means one minute.
	SleepSecs int
}

func (c Config) scrapeInterval() time.Duration {
	if c.ScrapeIntervalSecs <= 0 {
		return defaultScrapeInterval
	}
	return time.Duration(c.ScrapeIntervalSecs) * time.Second
}

func (c Config) sleep() time.Duration {
	if c.SleepSecs <= 0 {
		return defaultSleep
	}
	return time.Duration(c.SleepSecs) * time.Second
}

// A FeedUpdate is one successfully crawled feed, routed through the
// shared update stream back to this provider.
type FeedUpdate struct {
	Origin string
	Feed   *feed.Feed
}

func (*FeedUpdate) SourceKind() model.SourceKind { return model.KindWeb }

// Provider implements ingest.SourceProvider for web feeds.
type Provider struct {
	cfg   Config
	store storage.Storage
	coll  *feed.Collector
	reqs  chan []feed.Request
}

func New(cfg Config, store storage.Storage, coll *feed.Collector) *Provider {
	return &Provider{
		cfg:   cfg,
		store: store,
		coll:  coll,
		reqs:  make(chan []feed.Request),
	}
}

func (p *Provider) SourceKind() model.SourceKind { return model.KindWeb }

// Run starts the collector and feeds it batches of due sources until
// ctx is done. Crawl outcomes come back on out.
func (p *Provider) Run(ctx context.Context, out chan<- ingest.Result) {
	go p.coll.Run(ctx, p.reqs, &forwarder{out: out})
	for {
		srcs, err := p.store.SourcesForScrape(ctx, model.KindWeb, p.cfg.scrapeInterval())
		if err != nil {
			log.Printf("web: listing sources for scrape: %v", err)
		} else if len(srcs) > 0 {
			batch := make([]feed.Request, 0, len(srcs))
			for _, s := range srcs {
				batch = append(batch, feed.Request{Kind: feed.Kind(""), Origin: s.Origin})
			}
			select {
			case <-ctx.Done():
				return
			case p.reqs <- batch:
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.sleep()):
		}
	}
}

// forwarder adapts collector results onto the shared update stream.
type forwarder struct {
	out chan<- ingest.Result
}

func (f *forwarder) Process(ctx context.Context, res feed.Result) {
	var r ingest.Result
	if res.Err != nil {
		r.Err = res.Err
	} else {
		r.Update = &FeedUpdate{Origin: res.Origin, Feed: res.Feed}
	}
	select {
	case <-ctx.Done():
	case f.out <- r:
	}
}

// ProcessUpdates persists one crawled feed: the source row is upserted
// from the feed's metadata, items become records, and newly inserted
// records get their item GUID as external link. Returns how many
// records were new.
func (p *Provider) ProcessUpdates(ctx context.Context, upd ingest.Update) (int, error) {
	fu, ok := upd.(*FeedUpdate)
	if !ok {
		return 0, fmt.Errorf("web: unexpected update type %T", upd)
	}
	return p.processFeed(ctx, fu.Origin, fu.Feed)
}

func (p *Provider) processFeed(ctx context.Context, origin string, f *feed.Feed) (int, error) {
	src, err := p.sourceFor(ctx, origin, f)
	if err != nil {
		return 0, err
	}

	recs := make([]model.NewRecord, 0, len(f.Items))
	for _, it := range f.Items {
		recs = append(recs, model.NewRecord{
			Title:          it.Title,
			SourceRecordID: it.GUID,
			SourceID:       src.ID,
			Content:        it.Content,
			Date:           it.PubDate,
			Image:          it.ImageLink,
		})
	}
	inserted, err := p.store.SaveRecords(ctx, recs)
	if err != nil {
		return 0, err
	}
	// Feed items use their GUID as canonical link.
	for _, r := range inserted {
		if err := p.store.SetRecordExternalLink(ctx, r.SourceRecordID, src.ID, r.SourceRecordID); err != nil {
			return 0, err
		}
	}
	if err := p.store.SetSourceScrapedNow(ctx, *src); err != nil {
		return 0, err
	}
	return len(inserted), nil
}

// sourceFor finds the source row for origin, registering it from the
// feed's metadata on first contact.
func (p *Provider) sourceFor(ctx context.Context, origin string, f *feed.Feed) (*model.Source, error) {
	srcs, err := p.store.SearchSource(ctx, origin)
	if err != nil {
		return nil, err
	}
	for i := range srcs {
		if srcs[i].Kind == model.KindWeb {
			return &srcs[i], nil
		}
	}
	saved, err := p.store.SaveSources(ctx, []model.NewSource{{
		Name:         f.Name,
		Origin:       origin,
		Kind:         model.KindWeb,
		Image:        f.Image,
		ExternalLink: f.Link,
	}})
	if err != nil {
		return nil, err
	}
	if len(saved) != 1 {
		return nil, ingest.ErrSourceCreation
	}
	return &saved[0], nil
}

// SearchSource treats query as a URL (https is assumed when no scheme
// is given), autodiscovers the feeds behind it, and registers them.
// An unreachable URL is an empty result, not an error.
func (p *Provider) SearchSource(ctx context.Context, query string) ([]model.Source, error) {
	urlstr := query
	if !strings.Contains(urlstr, "://") {
		urlstr = "https://" + urlstr
	}
	feeds, err := p.coll.DetectFeeds(ctx, urlstr)
	if err != nil {
		var re *feed.RequestError
		if errors.As(err, &re) {
			return nil, nil
		}
		return nil, err
	}
	if len(feeds) == 0 {
		return nil, nil
	}

	newSrcs := make([]model.NewSource, 0, len(feeds))
	for _, f := range feeds {
		newSrcs = append(newSrcs, model.NewSource{
			Name:         f.Name,
			Origin:       f.Link,
			Kind:         model.KindWeb,
			Image:        f.Image,
			ExternalLink: f.Link,
		})
	}
	srcs, err := p.store.SaveSources(ctx, newSrcs)
	if err != nil {
		return nil, err
	}

	// Ingest the documents we already fetched instead of waiting for
	// the next crawl cycle.
	var grp syncutil.Group
	for _, f := range feeds {
		f := f
		grp.Go(func() error {
			_, err := p.processFeed(ctx, f.Link, f)
			return err
		})
	}
	if err := grp.Err(); err != nil {
		return nil, err
	}
	return srcs, nil
}

// Synchronize is a no-op: a feed document carries no history deeper
// than what a regular crawl already sees.
func (p *Provider) Synchronize(ctx context.Context, secsDepth int) error {
	return nil
}
