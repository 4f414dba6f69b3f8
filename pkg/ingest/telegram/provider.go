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

package telegram

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"feedwire.org/pkg/chat"
	"feedwire.org/pkg/ingest"
	"feedwire.org/pkg/model"
)

// rawUpdateQueueSize buffers the collector's raw stream so parsing
// never stalls the collector.
const rawUpdateQueueSize = 100

// Run starts the collector client and forwards its update stream,
// parsed, onto out until ctx is done or the stream closes.
func (p *Provider) Run(ctx context.Context, out chan<- ingest.Result) {
	raw := make(chan chat.Update, rawUpdateQueueSize)

	p.mu.Lock()
	p.client.ListenUpdates(raw)
	err := p.client.Start(ctx)
	p.mu.Unlock()
	if err != nil {
		emit(ctx, out, ingest.Result{Err: err})
		return
	}

	if iv := p.cfg.LogDownloadStateSecsInterval; iv > 0 {
		go p.logDownloadState(ctx, time.Duration(iv)*time.Second)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-raw:
			if !ok {
				return
			}
			upd, err := parseUpdate(u)
			if err != nil {
				emit(ctx, out, ingest.Result{Err: err})
				continue
			}
			if upd == nil {
				continue
			}
			emit(ctx, out, ingest.Result{Update: upd})
		}
	}
}

func emit(ctx context.Context, out chan<- ingest.Result, res ingest.Result) {
	select {
	case <-ctx.Done():
	case out <- res:
	}
}

func (p *Provider) logDownloadState(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := atomic.LoadInt64(&p.pending); n > 0 {
				log.Printf("telegram: %d downloads pending", n)
			}
		}
	}
}

// SearchSource searches public channels and registers each hit as a
// source. A channel that fails to persist is logged and skipped; the
// call succeeds with the saves that did.
func (p *Provider) SearchSource(ctx context.Context, query string) ([]model.Source, error) {
	p.mu.RLock()
	chans, err := p.client.SearchPublicChats(ctx, query)
	p.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var srcs []model.Source
	for _, ch := range chans {
		saved, err := p.store.SaveSources(ctx, []model.NewSource{sourceFromChannel(ch)})
		if err != nil {
			log.Printf("telegram: saving channel %d (%s): %v", ch.ChatID, ch.Title, err)
			continue
		}
		srcs = append(srcs, saved...)
	}
	return srcs, nil
}

// Synchronize backfills every channel the account is in, secsDepth
// seconds deep. Unsupported content is skipped; any other error
// aborts.
func (p *Provider) Synchronize(ctx context.Context, secsDepth int) error {
	until := time.Now().Add(-time.Duration(secsDepth) * time.Second).Unix()

	p.mu.RLock()
	chans, err := p.client.AllChannels(ctx, 1000)
	p.mu.RUnlock()
	if err != nil {
		return err
	}

	for _, ch := range chans {
		saved, err := p.store.SaveSources(ctx, []model.NewSource{sourceFromChannel(ch)})
		if err != nil {
			return err
		}
		if len(saved) != 1 {
			return ingest.ErrSourceCreation
		}
		if err := p.syncChannel(ctx, saved[0], ch.ChatID, until); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) syncChannel(ctx context.Context, src model.Source, chatID, until int64) error {
	p.mu.RLock()
	it := p.client.History(ctx, chatID, until)
	p.mu.RUnlock()
	defer it.Close()

	var (
		batch []model.NewRecord
		files = make(map[string][]FileRef) // by source record id
	)
	for it.Next() {
		m := it.Message()
		text, refs, err := parseContent(m.Content)
		if err != nil {
			var nse *ingest.NotSupportedError
			if errors.As(err, &nse) {
				continue
			}
			return err
		}
		if text == nil {
			continue
		}
		sri := strconv.FormatInt(m.ID, 10)
		batch = append(batch, model.NewRecord{
			SourceRecordID: sri,
			SourceID:       src.ID,
			Content:        *text,
			Date:           recordDate(m.Date),
		})
		if len(refs) > 0 {
			files[sri] = refs
		}
	}
	if err := it.Err(); err != nil {
		return err
	}

	inserted, err := p.store.SaveRecords(ctx, batch)
	if err != nil {
		return err
	}
	for _, r := range inserted {
		if refs := files[r.SourceRecordID]; len(refs) > 0 {
			if err := p.registerFiles(ctx, r.ID, refs); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordDate maps a message timestamp to the stored record date; an
// unknown timestamp becomes the ingestion time.
func recordDate(unix int64) time.Time {
	if unix == 0 {
		return time.Now().UTC()
	}
	return time.Unix(unix, 0).UTC()
}
