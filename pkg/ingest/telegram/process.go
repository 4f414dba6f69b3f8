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
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"go4.org/syncutil"

	"feedwire.org/pkg/ingest"
	"feedwire.org/pkg/model"
)

// ProcessUpdates persists one routed update: messages become records
// (with attachment registration on first sight), finished downloads
// get relocated and their rows finalized.
func (p *Provider) ProcessUpdates(ctx context.Context, upd ingest.Update) (int, error) {
	switch u := upd.(type) {
	case *MessageUpdate:
		return p.processMessage(ctx, u)
	case *DownloadUpdate:
		return 0, p.finalizeDownload(ctx, u)
	default:
		return 0, fmt.Errorf("telegram: unexpected update type %T", upd)
	}
}

func (p *Provider) processMessage(ctx context.Context, u *MessageUpdate) (int, error) {
	src, err := p.sourceFor(ctx, u.ChatID)
	if err != nil {
		return 0, err
	}

	inserted, err := p.store.SaveRecords(ctx, []model.NewRecord{{
		SourceRecordID: strconv.FormatInt(u.MessageID, 10),
		SourceID:       src.ID,
		Content:        u.Content,
		Date:           recordDate(u.Date),
	}})
	if err != nil {
		return 0, err
	}
	if len(inserted) == 0 {
		log.Printf("telegram: message %d in chat %d already known, files skipped", u.MessageID, u.ChatID)
		return 0, nil
	}

	var grp syncutil.Group
	if len(u.Files) > 0 {
		grp.Go(func() error {
			return p.registerFiles(ctx, inserted[0].ID, u.Files)
		})
	}
	grp.Go(func() error {
		return p.handleRecordInserted(ctx, u.ChatID, u.MessageID, inserted)
	})
	if err := grp.Err(); err != nil {
		return 0, err
	}
	return len(inserted), nil
}

// sourceFor resolves the source row of a chat, joining the chat and
// registering it on first contact.
func (p *Provider) sourceFor(ctx context.Context, chatID int64) (*model.Source, error) {
	origin := chatOrigin(chatID)
	srcs, err := p.store.SearchSource(ctx, origin)
	if err != nil {
		return nil, err
	}
	for i := range srcs {
		if srcs[i].Kind == model.KindTelegram && srcs[i].Origin == origin {
			return &srcs[i], nil
		}
	}

	p.mu.Lock()
	err = p.client.JoinChat(ctx, chatID)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	ch, err := p.client.ChannelInfo(ctx, chatID)
	p.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ingest.ErrSourceNotFound
	}
	saved, err := p.store.SaveSources(ctx, []model.NewSource{sourceFromChannel(*ch)})
	if err != nil {
		return nil, err
	}
	if len(saved) != 1 {
		return nil, ingest.ErrSourceCreation
	}
	return &saved[0], nil
}

// handleRecordInserted back-fills the canonical message link for the
// single newly inserted record. More than one "new" row for one
// logical insert is an integrity violation.
func (p *Provider) handleRecordInserted(ctx context.Context, chatID, messageID int64, created []model.Record) error {
	switch len(created) {
	case 0:
		return nil
	case 1:
	default:
		return ingest.ErrSourceCreation
	}

	p.mu.RLock()
	link, err := p.client.MessageLink(ctx, chatID, messageID)
	p.mu.RUnlock()
	if err != nil {
		return err
	}
	return p.store.SetRecordExternalLink(ctx, created[0].SourceRecordID, created[0].SourceID, link)
}

// registerFiles persists attachment rows for a newly inserted record
// and queues their downloads. A download that fails to queue is
// logged, not fatal.
func (p *Provider) registerFiles(ctx context.Context, recordID int64, refs []FileRef) error {
	newFiles := make([]model.NewFile, 0, len(refs))
	for _, ref := range refs {
		newFiles = append(newFiles, model.NewFile{
			RecordID:   recordID,
			Kind:       model.KindTelegram,
			RemotePath: ref.RemotePath,
			RemoteID:   ref.RemoteID,
			FileName:   ref.FileName,
			Type:       ref.Type,
			Meta:       ref.Meta,
		})
	}
	if err := p.store.SaveFiles(ctx, newFiles); err != nil {
		return err
	}

	for _, ref := range refs {
		p.mu.Lock()
		err := p.client.DownloadFile(ctx, ref.RemotePath)
		p.mu.Unlock()
		if err != nil {
			log.Printf("telegram: queueing download of %s: %v", ref.RemotePath, err)
			continue
		}
		atomic.AddInt64(&p.pending, 1)
	}
	return nil
}

// finalizeDownload moves a finished download into the files directory
// and records its final location. A download with no matching row is
// warned about and dropped.
func (p *Provider) finalizeDownload(ctx context.Context, u *DownloadUpdate) error {
	f, err := p.store.FileByRemoteID(ctx, u.RemoteID)
	if err != nil {
		return err
	}
	if f == nil {
		log.Printf("telegram: no file row for downloaded remote id %s, dropping", u.RemoteID)
		return nil
	}

	base := filepath.Base(u.LocalPath)
	newPath := filepath.Join(p.cfg.FilesDirectory, base)
	if err := os.Rename(u.LocalPath, newPath); err != nil {
		return err
	}

	f.LocalPath = newPath
	if f.FileName == "" {
		f.FileName = base
	}
	if err := p.store.SaveFile(ctx, f); err != nil {
		return err
	}
	atomic.AddInt64(&p.pending, -1)
	return nil
}
