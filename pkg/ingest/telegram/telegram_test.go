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
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"feedwire.org/pkg/chat"
	"feedwire.org/pkg/model"
	"feedwire.org/pkg/storage/sqlstorage"
)

type fakeChatClient struct {
	mu            sync.Mutex
	channels      map[int64]chat.Channel
	history       map[int64][]chat.Message
	searchResults []chat.Channel

	joined    []int64
	downloads []string
}

func (c *fakeChatClient) Start(ctx context.Context) error { return nil }

func (c *fakeChatClient) ListenUpdates(ch chan<- chat.Update) {}

func (c *fakeChatClient) SearchPublicChats(ctx context.Context, query string) ([]chat.Channel, error) {
	return c.searchResults, nil
}

func (c *fakeChatClient) ChannelInfo(ctx context.Context, chatID int64) (*chat.Channel, error) {
	ch, ok := c.channels[chatID]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

func (c *fakeChatClient) AllChannels(ctx context.Context, limit int) ([]chat.Channel, error) {
	var out []chat.Channel
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	return out, nil
}

func (c *fakeChatClient) History(ctx context.Context, chatID, untilUnix int64) chat.MessageIterator {
	var msgs []chat.Message
	for _, m := range c.history[chatID] {
		if m.Date >= untilUnix {
			msgs = append(msgs, m)
		}
	}
	return &sliceIterator{msgs: msgs}
}

func (c *fakeChatClient) MessageLink(ctx context.Context, chatID, messageID int64) (string, error) {
	return fmt.Sprintf("https://t.test/%d/%d", chatID, messageID), nil
}

func (c *fakeChatClient) JoinChat(ctx context.Context, chatID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, chatID)
	return nil
}

func (c *fakeChatClient) DownloadFile(ctx context.Context, remotePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloads = append(c.downloads, remotePath)
	return nil
}

func (c *fakeChatClient) downloadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.downloads)
}

type sliceIterator struct {
	msgs []chat.Message
	i    int
}

func (it *sliceIterator) Next() bool {
	if it.i >= len(it.msgs) {
		return false
	}
	it.i++
	return true
}

func (it *sliceIterator) Message() *chat.Message { return &it.msgs[it.i-1] }
func (it *sliceIterator) Err() error             { return nil }
func (it *sliceIterator) Close() error           { return nil }

func newTestProvider(t *testing.T, client *fakeChatClient) (*Provider, *sqlstorage.DB) {
	t.Helper()
	store, err := sqlstorage.NewStorage(filepath.Join(t.TempDir(), "feedwire.db"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	cfg := Config{FilesDirectory: t.TempDir()}
	return New(cfg, store, client), store
}

func photoMessage(id, chatID, date int64, caption string) chat.Message {
	return chat.Message{
		ID: id, ChatID: chatID, Date: date,
		Content: chat.MessagePhoto{
			Caption: chat.FormattedText{Text: caption},
			Sizes: []chat.PhotoSize{{
				File:  chat.RemoteFile{Path: "photos/1.jpg", UniqueID: "R1"},
				Width: 320, Height: 240,
			}},
		},
	}
}

func TestProcessMessageWithPhoto(t *testing.T) {
	ctx := context.Background()
	client := &fakeChatClient{
		channels: map[int64]chat.Channel{
			100: {ChatID: 100, Title: "chan", Username: "chanuser"},
		},
	}
	p, store := newTestProvider(t, client)

	upd, err := parseUpdate(chat.UpdateNewMessage{Message: photoMessage(7, 100, 1700000000, "Hi")})
	if err != nil {
		t.Fatalf("parseUpdate: %v", err)
	}
	n, err := p.ProcessUpdates(ctx, upd)
	if err != nil {
		t.Fatalf("ProcessUpdates: %v", err)
	}
	if n != 1 {
		t.Errorf("ProcessUpdates = %d records, want 1", n)
	}

	// The unknown chat was joined and registered as a source.
	if len(client.joined) != 1 || client.joined[0] != 100 {
		t.Errorf("joined chats = %v, want [100]", client.joined)
	}
	srcs, err := store.SearchSource(ctx, "100")
	if err != nil {
		t.Fatalf("SearchSource: %v", err)
	}
	if len(srcs) != 1 || srcs[0].Kind != model.KindTelegram || srcs[0].Name != "chan" {
		t.Fatalf("sources = %+v", srcs)
	}

	recs, err := store.Records(ctx, srcs[0].ID, 10, 0)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].Content != "Hi" || recs[0].SourceRecordID != "7" {
		t.Errorf("record = %+v", recs[0])
	}
	if want := "https://t.test/100/7"; recs[0].ExternalLink != want {
		t.Errorf("external link = %q, want %q", recs[0].ExternalLink, want)
	}

	f, err := store.FileByRemoteID(ctx, "R1")
	if err != nil {
		t.Fatalf("FileByRemoteID: %v", err)
	}
	if f == nil {
		t.Fatal("no file row registered")
	}
	if f.LocalPath != "" {
		t.Errorf("file local path = %q before download", f.LocalPath)
	}
	if client.downloadCount() != 1 {
		t.Errorf("downloads = %v, want one", client.downloads)
	}
}

func TestProcessMessageDuplicateSkipsFiles(t *testing.T) {
	ctx := context.Background()
	client := &fakeChatClient{
		channels: map[int64]chat.Channel{100: {ChatID: 100, Title: "chan"}},
	}
	p, _ := newTestProvider(t, client)

	msg := chat.UpdateNewMessage{Message: photoMessage(7, 100, 1700000000, "Hi")}
	for i := 0; i < 2; i++ {
		upd, err := parseUpdate(msg)
		if err != nil {
			t.Fatalf("parseUpdate: %v", err)
		}
		n, err := p.ProcessUpdates(ctx, upd)
		if err != nil {
			t.Fatalf("ProcessUpdates #%d: %v", i+1, err)
		}
		if want := 1 - i; n != want {
			t.Errorf("ProcessUpdates #%d = %d records, want %d", i+1, n, want)
		}
	}
	if client.downloadCount() != 1 {
		t.Errorf("downloads = %v, want exactly one despite replay", client.downloads)
	}
}

func TestFinalizeDownload(t *testing.T) {
	ctx := context.Background()
	client := &fakeChatClient{
		channels: map[int64]chat.Channel{100: {ChatID: 100, Title: "chan"}},
	}
	p, store := newTestProvider(t, client)

	upd, err := parseUpdate(chat.UpdateNewMessage{Message: photoMessage(7, 100, 1700000000, "Hi")})
	if err != nil {
		t.Fatalf("parseUpdate: %v", err)
	}
	if _, err := p.ProcessUpdates(ctx, upd); err != nil {
		t.Fatalf("ProcessUpdates: %v", err)
	}

	tmp := filepath.Join(t.TempDir(), "abc.jpg")
	if err := os.WriteFile(tmp, []byte("jpeg bytes"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ProcessUpdates(ctx, &DownloadUpdate{
		LocalPath: tmp, RemotePath: "photos/1.jpg", RemoteID: "R1",
	}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	want := filepath.Join(p.cfg.FilesDirectory, "abc.jpg")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("relocated file: %v", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("temporary file still present (err=%v)", err)
	}

	f, err := store.FileByRemoteID(ctx, "R1")
	if err != nil {
		t.Fatalf("FileByRemoteID: %v", err)
	}
	if f.LocalPath != want {
		t.Errorf("local path = %q, want %q", f.LocalPath, want)
	}
	if f.FileName != "abc.jpg" {
		t.Errorf("file name = %q, want abc.jpg", f.FileName)
	}
}

func TestFinalizeDownloadUnknownRemoteID(t *testing.T) {
	client := &fakeChatClient{}
	p, _ := newTestProvider(t, client)

	// No matching row: warn and drop, nothing renamed.
	tmp := filepath.Join(t.TempDir(), "orphan.bin")
	if err := os.WriteFile(tmp, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ProcessUpdates(context.Background(), &DownloadUpdate{
		LocalPath: tmp, RemoteID: "unknown",
	}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := os.Stat(tmp); err != nil {
		t.Errorf("orphan download was moved: %v", err)
	}
}

func TestSearchSource(t *testing.T) {
	ctx := context.Background()
	client := &fakeChatClient{
		searchResults: []chat.Channel{
			{ChatID: 100, Title: "alpha", Username: "alphachan"},
			{ChatID: 200, Title: "beta", Username: "betachan"},
		},
	}
	p, store := newTestProvider(t, client)

	srcs, err := p.SearchSource(ctx, "alpha")
	if err != nil {
		t.Fatalf("SearchSource: %v", err)
	}
	if len(srcs) != 2 {
		t.Fatalf("SearchSource = %d sources, want 2", len(srcs))
	}
	stored, err := store.Sources(ctx, model.KindTelegram)
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored sources = %d, want 2", len(stored))
	}
	if stored[0].ExternalLink == "" {
		t.Errorf("stored source missing username link: %+v", stored[0])
	}
}

func TestSynchronize(t *testing.T) {
	ctx := context.Background()
	now := time.Now().Unix()
	client := &fakeChatClient{
		channels: map[int64]chat.Channel{
			100: {ChatID: 100, Title: "chan", Username: "chanuser"},
		},
		history: map[int64][]chat.Message{
			100: {
				photoMessage(3, 100, now-10, "photo msg"),
				{ID: 2, ChatID: 100, Date: now - 20,
					Content: chat.MessagePoll{Question: "?"}}, // unsupported: skipped
				{ID: 1, ChatID: 100, Date: now - 30,
					Content: chat.MessageText{Text: chat.FormattedText{Text: "text msg"}}},
				{ID: 4, ChatID: 100, Date: now - 40,
					Content: chat.MessageCall{}}, // noise: skipped
			},
		},
	}
	p, store := newTestProvider(t, client)

	if err := p.Synchronize(ctx, 3600); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}

	srcs, err := store.Sources(ctx, model.KindTelegram)
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if len(srcs) != 1 {
		t.Fatalf("sources = %d, want 1", len(srcs))
	}
	recs, err := store.Records(ctx, srcs[0].ID, 10, 0)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want the photo and text messages", len(recs))
	}
	if client.downloadCount() != 1 {
		t.Errorf("downloads = %v, want the photo's", client.downloads)
	}

	// A second pass re-inserts nothing and queues no new downloads.
	if err := p.Synchronize(ctx, 3600); err != nil {
		t.Fatalf("Synchronize replay: %v", err)
	}
	recs, err = store.Records(ctx, srcs[0].ID, 10, 0)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("records after replay = %d, want 2", len(recs))
	}
	if client.downloadCount() != 1 {
		t.Errorf("downloads after replay = %v, want still one", client.downloads)
	}
}
