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

// Package telegram is the source provider for chat channels. It
// subscribes to the chat collector's update stream, normalizes
// messages into records, and owns the attachment download lifecycle:
// register file rows, queue downloads, and relocate finished
// downloads into the configured files directory.
package telegram // import "feedwire.org/pkg/ingest/telegram"

import (
	"strconv"
	"sync"

	"feedwire.org/pkg/chat"
	"feedwire.org/pkg/model"
	"feedwire.org/pkg/storage"
)

type Config struct {
	// FilesDirectory is where finished downloads are moved. It must
	// be on the same filesystem as the collector's download
	// directory for the rename to be atomic.
	FilesDirectory string

	// LogDownloadStateSecsInterval is how often the pending download
	// count is logged. Zero disables the report.
	LogDownloadStateSecsInterval int
}

// A MessageUpdate is one normalized chat message headed for storage.
type MessageUpdate struct {
	MessageID int64
	ChatID    int64
	Date      int64 // unix seconds; zero if unknown
	Content   string
	Files     []FileRef
}

func (*MessageUpdate) SourceKind() model.SourceKind { return model.KindTelegram }

// A FileRef describes one attachment of a message before it has a
// database row.
type FileRef struct {
	RemotePath string
	RemoteID   string
	FileName   string
	Type       model.FileType
	Meta       string
}

// A DownloadUpdate reports a finished download to be relocated and
// persisted.
type DownloadUpdate struct {
	LocalPath  string
	RemotePath string
	RemoteID   string
}

func (*DownloadUpdate) SourceKind() model.SourceKind { return model.KindTelegram }

// Provider implements ingest.SourceProvider for chat channels.
//
// The chat client is shared between the listening goroutine and RPC
// callers under a reader-writer lock: Start, JoinChat, and
// DownloadFile take the write side, the read-only RPCs the read side.
type Provider struct {
	cfg   Config
	store storage.Storage

	mu     sync.RWMutex
	client chat.Client

	pending int64 // downloads queued but not yet finalized
}

func New(cfg Config, store storage.Storage, client chat.Client) *Provider {
	return &Provider{
		cfg:    cfg,
		store:  store,
		client: client,
	}
}

func (p *Provider) SourceKind() model.SourceKind { return model.KindTelegram }

func chatOrigin(chatID int64) string { return strconv.FormatInt(chatID, 10) }

func sourceFromChannel(ch chat.Channel) model.NewSource {
	return model.NewSource{
		Name:         ch.Title,
		Origin:       chatOrigin(ch.ChatID),
		Kind:         model.KindTelegram,
		ExternalLink: ch.Username,
	}
}
