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

// Package model defines the persistent entities shared by the storage
// layer and the source providers: sources, records, and files.
package model // import "feedwire.org/pkg/model"

import (
	"fmt"
	"time"
)

// SourceKind identifies the upstream protocol a Source belongs to.
type SourceKind string

const (
	KindWeb      SourceKind = "WEB"
	KindTelegram SourceKind = "TELEGRAM"
)

func (k SourceKind) String() string { return string(k) }

// ParseSourceKind maps a kind name to a SourceKind.
func ParseSourceKind(s string) (SourceKind, error) {
	switch SourceKind(s) {
	case KindWeb:
		return KindWeb, nil
	case KindTelegram:
		return KindTelegram, nil
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}

// A Source is a known upstream: a feed URL for KindWeb, a chat for
// KindTelegram. (Origin, Kind) is unique; Origin is the kind-specific
// identity string (feed URL, or the chat id in decimal).
type Source struct {
	ID             int64
	Name           string
	Origin         string
	Kind           SourceKind
	Image          string // optional
	LastScrapeTime time.Time
	ExternalLink   string
}

// NewSource is a Source about to be persisted for the first time.
// Upserting it by (Origin, Kind) never reassigns an existing ID and
// updates only Name.
type NewSource struct {
	Name         string
	Origin       string
	Kind         SourceKind
	Image        string
	ExternalLink string
}

// A Record is a single ingested item. (SourceRecordID, SourceID) is
// unique; SourceRecordID is the upstream's stable id (feed item GUID,
// or the chat message id in decimal).
type Record struct {
	ID             int64
	Title          string // optional
	SourceRecordID string
	SourceID       int64
	Content        string
	Date           time.Time
	Image          string // optional
	ExternalLink   string
}

// NewRecord is a Record about to be upserted. A zero Date persists as
// the ingestion time. On conflict only Content is updated.
type NewRecord struct {
	Title          string
	SourceRecordID string
	SourceID       int64
	Content        string
	Date           time.Time
	Image          string
}

// FileType classifies a binary attachment.
type FileType string

const (
	FileDocument  FileType = "DOCUMENT"
	FileAnimation FileType = "ANIMATION"
	FileImage     FileType = "IMAGE"
)

// A File is a binary attachment of a Record. RemoteID is globally
// unique; LocalPath stays empty until the download has completed and
// the file has been moved into the configured files directory.
type File struct {
	ID         int64
	RecordID   int64
	Kind       SourceKind
	LocalPath  string // optional; set on download completion
	RemotePath string
	RemoteID   string // optional; unique handle in the remote system
	FileName   string // optional
	Type       FileType
	Meta       string // optional; serialized type-specific metadata
}

// NewFile is a File row about to be registered, before any download
// has happened.
type NewFile struct {
	RecordID   int64
	Kind       SourceKind
	RemotePath string
	RemoteID   string
	FileName   string
	Type       FileType
	Meta       string
}
