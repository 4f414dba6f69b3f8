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

// Package chat defines the port to the chat/channel network collector.
//
// The concrete protocol client (a tdlib-style library) lives outside
// this repository; the ingestion engine only depends on the Client
// interface and the update, message, and entity types below.
package chat // import "feedwire.org/pkg/chat"

import "context"

// Config carries the client knobs the embedding application provides.
type Config struct {
	APIID                int64
	APIHash              string
	PhoneNumber          string
	DatabaseDirectory    string
	LogVerbosityLevel    int
	MaxDownloadQueueSize int
}

// Channel is a chat/channel known to the collector.
type Channel struct {
	ChatID   int64
	Title    string
	Username string
}

// Client is the chat collector. Start, JoinChat, and DownloadFile
// mutate client state; the remaining calls are read-only RPCs.
//
// DownloadFile only queues the transfer; completion arrives later as
// an UpdateFileDownloaded on the update stream.
type Client interface {
	// Start connects and authorizes the client, and begins delivering
	// raw updates to the channel previously registered with
	// ListenUpdates. It returns once the update stream is live.
	Start(ctx context.Context) error

	// ListenUpdates registers the channel raw updates are forwarded
	// to. The client closes it when the upstream stream ends.
	ListenUpdates(ch chan<- Update)

	SearchPublicChats(ctx context.Context, query string) ([]Channel, error)

	// ChannelInfo returns the channel for the chat id, or nil if the
	// collector resolves none.
	ChannelInfo(ctx context.Context, chatID int64) (*Channel, error)

	// AllChannels lists up to limit channels the account is in.
	AllChannels(ctx context.Context, limit int) ([]Channel, error)

	// History iterates messages of a chat from newest to oldest,
	// stopping before messages older than untilUnix.
	History(ctx context.Context, chatID int64, untilUnix int64) MessageIterator

	MessageLink(ctx context.Context, chatID, messageID int64) (string, error)

	JoinChat(ctx context.Context, chatID int64) error

	DownloadFile(ctx context.Context, remotePath string) error
}

// MessageIterator iterates over a chat's history stream.
//
// An iterator must be closed after use, but it is not necessary to
// read it until exhaustion.
type MessageIterator interface {
	// Next moves to the next message, returning false when the stream
	// is exhausted or failed.
	Next() bool

	// Message returns the current message. Only valid after a call to
	// Next returns true.
	Message() *Message

	// Err returns the error that terminated iteration, if any.
	Err() error

	Close() error
}

// Update is a raw event delivered by the collector's update stream.
type Update interface {
	updateKind() string
}

// UpdateNewMessage reports a message newly posted to a chat.
type UpdateNewMessage struct {
	Message Message
}

// UpdateMessageEdited reports edited message content.
type UpdateMessageEdited struct {
	ChatID     int64
	MessageID  int64
	NewContent MessageContent
}

// UpdateFileDownloaded reports a completed file download. LocalPath is
// the temporary path the collector wrote the bytes to.
type UpdateFileDownloaded struct {
	LocalPath  string
	RemotePath string
	RemoteID   string
}

// UpdateChatPhoto, UpdateChatTitle, UpdateSupergroup, and
// UpdateSupergroupFullInfo report structural chat changes the engine
// does not represent.
type (
	UpdateChatPhoto          struct{ ChatID int64 }
	UpdateChatTitle          struct{ ChatID int64 }
	UpdateSupergroup         struct{ SupergroupID int64 }
	UpdateSupergroupFullInfo struct{ SupergroupID int64 }
)

func (UpdateNewMessage) updateKind() string         { return "NewMessage" }
func (UpdateMessageEdited) updateKind() string      { return "MessageEdited" }
func (UpdateFileDownloaded) updateKind() string     { return "FileDownloaded" }
func (UpdateChatPhoto) updateKind() string          { return "ChatPhoto" }
func (UpdateChatTitle) updateKind() string          { return "ChatTitle" }
func (UpdateSupergroup) updateKind() string         { return "Supergroup" }
func (UpdateSupergroupFullInfo) updateKind() string { return "SupergroupFullInfo" }

// Message is one chat message as delivered by the collector.
type Message struct {
	ID      int64
	ChatID  int64
	Date    int64 // unix seconds; zero if unknown
	Content MessageContent
}
