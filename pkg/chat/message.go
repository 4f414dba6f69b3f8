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

package chat

// MessageContent is the tagged content variant of a Message. Kind
// returns the variant name, used in diagnostics and in "update not
// supported" errors.
type MessageContent interface {
	Kind() string
}

// RemoteFile identifies a file in the remote system. Path is the
// handle passed back to Client.DownloadFile; UniqueID is stable and
// globally unique.
type RemoteFile struct {
	Path     string
	UniqueID string
}

// FormattedText is text plus inline entity spans. Offsets and lengths
// are in Unicode code points, not bytes.
type FormattedText struct {
	Text     string
	Entities []TextEntity
}

type TextEntity struct {
	Offset int
	Length int
	Type   TextEntityType
}

// TextEntityType tags one inline span kind. URL is set for
// EntityTextURL only.
type TextEntityType struct {
	Kind EntityKind
	URL  string
}

type EntityKind int

const (
	EntityBold EntityKind = iota
	EntityBotCommand
	EntityCashtag
	EntityCode
	EntityEmailAddress
	EntityHashtag
	EntityItalic
	EntityMention
	EntityMentionName
	EntityPhoneNumber
	EntityPre
	EntityPreCode
	EntityStrikethrough
	EntityTextURL
	EntityUnderline
	EntityURL
)

// Textual and attachment content.

type MessageText struct {
	Text FormattedText
}

type MessagePhoto struct {
	Sizes   []PhotoSize
	Caption FormattedText
}

type PhotoSize struct {
	File   RemoteFile
	Width  int
	Height int
}

type MessageDocument struct {
	File     RemoteFile
	FileName string
	MimeType string
	Caption  FormattedText
}

type MessageAnimation struct {
	File     RemoteFile
	FileName string
	MimeType string
	Width    int
	Height   int
	Duration int // seconds
	Caption  FormattedText
}

type MessageAudio struct {
	File     RemoteFile
	FileName string
	Duration int
	Caption  FormattedText
}

type MessageVideo struct {
	File     RemoteFile
	FileName string
	Duration int
	Caption  FormattedText
}

type MessageSticker struct {
	File   RemoteFile
	Width  int
	Height int
	Emoji  string
}

func (MessageText) Kind() string      { return "MessageText" }
func (MessagePhoto) Kind() string     { return "MessagePhoto" }
func (MessageDocument) Kind() string  { return "MessageDocument" }
func (MessageAnimation) Kind() string { return "MessageAnimation" }
func (MessageAudio) Kind() string     { return "MessageAudio" }
func (MessageVideo) Kind() string     { return "MessageVideo" }
func (MessageSticker) Kind() string   { return "MessageSticker" }

// Structural events the engine refuses to represent. Parsing them
// yields an "update not supported" error, which batch contexts treat
// as a skip.

type (
	MessageChatChangePhoto       struct{}
	MessageChatChangeTitle       struct{ Title string }
	MessageChatDeletePhoto       struct{}
	MessageChatJoinByLink        struct{}
	MessageChatUpgradeFrom       struct{ BasicGroupID int64 }
	MessageChatUpgradeTo         struct{ SupergroupID int64 }
	MessageContact               struct{}
	MessageContactRegistered     struct{}
	MessageCustomServiceAction   struct{ Text string }
	MessageExpiredPhoto          struct{}
	MessageExpiredVideo          struct{}
	MessageInvoice               struct{ Title string }
	MessageLocation              struct{}
	MessagePassportDataReceived  struct{}
	MessagePoll                  struct{ Question string }
	MessageScreenshotTaken       struct{}
	MessageSupergroupChatCreate  struct{ Title string }
	MessageVenue                 struct{}
	MessageVideoNote             struct{}
	MessageVoiceNote             struct{}
	MessageWebsiteConnected      struct{ Domain string }
)

func (MessageChatChangePhoto) Kind() string      { return "MessageChatChangePhoto" }
func (MessageChatChangeTitle) Kind() string      { return "MessageChatChangeTitle" }
func (MessageChatDeletePhoto) Kind() string      { return "MessageChatDeletePhoto" }
func (MessageChatJoinByLink) Kind() string       { return "MessageChatJoinByLink" }
func (MessageChatUpgradeFrom) Kind() string      { return "MessageChatUpgradeFrom" }
func (MessageChatUpgradeTo) Kind() string        { return "MessageChatUpgradeTo" }
func (MessageContact) Kind() string              { return "MessageContact" }
func (MessageContactRegistered) Kind() string    { return "MessageContactRegistered" }
func (MessageCustomServiceAction) Kind() string  { return "MessageCustomServiceAction" }
func (MessageExpiredPhoto) Kind() string         { return "MessageExpiredPhoto" }
func (MessageExpiredVideo) Kind() string         { return "MessageExpiredVideo" }
func (MessageInvoice) Kind() string              { return "MessageInvoice" }
func (MessageLocation) Kind() string             { return "MessageLocation" }
func (MessagePassportDataReceived) Kind() string { return "MessagePassportDataReceived" }
func (MessagePoll) Kind() string                 { return "MessagePoll" }
func (MessageScreenshotTaken) Kind() string      { return "MessageScreenshotTaken" }
func (MessageSupergroupChatCreate) Kind() string { return "MessageSupergroupChatCreate" }
func (MessageVenue) Kind() string                { return "MessageVenue" }
func (MessageVideoNote) Kind() string            { return "MessageVideoNote" }
func (MessageVoiceNote) Kind() string            { return "MessageVoiceNote" }
func (MessageWebsiteConnected) Kind() string     { return "MessageWebsiteConnected" }

// System events silently ignored during parsing.

type (
	MessageBasicGroupChatCreate struct{ Title string }
	MessageCall                 struct{}
	MessageChatAddMembers       struct{}
	MessageChatDeleteMember     struct{}
	MessageChatSetTTL           struct{}
	MessageGame                 struct{}
	MessageGameScore            struct{}
	MessagePassportDataSent     struct{}
	MessagePaymentSuccessful    struct{}
	MessagePaymentSuccessfulBot struct{}
	MessagePinMessage           struct{ MessageID int64 }
	MessageUnsupported          struct{}
)

func (MessageBasicGroupChatCreate) Kind() string { return "MessageBasicGroupChatCreate" }
func (MessageCall) Kind() string                 { return "MessageCall" }
func (MessageChatAddMembers) Kind() string       { return "MessageChatAddMembers" }
func (MessageChatDeleteMember) Kind() string     { return "MessageChatDeleteMember" }
func (MessageChatSetTTL) Kind() string           { return "MessageChatSetTTL" }
func (MessageGame) Kind() string                 { return "MessageGame" }
func (MessageGameScore) Kind() string            { return "MessageGameScore" }
func (MessagePassportDataSent) Kind() string     { return "MessagePassportDataSent" }
func (MessagePaymentSuccessful) Kind() string    { return "MessagePaymentSuccessful" }
func (MessagePaymentSuccessfulBot) Kind() string { return "MessagePaymentSuccessfulBot" }
func (MessagePinMessage) Kind() string           { return "MessagePinMessage" }
func (MessageUnsupported) Kind() string          { return "MessageUnsupported" }
