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
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"feedwire.org/pkg/chat"
	"feedwire.org/pkg/ingest"
	"feedwire.org/pkg/model"
)

// parseUpdate converts one raw collector update into an engine
// update. A nil, nil return means the update is deliberately ignored.
func parseUpdate(upd chat.Update) (ingest.Update, error) {
	switch u := upd.(type) {
	case chat.UpdateNewMessage:
		text, files, err := parseContent(u.Message.Content)
		if err != nil {
			return nil, err
		}
		if text == nil && files == nil {
			return nil, nil
		}
		mu := &MessageUpdate{
			MessageID: u.Message.ID,
			ChatID:    u.Message.ChatID,
			Date:      u.Message.Date,
			Files:     files,
		}
		if text != nil {
			mu.Content = *text
		}
		return mu, nil
	case chat.UpdateMessageEdited:
		text, _, err := parseContent(u.NewContent)
		if err != nil {
			return nil, err
		}
		if text == nil {
			return nil, nil
		}
		return &MessageUpdate{
			MessageID: u.MessageID,
			ChatID:    u.ChatID,
			Content:   *text,
		}, nil
	case chat.UpdateFileDownloaded:
		return &DownloadUpdate{
			LocalPath:  u.LocalPath,
			RemotePath: u.RemotePath,
			RemoteID:   u.RemoteID,
		}, nil
	case chat.UpdateChatPhoto:
		return nil, &ingest.NotSupportedError{Kind: "UpdateChatPhoto"}
	case chat.UpdateChatTitle:
		return nil, &ingest.NotSupportedError{Kind: "UpdateChatTitle"}
	case chat.UpdateSupergroup:
		return nil, &ingest.NotSupportedError{Kind: "UpdateSupergroup"}
	case chat.UpdateSupergroupFullInfo:
		return nil, &ingest.NotSupportedError{Kind: "UpdateSupergroupFullInfo"}
	default:
		return nil, fmt.Errorf("telegram: unexpected collector update %T", upd)
	}
}

// parseContent normalizes one message content variant into rendered
// text and attachment descriptors. Structural events the engine does
// not represent fail with NotSupportedError; system noise returns
// (nil, nil, nil).
func parseContent(c chat.MessageContent) (*string, []FileRef, error) {
	switch m := c.(type) {
	case nil:
		return nil, nil, nil

	case chat.MessageText:
		return renderText(m.Text), nil, nil

	case chat.MessagePhoto:
		files := make([]FileRef, 0, len(m.Sizes))
		for _, s := range m.Sizes {
			files = append(files, FileRef{
				RemotePath: s.File.Path,
				RemoteID:   s.File.UniqueID,
				Type:       model.FileImage,
				Meta:       metaJSON(imageMeta{Width: s.Width, Height: s.Height}),
			})
		}
		return renderText(m.Caption), files, nil

	case chat.MessageDocument:
		return renderText(m.Caption), []FileRef{{
			RemotePath: m.File.Path,
			RemoteID:   m.File.UniqueID,
			FileName:   m.FileName,
			Type:       model.FileDocument,
			Meta:       metaJSON(documentMeta{MimeType: m.MimeType}),
		}}, nil

	case chat.MessageAnimation:
		return renderText(m.Caption), []FileRef{{
			RemotePath: m.File.Path,
			RemoteID:   m.File.UniqueID,
			FileName:   m.FileName,
			Type:       model.FileAnimation,
			Meta: metaJSON(animationMeta{
				Width:    m.Width,
				Height:   m.Height,
				Duration: m.Duration,
				MimeType: m.MimeType,
			}),
		}}, nil

	case chat.MessageAudio:
		return renderText(m.Caption), nil, nil

	case chat.MessageVideo:
		return renderText(m.Caption), nil, nil

	case chat.MessageSticker:
		return nil, []FileRef{{
			RemotePath: m.File.Path,
			RemoteID:   m.File.UniqueID,
			Type:       model.FileImage,
			Meta:       metaJSON(imageMeta{Width: m.Width, Height: m.Height}),
		}}, nil

	case chat.MessageChatChangePhoto,
		chat.MessageChatChangeTitle,
		chat.MessageChatDeletePhoto,
		chat.MessageChatJoinByLink,
		chat.MessageChatUpgradeFrom,
		chat.MessageChatUpgradeTo,
		chat.MessageContact,
		chat.MessageContactRegistered,
		chat.MessageCustomServiceAction,
		chat.MessageExpiredPhoto,
		chat.MessageExpiredVideo,
		chat.MessageInvoice,
		chat.MessageLocation,
		chat.MessagePassportDataReceived,
		chat.MessagePoll,
		chat.MessageScreenshotTaken,
		chat.MessageSupergroupChatCreate,
		chat.MessageVenue,
		chat.MessageVideoNote,
		chat.MessageVoiceNote,
		chat.MessageWebsiteConnected:
		return nil, nil, &ingest.NotSupportedError{Kind: c.Kind()}

	case chat.MessageBasicGroupChatCreate,
		chat.MessageCall,
		chat.MessageChatAddMembers,
		chat.MessageChatDeleteMember,
		chat.MessageChatSetTTL,
		chat.MessageGame,
		chat.MessageGameScore,
		chat.MessagePassportDataSent,
		chat.MessagePaymentSuccessful,
		chat.MessagePaymentSuccessfulBot,
		chat.MessagePinMessage,
		chat.MessageUnsupported:
		return nil, nil, nil

	default:
		return nil, nil, &ingest.NotSupportedError{Kind: c.Kind()}
	}
}

func renderText(ft chat.FormattedText) *string {
	s := renderFormattedText(ft)
	return &s
}

type imageMeta struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type documentMeta struct {
	MimeType string `json:"mimeType"`
}

type animationMeta struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Duration int    `json:"duration"`
	MimeType string `json:"mimeType"`
}

func metaJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// renderFormattedText flattens inline entity spans into HTML-flavored
// text. It builds (offset, tag) events, one opener at the entity's
// offset and one closer past its last character, sorts them, and
// walks the text one code point at a time, emitting events whose
// offset matches. Offsets count Unicode code points, not bytes.
func renderFormattedText(ft chat.FormattedText) string {
	if len(ft.Entities) == 0 {
		return ft.Text
	}

	type event struct {
		offset int
		tag    string
	}
	var events []event
	for _, e := range ft.Entities {
		open, close, ok := entityTags(e.Type)
		if !ok {
			continue
		}
		events = append(events, event{e.Offset, open})
		if close != "" {
			events = append(events, event{e.Offset + e.Length, close})
		}
	}
	if len(events) == 0 {
		return ft.Text
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].offset < events[j].offset })

	var b strings.Builder
	next := 0
	for i, r := range []rune(ft.Text) {
		for next < len(events) && events[next].offset == i {
			b.WriteString(events[next].tag)
			next++
		}
		b.WriteRune(r)
	}
	for ; next < len(events); next++ {
		b.WriteString(events[next].tag)
	}
	return b.String()
}

// entityTags returns the tag pair of a span kind. Mentions, emails,
// bot commands, and cashtags carry no formatting.
func entityTags(t chat.TextEntityType) (open, close string, ok bool) {
	switch t.Kind {
	case chat.EntityBold:
		return "<b>", "</b>", true
	case chat.EntityCode:
		return "<code>", "</code>", true
	case chat.EntityHashtag:
		return "#", "", true
	case chat.EntityItalic:
		return "<i>", "</i>", true
	case chat.EntityPhoneNumber:
		return "<phone>", "</phone>", true
	case chat.EntityPre:
		return "<pre>", "</pre>", true
	case chat.EntityPreCode:
		return "<pre><code>", "</code></pre>", true
	case chat.EntityStrikethrough:
		return "<strike>", "</strike>", true
	case chat.EntityUnderline:
		return "<u>", "</u>", true
	case chat.EntityURL:
		return "<a>", "</a>", true
	case chat.EntityTextURL:
		return fmt.Sprintf("<a href=%q>", t.URL), "</a>", true
	}
	return "", "", false
}
