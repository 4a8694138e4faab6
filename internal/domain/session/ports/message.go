// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"strings"
	"time"
)

// InboundMessage is a protocol message reduced to the fields the orchestrator
// decodes. Exactly one content field is normally set.
type InboundMessage struct {
	ID        string
	Chat      string
	Sender    string
	SenderAlt string
	FromMe    bool
	IsGroup   bool
	PushName  string
	Timestamp time.Time
	Content   MessageContent
}

// MessageContent is the decoded body of a message.
type MessageContent struct {
	Text             string
	ExtendedText     *ExtendedText
	Media            *Media
	ButtonReply      *ButtonReply
	ListReply        *ListReply
	TemplateReply    *ButtonReply
	InteractiveReply *InteractiveReply
	PollCreation     *PollCreation
	PollVote         *PollVote
	Location         *Location
	Contact          *ContactCard
	Quoted           *QuotedInfo
}

// IsEmpty reports whether the message carried nothing the pipeline understands
// (protocol-only stanzas such as key distribution).
func (c MessageContent) IsEmpty() bool {
	return c.Text == "" && c.ExtendedText == nil && c.Media == nil && c.ButtonReply == nil &&
		c.ListReply == nil && c.TemplateReply == nil && c.InteractiveReply == nil &&
		c.PollCreation == nil && c.PollVote == nil && c.Location == nil && c.Contact == nil
}

type ExtendedText struct {
	Text    string
	Preview *LinkPreview
}

type LinkPreview struct {
	Title       string
	Description string
	URL         string
	MatchedText string
}

// MediaKind names the media message variants.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaVoice    MediaKind = "ptt"
	MediaDocument MediaKind = "document"
	MediaSticker  MediaKind = "sticker"
)

// MediaKindFor picks the media variant for a mimetype.
func MediaKindFor(mimetype string) MediaKind {
	switch {
	case strings.HasPrefix(mimetype, "image/webp"):
		return MediaSticker
	case strings.HasPrefix(mimetype, "image/"):
		return MediaImage
	case strings.HasPrefix(mimetype, "video/"):
		return MediaVideo
	case strings.HasPrefix(mimetype, "audio/ogg"):
		return MediaVoice
	case strings.HasPrefix(mimetype, "audio/"):
		return MediaAudio
	}
	return MediaDocument
}

// Media describes an attachment. Ref is an adapter-owned download handle;
// Data is set when the bytes are already local (self-sent media).
type Media struct {
	Kind     MediaKind
	Mimetype string
	Filename string
	Caption  string
	Ref      any
	Data     []byte
}

type ButtonReply struct {
	ID   string
	Text string
}

type ListReply struct {
	RowID string
	Title string
}

type InteractiveReply struct {
	ID   string
	Body string
}

type PollCreation struct {
	Name    string
	Options []string
}

type PollVote struct {
	PollID  string
	Options []string
}

type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
}

type ContactCard struct {
	DisplayName string
	VCard       string
}

type QuotedInfo struct {
	ID     string
	Sender string
	Body   string
}
