// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package command

import (
	"bytes"
	"encoding/json"

	"github.com/ManuGH/wabridge/internal/broker"
)

// FlexString accepts JSON strings and numbers. Phone numbers routinely
// arrive as either.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

type StartSession struct {
	SessionID      string     `json:"sessionId"`
	Force          bool       `json:"force,omitempty"`
	ClearAuth      bool       `json:"clearAuth,omitempty"`
	UsePairingCode bool       `json:"usePairingCode,omitempty"`
	PhoneNumber    FlexString `json:"phoneNumber,omitempty"`
	KeepAlive      bool       `json:"keepAlive,omitempty"`
	SyncHistory    bool       `json:"syncHistory,omitempty"`
	SyncPeriod     int        `json:"syncPeriod,omitempty"`
}

type StopSession struct {
	SessionID string `json:"sessionId"`
}

type TextOptions struct {
	QuotedMsgID string `json:"quotedMsgId,omitempty"`
}

type SendText struct {
	SessionID string      `json:"sessionId"`
	To        FlexString  `json:"to"`
	Body      string      `json:"body"`
	MessageID string      `json:"messageId,omitempty"`
	LID       string      `json:"lid,omitempty"`
	Options   TextOptions `json:"options,omitempty"`
}

type MediaData struct {
	Data     string `json:"data"`
	Mimetype string `json:"mimetype"`
	Filename string `json:"filename,omitempty"`
}

type SendMedia struct {
	SessionID string     `json:"sessionId"`
	To        FlexString `json:"to"`
	Media     MediaData  `json:"media"`
	Caption   string     `json:"caption,omitempty"`
	MessageID string     `json:"messageId,omitempty"`
	LID       string     `json:"lid,omitempty"`
}

type ReplyButton struct {
	ButtonID   string `json:"buttonId"`
	ButtonText string `json:"buttonText"`
}

type SendButtons struct {
	SessionID string        `json:"sessionId"`
	To        FlexString    `json:"to"`
	Text      string        `json:"text"`
	Footer    string        `json:"footer,omitempty"`
	Buttons   []ReplyButton `json:"buttons"`
	ImageURL  string        `json:"imageUrl,omitempty"`
	MessageID string        `json:"messageId,omitempty"`
	LID       string        `json:"lid,omitempty"`
}

type ListRow struct {
	RowID       string `json:"rowId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

type SendList struct {
	SessionID  string        `json:"sessionId"`
	To         FlexString    `json:"to"`
	Title      string        `json:"title,omitempty"`
	Text       string        `json:"text"`
	Footer     string        `json:"footer,omitempty"`
	ButtonText string        `json:"buttonText"`
	Sections   []ListSection `json:"sections"`
	MessageID  string        `json:"messageId,omitempty"`
	LID        string        `json:"lid,omitempty"`
}

type SendPoll struct {
	SessionID       string     `json:"sessionId"`
	To              FlexString `json:"to"`
	Name            string     `json:"name"`
	Options         []string   `json:"options"`
	SelectableCount int        `json:"selectableCount,omitempty"`
	MessageID       string     `json:"messageId,omitempty"`
	LID             string     `json:"lid,omitempty"`
}

// ActionButton is a call-to-action or quick reply button. Which fields are
// used depends on Type (url, call or quickReply).
type ActionButton struct {
	Type        string     `json:"type"`
	Text        string     `json:"text"`
	URL         string     `json:"url,omitempty"`
	PhoneNumber FlexString `json:"phoneNumber,omitempty"`
	ID          string     `json:"id,omitempty"`
}

type SendTemplate struct {
	SessionID string         `json:"sessionId"`
	To        FlexString     `json:"to"`
	Text      string         `json:"text"`
	Footer    string         `json:"footer,omitempty"`
	Buttons   []ActionButton `json:"buttons"`
	MediaURL  string         `json:"mediaUrl,omitempty"`
	MessageID string         `json:"messageId,omitempty"`
	LID       string         `json:"lid,omitempty"`
}

type SendInteractive struct {
	SessionID string         `json:"sessionId"`
	To        FlexString     `json:"to"`
	Text      string         `json:"text"`
	Footer    string         `json:"footer,omitempty"`
	Buttons   []ActionButton `json:"buttons"`
	MediaURL  string         `json:"mediaUrl,omitempty"`
	MessageID string         `json:"messageId,omitempty"`
	LID       string         `json:"lid,omitempty"`
}

type CarouselCard struct {
	HeaderURL string         `json:"headerUrl,omitempty"`
	Body      string         `json:"body"`
	Footer    string         `json:"footer,omitempty"`
	Buttons   []ActionButton `json:"buttons"`
}

type SendCarousel struct {
	SessionID string         `json:"sessionId"`
	To        FlexString     `json:"to"`
	Text      string         `json:"text"`
	Footer    string         `json:"footer,omitempty"`
	Cards     []CarouselCard `json:"cards"`
	MessageID string         `json:"messageId,omitempty"`
	LID       string         `json:"lid,omitempty"`
}

// SyncContact echoes ContactID back verbatim on contact.update.
type SyncContact struct {
	SessionID string          `json:"sessionId"`
	Number    FlexString      `json:"number"`
	LID       string          `json:"lid,omitempty"`
	IsGroup   bool            `json:"isGroup,omitempty"`
	ContactID json.RawMessage `json:"contactId,omitempty"`
}

type MarkAsRead struct {
	SessionID  string     `json:"sessionId"`
	To         FlexString `json:"to"`
	MessageIDs []string   `json:"messageIds"`
}

type ImportContacts struct {
	SessionID string `json:"sessionId"`
}

type SyncHistory struct {
	SessionID     string           `json:"sessionId"`
	ContactNumber FlexString       `json:"contactNumber"`
	FromDate      broker.Timestamp `json:"fromDate"`
	ToDate        broker.Timestamp `json:"toDate,omitempty"`
	TicketID      json.RawMessage  `json:"ticketId,omitempty"`
	ContactID     json.RawMessage  `json:"contactId,omitempty"`
}
