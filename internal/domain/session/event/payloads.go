// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package event

import (
	"encoding/json"

	"github.com/ManuGH/wabridge/internal/domain/session/model"
)

// Event envelope types.
const (
	TypeSessionStatus      = "session.status"
	TypeSessionQRCode      = "session.qrcode"
	TypeSessionPairingCode = "session.pairingcode"
	TypeMessageReceived    = "message.received"
	TypeMessageAck         = "message.ack"
	TypeMessageReaction    = "message.reaction"
	TypeContactUpdate      = "contact.update"
	TypeHistoryStatus      = "history.status"
)

type StatusPayload struct {
	SessionID     string       `json:"sessionId"`
	Status        model.Status `json:"status"`
	Number        string       `json:"number,omitempty"`
	ProfilePicURL string       `json:"profilePicUrl,omitempty"`
}

type QRCodePayload struct {
	SessionID     string `json:"sessionId"`
	QRCode        string `json:"qrcode"`
	QRCodeDataURL string `json:"qrcodeDataUrl,omitempty"`
}

type PairingCodePayload struct {
	SessionID   string `json:"sessionId"`
	PairingCode string `json:"pairingCode"`
	PhoneNumber string `json:"phoneNumber"`
}

// MessagePayload is the message.received body. Timestamp is unix seconds.
type MessagePayload struct {
	SessionID        string           `json:"sessionId"`
	ID               string           `json:"id"`
	From             string           `json:"from"`
	To               string           `json:"to"`
	Body             string           `json:"body"`
	FromMe           bool             `json:"fromMe"`
	IsGroup          bool             `json:"isGroup"`
	Type             string           `json:"type"`
	Timestamp        int64            `json:"timestamp"`
	HasMedia         bool             `json:"hasMedia"`
	MediaData        string           `json:"mediaData,omitempty"`
	Mimetype         string           `json:"mimetype,omitempty"`
	Filename         string           `json:"filename,omitempty"`
	SelectedButtonID string           `json:"selectedButtonId,omitempty"`
	SelectedRowID    string           `json:"selectedRowId,omitempty"`
	SelectedOptions  []string         `json:"selectedOptions,omitempty"`
	PollID           string           `json:"pollId,omitempty"`
	PushName         string           `json:"pushName"`
	Participant      string           `json:"participant"`
	ProfilePicURL    string           `json:"profilePicUrl,omitempty"`
	SenderLID        string           `json:"senderLid,omitempty"`
	OriginalID       string           `json:"originalId,omitempty"`
	QuotedMsgID      string           `json:"quotedMsgId,omitempty"`
	QuotedMsg        *QuotedPayload   `json:"quotedMsg,omitempty"`
	URLPreview       *PreviewPayload  `json:"urlPreview,omitempty"`
	Location         *LocationPayload `json:"location,omitempty"`
	VCard            string           `json:"vcard,omitempty"`
	IsHistory        bool             `json:"isHistory,omitempty"`
}

type QuotedPayload struct {
	ID          string `json:"id"`
	Body        string `json:"body"`
	Participant string `json:"participant,omitempty"`
}

type PreviewPayload struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
	MatchedText string `json:"matchedText,omitempty"`
}

type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
}

type AckPayload struct {
	SessionID string    `json:"sessionId"`
	MessageID string    `json:"messageId"`
	Ack       model.Ack `json:"ack"`
}

type ReactionPayload struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
	From      string `json:"from"`
	Reaction  string `json:"reaction"`
	FromMe    bool   `json:"fromMe"`
	Timestamp int64  `json:"timestamp"`
}

// ContactPayload carries contactId back verbatim so the caller can correlate.
type ContactPayload struct {
	SessionID     string          `json:"sessionId"`
	ID            string          `json:"id"`
	ContactID     json.RawMessage `json:"contactId,omitempty"`
	Name          string          `json:"name,omitempty"`
	PushName      string          `json:"pushName,omitempty"`
	ProfilePicURL string          `json:"profilePicUrl,omitempty"`
	LID           string          `json:"lid,omitempty"`
	IsGroup       bool            `json:"isGroup"`
}

// History sync states.
const (
	HistoryUnsupported = "unsupported"
	HistoryInProgress  = "in_progress"
	HistoryCompleted   = "completed"
)

type HistoryPayload struct {
	SessionID string          `json:"sessionId"`
	TicketID  json.RawMessage `json:"ticketId,omitempty"`
	ContactID json.RawMessage `json:"contactId,omitempty"`
	Status    string          `json:"status"`
	Progress  *int            `json:"progress,omitempty"`
	Messages  int             `json:"messages,omitempty"`
}
