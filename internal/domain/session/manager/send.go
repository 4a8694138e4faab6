// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/ManuGH/wabridge/internal/domain/session/command"
	"github.com/ManuGH/wabridge/internal/domain/session/event"
	"github.com/ManuGH/wabridge/internal/domain/session/model"
	"github.com/ManuGH/wabridge/internal/domain/session/ports"
	xlog "github.com/ManuGH/wabridge/internal/log"
	"github.com/ManuGH/wabridge/internal/telemetry"
)

// Outbound message kinds, used for logs, metrics and span attributes.
const (
	kindText        = "text"
	kindMedia       = "media"
	kindButtons     = "buttons"
	kindList        = "list"
	kindPoll        = "poll"
	kindTemplate    = "template"
	kindInteractive = "interactive"
	kindCarousel    = "carousel"
)

// protocolIDRe matches ids that already have the protocol's own format and
// can be sent as-is.
var protocolIDRe = regexp.MustCompile(`^(3EB0)?[0-9A-F]{16,32}$`)

// IsProtocolMessageID reports whether id may be reused as the wire id.
func IsProtocolMessageID(id string) bool {
	return protocolIDRe.MatchString(id)
}

type outbound struct {
	sessionID string
	to        string
	lid       string
	messageID string
	kind      string
	check     func() error
	build     func() (ports.Content, error)
}

// send never returns an error: failures become an ack 5 for callers that
// supplied a message id and a log line for the rest.
func (o *Orchestrator) send(ctx context.Context, tenantID string, out outbound) error {
	ctx, span := otel.Tracer("wabridge/manager").Start(ctx, "send "+out.kind)
	span.SetAttributes(telemetry.MessageAttributes(out.messageID, out.kind)...)

	l := xlog.WithContext(ctx, o.logger).With().
		Str(xlog.FieldSessionID, out.sessionID).
		Str(xlog.FieldTenantID, tenantID).
		Str(xlog.FieldMessageID, out.messageID).
		Str("kind", out.kind).
		Logger()

	e, c := o.liveClient(out.sessionID)
	if e == nil || c == nil {
		l.Warn().Str(xlog.FieldEvent, "send.no_session").Msg("send for unknown session")
		sendsTotal.WithLabelValues(out.kind, "no_session").Inc()
		o.ackError(ctx, tenantID, out)
		telemetry.EndSpan(span, fmt.Errorf("session %q not connected", out.sessionID), "no_session")
		return nil
	}
	tenantID = e.tenantID

	err := o.deliver(ctx, e, c, out)
	if errors.Is(err, command.ErrInvalidContent) {
		l.Warn().Err(err).Str(xlog.FieldEvent, "send.invalid").Msg("message content rejected")
		sendsTotal.WithLabelValues(out.kind, "invalid").Inc()
		o.ackError(ctx, tenantID, out)
		telemetry.EndSpan(span, err, "invalid_content")
		return nil
	}
	if err != nil {
		l.Error().Err(err).Str(xlog.FieldEvent, "send.failed").Msg("message send failed")
		sendsTotal.WithLabelValues(out.kind, "failed").Inc()
		o.ackError(ctx, tenantID, out)
		telemetry.EndSpan(span, err, "send_failed")
		return nil
	}
	sendsTotal.WithLabelValues(out.kind, "sent").Inc()
	telemetry.EndSpan(span, nil, "")
	return nil
}

func (o *Orchestrator) ackError(ctx context.Context, tenantID string, out outbound) {
	if out.messageID == "" {
		return
	}
	_ = o.events.Ack(ctx, tenantID, event.AckPayload{
		SessionID: out.sessionID,
		MessageID: out.messageID,
		Ack:       model.AckError,
	})
}

// deliver resolves the recipient, builds content, sends it and feeds the sent
// message back through the inbound pipeline tagged with the caller's id.
func (o *Orchestrator) deliver(ctx context.Context, e *sessionEntry, c ports.Client, out outbound) error {
	if out.check != nil {
		if err := out.check(); err != nil {
			return err
		}
	}
	to, err := c.ResolveRecipient(ctx, out.to, out.lid)
	if err != nil {
		return fmt.Errorf("resolve recipient %q: %w", out.to, err)
	}
	content, err := out.build()
	if err != nil {
		return fmt.Errorf("build %s content: %w", out.kind, err)
	}

	id := out.messageID
	if !IsProtocolMessageID(id) {
		id = c.GenerateMessageID()
	}
	o.dedup.Add(id)
	res, err := c.Send(ctx, to, content, ports.SendOptions{MessageID: id})
	if err != nil {
		o.dedup.Consume(id)
		return fmt.Errorf("send: %w", err)
	}
	if res.ID == "" {
		res.ID = id
	}
	if res.ID != id {
		// the protocol echo carries the server id
		o.dedup.Consume(id)
		o.dedup.Add(res.ID)
	}
	if res.Timestamp.IsZero() {
		res.Timestamp = o.clock.Now()
	}

	self := e.Identity()
	if self.JID == "" {
		self = c.Self()
	}
	echo := ports.InboundMessage{
		ID:        res.ID,
		Chat:      to,
		Sender:    self.JID,
		FromMe:    true,
		IsGroup:   isGroupJID(to),
		PushName:  self.PushName,
		Timestamp: res.Timestamp,
		Content:   echoContent(content),
	}
	o.processInbound(ctx, e, c, echo, inboundOpts{originalID: out.messageID})
	return nil
}

// echoContent describes sent content the way an inbound message would.
func echoContent(content ports.Content) ports.MessageContent {
	switch ct := content.(type) {
	case ports.Text:
		mc := ports.MessageContent{Text: ct.Body}
		if ct.QuotedID != "" {
			mc.Quoted = &ports.QuotedInfo{ID: ct.QuotedID}
		}
		return mc
	case ports.MediaUpload:
		return ports.MessageContent{Media: &ports.Media{
			Kind:     ports.MediaKindFor(ct.Mimetype),
			Mimetype: ct.Mimetype,
			Filename: ct.Filename,
			Caption:  ct.Caption,
			Data:     ct.Data,
		}}
	case ports.Buttons:
		return ports.MessageContent{Text: ct.Text}
	case ports.List:
		return ports.MessageContent{Text: ct.Text}
	case ports.Poll:
		return ports.MessageContent{PollCreation: &ports.PollCreation{Name: ct.Name, Options: ct.Options}}
	case ports.Template:
		return ports.MessageContent{Text: ct.Text}
	case ports.Interactive:
		return ports.MessageContent{Text: ct.Text}
	case ports.Carousel:
		return ports.MessageContent{Text: ct.Text}
	}
	return ports.MessageContent{}
}

func (o *Orchestrator) SendText(ctx context.Context, tenantID string, c command.SendText) error {
	return o.send(ctx, tenantID, outbound{
		sessionID: c.SessionID, to: c.To.String(), lid: c.LID, messageID: c.MessageID, kind: kindText,
		check: c.Check,
		build: func() (ports.Content, error) {
			return ports.Text{Body: c.Body, QuotedID: c.Options.QuotedMsgID}, nil
		},
	})
}

func (o *Orchestrator) SendMedia(ctx context.Context, tenantID string, c command.SendMedia) error {
	return o.send(ctx, tenantID, outbound{
		sessionID: c.SessionID, to: c.To.String(), lid: c.LID, messageID: c.MessageID, kind: kindMedia,
		check: c.Check,
		build: func() (ports.Content, error) {
			data, err := decodeMediaData(c.Media.Data)
			if err != nil {
				return nil, err
			}
			return ports.MediaUpload{
				Data:     data,
				Mimetype: c.Media.Mimetype,
				Filename: c.Media.Filename,
				Caption:  c.Caption,
			}, nil
		},
	})
}

// decodeMediaData accepts plain base64 or a data URL.
func decodeMediaData(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if _, rest, ok := strings.Cut(s, ","); ok {
			s = rest
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode media data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("decode media data: empty payload")
	}
	return data, nil
}

func (o *Orchestrator) SendButtons(ctx context.Context, tenantID string, c command.SendButtons) error {
	return o.send(ctx, tenantID, outbound{
		sessionID: c.SessionID, to: c.To.String(), lid: c.LID, messageID: c.MessageID, kind: kindButtons,
		check: c.Check,
		build: func() (ports.Content, error) {
			buttons := make([]ports.Button, 0, len(c.Buttons))
			for _, b := range c.Buttons {
				buttons = append(buttons, ports.Button{ID: b.ButtonID, Text: b.ButtonText})
			}
			return ports.Buttons{Text: c.Text, Footer: c.Footer, ImageURL: c.ImageURL, Buttons: buttons}, nil
		},
	})
}

func (o *Orchestrator) SendList(ctx context.Context, tenantID string, c command.SendList) error {
	return o.send(ctx, tenantID, outbound{
		sessionID: c.SessionID, to: c.To.String(), lid: c.LID, messageID: c.MessageID, kind: kindList,
		check: c.Check,
		build: func() (ports.Content, error) {
			sections := make([]ports.ListSection, 0, len(c.Sections))
			for _, s := range c.Sections {
				rows := make([]ports.ListRow, 0, len(s.Rows))
				for _, r := range s.Rows {
					rows = append(rows, ports.ListRow{ID: r.RowID, Title: r.Title, Description: r.Description})
				}
				sections = append(sections, ports.ListSection{Title: s.Title, Rows: rows})
			}
			return ports.List{
				Text:       c.Text,
				Footer:     c.Footer,
				Title:      c.Title,
				ButtonText: c.ButtonText,
				Sections:   sections,
			}, nil
		},
	})
}

func (o *Orchestrator) SendPoll(ctx context.Context, tenantID string, c command.SendPoll) error {
	return o.send(ctx, tenantID, outbound{
		sessionID: c.SessionID, to: c.To.String(), lid: c.LID, messageID: c.MessageID, kind: kindPoll,
		check: c.Check,
		build: func() (ports.Content, error) {
			selectable := c.SelectableCount
			if selectable <= 0 || selectable > len(c.Options) {
				selectable = 1
			}
			return ports.Poll{Name: c.Name, Options: c.Options, SelectableCount: selectable}, nil
		},
	})
}

func actionButtons(in []command.ActionButton) []ports.ActionButton {
	out := make([]ports.ActionButton, 0, len(in))
	for _, b := range in {
		out = append(out, ports.ActionButton{
			Type:  ports.ActionType(b.Type),
			Text:  b.Text,
			URL:   b.URL,
			Phone: digitsOnly(b.PhoneNumber.String()),
			ID:    b.ID,
		})
	}
	return out
}

func (o *Orchestrator) SendTemplate(ctx context.Context, tenantID string, c command.SendTemplate) error {
	return o.send(ctx, tenantID, outbound{
		sessionID: c.SessionID, to: c.To.String(), lid: c.LID, messageID: c.MessageID, kind: kindTemplate,
		check: c.Check,
		build: func() (ports.Content, error) {
			return ports.Template{Text: c.Text, Footer: c.Footer, MediaURL: c.MediaURL, Buttons: actionButtons(c.Buttons)}, nil
		},
	})
}

func (o *Orchestrator) SendInteractive(ctx context.Context, tenantID string, c command.SendInteractive) error {
	return o.send(ctx, tenantID, outbound{
		sessionID: c.SessionID, to: c.To.String(), lid: c.LID, messageID: c.MessageID, kind: kindInteractive,
		check: c.Check,
		build: func() (ports.Content, error) {
			return ports.Interactive{Text: c.Text, Footer: c.Footer, MediaURL: c.MediaURL, Buttons: actionButtons(c.Buttons)}, nil
		},
	})
}

func (o *Orchestrator) SendCarousel(ctx context.Context, tenantID string, c command.SendCarousel) error {
	return o.send(ctx, tenantID, outbound{
		sessionID: c.SessionID, to: c.To.String(), lid: c.LID, messageID: c.MessageID, kind: kindCarousel,
		check: c.Check,
		build: func() (ports.Content, error) {
			cards := make([]ports.Card, 0, len(c.Cards))
			for _, card := range c.Cards {
				cards = append(cards, ports.Card{
					HeaderURL: card.HeaderURL,
					Body:      card.Body,
					Footer:    card.Footer,
					Buttons:   actionButtons(card.Buttons),
				})
			}
			return ports.Carousel{Text: c.Text, Footer: c.Footer, Cards: cards}, nil
		},
	})
}
