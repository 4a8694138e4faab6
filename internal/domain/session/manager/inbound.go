// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/wabridge/internal/domain/session/event"
	"github.com/ManuGH/wabridge/internal/domain/session/ports"
	xlog "github.com/ManuGH/wabridge/internal/log"
)

// Message type names on message.received.
const (
	TypeChat          = "chat"
	TypeButtonsReply  = "buttons_response"
	TypeListReply     = "list_response"
	TypeTemplateReply = "template_button_reply"
	TypeInteractive   = "interactive_response"
	TypePollCreation  = "poll_creation"
	TypePollVote      = "poll_vote"
	TypeLocation      = "location"
	TypeVCard         = "vcard"
)

// Enrichment step names, used as metric labels.
const (
	stepMedia   = "media"
	stepLID     = "lid"
	stepProfile = "profile_picture"
	stepQuoted  = "quoted"
	stepPreview = "url_preview"
)

const profileCachePrefix = "profile:"

var errNoMediaSource = errors.New("media has neither data nor download reference")

func (o *Orchestrator) handleMessage(e *sessionEntry, c ports.Client, msg ports.InboundMessage) {
	if msg.FromMe && o.dedup.Consume(msg.ID) {
		echoesSuppressedTotal.Inc()
		l := o.log(o.ctx, e)
		l.Debug().Str(xlog.FieldMessageID, msg.ID).Msg("suppressed echo of self-sent message")
		return
	}
	o.processInbound(o.ctx, e, c, msg, inboundOpts{})
}

type inboundOpts struct {
	originalID string
	history    bool
}

// processInbound decodes msg, runs every enrichment step and publishes
// message.received. Enrichment failures only drop the affected fields.
func (o *Orchestrator) processInbound(ctx context.Context, e *sessionEntry, c ports.Client, msg ports.InboundMessage, opts inboundOpts) {
	if msg.Content.IsEmpty() {
		l := o.log(ctx, e)
		l.Debug().Str(xlog.FieldMessageID, msg.ID).Msg("skipping message without content")
		return
	}
	self := e.Identity()
	if self.JID == "" {
		self = c.Self()
	}

	p := decodeMessage(e.id, self.JID, msg)
	p.OriginalID = opts.originalID
	p.IsHistory = opts.history
	o.enrich(ctx, e, c, msg, &p)

	_ = o.events.MessageReceived(ctx, e.tenantID, p)
}

// decodeMessage maps protocol content onto the event payload without any
// network access.
func decodeMessage(sessionID, selfJID string, msg ports.InboundMessage) event.MessagePayload {
	p := event.MessagePayload{
		SessionID: sessionID,
		ID:        msg.ID,
		FromMe:    msg.FromMe,
		IsGroup:   msg.IsGroup,
		PushName:  msg.PushName,
		Type:      TypeChat,
	}
	if !msg.Timestamp.IsZero() {
		p.Timestamp = msg.Timestamp.Unix()
	}
	if msg.FromMe {
		p.From = selfJID
		p.To = msg.Chat
	} else {
		p.From = msg.Chat
		p.To = selfJID
	}
	if msg.IsGroup {
		p.Participant = msg.Sender
	}

	ct := msg.Content
	switch {
	case ct.Media != nil:
		p.Type = string(ct.Media.Kind)
		p.HasMedia = true
		p.Body = ct.Media.Caption
		p.Mimetype = ct.Media.Mimetype
		p.Filename = ct.Media.Filename
	case ct.ButtonReply != nil:
		p.Type = TypeButtonsReply
		p.Body = ct.ButtonReply.Text
		p.SelectedButtonID = ct.ButtonReply.ID
	case ct.TemplateReply != nil:
		p.Type = TypeTemplateReply
		p.Body = ct.TemplateReply.Text
		p.SelectedButtonID = ct.TemplateReply.ID
	case ct.ListReply != nil:
		p.Type = TypeListReply
		p.Body = ct.ListReply.Title
		p.SelectedRowID = ct.ListReply.RowID
	case ct.InteractiveReply != nil:
		p.Type = TypeInteractive
		p.Body = ct.InteractiveReply.Body
		p.SelectedButtonID = ct.InteractiveReply.ID
	case ct.PollVote != nil:
		p.Type = TypePollVote
		p.PollID = ct.PollVote.PollID
		p.SelectedOptions = append([]string(nil), ct.PollVote.Options...)
	case ct.PollCreation != nil:
		p.Type = TypePollCreation
		p.Body = ct.PollCreation.Name
		p.SelectedOptions = append([]string(nil), ct.PollCreation.Options...)
	case ct.Location != nil:
		p.Type = TypeLocation
		p.Body = ct.Location.Name
		p.Location = &event.LocationPayload{
			Latitude:  ct.Location.Latitude,
			Longitude: ct.Location.Longitude,
			Name:      ct.Location.Name,
		}
	case ct.Contact != nil:
		p.Type = TypeVCard
		p.Body = ct.Contact.DisplayName
		p.VCard = ct.Contact.VCard
	case ct.ExtendedText != nil:
		p.Body = ct.ExtendedText.Text
	default:
		p.Body = ct.Text
	}
	return p
}

// enrich runs the optional steps. Each one is independent: a failure is
// counted and logged and the message is still published.
func (o *Orchestrator) enrich(ctx context.Context, e *sessionEntry, c ports.Client, msg ports.InboundMessage, p *event.MessagePayload) {
	ct := msg.Content
	if ct.Media != nil {
		o.runStep(ctx, e, msg.ID, stepMedia, func(ctx context.Context) error {
			data := ct.Media.Data
			if len(data) == 0 {
				if ct.Media.Ref == nil {
					return errNoMediaSource
				}
				var err error
				if data, err = c.DownloadMedia(ctx, ct.Media); err != nil {
					return err
				}
			}
			p.MediaData = base64.StdEncoding.EncodeToString(data)
			return nil
		})
	}

	if !msg.FromMe {
		sender := msg.Sender
		if sender == "" {
			sender = msg.Chat
		}
		o.runStep(ctx, e, msg.ID, stepLID, func(ctx context.Context) error {
			if msg.SenderAlt != "" {
				p.SenderLID = msg.SenderAlt
				return nil
			}
			lid, err := c.ResolveLID(ctx, sender)
			if err != nil {
				return err
			}
			p.SenderLID = lid
			return nil
		})
		o.runStep(ctx, e, msg.ID, stepProfile, func(ctx context.Context) error {
			url, err := o.lookupProfilePicture(ctx, e, c, sender)
			if err != nil {
				return err
			}
			p.ProfilePicURL = url
			return nil
		})
	}

	if q := ct.Quoted; q != nil && q.ID != "" {
		o.runStep(ctx, e, msg.ID, stepQuoted, func(context.Context) error {
			p.QuotedMsgID = q.ID
			p.QuotedMsg = &event.QuotedPayload{ID: q.ID, Body: q.Body, Participant: q.Sender}
			return nil
		})
	}

	if ct.ExtendedText != nil && ct.ExtendedText.Preview != nil {
		pv := ct.ExtendedText.Preview
		o.runStep(ctx, e, msg.ID, stepPreview, func(context.Context) error {
			if pv.URL == "" && pv.MatchedText == "" {
				return errors.New("preview without url")
			}
			url := pv.URL
			if url == "" {
				url = pv.MatchedText
			}
			p.URLPreview = &event.PreviewPayload{
				Title:       pv.Title,
				Description: pv.Description,
				URL:         url,
				MatchedText: pv.MatchedText,
			}
			return nil
		})
	}
}

// runStep bounds fn by EnrichmentTimeout and swallows its error or panic.
func (o *Orchestrator) runStep(ctx context.Context, e *sessionEntry, messageID, step string, fn func(context.Context) error) {
	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.cfg.EnrichmentTimeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, o.cfg.EnrichmentTimeout)
	}
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(stepCtx)
	}()
	if err == nil {
		return
	}
	enrichmentFailuresTotal.WithLabelValues(step).Inc()
	l := o.log(ctx, e)
	l.Debug().Err(err).Str("step", step).Str(xlog.FieldMessageID, messageID).Msg("message enrichment skipped")
}

// profilePicture is the best-effort form used for status and contact events.
func (o *Orchestrator) profilePicture(ctx context.Context, e *sessionEntry, c ports.Client, jid string) string {
	var url string
	o.runStep(ctx, e, "", stepProfile, func(ctx context.Context) error {
		var err error
		url, err = o.lookupProfilePicture(ctx, e, c, jid)
		return err
	})
	return url
}

// lookupProfilePicture serves from cache, else asks the protocol through the
// session's circuit breaker. Empty results are cached too.
func (o *Orchestrator) lookupProfilePicture(ctx context.Context, e *sessionEntry, c ports.Client, jid string) (string, error) {
	key := profileCachePrefix + jid
	if url, ok := o.profiles.Get(ctx, key); ok {
		return url, nil
	}
	var url string
	err := o.breakers.Execute(e.id, func() error {
		var err error
		url, err = c.ProfilePictureURL(ctx, jid)
		return err
	})
	if err != nil {
		return "", err
	}
	o.profiles.Set(ctx, key, url, o.cfg.ProfileCacheTTL)
	return url, nil
}

// handleHistory replays a protocol history batch through the inbound
// pipeline when the session asked for it, limited to SyncPeriodDays.
func (o *Orchestrator) handleHistory(e *sessionEntry, c ports.Client, ev ports.HistoryBatch) {
	l := o.log(o.ctx, e)
	if !e.opts.SyncHistory {
		l.Debug().Int("messages", len(ev.Messages)).Msg("history batch ignored, sync not requested")
		return
	}
	var cutoff time.Time
	if e.opts.SyncPeriodDays > 0 {
		cutoff = o.clock.Now().AddDate(0, 0, -e.opts.SyncPeriodDays)
	}
	published := 0
	for _, msg := range ev.Messages {
		if !cutoff.IsZero() && msg.Timestamp.Before(cutoff) {
			continue
		}
		if msg.Content.IsEmpty() {
			continue
		}
		o.processInbound(o.ctx, e, c, msg, inboundOpts{history: true})
		published++
	}

	status := event.HistoryInProgress
	if ev.Progress >= 100 {
		status = event.HistoryCompleted
	}
	progress := ev.Progress
	l.Info().Int("messages", published).Int("progress", progress).Msg("history batch processed")
	_ = o.events.HistoryStatus(o.ctx, e.tenantID, event.HistoryPayload{
		SessionID: e.id,
		Status:    status,
		Progress:  &progress,
		Messages:  published,
	})
}
