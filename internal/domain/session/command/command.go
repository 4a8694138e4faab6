// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package command decodes broker envelopes into a closed set of command
// variants and runs them on per-session lanes.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/wabridge/internal/broker"
)

var (
	ErrMalformed   = errors.New("malformed command")
	ErrUnknownType = errors.New("unknown command type")

	// ErrInvalidContent is returned by Check on a send whose content cannot
	// go out. The envelope itself was well formed.
	ErrInvalidContent = errors.New("invalid message content")
)

// Command envelope types.
const (
	TypeSessionStart    = "session.start"
	TypeSessionStop     = "session.stop"
	TypeSendText        = "message.send.text"
	TypeSendMedia       = "message.send.media"
	TypeSendButtons     = "message.send.buttons"
	TypeSendList        = "message.send.list"
	TypeSendPoll        = "message.send.poll"
	TypeSendTemplate    = "message.send.template"
	TypeSendInteractive = "message.send.interactive"
	TypeSendCarousel    = "message.send.carousel"
	TypeContactSync     = "contact.sync"
	TypeMarkAsRead      = "message.markAsRead"
	TypeContactImport   = "contact.import"
	TypeHistorySync     = "history.sync"
)

// Handler has one method per command variant. Implementations report
// failures through events; a returned error is only logged and counted.
type Handler interface {
	Start(ctx context.Context, tenantID string, c StartSession) error
	Stop(ctx context.Context, tenantID string, c StopSession) error
	SendText(ctx context.Context, tenantID string, c SendText) error
	SendMedia(ctx context.Context, tenantID string, c SendMedia) error
	SendButtons(ctx context.Context, tenantID string, c SendButtons) error
	SendList(ctx context.Context, tenantID string, c SendList) error
	SendPoll(ctx context.Context, tenantID string, c SendPoll) error
	SendTemplate(ctx context.Context, tenantID string, c SendTemplate) error
	SendInteractive(ctx context.Context, tenantID string, c SendInteractive) error
	SendCarousel(ctx context.Context, tenantID string, c SendCarousel) error
	SyncContact(ctx context.Context, tenantID string, c SyncContact) error
	MarkAsRead(ctx context.Context, tenantID string, c MarkAsRead) error
	ImportContacts(ctx context.Context, tenantID string, c ImportContacts) error
	SyncHistory(ctx context.Context, tenantID string, c SyncHistory) error
}

// Command is implemented only by the payload types of this package.
type Command interface {
	Type() string
	Session() string
	validate() error
	apply(ctx context.Context, tenantID string, h Handler) error
}

// Apply routes c to the matching Handler method.
func Apply(ctx context.Context, tenantID string, c Command, h Handler) error {
	return c.apply(ctx, tenantID, h)
}

// Decoded is a command together with its envelope metadata.
type Decoded struct {
	EnvelopeID string
	TenantID   string
	Command    Command
}

var constructors = map[string]func() Command{
	TypeSessionStart:    func() Command { return &StartSession{} },
	TypeSessionStop:     func() Command { return &StopSession{} },
	TypeSendText:        func() Command { return &SendText{} },
	TypeSendMedia:       func() Command { return &SendMedia{} },
	TypeSendButtons:     func() Command { return &SendButtons{} },
	TypeSendList:        func() Command { return &SendList{} },
	TypeSendPoll:        func() Command { return &SendPoll{} },
	TypeSendTemplate:    func() Command { return &SendTemplate{} },
	TypeSendInteractive: func() Command { return &SendInteractive{} },
	TypeSendCarousel:    func() Command { return &SendCarousel{} },
	TypeContactSync:     func() Command { return &SyncContact{} },
	TypeMarkAsRead:      func() Command { return &MarkAsRead{} },
	TypeContactImport:   func() Command { return &ImportContacts{} },
	TypeHistorySync:     func() Command { return &SyncHistory{} },
}

// Types lists every recognised command type.
func Types() []string {
	out := make([]string, 0, len(constructors))
	for t := range constructors {
		out = append(out, t)
	}
	return out
}

// Decode turns an envelope into a validated command. Only identity fields
// are checked here; send variants check their content with Check once they
// reach the session, so a caller-supplied messageId still gets its ack.
func Decode(env broker.Envelope) (Decoded, error) {
	ctor, ok := constructors[env.Type]
	if !ok {
		return Decoded{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	cmd := ctor()
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return Decoded{}, fmt.Errorf("%w: %s: missing payload", ErrMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Payload, cmd); err != nil {
		return Decoded{}, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	if err := cmd.validate(); err != nil {
		return Decoded{}, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return Decoded{EnvelopeID: env.ID, TenantID: env.TenantID, Command: deref(cmd)}, nil
}

// deref stores variants by value so handlers cannot mutate shared state.
func deref(c Command) Command {
	switch v := c.(type) {
	case *StartSession:
		return *v
	case *StopSession:
		return *v
	case *SendText:
		return *v
	case *SendMedia:
		return *v
	case *SendButtons:
		return *v
	case *SendList:
		return *v
	case *SendPoll:
		return *v
	case *SendTemplate:
		return *v
	case *SendInteractive:
		return *v
	case *SendCarousel:
		return *v
	case *SyncContact:
		return *v
	case *MarkAsRead:
		return *v
	case *ImportContacts:
		return *v
	case *SyncHistory:
		return *v
	}
	return c
}

func requireSession(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("sessionId is required")
	}
	return nil
}

func requireFields(sessionID string, fields map[string]string) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	return requireValues(fields)
}

func requireValues(fields map[string]string) error {
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidContent, err)
}

func validateActions(buttons []ActionButton, allowCall bool) error {
	for i, b := range buttons {
		switch b.Type {
		case "url":
			if b.URL == "" {
				return fmt.Errorf("buttons[%d]: url is required", i)
			}
		case "call":
			if !allowCall {
				return fmt.Errorf("buttons[%d]: call buttons are not supported here", i)
			}
			if b.PhoneNumber == "" {
				return fmt.Errorf("buttons[%d]: phoneNumber is required", i)
			}
		case "quickReply":
		default:
			return fmt.Errorf("buttons[%d]: unknown type %q", i, b.Type)
		}
	}
	return nil
}

func (StartSession) Type() string      { return TypeSessionStart }
func (c StartSession) Session() string { return c.SessionID }
func (c StartSession) validate() error {
	if err := requireSession(c.SessionID); err != nil {
		return err
	}
	if c.UsePairingCode && c.PhoneNumber == "" {
		return errors.New("phoneNumber is required for pairing code login")
	}
	if c.SyncPeriod < 0 {
		return errors.New("syncPeriod must not be negative")
	}
	return nil
}
func (c StartSession) apply(ctx context.Context, t string, h Handler) error {
	return h.Start(ctx, t, c)
}

func (StopSession) Type() string      { return TypeSessionStop }
func (c StopSession) Session() string { return c.SessionID }
func (c StopSession) validate() error { return requireSession(c.SessionID) }
func (c StopSession) apply(ctx context.Context, t string, h Handler) error {
	return h.Stop(ctx, t, c)
}

func (SendText) Type() string      { return TypeSendText }
func (c SendText) Session() string { return c.SessionID }
func (c SendText) validate() error { return requireSession(c.SessionID) }
func (c SendText) Check() error {
	return invalid(requireValues(map[string]string{"to": c.To.String()}))
}
func (c SendText) apply(ctx context.Context, t string, h Handler) error {
	return h.SendText(ctx, t, c)
}

func (SendMedia) Type() string      { return TypeSendMedia }
func (c SendMedia) Session() string { return c.SessionID }
func (c SendMedia) validate() error { return requireSession(c.SessionID) }
func (c SendMedia) Check() error {
	return invalid(requireValues(map[string]string{
		"to":             c.To.String(),
		"media.data":     c.Media.Data,
		"media.mimetype": c.Media.Mimetype,
	}))
}
func (c SendMedia) apply(ctx context.Context, t string, h Handler) error {
	return h.SendMedia(ctx, t, c)
}

func (SendButtons) Type() string      { return TypeSendButtons }
func (c SendButtons) Session() string { return c.SessionID }
func (c SendButtons) validate() error { return requireSession(c.SessionID) }
func (c SendButtons) Check() error {
	if err := requireValues(map[string]string{"to": c.To.String()}); err != nil {
		return invalid(err)
	}
	if len(c.Buttons) == 0 {
		return invalid(errors.New("buttons must not be empty"))
	}
	return nil
}
func (c SendButtons) apply(ctx context.Context, t string, h Handler) error {
	return h.SendButtons(ctx, t, c)
}

func (SendList) Type() string      { return TypeSendList }
func (c SendList) Session() string { return c.SessionID }
func (c SendList) validate() error { return requireSession(c.SessionID) }
func (c SendList) Check() error {
	if err := requireValues(map[string]string{"to": c.To.String(), "buttonText": c.ButtonText}); err != nil {
		return invalid(err)
	}
	if len(c.Sections) == 0 {
		return invalid(errors.New("sections must not be empty"))
	}
	return nil
}
func (c SendList) apply(ctx context.Context, t string, h Handler) error {
	return h.SendList(ctx, t, c)
}

func (SendPoll) Type() string      { return TypeSendPoll }
func (c SendPoll) Session() string { return c.SessionID }
func (c SendPoll) validate() error { return requireSession(c.SessionID) }
func (c SendPoll) Check() error {
	if err := requireValues(map[string]string{"to": c.To.String(), "name": c.Name}); err != nil {
		return invalid(err)
	}
	if len(c.Options) < 2 {
		return invalid(errors.New("a poll needs at least two options"))
	}
	if c.SelectableCount < 0 || c.SelectableCount > len(c.Options) {
		return invalid(fmt.Errorf("selectableCount must be between 0 and %d", len(c.Options)))
	}
	return nil
}
func (c SendPoll) apply(ctx context.Context, t string, h Handler) error {
	return h.SendPoll(ctx, t, c)
}

func (SendTemplate) Type() string      { return TypeSendTemplate }
func (c SendTemplate) Session() string { return c.SessionID }
func (c SendTemplate) validate() error { return requireSession(c.SessionID) }
func (c SendTemplate) Check() error {
	if err := requireValues(map[string]string{"to": c.To.String()}); err != nil {
		return invalid(err)
	}
	return invalid(validateActions(c.Buttons, true))
}
func (c SendTemplate) apply(ctx context.Context, t string, h Handler) error {
	return h.SendTemplate(ctx, t, c)
}

func (SendInteractive) Type() string      { return TypeSendInteractive }
func (c SendInteractive) Session() string { return c.SessionID }
func (c SendInteractive) validate() error { return requireSession(c.SessionID) }
func (c SendInteractive) Check() error {
	if err := requireValues(map[string]string{"to": c.To.String()}); err != nil {
		return invalid(err)
	}
	return invalid(validateActions(c.Buttons, false))
}
func (c SendInteractive) apply(ctx context.Context, t string, h Handler) error {
	return h.SendInteractive(ctx, t, c)
}

func (SendCarousel) Type() string      { return TypeSendCarousel }
func (c SendCarousel) Session() string { return c.SessionID }
func (c SendCarousel) validate() error { return requireSession(c.SessionID) }
func (c SendCarousel) Check() error {
	if err := requireValues(map[string]string{"to": c.To.String()}); err != nil {
		return invalid(err)
	}
	if len(c.Cards) == 0 {
		return invalid(errors.New("cards must not be empty"))
	}
	for i, card := range c.Cards {
		if err := validateActions(card.Buttons, true); err != nil {
			return invalid(fmt.Errorf("cards[%d]: %w", i, err))
		}
	}
	return nil
}
func (c SendCarousel) apply(ctx context.Context, t string, h Handler) error {
	return h.SendCarousel(ctx, t, c)
}

func (SyncContact) Type() string      { return TypeContactSync }
func (c SyncContact) Session() string { return c.SessionID }
func (c SyncContact) validate() error {
	return requireFields(c.SessionID, map[string]string{"number": c.Number.String()})
}
func (c SyncContact) apply(ctx context.Context, t string, h Handler) error {
	return h.SyncContact(ctx, t, c)
}

func (MarkAsRead) Type() string      { return TypeMarkAsRead }
func (c MarkAsRead) Session() string { return c.SessionID }
func (c MarkAsRead) validate() error {
	return requireFields(c.SessionID, map[string]string{"to": c.To.String()})
}
func (c MarkAsRead) apply(ctx context.Context, t string, h Handler) error {
	return h.MarkAsRead(ctx, t, c)
}

func (ImportContacts) Type() string      { return TypeContactImport }
func (c ImportContacts) Session() string { return c.SessionID }
func (c ImportContacts) validate() error { return requireSession(c.SessionID) }
func (c ImportContacts) apply(ctx context.Context, t string, h Handler) error {
	return h.ImportContacts(ctx, t, c)
}

func (SyncHistory) Type() string      { return TypeHistorySync }
func (c SyncHistory) Session() string { return c.SessionID }
func (c SyncHistory) validate() error { return requireSession(c.SessionID) }
func (c SyncHistory) apply(ctx context.Context, t string, h Handler) error {
	return h.SyncHistory(ctx, t, c)
}
