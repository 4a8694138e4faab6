// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"

	"github.com/ManuGH/wabridge/internal/domain/session/ports"
)

const eventBuffer = 512

// Client wraps one whatsmeow client. whatsmeow delivers events from its own
// goroutines; they are funnelled into a single ordered channel.
type Client struct {
	cfg       ports.ConnectConfig
	wa        *whatsmeow.Client
	container *sqlstore.Container
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events    chan ports.Event
	done      chan struct{}
	emitMu    sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func newClient(cfg ports.ConnectConfig, wa *whatsmeow.Client, container *sqlstore.Container, logger zerolog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:       cfg,
		wa:        wa,
		container: container,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan ports.Event, eventBuffer),
		done:      make(chan struct{}),
	}
}

func (c *Client) Events() <-chan ports.Event { return c.events }

func (c *Client) emit(ev ports.Event) {
	c.emitMu.RLock()
	defer c.emitMu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Connect opens the websocket. Unpaired devices get a QR channel first; its
// codes are forwarded as QRCode events.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.wa.Store.ID == nil {
		qr, err := c.wa.GetQRChannel(c.ctx)
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		go c.pumpQR(qr)
	}
	if err := c.wa.Connect(); err != nil {
		return translateErr(err)
	}
	return nil
}

func (c *Client) pumpQR(qr <-chan whatsmeow.QRChannelItem) {
	for item := range qr {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.emit(ports.QRCode{Code: item.Code})
		case whatsmeow.QRChannelTimeout.Event:
			c.emit(closedFor(reasonQRTimeout, nil))
		case whatsmeow.QRChannelSuccess.Event:
		case whatsmeow.QRChannelEventError:
			c.emit(closedFor(reasonUnknown, item.Error))
		default:
			c.logger.Debug().Str("qr_event", item.Event).Msg("unhandled qr channel event")
		}
	}
}

// Close disconnects and releases the device store. It is idempotent and
// closes the Events channel.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.wa.RemoveEventHandlers()
		c.wa.Disconnect()
		close(c.done)
		c.emitMu.Lock()
		c.closed = true
		close(c.events)
		c.emitMu.Unlock()
		err = c.container.Close()
	})
	return err
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.wa.Logout(ctx)
	if errors.Is(err, whatsmeow.ErrNotLoggedIn) {
		err = nil
	}
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *Client) RequestPairingCode(ctx context.Context, phone, clientName string) (string, error) {
	code, err := c.wa.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, clientName)
	if err != nil {
		return "", translateErr(err)
	}
	return code, nil
}

func (c *Client) ResolveRecipient(ctx context.Context, to, lid string) (string, error) {
	if strings.Contains(to, "@") {
		jid, err := types.ParseJID(to)
		if err != nil {
			return "", fmt.Errorf("parse %q: %w", to, ports.ErrRecipientNotFound)
		}
		return jid.String(), nil
	}
	digits := digitsOnly(to)
	if digits != "" {
		resp, err := c.wa.IsOnWhatsApp(ctx, []string{"+" + digits})
		if err != nil {
			return "", fmt.Errorf("directory lookup: %w", translateErr(err))
		}
		for _, r := range resp {
			if r.IsIn {
				return r.JID.String(), nil
			}
		}
	}
	if lid != "" {
		return lidJID(lid).String(), nil
	}
	return "", fmt.Errorf("%q: %w", to, ports.ErrRecipientNotFound)
}

func (c *Client) GenerateMessageID() string {
	return string(c.wa.GenerateMessageID())
}

func (c *Client) Send(ctx context.Context, to string, content ports.Content, opts ports.SendOptions) (ports.SendResult, error) {
	jid, err := types.ParseJID(to)
	if err != nil {
		return ports.SendResult{}, fmt.Errorf("parse recipient %q: %w", to, err)
	}
	msg, err := buildMessage(ctx, c.wa, content)
	if err != nil {
		return ports.SendResult{}, err
	}
	resp, err := c.wa.SendMessage(ctx, jid, msg, whatsmeow.SendRequestExtra{ID: types.MessageID(opts.MessageID)})
	if err != nil {
		return ports.SendResult{}, translateErr(err)
	}
	c.emit(ports.AckUpdate{Chat: jid.String(), MessageIDs: []string{string(resp.ID)}, Status: serverAckStatus})
	return ports.SendResult{ID: string(resp.ID), Timestamp: resp.Timestamp}, nil
}

func (c *Client) MarkRead(ctx context.Context, chat string, ids []string) error {
	jid, err := types.ParseJID(chat)
	if err != nil {
		return fmt.Errorf("parse chat %q: %w", chat, err)
	}
	msgIDs := make([]types.MessageID, 0, len(ids))
	for _, id := range ids {
		msgIDs = append(msgIDs, types.MessageID(id))
	}
	return translateErr(c.wa.MarkRead(ctx, msgIDs, time.Now(), jid, types.EmptyJID))
}

func (c *Client) Self() ports.Identity {
	st := c.wa.Store
	if st == nil || st.ID == nil {
		return ports.Identity{}
	}
	id := ports.Identity{JID: st.ID.String(), PushName: st.PushName}
	if !st.LID.IsEmpty() {
		id.LID = st.LID.String()
	}
	return id
}

func (c *Client) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	target, err := types.ParseJID(jid)
	if err != nil {
		return "", err
	}
	info, err := c.wa.GetProfilePictureInfo(ctx, target, &whatsmeow.GetProfilePictureParams{})
	if errors.Is(err, whatsmeow.ErrProfilePictureNotSet) || errors.Is(err, whatsmeow.ErrProfilePictureUnauthorized) {
		return "", nil
	}
	if err != nil {
		return "", translateErr(err)
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

func (c *Client) ResolveLID(ctx context.Context, jid string) (string, error) {
	pn, err := types.ParseJID(jid)
	if err != nil {
		return "", err
	}
	if pn.Server == types.HiddenUserServer {
		return pn.String(), nil
	}
	lid, err := c.wa.Store.LIDs.GetLIDForPN(ctx, pn.ToNonAD())
	if err != nil {
		return "", err
	}
	if lid.IsEmpty() {
		return "", fmt.Errorf("no lid for %s: %w", jid, ports.ErrRecipientNotFound)
	}
	return lid.String(), nil
}

func (c *Client) GroupName(ctx context.Context, jid string) (string, error) {
	group, err := types.ParseJID(jid)
	if err != nil {
		return "", err
	}
	info, err := c.wa.GetGroupInfo(ctx, group)
	if err != nil {
		return "", translateErr(err)
	}
	return info.Name, nil
}

func (c *Client) DownloadMedia(ctx context.Context, media *ports.Media) ([]byte, error) {
	dm, ok := media.Ref.(whatsmeow.DownloadableMessage)
	if !ok {
		return nil, fmt.Errorf("media reference %T is not downloadable", media.Ref)
	}
	return c.wa.Download(ctx, dm)
}

// translateErr maps whatsmeow failures onto the port's sentinel errors.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, whatsmeow.ErrNotConnected), errors.Is(err, whatsmeow.ErrNotLoggedIn):
		return fmt.Errorf("%w: %w", ports.ErrNotConnected, err)
	case errors.Is(err, whatsmeow.ErrIQRateOverLimit):
		return fmt.Errorf("%w: %w", ports.ErrRateLimited, err)
	}
	return err
}

func lidJID(lid string) types.JID {
	if jid, err := types.ParseJID(lid); err == nil && strings.Contains(lid, "@") {
		return jid
	}
	return types.NewJID(digitsOnly(lid), types.HiddenUserServer)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var _ ports.Client = (*Client)(nil)
