// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package protocoltest provides a scripted in-memory protocol adapter.
package protocoltest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/wabridge/internal/domain/session/ports"
)

const eventBuffer = 256

// DefaultSelf is the identity every new Client reports.
var DefaultSelf = ports.Identity{
	JID:      "5511000000000:7@s.whatsapp.net",
	LID:      "100000000000001@lid",
	PushName: "Support",
}

// Sent records one Send call.
type Sent struct {
	To        string
	Content   ports.Content
	MessageID string
}

// PairingRequest records one RequestPairingCode call.
type PairingRequest struct {
	Phone      string
	ClientName string
}

type pairingResult struct {
	code string
	err  error
}

// Client is a ports.Client whose behaviour is set by the test and whose
// events are pushed with Emit.
type Client struct {
	cfg ports.ConnectConfig

	events    chan ports.Event
	done      chan struct{}
	emitMu    sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closes    atomic.Int32
	connects  atomic.Int32
	idSeq     atomic.Uint64

	mu            sync.Mutex
	self          ports.Identity
	connectErr    error
	connectEvents []ports.Event
	sendErr       error
	resolveErr    error
	pairing       []pairingResult
	pairingReqs   []PairingRequest
	sent          []Sent
	reads         map[string][]string
	profiles      map[string]string
	profileErr    error
	lids          map[string]string
	groups        map[string]string
	media         []byte
	mediaErr      error
}

func newClient(cfg ports.ConnectConfig) *Client {
	return &Client{
		cfg:      cfg,
		events:   make(chan ports.Event, eventBuffer),
		done:     make(chan struct{}),
		self:     DefaultSelf,
		reads:    make(map[string][]string),
		profiles: make(map[string]string),
		lids:     make(map[string]string),
		groups:   make(map[string]string),
	}
}

// Config returns what the client was opened with.
func (c *Client) Config() ports.ConnectConfig { return c.cfg }

// Emit pushes ev to the orchestrator. It returns false once the client is closed.
func (c *Client) Emit(ev ports.Event) bool {
	c.emitMu.RLock()
	defer c.emitMu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) Events() <-chan ports.Event { return c.events }

// Connect emits the scripted connect events (ConnectionOpened by default).
func (c *Client) Connect(ctx context.Context) error {
	c.connects.Add(1)
	c.mu.Lock()
	err := c.connectErr
	evs := append([]ports.Event(nil), c.connectEvents...)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	for _, ev := range evs {
		c.Emit(ev)
	}
	return ctx.Err()
}

func (c *Client) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() {
		close(c.done)
		c.emitMu.Lock()
		c.closed = true
		close(c.events)
		c.emitMu.Unlock()
	})
	return nil
}

func (c *Client) Logout(ctx context.Context) error { return c.Close() }

// Closed reports whether Close was called at least once.
func (c *Client) Closed() bool { return c.closes.Load() > 0 }

// Connects returns how many times Connect was called.
func (c *Client) Connects() int { return int(c.connects.Load()) }

// SetConnectEvents replaces what Connect emits.
func (c *Client) SetConnectEvents(evs ...ports.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectEvents = evs
}

func (c *Client) SetConnectErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

func (c *Client) SetSendErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *Client) SetResolveErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveErr = err
}

func (c *Client) SetSelf(id ports.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.self = id
}

// QueuePairingCode scripts the result of the next RequestPairingCode call.
// Without queued results the client answers "ABCD1234".
func (c *Client) QueuePairingCode(code string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairing = append(c.pairing, pairingResult{code: code, err: err})
}

func (c *Client) SetProfilePicture(jid, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[jid] = url
}

func (c *Client) SetProfileErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profileErr = err
}

func (c *Client) SetLID(jid, lid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lids[jid] = lid
}

func (c *Client) SetGroupName(jid, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[jid] = name
}

func (c *Client) SetMedia(data []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media = data
	c.mediaErr = err
}

func (c *Client) RequestPairingCode(_ context.Context, phone, clientName string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairingReqs = append(c.pairingReqs, PairingRequest{Phone: phone, ClientName: clientName})
	if len(c.pairing) == 0 {
		return "ABCD1234", nil
	}
	next := c.pairing[0]
	c.pairing = c.pairing[1:]
	return next.code, next.err
}

// PairingRequests returns every pairing code request so far.
func (c *Client) PairingRequests() []PairingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PairingRequest(nil), c.pairingReqs...)
}

// ResolveRecipient turns bare numbers into user JIDs and passes JIDs through.
func (c *Client) ResolveRecipient(_ context.Context, to, _ string) (string, error) {
	c.mu.Lock()
	err := c.resolveErr
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	if to == "" {
		return "", fmt.Errorf("empty recipient: %w", ports.ErrRecipientNotFound)
	}
	if strings.Contains(to, "@") {
		return to, nil
	}
	return to + "@s.whatsapp.net", nil
}

func (c *Client) GenerateMessageID() string {
	return fmt.Sprintf("3EB0%016X", c.idSeq.Add(1))
}

func (c *Client) Send(_ context.Context, to string, content ports.Content, opts ports.SendOptions) (ports.SendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, Sent{To: to, Content: content, MessageID: opts.MessageID})
	if c.sendErr != nil {
		return ports.SendResult{}, c.sendErr
	}
	return ports.SendResult{ID: opts.MessageID, Timestamp: time.Unix(1700000000, 0)}, nil
}

// Sent returns every Send call so far, including failed ones.
func (c *Client) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

func (c *Client) MarkRead(_ context.Context, chat string, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads[chat] = append(c.reads[chat], ids...)
	return nil
}

// Reads returns the ids marked read per chat.
func (c *Client) Reads() map[string][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]string, len(c.reads))
	for k, v := range c.reads {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (c *Client) Self() ports.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

func (c *Client) ProfilePictureURL(_ context.Context, jid string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profileErr != nil {
		return "", c.profileErr
	}
	return c.profiles[jid], nil
}

func (c *Client) ResolveLID(_ context.Context, jid string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lid, ok := c.lids[jid]
	if !ok {
		return "", fmt.Errorf("no lid for %s: %w", jid, ports.ErrRecipientNotFound)
	}
	return lid, nil
}

func (c *Client) GroupName(_ context.Context, jid string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.groups[jid]
	if !ok {
		return "", fmt.Errorf("unknown group %s", jid)
	}
	return name, nil
}

func (c *Client) DownloadMedia(context.Context, *ports.Media) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mediaErr != nil {
		return nil, c.mediaErr
	}
	return c.media, nil
}

var _ ports.Client = (*Client)(nil)
