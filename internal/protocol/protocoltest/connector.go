// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocoltest

import (
	"context"
	"sync"

	"github.com/ManuGH/wabridge/internal/domain/session/ports"
)

// Connector hands out scripted Clients. Every new client emits
// ConnectionOpened on Connect unless Setup changes that.
type Connector struct {
	mu      sync.Mutex
	version string
	openErr error
	setup   func(*Client)
	clients []*Client
	opened  chan *Client
}

func NewConnector() *Connector {
	return &Connector{version: "2.3000.1", opened: make(chan *Client, eventBuffer)}
}

// Setup runs fn on every client before Open returns it.
func (c *Connector) Setup(fn func(*Client)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setup = fn
}

func (c *Connector) SetOpenErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

func (c *Connector) Version(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version, nil
}

func (c *Connector) Open(ctx context.Context, cfg ports.ConnectConfig) (ports.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.openErr != nil {
		err := c.openErr
		c.mu.Unlock()
		return nil, err
	}
	cl := newClient(cfg)
	cl.connectEvents = []ports.Event{ports.ConnectionOpened{}}
	if c.setup != nil {
		c.setup(cl)
	}
	c.clients = append(c.clients, cl)
	c.mu.Unlock()

	select {
	case c.opened <- cl:
	default:
	}
	return cl, nil
}

// Clients returns every client opened so far, oldest first.
func (c *Connector) Clients() []*Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Client(nil), c.clients...)
}

// Opens returns how many clients were opened.
func (c *Connector) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// Last returns the most recently opened client, or nil.
func (c *Connector) Last() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.clients) == 0 {
		return nil
	}
	return c.clients[len(c.clients)-1]
}

// Live returns the clients that were not closed.
func (c *Connector) Live() []*Client {
	var out []*Client
	for _, cl := range c.Clients() {
		if !cl.Closed() {
			out = append(out, cl)
		}
	}
	return out
}

// Opened yields each client as it is opened.
func (c *Connector) Opened() <-chan *Client { return c.opened }

var _ ports.Connector = (*Connector)(nil)
