// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/wabridge/internal/broker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBus_PublishFansOutByPattern(t *testing.T) {
	b := New(broker.Routing{})
	require.NoError(t, b.Connect(context.Background()))
	defer b.Close()

	tenant := b.Subscribe("wa.evt.t1.#")
	status := b.Subscribe("wa.evt.*.*.session.status")
	other := b.Subscribe("wa.evt.t2.#")
	defer other.Close()

	env := broker.Envelope{ID: "1", TenantID: "t1", Type: "session.status"}
	require.NoError(t, b.PublishEvent(context.Background(), "wa.evt.t1.s1.session.status", env))

	for _, s := range []*Subscription{tenant, status} {
		select {
		case m := <-s.C():
			assert.Equal(t, "1", m.Envelope.ID)
		case <-time.After(time.Second):
			t.Fatal("expected delivery")
		}
	}
	assert.Empty(t, other.C())
	assert.Len(t, b.Events("session.status"), 1)
	assert.Empty(t, b.Events("message.ack"))
}

func TestBus_PublishContextTimeout(t *testing.T) {
	b := New(broker.Routing{})
	defer b.Close()
	sub := b.Subscribe("#")

	for i := 0; i < cap(sub.ch); i++ {
		require.NoError(t, b.PublishEvent(context.Background(), "k", broker.Envelope{}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.PublishEvent(ctx, "k", broker.Envelope{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_PublishRejectsNilContext(t *testing.T) {
	b := New(broker.Routing{})
	//nolint:staticcheck // exercising the nil guard
	err := b.PublishEvent(nil, "k", broker.Envelope{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context is nil")
}

func TestBus_CommandsReachConsumer(t *testing.T) {
	b := New(broker.Routing{})
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan broker.Envelope, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.ConsumeCommands(ctx, func(_ context.Context, env broker.Envelope) error {
			if env.Type == "bad" {
				return errors.New("rejected")
			}
			got <- env
			return nil
		})
	}()

	require.NoError(t, b.Send(ctx, "wa.cmd.t1.s1.session.start", broker.Envelope{ID: "a", Type: "session.start"}))
	require.NoError(t, b.Send(ctx, "wa.evt.t1.s1.session.start", broker.Envelope{ID: "unrouted", Type: "session.start"}))

	select {
	case env := <-got:
		assert.Equal(t, "a", env.ID)
	case <-time.After(time.Second):
		t.Fatal("command not consumed")
	}

	out, err := b.SendRaw(ctx, "wa.cmd.general", []byte(`{oops`))
	require.NoError(t, err)
	assert.Equal(t, broker.OutcomeNackDecode, out)

	out, err = b.SendRaw(ctx, "wa.cmd.general", []byte(`{"id":"b","type":"bad"}`))
	require.NoError(t, err)
	assert.Equal(t, broker.OutcomeNackHandler, out)

	assert.Empty(t, got)
	cancel()
	<-done
}

func TestBus_CloseUnblocksPublisher(t *testing.T) {
	b := New(broker.Routing{})
	sub := b.Subscribe("#")
	for i := 0; i < cap(sub.ch); i++ {
		require.NoError(t, b.PublishEvent(context.Background(), "k", broker.Envelope{}))
	}

	errc := make(chan error, 1)
	go func() { errc <- b.PublishEvent(context.Background(), "k", broker.Envelope{}) }()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, sub.Close())

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher stayed blocked after Close")
	}
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.PublishEvent(context.Background(), "k", broker.Envelope{}), broker.ErrClosed)
}
