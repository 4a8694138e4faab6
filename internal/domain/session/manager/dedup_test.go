// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/wabridge/internal/clock"
)

func TestDedupSet_ConsumeOnceWithinWindow(t *testing.T) {
	clk := clock.NewFake(epoch)
	d := newDedupSet(clk, 10*time.Second)
	defer d.Close()

	d.Add("3EB0A")
	clk.Advance(5 * time.Second)

	assert.True(t, d.Consume("3EB0A"))
	assert.False(t, d.Consume("3EB0A"), "second echo is a new message")
	assert.Equal(t, 0, clk.Pending(), "consume cancels the expiry")
}

func TestDedupSet_Expires(t *testing.T) {
	clk := clock.NewFake(epoch)
	d := newDedupSet(clk, 10*time.Second)
	defer d.Close()

	d.Add("3EB0A")
	clk.Advance(11 * time.Second)

	assert.Equal(t, 0, d.Len())
	assert.False(t, d.Consume("3EB0A"))
}

func TestDedupSet_ReAddRestartsWindow(t *testing.T) {
	clk := clock.NewFake(epoch)
	d := newDedupSet(clk, 10*time.Second)
	defer d.Close()

	d.Add("3EB0A")
	clk.Advance(8 * time.Second)
	d.Add("3EB0A")
	clk.Advance(8 * time.Second)

	assert.True(t, d.Consume("3EB0A"))
}

func TestDedupSet_IgnoresEmptyAndDefaultsTTL(t *testing.T) {
	clk := clock.NewFake(epoch)
	d := newDedupSet(clk, 0)

	d.Add("")
	assert.Equal(t, 0, d.Len())

	d.Add("x")
	clk.Advance(DefaultDedupTTL - time.Millisecond)
	assert.Equal(t, 1, d.Len())
	clk.Advance(time.Millisecond)
	assert.Equal(t, 0, d.Len())

	d.Add("y")
	d.Close()
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, 0, clk.Pending())
}
