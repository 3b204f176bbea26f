package orch

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovals_TakeIsOnce(t *testing.T) {
	a := NewApprovals(4, time.Minute)
	var expired atomic.Int32
	a.onExpire = func(*Pending) { expired.Add(1) }

	id := a.Park(&Pending{Peer: "p", RequestID: "1"})
	require.NotEmpty(t, id)
	p, ok := a.Get(id)
	require.True(t, ok)
	assert.False(t, p.CreatedAt.IsZero())

	got, ok := a.Take(id)
	require.True(t, ok)
	assert.Equal(t, id, got.ID)

	_, ok = a.Take(id)
	assert.False(t, ok)
	assert.Zero(t, expired.Load())
}

func TestApprovals_DropPeer(t *testing.T) {
	a := NewApprovals(4, time.Minute)
	var expired atomic.Int32
	a.onExpire = func(*Pending) { expired.Add(1) }

	a.Park(&Pending{Peer: "p1"})
	a.Park(&Pending{Peer: "p1"})
	keep := a.Park(&Pending{Peer: "p2"})

	a.DropPeer("p1")
	assert.Equal(t, 1, a.Len())
	_, ok := a.Get(keep)
	assert.True(t, ok)
	assert.Zero(t, expired.Load())
}

func TestApprovals_ListOldestFirst(t *testing.T) {
	a := NewApprovals(4, time.Minute)
	first := a.Park(&Pending{Peer: "p"})
	second := a.Park(&Pending{Peer: "p"})

	list := a.List()
	require.Len(t, list, 2)
	assert.Equal(t, first, list[0].ID)
	assert.Equal(t, second, list[1].ID)
}
