package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	now := time.Date(2025, 6, 30, 9, 0, 0, 0, time.UTC)
	m := NewManager(time.Minute, func() time.Time { return now })

	_, ok := m.Get(1)
	assert.False(t, ok)

	m.Start(1, Dialog{State: StateComposingMessage, UserID: 7, RecipientID: 8})
	d, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, StateComposingMessage, d.State)
	assert.Equal(t, int64(8), d.RecipientID)

	m.Start(1, Dialog{State: StateRescheduleReason, UserID: 7, SessionID: 3})
	d, ok = m.Get(1)
	require.True(t, ok)
	assert.Equal(t, StateRescheduleReason, d.State)
	assert.Zero(t, d.RecipientID)

	assert.True(t, m.Clear(1))
	assert.False(t, m.Clear(1))
}

func TestManagerExpiresDialogs(t *testing.T) {
	now := time.Date(2025, 6, 30, 9, 0, 0, 0, time.UTC)
	m := NewManager(time.Minute, func() time.Time { return now })

	m.Start(1, Dialog{State: StateComposingMessage, RecipientID: 8})
	now = now.Add(2 * time.Minute)

	_, ok := m.Get(1)
	assert.False(t, ok)
	assert.False(t, m.Clear(1))
}

func TestManagerStartNoneClears(t *testing.T) {
	m := NewManager(0, nil)
	m.Start(1, Dialog{State: StateComposingMessage})
	m.Start(1, Dialog{State: StateNone})

	_, ok := m.Get(1)
	assert.False(t, ok)
}
