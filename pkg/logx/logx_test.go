package logx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferEviction(t *testing.T) {
	b := &Buffer{maxSize: 3}

	for i := 0; i < 5; i++ {
		b.Add(&Entry{Message: string(rune('a' + i))})
	}

	entries := b.Entries("")
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Message)
	assert.Equal(t, "e", entries[2].Message)
}

func TestBufferDomainFilter(t *testing.T) {
	b := &Buffer{maxSize: 10}
	b.Add(&Entry{Message: "one", Domain: "lock"})
	b.Add(&Entry{Message: "two", Domain: "drift"})
	b.Add(&Entry{Message: "three"}) // no domain, always included

	entries := b.Entries("lock")
	require.Len(t, entries, 2)
	assert.Equal(t, "one", entries[0].Message)
	assert.Equal(t, "three", entries[1].Message)
}

func TestDebugDomainGating(t *testing.T) {
	SetDebug(true, []string{"lock"})
	defer SetDebug(false, nil)

	assert.True(t, IsDebugEnabledForDomain("lock"))
	assert.False(t, IsDebugEnabledForDomain("drift"))

	SetDebug(true, nil)
	assert.True(t, IsDebugEnabledForDomain("drift"))
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "noop"))

	base := errors.New("disk full")
	wrapped := Wrap(base, "write lock")
	require.Error(t, wrapped)
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, "write lock: disk full", wrapped.Error())
}
