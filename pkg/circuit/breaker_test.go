package circuit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Hour})

	assert.True(t, b.Allow())
	b.Record(false)
	b.Record(false)
	assert.Equal(t, Closed, b.GetState())
	assert.True(t, b.Allow())

	b.Record(false)
	assert.Equal(t, Open, b.GetState())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour})

	b.Record(false)
	b.Record(true)
	b.Record(false)
	assert.Equal(t, Closed, b.GetState(), "success in closed state resets the count")
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Millisecond})

	b.Record(false)
	assert.Equal(t, Open, b.GetState())

	time.Sleep(5 * time.Millisecond)
	assert.True(t, b.Allow(), "cool-down elapsed, probe allowed")
	assert.Equal(t, HalfOpen, b.GetState())

	b.Record(true)
	assert.Equal(t, Closed, b.GetState())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Millisecond})

	b.Record(false)
	time.Sleep(5 * time.Millisecond)
	require.True(t, b.Allow())

	b.Record(false)
	assert.Equal(t, Open, b.GetState())
}

func TestBreakerReset(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})
	b.Record(false)
	require.Equal(t, Open, b.GetState())

	b.Reset()
	assert.Equal(t, Closed, b.GetState())
	assert.True(t, b.Allow())
}

func TestPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "breaker.json")
	cfg := Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour}

	b := New(cfg)
	b.Record(false)
	b.Record(false)
	require.Equal(t, Open, b.GetState())
	require.NoError(t, Save(path, b))

	restored, err := Load(path, cfg)
	require.NoError(t, err)
	assert.Equal(t, Open, restored.GetState())
	assert.False(t, restored.Allow(), "trip state survives process restart")
}

func TestLoadMissingFile(t *testing.T) {
	b, err := Load(filepath.Join(t.TempDir(), "none.json"), DefaultConfig)
	require.NoError(t, err)
	assert.Equal(t, Closed, b.GetState())
}
