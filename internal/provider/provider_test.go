package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Local(t *testing.T) {
	p := New(Config{Kind: "local"})
	_, ok := p.(*Local)
	assert.True(t, ok)
}

func TestNew_DefaultsToNull(t *testing.T) {
	p := New(Config{Kind: "anything-else"})
	_, ok := p.(*Null)
	assert.True(t, ok)
}

func TestNull_Launch_NeverErrors(t *testing.T) {
	p := NewNull()
	err := p.Launch(context.Background(), []string{"jobtrellis", "work"}, 5)
	assert.NoError(t, err)
}

func TestLocal_Launch_NoopOnEmptyCommand(t *testing.T) {
	p := NewLocal()
	err := p.Launch(context.Background(), nil, 3)
	assert.NoError(t, err)
}

func TestLocal_Launch_NoopOnZeroCount(t *testing.T) {
	p := NewLocal()
	err := p.Launch(context.Background(), []string{"sleep", "1"}, 0)
	assert.NoError(t, err)
}

func TestLocal_Launch_StartsRequestedProcesses(t *testing.T) {
	p := NewLocal()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := p.Launch(ctx, []string{"sleep", "0.2"}, 2)
	require.NoError(t, err)

	key := joinCommand([]string{"sleep", "0.2"})
	p.mu.Lock()
	count := len(p.running[key])
	p.mu.Unlock()
	assert.Equal(t, 2, count)
}

func TestJoinCommand(t *testing.T) {
	assert.Equal(t, "a\x00b\x00c", joinCommand([]string{"a", "b", "c"}))
	assert.Equal(t, "", joinCommand(nil))
}
