package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource plays back a fixed character sequence.
type scriptedSource struct {
	chars string
	block chan struct{}
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Run(ctx context.Context, feed func(ch rune)) error {
	for _, ch := range s.chars {
		feed(ch)
	}
	if s.block != nil {
		<-s.block
	}
	return nil
}

func TestManagerEmitsScan(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	m := NewManager(&scriptedSource{chars: "5901234123457\n", block: block}, DefaultTimeout, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	select {
	case result := <-m.Results():
		assert.Equal(t, "5901234123457", result.Value)
		assert.Equal(t, "EAN13", result.Kind)
	case <-time.After(time.Second):
		t.Fatal("no scan result")
	}
	assert.True(t, m.Active())
}

func TestManagerWithoutSourceIsInactive(t *testing.T) {
	m := NewManager(nil, DefaultTimeout, zerolog.Nop())
	m.Start(context.Background())
	assert.False(t, m.Active())
}

func TestManagerDeactivatesWhenSourceStops(t *testing.T) {
	m := NewManager(&scriptedSource{chars: ""}, DefaultTimeout, zerolog.Nop())
	m.Start(context.Background())

	require.Eventually(t, func() bool { return !m.Active() },
		time.Second, 10*time.Millisecond, "manager should go inactive after source exit")
}
