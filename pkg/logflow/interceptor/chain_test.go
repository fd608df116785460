package interceptor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
)

type trackingInterceptor struct {
	Func
	name      string
	initErr   error
	closeErr  error
	initCalls *[]string
	closed    *[]string
}

func (ti *trackingInterceptor) Initialize(context.Context) error {
	*ti.initCalls = append(*ti.initCalls, ti.name)
	return ti.initErr
}

func (ti *trackingInterceptor) Close() error {
	*ti.closed = append(*ti.closed, ti.name)
	return ti.closeErr
}

// growing returns every event twice.
type growing struct{ noLifecycle }

func (growing) Intercept(evt *event.Event) *event.Event { return evt }

func (growing) InterceptBatch(evts []*event.Event) []*event.Event {
	return append(append([]*event.Event{}, evts...), evts...)
}

func bodies(evts []*event.Event) []string {
	out := make([]string, 0, len(evts))
	for _, e := range evts {
		out = append(out, string(e.Body))
	}
	return out
}

func upper(evt *event.Event) *event.Event {
	evt.Body = []byte(strings.ToUpper(string(evt.Body)))
	return evt
}

func dropPrefix(prefix string) Func {
	return func(evt *event.Event) *event.Event {
		if strings.HasPrefix(string(evt.Body), prefix) {
			return nil
		}
		return evt
	}
}

func TestChain_InterceptBatch(t *testing.T) {
	chain := NewChain(dropPrefix("x"), Func(upper), dropPrefix("B"))

	in := []*event.Event{
		event.NewWithString("a"),
		event.NewWithString("xa"),
		event.NewWithString("b"),
		event.NewWithString("c"),
	}
	out, err := chain.InterceptBatch(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, bodies(out))
	assert.LessOrEqual(t, len(out), len(in))
}

func TestChain_EmptyChainPassesThrough(t *testing.T) {
	chain := NewChain()
	evt := event.NewWithString("a")

	assert.Same(t, evt, chain.Intercept(evt))
	out, err := chain.InterceptBatch([]*event.Event{evt})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, 0, chain.Len())
}

func TestChain_InterceptShortCircuits(t *testing.T) {
	calls := 0
	counter := Func(func(evt *event.Event) *event.Event {
		calls++
		return evt
	})
	chain := NewChain(counter, dropPrefix("a"), counter)

	assert.Nil(t, chain.Intercept(event.NewWithString("abc")))
	assert.Equal(t, 1, calls)

	assert.NotNil(t, chain.Intercept(event.NewWithString("bcd")))
	assert.Equal(t, 3, calls)
}

func TestChain_InterceptBatchStopsWhenEmpty(t *testing.T) {
	calls := 0
	counter := Func(func(evt *event.Event) *event.Event {
		calls++
		return evt
	})
	chain := NewChain(dropPrefix(""), counter)

	out, err := chain.InterceptBatch([]*event.Event{event.NewWithString("a")})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, calls)
}

func TestChain_BatchGrowthIsIllegal(t *testing.T) {
	chain := NewChain(growing{})

	_, err := chain.InterceptBatch([]*event.Event{event.NewWithString("a")})
	require.Error(t, err)
	assert.ErrorIs(t, err, lferrors.ErrIllegalState)

	var se *lferrors.StateError
	assert.ErrorAs(t, err, &se)
	assert.True(t, lferrors.IsFatal(err))
}

func TestChain_InitializeFailureClosesInitialized(t *testing.T) {
	var inits, closed []string
	a := &trackingInterceptor{name: "a", initCalls: &inits, closed: &closed}
	b := &trackingInterceptor{name: "b", initCalls: &inits, closed: &closed}
	c := &trackingInterceptor{name: "c", initErr: errors.New("boom"), initCalls: &inits, closed: &closed}
	d := &trackingInterceptor{name: "d", initCalls: &inits, closed: &closed}

	err := NewChain(a, b, c, d).Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"a", "b", "c"}, inits)
	assert.Equal(t, []string{"b", "a"}, closed)
}

func TestChain_CloseJoinsErrors(t *testing.T) {
	var inits, closed []string
	errA := errors.New("close a")
	errC := errors.New("close c")
	chain := NewChain(
		&trackingInterceptor{name: "a", closeErr: errA, initCalls: &inits, closed: &closed},
		&trackingInterceptor{name: "b", initCalls: &inits, closed: &closed},
		&trackingInterceptor{name: "c", closeErr: errC, initCalls: &inits, closed: &closed},
	)

	err := chain.Close()
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
	assert.Equal(t, []string{"a", "b", "c"}, closed)
}
