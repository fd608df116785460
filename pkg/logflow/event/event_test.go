package event_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/logflow/pkg/logflow/event"
)

func TestNew(t *testing.T) {
	evt := event.NewWithString("hello",
		event.WithHeader("state", "CA"),
		event.WithHeaders(map[string]string{"host": "h1", "state": "NY"}),
	)

	assert.Equal(t, []byte("hello"), evt.Body)
	assert.Equal(t, 5, evt.Size())
	v, ok := evt.Header("state")
	require.True(t, ok)
	assert.Equal(t, "NY", v)
	v, ok = evt.Header("host")
	require.True(t, ok)
	assert.Equal(t, "h1", v)
}

func TestNewAllocatesHeaders(t *testing.T) {
	evt := event.New(nil)
	require.NotNil(t, evt.Headers)
	_, ok := evt.Header("missing")
	assert.False(t, ok)
}

func TestWithEventID(t *testing.T) {
	evt := event.New([]byte("x"), event.WithEventID())
	id, ok := evt.Header(event.HeaderID)
	require.True(t, ok)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestSetHeaderOnZeroValue(t *testing.T) {
	var evt event.Event
	evt.SetHeader("k", "v")
	v, ok := evt.Header("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestClone(t *testing.T) {
	orig := event.NewWithString("body", event.WithHeader("a", "1"))
	cp := orig.Clone()

	cp.Headers["a"] = "2"
	cp.Body[0] = 'B'

	assert.Equal(t, "1", orig.Headers["a"])
	assert.Equal(t, "body", string(orig.Body))
	assert.Equal(t, "Body", string(cp.Body))
}

func TestString(t *testing.T) {
	evt := event.NewWithString("0123456789abcdefXYZ", event.WithHeader("b", "2"), event.WithHeader("a", "1"))
	s := evt.String()
	assert.Contains(t, s, "{a=1, b=2}")
	assert.Contains(t, s, "body.length = 19")
	assert.Contains(t, s, `"0123456789abcdef"...`)
}
