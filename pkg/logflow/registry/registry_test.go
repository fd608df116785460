package registry_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/registry"
)

func TestRegistry_CaseInsensitive(t *testing.T) {
	r := registry.New[int]()
	r.Register("Replicating", 1)

	v, ok := r.Get("REPLICATING")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, r.Has(" replicating "))
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := registry.New[string]()
	r.Register("memory", "m")
	r.Register("file", "f")

	_, err := r.Lookup("jdbc")
	require.Error(t, err)
	assert.ErrorIs(t, err, lferrors.ErrUnknownType)
	assert.Contains(t, err.Error(), "file, memory")
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := registry.New[struct{}]()
	for _, n := range []string{"timestamp", "host", "static"} {
		r.Register(n, struct{}{})
	}
	assert.Equal(t, []string{"host", "static", "timestamp"}, r.Names())
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := registry.New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Register(fmt.Sprintf("k%d", i), i)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = r.Lookup(fmt.Sprintf("k%d", i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}
