package livesession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	e, err := New(testConfig(), newFakeStore(), nil)
	require.NoError(t, err)
	defer e.Release()

	r := NewRegistry()
	now := time.Now()
	a := newSession(e, &SessionRecord{ID: "a", Status: StatusReady}, now)
	dup := newSession(e, &SessionRecord{ID: "a", Status: StatusOpened}, now)
	b := newSession(e, &SessionRecord{ID: "b", Status: StatusOpened}, now)

	assert.True(t, r.Add(a))
	assert.False(t, r.Add(dup))
	assert.False(t, r.Add(nil))
	assert.True(t, r.Add(b))

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.True(t, r.Has("b"))
	assert.Equal(t, 2, r.Len())

	visited := 0
	r.Range(func(*Session) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)

	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("a"))
	assert.ElementsMatch(t, []*Session{b}, r.Sessions())
}
