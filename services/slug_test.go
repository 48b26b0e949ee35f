package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetSlugBase(t *testing.T) {
	assert.Equal(t, "jane-doe-summer-2024", SetSlugBase("jane-doe", "Summer 2024"))
	assert.Equal(t, "jane-doe-cafe", SetSlugBase("jane-doe", "Café!"))
	assert.Equal(t, "set", SetSlugBase("", "***"))
}

func TestUniqueSlug(t *testing.T) {
	taken := map[string]bool{"jane-summer": true, "jane-summer-2": true}
	got, err := UniqueSlug("jane-summer", func(s string) (bool, error) { return taken[s], nil })
	require.NoError(t, err)
	assert.Equal(t, "jane-summer-3", got)

	got, err = UniqueSlug("fresh", func(s string) (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", got)

	boom := errors.New("db down")
	_, err = UniqueSlug("x", func(string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)

	_, err = UniqueSlug("x", func(string) (bool, error) { return true, nil })
	assert.Error(t, err)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("1/Summer")

	acquired := make(chan struct{})
	released := make(chan struct{})
	go func() {
		u := k.Lock("1/Summer")
		close(acquired)
		u()
		close(released)
	}()

	other := k.Lock("1/Winter")
	other()

	select {
	case <-acquired:
		t.Fatal("same key acquired while held")
	default:
	}
	unlock()
	<-acquired
	<-released

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}
