package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCache_TTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string](time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", "k", "v")
	v, ok := c.Get("a", "k")
	require.True(t, ok)
	require.Equal(t, "v", v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a", "k")
	require.False(t, ok)
}

func TestBus_InvalidatesOnlyTheAccount(t *testing.T) {
	bus := NewBus()
	years := New[string](time.Hour)
	counts := New[int](time.Hour)
	unsubscribe := years.Attach(bus)
	counts.Attach(bus)

	years.Set("a", "active", "2024")
	years.Set("b", "active", "2030")
	counts.Set("a", "students", 10)

	bus.Publish(Event{Account: "a", Reason: "turnover"})

	_, ok := years.Get("a", "active")
	require.False(t, ok)
	_, ok = counts.Get("a", "students")
	require.False(t, ok)
	v, ok := years.Get("b", "active")
	require.True(t, ok)
	require.Equal(t, "2030", v)

	unsubscribe()
	years.Set("a", "active", "2025")
	bus.Publish(Event{Account: "a"})
	v, ok = years.Get("a", "active")
	require.True(t, ok)
	require.Equal(t, "2025", v)
}
