package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pubmemory "github.com/civicarchive/lexharvest/internal/publisher/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestNewPinsStartTimeUTC(t *testing.T) {
	t.Parallel()

	est := time.FixedZone("EST", -5*3600)
	clock := fixedClock{now: time.Date(2024, time.March, 8, 9, 0, 0, 0, est)}

	s := New(Config{Clock: clock})
	require.Equal(t, time.Date(2024, time.March, 8, 14, 0, 0, 0, time.UTC), s.StartedAt())
	require.Equal(t, time.UTC, s.StartedAt().Location())
}

func TestCloseReleasesInReverseOrder(t *testing.T) {
	t.Parallel()

	pub := pubmemory.NewPublisher()
	var order []string
	s := New(Config{
		Publisher: pub,
		Closers: []func() error{
			func() error { order = append(order, "first"); return nil },
			func() error { order = append(order, "second"); return errors.New("second failed") },
		},
	})

	err := s.Close()
	require.Error(t, err)
	require.Contains(t, err.Error(), "second failed")
	require.Equal(t, []string{"second", "first"}, order)
	require.True(t, pub.Closed())
}

func TestReporterUsesSessionPolicy(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	require.NotNil(t, s.Reporter("runner"))
}
