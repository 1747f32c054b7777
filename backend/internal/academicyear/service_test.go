package academicyear

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"library_turnover/backend/internal/cache"
	"library_turnover/backend/internal/docstore"
	"library_turnover/backend/internal/shared"
)

const account = "school_1"

type failingStore struct {
	docstore.Store
}

func (failingStore) Find(context.Context, string, docstore.Collection, bson.M) ([]bson.Raw, error) {
	return nil, errors.New("connection reset")
}

func newTestService(store docstore.Store) (*Service, *cache.Bus) {
	bus := cache.NewBus()
	s := NewService(store, zap.NewNop().Sugar(), bus, time.Hour)
	s.now = func() time.Time { return time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC) }
	return s, bus
}

func TestNextYear(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2024", "2025", false},
		{" 1999 ", "2000", false},
		{"0", "1", false},
		{"twenty", "", true},
		{"", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NextYear(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidYear)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNewYear_CalendarBounds(t *testing.T) {
	y, err := NewYear("2025", time.Now())
	require.NoError(t, err)
	require.Equal(t, "2025", y.ID)
	require.Equal(t, shared.YearActive, y.Status)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), y.StartDate)
	require.Equal(t, time.Date(2025, 12, 31, 23, 59, 59, 999_000_000, time.UTC), y.EndDate)

	_, err = NewYear("abc", time.Now())
	require.ErrorIs(t, err, ErrInvalidYear)
}

func TestSetActiveYear_KeepsSingleActive(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	s, _ := newTestService(store)

	_, err := s.CreateYear(ctx, account, "2024")
	require.NoError(t, err)
	require.Equal(t, "2024", s.GetActiveYear(ctx, account).Year)

	_, err = s.SetActiveYear(ctx, account, "2025")
	require.NoError(t, err)

	years, err := s.ListYears(ctx, account)
	require.NoError(t, err)
	require.Len(t, years, 2)
	require.Equal(t, "2025", years[0].Year)
	require.Equal(t, shared.YearActive, years[0].Status)
	require.Equal(t, shared.YearArchived, years[1].Status)
	require.NotNil(t, years[1].ArchivedAt)

	active := s.GetActiveYear(ctx, account)
	require.NotNil(t, active)
	require.Equal(t, "2025", active.Year)

	_, err = s.CreateYear(ctx, account, "2025")
	require.ErrorIs(t, err, docstore.ErrAlreadyExists)
}

func TestGetActiveYear_ReadFailureIsNil(t *testing.T) {
	s, _ := newTestService(failingStore{Store: docstore.NewMemoryStore()})
	require.Nil(t, s.GetActiveYear(context.Background(), account))
	require.Nil(t, s.EnsureActiveYear(context.Background(), account))
}

func TestEnsureActiveYear_NeverCreates(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	s, _ := newTestService(store)

	require.Nil(t, s.EnsureActiveYear(ctx, account))
	years, err := s.ListYears(ctx, account)
	require.NoError(t, err)
	require.Empty(t, years)
}

func TestActiveYearCache_InvalidatedByBus(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	s, bus := newTestService(store)

	_, err := s.CreateYear(ctx, account, "2024")
	require.NoError(t, err)
	require.Equal(t, "2024", s.GetActiveYear(ctx, account).Year)

	// Mutation behind the service's back, as a turnover batch would do.
	rec, err := NewYear("2025", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Commit(ctx, account, ActivationOps(rec, []string{"2024"}, time.Now())))
	require.Equal(t, "2024", s.GetActiveYear(ctx, account).Year)

	bus.Publish(cache.Event{Account: account, Reason: "turnover_completed"})
	require.Equal(t, "2025", s.GetActiveYear(ctx, account).Year)
}

func TestArchiveYear(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	s, _ := newTestService(store)

	_, err := s.CreateYear(ctx, account, "2024")
	require.NoError(t, err)
	require.NoError(t, s.ArchiveYear(ctx, account, "2024"))
	require.Nil(t, s.GetActiveYear(ctx, account))

	y, err := s.GetYear(ctx, account, "2024")
	require.NoError(t, err)
	require.Equal(t, shared.YearArchived, y.Status)

	require.ErrorIs(t, s.ArchiveYear(ctx, account, "1990"), docstore.ErrNotFound)
}
