package snapshot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.uber.org/zap"

	"library_turnover/backend/internal/docstore"
	"library_turnover/backend/internal/shared"
)

const account = "school_1"

var snapshotTime = time.Date(2024, 11, 15, 12, 0, 0, 0, time.UTC)

func date(month time.Month, day int) time.Time {
	return time.Date(2024, month, day, 9, 30, 0, 0, time.UTC)
}

func seed(t *testing.T, store docstore.Store, loans []shared.Loan) {
	t.Helper()
	ctx := context.Background()

	students := []shared.Student{
		{ID: "s1", Name: "Ana", Classroom: "1A", Shift: "manhã", EducationalLevelID: "L1"},
		{ID: "s2", Name: "Bruno", Classroom: "1A", Shift: "manhã", EducationalLevelID: "L1"},
		{ID: "s3", Name: "Carla", Classroom: "2B", Shift: "tarde", EducationalLevelID: "L2"},
	}
	books := []shared.Book{
		{ID: "b1", Title: "Dom Casmurro", Category: "Literatura", Genre: "Romance"},
		{ID: "b2", Title: "O Cortiço", Category: "Literatura", Genre: "Naturalismo"},
		{ID: "b3", Title: "Atlas", Category: "Geografia"},
	}
	for _, s := range students {
		require.NoError(t, store.Create(ctx, account, docstore.Students, s.ID, s))
	}
	for _, b := range books {
		require.NoError(t, store.Create(ctx, account, docstore.Books, b.ID, b))
	}
	for _, l := range loans {
		require.NoError(t, store.Create(ctx, account, docstore.Loans, l.ID, l))
	}
}

func sampleLoans() []shared.Loan {
	ret := func(tm time.Time) *time.Time { return &tm }
	return []shared.Loan{
		{ID: "l1", StudentID: "s1", BookID: "b1", BorrowDate: date(2, 3), DueDate: date(2, 17), ReturnDate: ret(date(2, 10)), Status: shared.LoanReturned, Completed: true},
		{ID: "l2", StudentID: "s1", BookID: "b2", BorrowDate: date(3, 5), DueDate: date(3, 19), ReturnDate: ret(date(3, 20)), Status: shared.LoanReturned, ReadingProgress: 40},
		{ID: "l3", StudentID: "s2", BookID: "b1", BorrowDate: date(3, 9), DueDate: date(3, 23), Status: shared.LoanActive},
		{ID: "l4", StudentID: "s3", BookID: "b3", BorrowDate: date(11, 10), DueDate: date(11, 24), Status: shared.LoanActive},
		{ID: "l5", StudentID: "s3", BookID: "b2", BorrowDate: date(6, 1), DueDate: date(6, 15), ReturnDate: ret(date(6, 2)), Status: shared.LoanReturned, ReadingProgress: 70},
		// previous year, excluded
		{ID: "l6", StudentID: "s2", BookID: "b3", BorrowDate: time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), DueDate: date(1, 14), Status: shared.LoanActive},
		// orphaned loan of a deleted student
		{ID: "l7", StudentID: "gone", BookID: "b1", BorrowDate: date(12, 31), DueDate: time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), Status: shared.LoanActive},
	}
}

func newTestBuilder(store docstore.Store) *Builder {
	b := NewBuilder(store, zap.NewNop().Sugar())
	b.now = func() time.Time { return snapshotTime }
	return b
}

func TestCreateSnapshot_Metrics(t *testing.T) {
	store := docstore.NewMemoryStore()
	seed(t, store, sampleLoans())

	snap, err := newTestBuilder(store).CreateSnapshot(context.Background(), account, "2024")
	require.NoError(t, err)

	require.Equal(t, "2024", snap.Year)
	require.Equal(t, Metrics{
		TotalLoans:      6,
		ActiveLoans:     3,
		CompletedLoans:  3,
		OverdueLoans:    1, // l3; l4 and l7 are due after the snapshot
		AverageProgress: 70,
		TotalStudents:   3,
		TotalBooks:      3,
		ActiveReaders:   4,
	}, snap.Metrics)

	require.Equal(t, []ChartPoint{
		{Label: "2024-02", Value: 1},
		{Label: "2024-03", Value: 2},
		{Label: "2024-06", Value: 1},
		{Label: "2024-11", Value: 1},
		{Label: "2024-12", Value: 1},
	}, snap.Charts.MonthlyLoans)
	require.Equal(t, []ChartPoint{
		{Label: "Literatura", Value: 5},
		{Label: "Geografia", Value: 1},
	}, snap.Charts.LoansByCategory)
	require.Equal(t, []ChartPoint{
		{Label: "L1", Value: 3},
		{Label: "L2", Value: 2},
		{Label: unknownLabel, Value: 1},
	}, snap.Charts.LoansByLevel)

	require.Equal(t, RankingEntry{ID: "b1", Name: "Dom Casmurro", Count: 3}, snap.Rankings.TopBooks[0])
	require.Equal(t, []RankingEntry{
		{ID: "s1", Name: "Ana", Count: 2},
		{ID: "s3", Name: "Carla", Count: 2},
		{ID: "s2", Name: "Bruno", Count: 1},
	}, snap.Rankings.TopStudents)
	require.Equal(t, []RankingEntry{
		{ID: "Romance", Name: "Romance", Count: 3},
		{ID: "Naturalismo", Name: "Naturalismo", Count: 2},
	}, snap.Rankings.TopGenres)
	require.Len(t, snap.RawData.Loans, 6)
	require.Equal(t, "2024-02-03T09:30:00.000Z", snap.RawData.Loans[0].BorrowDate)
}

func TestCreateSnapshot_IdempotentKey(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	seed(t, store, sampleLoans())
	b := newTestBuilder(store)

	_, err := b.CreateSnapshot(ctx, account, "2024")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, account, docstore.Loans, "l1"))
	_, err = b.CreateSnapshot(ctx, account, "2024")
	require.NoError(t, err)

	docs, err := store.Find(ctx, account, docstore.DashboardSnapshots, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	stored, err := b.GetSnapshot(ctx, account, "2024")
	require.NoError(t, err)
	require.Equal(t, 5, stored.Metrics.TotalLoans)
}

func TestCreateSnapshot_StoresNoNulls(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	seed(t, store, nil)

	_, err := newTestBuilder(store).CreateSnapshot(ctx, account, "2024")
	require.NoError(t, err)

	raw, err := store.Get(ctx, account, docstore.DashboardSnapshots, "2024")
	require.NoError(t, err)
	require.False(t, containsNull(raw), "snapshot document contains null values")

	stored, err := newTestBuilder(store).GetSnapshot(ctx, account, "2024")
	require.NoError(t, err)
	require.Equal(t, 0, stored.Metrics.TotalLoans)
	require.Equal(t, snapshotTime, stored.CreatedAt)
}

func containsNull(doc bson.Raw) bool {
	elems, err := doc.Elements()
	if err != nil {
		return true
	}
	for _, e := range elems {
		v := e.Value()
		switch v.Type {
		case bsontype.Null, bsontype.Undefined:
			return true
		case bsontype.EmbeddedDocument, bsontype.Array:
			if containsNull(bson.Raw(v.Value)) {
				return true
			}
		}
	}
	return false
}

type brokenLoans struct {
	docstore.Store
}

func (s brokenLoans) Find(ctx context.Context, account string, c docstore.Collection, filter bson.M) ([]bson.Raw, error) {
	if c == docstore.Loans {
		return nil, errors.New("deadline exceeded")
	}
	return s.Store.Find(ctx, account, c, filter)
}

func TestCreateSnapshot_ReadFailureAborts(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	seed(t, mem, sampleLoans())

	_, err := newTestBuilder(brokenLoans{Store: mem}).CreateSnapshot(ctx, account, "2024")
	require.Error(t, err)

	_, err = mem.Get(ctx, account, docstore.DashboardSnapshots, "2024")
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestFilterSnapshot_EquivalentToFreshSnapshot(t *testing.T) {
	ctx := context.Background()
	loans := sampleLoans()

	full := docstore.NewMemoryStore()
	seed(t, full, loans)
	snap, err := newTestBuilder(full).CreateSnapshot(ctx, account, "2024")
	require.NoError(t, err)

	ranges := []DateRange{
		{StartDate: date(3, 1), EndDate: date(6, 30)},
		{StartDate: date(1, 1), EndDate: date(2, 3)}, // inclusive at the boundary
		{StartDate: date(7, 1), EndDate: date(8, 1)}, // empty
		{StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2024, 12, 31, 23, 59, 59, 999_000_000, time.UTC)},
	}

	for i, r := range ranges {
		t.Run(fmt.Sprintf("range %d", i), func(t *testing.T) {
			var inRange []shared.Loan
			for _, l := range loans {
				if !l.BorrowDate.Before(r.StartDate) && !l.BorrowDate.After(r.EndDate) {
					inRange = append(inRange, l)
				}
			}
			partial := docstore.NewMemoryStore()
			seed(t, partial, inRange)
			fresh, err := newTestBuilder(partial).CreateSnapshot(ctx, account, "2024")
			require.NoError(t, err)

			filtered, err := FilterSnapshotByDateRange(*snap, r)
			require.NoError(t, err)
			require.Equal(t, fresh.Metrics, filtered.Metrics)
			require.Equal(t, fresh.Charts, filtered.Charts)
			require.Equal(t, fresh.Rankings, filtered.Rankings)
		})
	}
}

func TestFilterSnapshot_FromStoredRawDataOnly(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	seed(t, store, sampleLoans())
	b := newTestBuilder(store)

	created, err := b.CreateSnapshot(ctx, account, "2024")
	require.NoError(t, err)

	// Live data changes after the snapshot must not matter.
	for _, id := range []string{"l1", "l2", "l3"} {
		require.NoError(t, store.Delete(ctx, account, docstore.Loans, id))
	}

	stored, err := b.GetSnapshot(ctx, account, "2024")
	require.NoError(t, err)

	r := DateRange{StartDate: date(1, 1), EndDate: date(12, 31)}
	a, err := FilterSnapshotByDateRange(*created, r)
	require.NoError(t, err)
	c, err := FilterSnapshotByDateRange(*stored, r)
	require.NoError(t, err)
	require.Equal(t, a.Metrics, c.Metrics)
	require.Equal(t, a.Rankings, c.Rankings)
}

func TestFilterSnapshot_RejectsInvertedRange(t *testing.T) {
	_, err := FilterSnapshotByDateRange(DashboardSnapshot{Year: "2024"}, DateRange{StartDate: date(5, 1), EndDate: date(4, 1)})
	require.Error(t, err)
}
