// Package snapshot freezes a year's dashboard (metrics, charts, rankings and
// the raw facts behind them) so history survives the turnover mutations.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"library_turnover/backend/internal/docstore"
	"library_turnover/backend/internal/shared"
)

// Builder creates and reads dashboard snapshots
type Builder struct {
	store docstore.Store
	log   *zap.SugaredLogger
	now   func() time.Time
}

// NewBuilder creates a snapshot Builder
func NewBuilder(store docstore.Store, log *zap.SugaredLogger) *Builder {
	return &Builder{store: store, log: log, now: time.Now}
}

// CreateSnapshot reads the account's students, loans and books, keeps loans
// borrowed during year and writes the snapshot at key year, replacing any
// earlier one. Any read failure aborts the snapshot.
func (b *Builder) CreateSnapshot(ctx context.Context, account, year string) (*DashboardSnapshot, error) {
	start, end, err := shared.YearBounds(year)
	if err != nil {
		return nil, err
	}

	var (
		students []shared.Student
		loans    []shared.Loan
		books    []shared.Book
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		students, err = docstore.FindAll[shared.Student](gctx, b.store, b.log, account, docstore.Students, nil)
		return err
	})
	g.Go(func() error {
		var err error
		loans, err = docstore.FindAll[shared.Loan](gctx, b.store, b.log, account, docstore.Loans, nil)
		return err
	})
	g.Go(func() error {
		var err error
		books, err = docstore.FindAll[shared.Book](gctx, b.store, b.log, account, docstore.Books, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load snapshot data for %s: %w", year, err)
	}

	yearLoans := make([]shared.Loan, 0, len(loans))
	for _, l := range loans {
		if !l.BorrowDate.Before(start) && !l.BorrowDate.After(end) {
			yearLoans = append(yearLoans, l)
		}
	}

	snap := Build(year, NewRawData(yearLoans, students, books), b.now())

	doc, err := shared.ToDocument(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %s: %w", year, err)
	}
	if err := b.store.Set(ctx, account, docstore.DashboardSnapshots, year, shared.StripNil(doc)); err != nil {
		return nil, fmt.Errorf("save snapshot %s: %w", year, err)
	}

	b.log.Infow("dashboard snapshot created",
		"account", account,
		"year", year,
		"loans", snap.Metrics.TotalLoans,
		"students", snap.Metrics.TotalStudents,
		"books", snap.Metrics.TotalBooks,
	)
	return &snap, nil
}

// GetSnapshot reads the snapshot stored for year
func (b *Builder) GetSnapshot(ctx context.Context, account, year string) (*DashboardSnapshot, error) {
	return docstore.GetOne[DashboardSnapshot](ctx, b.store, account, docstore.DashboardSnapshots, year)
}

// ListSnapshots returns every stored snapshot, newest year first
func (b *Builder) ListSnapshots(ctx context.Context, account string) ([]DashboardSnapshot, error) {
	snaps, err := docstore.FindAll[DashboardSnapshot](ctx, b.store, b.log, account, docstore.DashboardSnapshots, nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].Year > snaps[j].Year })
	return snaps, nil
}
