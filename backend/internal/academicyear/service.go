// Package academicyear manages per-account academic year records and keeps at
// most one of them active.
package academicyear

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"library_turnover/backend/internal/cache"
	"library_turnover/backend/internal/docstore"
	"library_turnover/backend/internal/shared"
)

var ErrInvalidYear = shared.ErrInvalidYear

const activeKey = "active"

// Service implements the academic year store
type Service struct {
	store  docstore.Store
	log    *zap.SugaredLogger
	bus    *cache.Bus
	active *cache.Cache[shared.AcademicYear]
	now    func() time.Time
}

// NewService creates a Service whose active-year cache listens on bus
func NewService(store docstore.Store, log *zap.SugaredLogger, bus *cache.Bus, ttl time.Duration) *Service {
	s := &Service{
		store:  store,
		log:    log,
		bus:    bus,
		active: cache.New[shared.AcademicYear](ttl),
		now:    time.Now,
	}
	s.active.Attach(bus)
	return s
}

// ============================================================================
// Pure helpers
// ============================================================================

// NextYear returns the integer successor of a year
func NextYear(current string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(current))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidYear, current)
	}
	return strconv.Itoa(n + 1), nil
}

// NewYear builds an active record spanning the calendar year
func NewYear(year string, now time.Time) (shared.AcademicYear, error) {
	year = strings.TrimSpace(year)
	start, end, err := shared.YearBounds(year)
	if err != nil {
		return shared.AcademicYear{}, fmt.Errorf("%w: %q", ErrInvalidYear, year)
	}
	return shared.AcademicYear{
		ID:        year,
		Year:      year,
		StartDate: start,
		EndDate:   end,
		Status:    shared.YearActive,
		CreatedAt: shared.NewDateTime(now),
	}, nil
}

// ActivationOps creates rec and archives the listed years in one batch.
func ActivationOps(rec shared.AcademicYear, archive []string, at time.Time) []docstore.Op {
	ops := []docstore.Op{docstore.CreateOp(docstore.AcademicYears, rec.ID, rec)}
	for _, id := range archive {
		if id == rec.ID {
			continue
		}
		ops = append(ops, docstore.UpdateOp(docstore.AcademicYears, id, bson.M{
			"status":     shared.YearArchived,
			"archivedAt": shared.NewDateTime(at),
		}))
	}
	return ops
}

// ============================================================================
// Store operations
// ============================================================================

// GetActiveYear returns the active year, or nil when there is none or the read fails.
func (s *Service) GetActiveYear(ctx context.Context, account string) *shared.AcademicYear {
	if y, ok := s.active.Get(account, activeKey); ok {
		return &y
	}

	years, err := docstore.FindAll[shared.AcademicYear](ctx, s.store, s.log, account, docstore.AcademicYears,
		bson.M{"status": shared.YearActive})
	if err != nil {
		s.log.Errorw("failed to read active year", "account", account, "error", err)
		return nil
	}
	if len(years) == 0 {
		return nil
	}
	if len(years) > 1 {
		s.log.Warnw("multiple active years found", "account", account, "count", len(years))
	}

	y := latest(years)
	s.active.Set(account, activeKey, y)
	return &y
}

// EnsureActiveYear returns the existing active year or nil. It never creates one.
func (s *Service) EnsureActiveYear(ctx context.Context, account string) *shared.AcademicYear {
	return s.GetActiveYear(ctx, account)
}

// CreateYear creates year as the active year
func (s *Service) CreateYear(ctx context.Context, account, year string) (*shared.AcademicYear, error) {
	return s.SetActiveYear(ctx, account, year)
}

// SetActiveYear creates year and archives every other active year in one commit.
func (s *Service) SetActiveYear(ctx context.Context, account, year string) (*shared.AcademicYear, error) {
	now := s.now()
	rec, err := NewYear(year, now)
	if err != nil {
		return nil, err
	}

	current, err := docstore.FindAll[shared.AcademicYear](ctx, s.store, s.log, account, docstore.AcademicYears,
		bson.M{"status": shared.YearActive})
	if err != nil {
		return nil, fmt.Errorf("read active years: %w", err)
	}
	archive := make([]string, 0, len(current))
	for _, y := range current {
		archive = append(archive, y.ID)
	}

	if err := s.store.Commit(ctx, account, ActivationOps(rec, archive, now)); err != nil {
		return nil, fmt.Errorf("activate year %s: %w", rec.Year, err)
	}

	s.log.Infow("academic year activated", "account", account, "year", rec.Year, "archived", archive)
	s.bus.Publish(cache.Event{Account: account, Reason: "active_year_changed"})
	return &rec, nil
}

// ArchiveYear marks a year archived
func (s *Service) ArchiveYear(ctx context.Context, account, year string) error {
	err := s.store.Update(ctx, account, docstore.AcademicYears, year, bson.M{
		"status":     shared.YearArchived,
		"archivedAt": shared.NewDateTime(s.now()),
	})
	if err != nil {
		return fmt.Errorf("archive year %s: %w", year, err)
	}
	s.bus.Publish(cache.Event{Account: account, Reason: "year_archived"})
	return nil
}

// GetYear retrieves one year record
func (s *Service) GetYear(ctx context.Context, account, year string) (*shared.AcademicYear, error) {
	return docstore.GetOne[shared.AcademicYear](ctx, s.store, account, docstore.AcademicYears, year)
}

// ListYears returns every year, newest first
func (s *Service) ListYears(ctx context.Context, account string) ([]shared.AcademicYear, error) {
	years, err := docstore.FindAll[shared.AcademicYear](ctx, s.store, s.log, account, docstore.AcademicYears, nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(years, func(i, j int) bool {
		return YearNumber(years[i].Year) > YearNumber(years[j].Year)
	})
	return years, nil
}

func latest(years []shared.AcademicYear) shared.AcademicYear {
	best := years[0]
	for _, y := range years[1:] {
		if YearNumber(y.Year) > YearNumber(best.Year) {
			best = y
		}
	}
	return best
}

// YearNumber parses a year for ordering; unparsable years sort first.
func YearNumber(year string) int {
	n, _ := strconv.Atoi(year)
	return n
}
