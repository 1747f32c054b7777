// Package turnover validates and executes the yearly migration of an account's
// students and classes from one academic year to the next.
package turnover

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"library_turnover/backend/internal/academicyear"
	"library_turnover/backend/internal/cache"
	"library_turnover/backend/internal/docstore"
	"library_turnover/backend/internal/shared"
	"library_turnover/backend/internal/snapshot"
)

var (
	ErrHistoryCompleted = errors.New("turnover already completed")
	ErrHistoryCancelled = errors.New("turnover was cancelled")
	ErrPlanMismatch     = errors.New("rebuilt plan does not match the recorded batches")
	ErrTurnoverRunning  = errors.New("a turnover is already running for this account")
)

// SnapshotCreator freezes a year before it is mutated
type SnapshotCreator interface {
	CreateSnapshot(ctx context.Context, account, year string) (*snapshot.DashboardSnapshot, error)
}

// Options tune the executor
type Options struct {
	BatchSize           int
	LargeClassThreshold int
}

// Executor runs turnovers against a document store
type Executor struct {
	store     docstore.Store
	snapshots SnapshotCreator
	validator Validator
	bus       *cache.Bus
	log       *zap.SugaredLogger
	batchSize int
	now       func() time.Time

	// accounts with a run in flight
	running sync.Map
}

// NewExecutor creates an Executor
func NewExecutor(store docstore.Store, snapshots SnapshotCreator, bus *cache.Bus, log *zap.SugaredLogger, opts Options) *Executor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = shared.DefaultBatchSize
	}
	return &Executor{
		store:     store,
		snapshots: snapshots,
		validator: NewValidator(opts.LargeClassThreshold),
		bus:       bus,
		log:       log,
		batchSize: opts.BatchSize,
		now:       time.Now,
	}
}

// ============================================================================
// Reads
// ============================================================================

// LoadCurrentData reads everything the validator needs in parallel. A failed
// read is logged and leaves that part empty.
func (e *Executor) LoadCurrentData(ctx context.Context, account string) CurrentData {
	var (
		data  CurrentData
		years []shared.AcademicYear
	)

	var g errgroup.Group
	g.Go(func() error {
		years = loadOrEmpty[shared.AcademicYear](ctx, e, account, docstore.AcademicYears, nil)
		return nil
	})
	g.Go(func() error {
		data.Levels = loadOrEmpty[shared.EducationalLevel](ctx, e, account, docstore.EducationalLevels, nil)
		return nil
	})
	g.Go(func() error {
		data.Students = loadOrEmpty[shared.Student](ctx, e, account, docstore.Students, nil)
		return nil
	})
	g.Go(func() error {
		classes := loadOrEmpty[shared.Class](ctx, e, account, docstore.Classes, nil)
		data.ClassIDs = make(map[string]bool, len(classes))
		for _, c := range classes {
			data.ClassIDs[c.ID] = true
		}
		data.Classes = classes[:0]
		for _, c := range classes {
			if c.IsActive() {
				data.Classes = append(data.Classes, c)
			}
		}
		return nil
	})
	g.Go(func() error {
		data.Loans = loadOrEmpty[shared.Loan](ctx, e, account, docstore.Loans, bson.M{"status": shared.LoanActive})
		return nil
	})
	_ = g.Wait()

	data.ExistingYears = years
	for i := range years {
		if years[i].Status != shared.YearActive {
			continue
		}
		if data.ActiveYear == nil || academicyear.YearNumber(years[i].Year) > academicyear.YearNumber(data.ActiveYear.Year) {
			y := years[i]
			data.ActiveYear = &y
		}
	}
	sort.SliceStable(data.Levels, func(i, j int) bool { return data.Levels[i].Order < data.Levels[j].Order })
	return data
}

func loadOrEmpty[T any](ctx context.Context, e *Executor, account string, c docstore.Collection, filter bson.M) []T {
	out, err := docstore.FindAll[T](ctx, e.store, e.log, account, c, filter)
	if err != nil {
		e.log.Errorw("read failed, continuing with no data", "account", account, "collection", string(c), "error", err)
		return []T{}
	}
	return out
}

// PrepareTurnover gathers what the first wizard step shows, with one pending
// action per student.
func (e *Executor) PrepareTurnover(ctx context.Context, account string) shared.TurnoverPreparation {
	data := e.LoadCurrentData(ctx, account)
	loans := data.ActiveLoansByStudent()

	prep := shared.TurnoverPreparation{
		ActiveYear:     data.ActiveYear,
		Levels:         data.Levels,
		Students:       data.Students,
		Classes:        data.Classes,
		StudentActions: make([]shared.StudentAction, 0, len(data.Students)),
	}
	if data.ActiveYear != nil {
		if next, err := academicyear.NextYear(data.ActiveYear.Year); err == nil {
			prep.NextYear = next
		}
	}
	for _, s := range data.Students {
		prep.StudentActions = append(prep.StudentActions, shared.StudentAction{
			StudentID:        s.ID,
			StudentName:      s.Name,
			FromClass:        s.Classroom,
			FromShift:        s.Shift,
			HasActiveLoans:   loans[s.ID] > 0,
			ActiveLoansCount: loans[s.ID],
		})
	}
	return prep
}

// ValidateTurnover validates cfg against freshly read data
func (e *Executor) ValidateTurnover(ctx context.Context, account string, cfg shared.TurnoverConfig) shared.ValidationResult {
	return e.validator.Validate(cfg, e.LoadCurrentData(ctx, account))
}

// GetTurnoverHistory lists every attempt, newest first
func (e *Executor) GetTurnoverHistory(ctx context.Context, account string) ([]shared.YearTurnoverHistory, error) {
	history, err := docstore.FindAll[shared.YearTurnoverHistory](ctx, e.store, e.log, account, docstore.TurnoverHistory, nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(history, func(i, j int) bool {
		if !history[i].ExecutedAt.Equal(history[j].ExecutedAt) {
			return history[i].ExecutedAt.After(history[j].ExecutedAt)
		}
		return history[i].ID > history[j].ID
	})
	return history, nil
}

// ============================================================================
// Execution
// ============================================================================

// ExecuteTurnover re-validates cfg, snapshots the source year, records the
// attempt and commits the planned batches in order. It ignores cancellation
// of ctx once started. Domain failures are reported in the result; the error
// is reserved for unusable input.
func (e *Executor) ExecuteTurnover(ctx context.Context, account string, cfg shared.TurnoverConfig) (shared.ExecutionResult, error) {
	if err := docstore.ValidateAccount(account); err != nil {
		return shared.ExecutionResult{}, err
	}
	release, err := e.acquire(account)
	if err != nil {
		return shared.ExecutionResult{}, err
	}
	defer release()

	ctx = context.WithoutCancel(ctx)
	log := e.log.With("account", account, "from_year", cfg.FromYear, "to_year", cfg.ToYear)

	// 1. re-validate against current data
	data := e.LoadCurrentData(ctx, account)
	validation := e.validator.Validate(cfg, data)
	if !validation.Valid {
		log.Warnw("turnover rejected by validation", "errors", len(validation.Errors))
		return shared.ExecutionResult{Error: "Validação falhou: " + ErrorSummary(validation)}, nil
	}

	// 2. freeze the source year before anything changes
	if _, err := e.snapshots.CreateSnapshot(ctx, account, cfg.FromYear); err != nil {
		log.Errorw("snapshot failed, turnover aborted", "error", err)
		return shared.ExecutionResult{Error: fmt.Sprintf("falha ao criar snapshot do ano %s: %v", cfg.FromYear, err)}, nil
	}

	cfg = normalizeConfig(cfg)
	executedAt := shared.NewDateTime(e.now())
	archived := make([]string, 0, len(data.Classes))
	for _, c := range data.Classes {
		archived = append(archived, c.ID)
	}

	p, err := buildPlan(planInput{
		Config:           cfg,
		ExecutedAt:       executedAt,
		ArchivedClassIDs: archived,
		ActiveLoans:      data.ActiveLoansByStudent(),
		BatchSize:        e.batchSize,
	})
	if err != nil {
		return shared.ExecutionResult{Error: err.Error()}, nil
	}

	// 3. audit record
	history := shared.YearTurnoverHistory{
		ID:               shared.GenerateHistoryID(),
		FromYear:         cfg.FromYear,
		ToYear:           cfg.ToYear,
		ExecutedAt:       executedAt,
		Status:           shared.TurnoverInProgress,
		Config:           cfg,
		ArchivedClassIDs: archived,
		BatchSize:        e.batchSize,
		TotalBatches:     len(p.Batches),
	}
	if err := e.store.Create(ctx, account, docstore.TurnoverHistory, history.ID, history); err != nil {
		log.Errorw("failed to create turnover history", "error", err)
		return shared.ExecutionResult{Error: fmt.Sprintf("falha ao registrar histórico: %v", err)}, nil
	}

	log.Infow("turnover started",
		"history_id", history.ID,
		"batches", len(p.Batches),
		"students", p.Statistics.TotalStudents,
	)
	return e.run(ctx, account, history, p, 0), nil
}

// ResumeTurnover commits the batches a failed or interrupted run left behind.
func (e *Executor) ResumeTurnover(ctx context.Context, account, historyID string) (shared.ExecutionResult, error) {
	release, err := e.acquire(account)
	if err != nil {
		return shared.ExecutionResult{}, err
	}
	defer release()

	ctx = context.WithoutCancel(ctx)

	history, err := docstore.GetOne[shared.YearTurnoverHistory](ctx, e.store, account, docstore.TurnoverHistory, historyID)
	if err != nil {
		return shared.ExecutionResult{}, fmt.Errorf("load turnover %s: %w", historyID, err)
	}
	switch history.Status {
	case shared.TurnoverCompleted:
		return shared.ExecutionResult{}, ErrHistoryCompleted
	case shared.TurnoverCancelled:
		return shared.ExecutionResult{}, ErrHistoryCancelled
	}

	loans := loadOrEmpty[shared.Loan](ctx, e, account, docstore.Loans, bson.M{"status": shared.LoanActive})
	p, err := buildPlan(planInput{
		Config:           history.Config,
		ExecutedAt:       history.ExecutedAt,
		ArchivedClassIDs: history.ArchivedClassIDs,
		ActiveLoans:      CurrentData{Loans: loans}.ActiveLoansByStudent(),
		BatchSize:        history.BatchSize,
	})
	if err != nil {
		return shared.ExecutionResult{}, fmt.Errorf("rebuild plan for %s: %w", historyID, err)
	}
	if len(p.Batches) != history.TotalBatches {
		return shared.ExecutionResult{}, fmt.Errorf("%w: %d vs %d", ErrPlanMismatch, len(p.Batches), history.TotalBatches)
	}

	if err := e.store.Update(ctx, account, docstore.TurnoverHistory, historyID, bson.M{
		"status": shared.TurnoverInProgress,
		"error":  "",
	}); err != nil {
		return shared.ExecutionResult{}, fmt.Errorf("reopen turnover %s: %w", historyID, err)
	}

	e.log.Infow("turnover resumed",
		"account", account,
		"history_id", historyID,
		"from_batch", history.CommittedBatches,
		"batches", history.TotalBatches,
	)
	return e.run(ctx, account, *history, p, history.CommittedBatches), nil
}

// acquire marks account as running until the returned func is called
func (e *Executor) acquire(account string) (func(), error) {
	if _, busy := e.running.LoadOrStore(account, struct{}{}); busy {
		return nil, ErrTurnoverRunning
	}
	return func() { e.running.Delete(account) }, nil
}

// CancelTurnover closes a failed or interrupted run without resuming it
func (e *Executor) CancelTurnover(ctx context.Context, account, historyID string) error {
	history, err := docstore.GetOne[shared.YearTurnoverHistory](ctx, e.store, account, docstore.TurnoverHistory, historyID)
	if err != nil {
		return fmt.Errorf("load turnover %s: %w", historyID, err)
	}
	switch history.Status {
	case shared.TurnoverCompleted:
		return ErrHistoryCompleted
	case shared.TurnoverCancelled:
		return nil
	}
	return e.store.Update(ctx, account, docstore.TurnoverHistory, historyID, bson.M{
		"status":      shared.TurnoverCancelled,
		"completedAt": shared.NewDateTime(e.now()),
	})
}

// run commits batches from index start on and finalizes the history record.
func (e *Executor) run(ctx context.Context, account string, history shared.YearTurnoverHistory, p plan, start int) shared.ExecutionResult {
	log := e.log.With("account", account, "history_id", history.ID)

	for i := start; i < len(p.Batches); i++ {
		if err := e.store.Commit(ctx, account, p.Batches[i]); err != nil {
			log.Errorw("batch commit failed", "batch", i, "committed", i, "error", err)
			msg := fmt.Sprintf("falha no lote %d de %d: %v", i+1, len(p.Batches), err)
			if uerr := e.store.Update(ctx, account, docstore.TurnoverHistory, history.ID, bson.M{
				"status":           shared.TurnoverFailed,
				"error":            msg,
				"committedBatches": i,
			}); uerr != nil {
				log.Errorw("failed to record turnover failure", "error", uerr)
			}
			// committed batches may already have moved the active year
			e.bus.Publish(cache.Event{Account: account, Reason: "turnover_failed"})
			return shared.ExecutionResult{Statistics: p.Statistics, HistoryID: history.ID, Error: msg}
		}
		if err := e.store.Update(ctx, account, docstore.TurnoverHistory, history.ID, bson.M{
			"committedBatches": i + 1,
		}); err != nil {
			log.Warnw("failed to advance turnover cursor", "batch", i, "error", err)
		}
		log.Debugw("batch committed", "batch", i+1, "of", len(p.Batches), "ops", len(p.Batches[i]))
	}

	if err := e.store.Update(ctx, account, docstore.TurnoverHistory, history.ID, bson.M{
		"status":           shared.TurnoverCompleted,
		"statistics":       p.Statistics,
		"committedBatches": len(p.Batches),
		"completedAt":      shared.NewDateTime(e.now()),
	}); err != nil {
		log.Errorw("failed to mark turnover completed", "error", err)
	}

	e.bus.Publish(cache.Event{Account: account, Reason: "turnover_completed"})
	log.Infow("turnover completed",
		"promoted", p.Statistics.Promoted,
		"retained", p.Statistics.Retained,
		"deleted", p.Statistics.StudentsDeleted,
		"classes_created", p.Statistics.ClassesCreated,
		"classes_archived", p.Statistics.ClassesArchived,
		"active_loans_kept", p.Statistics.ActiveLoansKept,
	)
	return shared.ExecutionResult{Success: true, Statistics: p.Statistics, HistoryID: history.ID}
}
