package turnover

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"library_turnover/backend/internal/academicyear"
	"library_turnover/backend/internal/cache"
	"library_turnover/backend/internal/docstore"
	"library_turnover/backend/internal/shared"
	"library_turnover/backend/internal/snapshot"
	"library_turnover/backend/internal/turnoverrpc"
)

// TurnoverService implements the gRPC TurnoverService
type TurnoverService struct {
	years     *academicyear.Service
	snapshots *cachedSnapshots
	executor  *Executor
	log       *zap.SugaredLogger
}

// NewTurnoverService wires the year store, snapshot builder and executor over one document store
func NewTurnoverService(store docstore.Store, bus *cache.Bus, log *zap.SugaredLogger, cfg shared.EngineConfig) *TurnoverService {
	snaps := &cachedSnapshots{
		Builder: snapshot.NewBuilder(store, log),
		cache:   cache.New[snapshot.DashboardSnapshot](cfg.CacheTTL),
	}
	snaps.cache.Attach(bus)

	return &TurnoverService{
		years:     academicyear.NewService(store, log, bus, cfg.CacheTTL),
		snapshots: snaps,
		executor: NewExecutor(store, snaps, bus, log, Options{
			BatchSize:           cfg.BatchSize,
			LargeClassThreshold: cfg.LargeClassThreshold,
		}),
		log: log,
	}
}

// cachedSnapshots keeps recently read snapshots per account
type cachedSnapshots struct {
	*snapshot.Builder
	cache *cache.Cache[snapshot.DashboardSnapshot]
}

func (c *cachedSnapshots) CreateSnapshot(ctx context.Context, account, year string) (*snapshot.DashboardSnapshot, error) {
	snap, err := c.Builder.CreateSnapshot(ctx, account, year)
	if err != nil {
		c.cache.Delete(account, year)
		return nil, err
	}
	c.cache.Set(account, year, *snap)
	return snap, nil
}

func (c *cachedSnapshots) GetSnapshot(ctx context.Context, account, year string) (*snapshot.DashboardSnapshot, error) {
	if snap, ok := c.cache.Get(account, year); ok {
		return &snap, nil
	}
	snap, err := c.Builder.GetSnapshot(ctx, account, year)
	if err != nil {
		return nil, err
	}
	c.cache.Set(account, year, *snap)
	return snap, nil
}

// toStatus maps engine errors onto gRPC codes
func toStatus(err error, msg string) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return status.Error(codes.NotFound, msg+": not found")
	case errors.Is(err, docstore.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, msg+": already exists")
	case errors.Is(err, docstore.ErrInvalidAccount), errors.Is(err, academicyear.ErrInvalidYear):
		return status.Errorf(codes.InvalidArgument, "%s: %v", msg, err)
	case errors.Is(err, ErrHistoryCompleted), errors.Is(err, ErrHistoryCancelled), errors.Is(err, ErrPlanMismatch),
		errors.Is(err, ErrTurnoverRunning):
		return status.Errorf(codes.FailedPrecondition, "%s: %v", msg, err)
	}
	return status.Error(codes.Internal, msg)
}

// ============================================================================
// Academic Years
// ============================================================================

// GetActiveYear returns the active year; an empty response means none
func (s *TurnoverService) GetActiveYear(ctx context.Context, req *turnoverrpc.AccountRequest) (*turnoverrpc.YearResponse, error) {
	if err := docstore.ValidateAccount(req.AccountID); err != nil {
		return nil, toStatus(err, "get active year")
	}
	return &turnoverrpc.YearResponse{Year: s.years.GetActiveYear(ctx, req.AccountID)}, nil
}

// EnsureActiveYear returns the existing active year without creating one
func (s *TurnoverService) EnsureActiveYear(ctx context.Context, req *turnoverrpc.AccountRequest) (*turnoverrpc.YearResponse, error) {
	if err := docstore.ValidateAccount(req.AccountID); err != nil {
		return nil, toStatus(err, "ensure active year")
	}
	return &turnoverrpc.YearResponse{Year: s.years.EnsureActiveYear(ctx, req.AccountID)}, nil
}

// CreateYear creates a year and makes it the only active one
func (s *TurnoverService) CreateYear(ctx context.Context, req *turnoverrpc.YearRequest) (*turnoverrpc.YearResponse, error) {
	year, err := s.years.CreateYear(ctx, req.AccountID, req.Year)
	if err != nil {
		s.log.Errorw("failed to create year", "account", req.AccountID, "year", req.Year, "error", err)
		return nil, toStatus(err, "create year "+req.Year)
	}
	return &turnoverrpc.YearResponse{Year: year}, nil
}

// ListYears lists every academic year, newest first
func (s *TurnoverService) ListYears(ctx context.Context, req *turnoverrpc.AccountRequest) (*turnoverrpc.ListYearsResponse, error) {
	years, err := s.years.ListYears(ctx, req.AccountID)
	if err != nil {
		s.log.Errorw("failed to list years", "account", req.AccountID, "error", err)
		return nil, toStatus(err, "list years")
	}
	return &turnoverrpc.ListYearsResponse{Years: years}, nil
}

// ============================================================================
// Turnover
// ============================================================================

// PrepareTurnover loads the data shown by the first wizard step
func (s *TurnoverService) PrepareTurnover(ctx context.Context, req *turnoverrpc.AccountRequest) (*turnoverrpc.PrepareTurnoverResponse, error) {
	if err := docstore.ValidateAccount(req.AccountID); err != nil {
		return nil, toStatus(err, "prepare turnover")
	}
	return &turnoverrpc.PrepareTurnoverResponse{Preparation: s.executor.PrepareTurnover(ctx, req.AccountID)}, nil
}

// ValidateTurnover validates a config against current data
func (s *TurnoverService) ValidateTurnover(ctx context.Context, req *turnoverrpc.TurnoverRequest) (*turnoverrpc.ValidateTurnoverResponse, error) {
	if err := docstore.ValidateAccount(req.AccountID); err != nil {
		return nil, toStatus(err, "validate turnover")
	}
	return &turnoverrpc.ValidateTurnoverResponse{Result: s.executor.ValidateTurnover(ctx, req.AccountID, req.Config)}, nil
}

// ExecuteTurnover runs a turnover; failures are reported in the result
func (s *TurnoverService) ExecuteTurnover(ctx context.Context, req *turnoverrpc.TurnoverRequest) (*turnoverrpc.ExecuteTurnoverResponse, error) {
	result, err := s.executor.ExecuteTurnover(ctx, req.AccountID, req.Config)
	if err != nil {
		return nil, toStatus(err, "execute turnover")
	}
	return &turnoverrpc.ExecuteTurnoverResponse{Result: result}, nil
}

// ResumeTurnover continues a failed turnover from its last committed batch
func (s *TurnoverService) ResumeTurnover(ctx context.Context, req *turnoverrpc.HistoryRequest) (*turnoverrpc.ExecuteTurnoverResponse, error) {
	result, err := s.executor.ResumeTurnover(ctx, req.AccountID, req.HistoryID)
	if err != nil {
		s.log.Warnw("resume rejected", "account", req.AccountID, "history_id", req.HistoryID, "error", err)
		return nil, toStatus(err, "resume turnover "+req.HistoryID)
	}
	return &turnoverrpc.ExecuteTurnoverResponse{Result: result}, nil
}

// CancelTurnover gives up on a failed turnover
func (s *TurnoverService) CancelTurnover(ctx context.Context, req *turnoverrpc.HistoryRequest) (*turnoverrpc.CancelTurnoverResponse, error) {
	if err := s.executor.CancelTurnover(ctx, req.AccountID, req.HistoryID); err != nil {
		return nil, toStatus(err, "cancel turnover "+req.HistoryID)
	}
	return &turnoverrpc.CancelTurnoverResponse{Success: true}, nil
}

// GetTurnoverHistory lists turnover attempts, newest first
func (s *TurnoverService) GetTurnoverHistory(ctx context.Context, req *turnoverrpc.AccountRequest) (*turnoverrpc.TurnoverHistoryResponse, error) {
	history, err := s.executor.GetTurnoverHistory(ctx, req.AccountID)
	if err != nil {
		s.log.Errorw("failed to read turnover history", "account", req.AccountID, "error", err)
		return nil, toStatus(err, "get turnover history")
	}
	return &turnoverrpc.TurnoverHistoryResponse{History: history}, nil
}

// ============================================================================
// Snapshots
// ============================================================================

// CreateSnapshot freezes a year's dashboard now
func (s *TurnoverService) CreateSnapshot(ctx context.Context, req *turnoverrpc.YearRequest) (*turnoverrpc.SnapshotResponse, error) {
	snap, err := s.snapshots.CreateSnapshot(ctx, req.AccountID, req.Year)
	if err != nil {
		s.log.Errorw("failed to create snapshot", "account", req.AccountID, "year", req.Year, "error", err)
		return nil, toStatus(err, "create snapshot "+req.Year)
	}
	return &turnoverrpc.SnapshotResponse{Snapshot: snap}, nil
}

// GetSnapshot reads a stored snapshot
func (s *TurnoverService) GetSnapshot(ctx context.Context, req *turnoverrpc.YearRequest) (*turnoverrpc.SnapshotResponse, error) {
	snap, err := s.snapshots.GetSnapshot(ctx, req.AccountID, req.Year)
	if err != nil {
		return nil, toStatus(err, "get snapshot "+req.Year)
	}
	return &turnoverrpc.SnapshotResponse{Snapshot: snap}, nil
}

// ListSnapshots lists stored snapshots, newest year first
func (s *TurnoverService) ListSnapshots(ctx context.Context, req *turnoverrpc.AccountRequest) (*turnoverrpc.ListSnapshotsResponse, error) {
	snaps, err := s.snapshots.ListSnapshots(ctx, req.AccountID)
	if err != nil {
		return nil, toStatus(err, "list snapshots")
	}
	return &turnoverrpc.ListSnapshotsResponse{Snapshots: snaps}, nil
}

// FilterSnapshot recomputes a stored snapshot over a date range
func (s *TurnoverService) FilterSnapshot(ctx context.Context, req *turnoverrpc.FilterSnapshotRequest) (*turnoverrpc.FilterSnapshotResponse, error) {
	snap, err := s.snapshots.GetSnapshot(ctx, req.AccountID, req.Year)
	if err != nil {
		return nil, toStatus(err, "get snapshot "+req.Year)
	}
	data, err := snapshot.FilterSnapshotByDateRange(*snap, req.Range)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "filter snapshot: %v", err)
	}
	return &turnoverrpc.FilterSnapshotResponse{Data: data}, nil
}
