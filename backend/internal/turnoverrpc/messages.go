package turnoverrpc

import (
	"library_turnover/backend/internal/shared"
	"library_turnover/backend/internal/snapshot"
)

// Every request is scoped to one account, taken from the caller's identity.

type AccountRequest struct {
	AccountID string `json:"accountId" validate:"required"`
}

type YearRequest struct {
	AccountID string `json:"accountId" validate:"required"`
	Year      string `json:"year" validate:"required,numeric"`
}

type YearResponse struct {
	Year *shared.AcademicYear `json:"year,omitempty"`
}

type ListYearsResponse struct {
	Years []shared.AcademicYear `json:"years"`
}

type PrepareTurnoverResponse struct {
	Preparation shared.TurnoverPreparation `json:"preparation"`
}

type TurnoverRequest struct {
	AccountID string                `json:"accountId" validate:"required"`
	Config    shared.TurnoverConfig `json:"config"`
}

type ValidateTurnoverResponse struct {
	Result shared.ValidationResult `json:"result"`
}

type ExecuteTurnoverResponse struct {
	Result shared.ExecutionResult `json:"result"`
}

type HistoryRequest struct {
	AccountID string `json:"accountId" validate:"required"`
	HistoryID string `json:"historyId" validate:"required"`
}

type CancelTurnoverResponse struct {
	Success bool `json:"success"`
}

type TurnoverHistoryResponse struct {
	History []shared.YearTurnoverHistory `json:"history"`
}

type SnapshotResponse struct {
	Snapshot *snapshot.DashboardSnapshot `json:"snapshot"`
}

type ListSnapshotsResponse struct {
	Snapshots []snapshot.DashboardSnapshot `json:"snapshots"`
}

type FilterSnapshotRequest struct {
	AccountID string             `json:"accountId" validate:"required"`
	Year      string             `json:"year" validate:"required,numeric"`
	Range     snapshot.DateRange `json:"range"`
}

type FilterSnapshotResponse struct {
	Data snapshot.FilteredDashboardData `json:"data"`
}
