package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"library_turnover/backend/internal/shared"
	"library_turnover/backend/internal/snapshot"
)

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message"`
}

func completeConfig() shared.TurnoverConfig {
	return shared.TurnoverConfig{
		FromYear:   "2024",
		ToYear:     "2025",
		NewClasses: []shared.NewClass{{ID: "n-2a", Name: "2A", Shift: "manhã", LevelID: "L2"}},
		StudentActions: []shared.StudentAction{
			{StudentID: "s01", StudentName: "Aluno 01", FromClass: "1A", FromShift: "manhã", Action: shared.ActionGraduate, HasActiveLoans: true, ActiveLoansCount: 1},
			{StudentID: "s02", StudentName: "Aluno 02", FromClass: "1A", FromShift: "manhã", Action: shared.ActionPromote, ToClass: "2A", ToShift: "manhã", ToLevelID: "L2"},
			{StudentID: "s03", StudentName: "Aluno 03", FromClass: "1A", FromShift: "manhã", Action: shared.ActionPromote, ToClass: "2A", ToShift: "manhã", ToLevelID: "L2"},
		},
	}
}

func TestGateway_Auth(t *testing.T) {
	env := setupGatewayTestEnv(t)

	t.Run("Health is public", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/healthz", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Missing token", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/years/active", "", nil)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("Forged token", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/years/active", token(t, "escola_a")+"x", nil)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("Account without data", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/years/active", token(t, "escola_vazia"), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			Success bool                 `json:"success"`
			Year    *shared.AcademicYear `json:"year"`
		}
		decode(t, rr, &body)
		require.True(t, body.Success)
		require.Nil(t, body.Year)
	})
}

func TestGateway_Years(t *testing.T) {
	env := setupGatewayTestEnv(t)
	tok := token(t, "escola_a")

	rr := env.do(t, http.MethodPost, "/api/years", tok, map[string]string{"year": "2024"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = env.do(t, http.MethodPost, "/api/years", tok, map[string]string{"year": "2024"})
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/years", tok, map[string]string{"year": "próximo"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/years", tok, map[string]string{"year": "2025"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/years", tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Years []shared.AcademicYear `json:"years"`
	}
	decode(t, rr, &list)
	require.Len(t, list.Years, 2)
	require.Equal(t, shared.YearActive, list.Years[0].Status)
	require.Equal(t, shared.YearArchived, list.Years[1].Status)

	// other accounts see nothing
	rr = env.do(t, http.MethodGet, "/api/years", token(t, "escola_b"), nil)
	decode(t, rr, &list)
	require.Empty(t, list.Years)
}

func TestGateway_Turnover(t *testing.T) {
	env := setupGatewayTestEnv(t)
	const account = "escola_a"
	seedSchool(t, env.Store, account, 3)
	tok := token(t, account)

	t.Run("Prepare", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/turnover/prepare", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var body envelope[shared.TurnoverPreparation]
		decode(t, rr, &body)
		require.Equal(t, "2025", body.Data.NextYear)
		require.Len(t, body.Data.StudentActions, 3)
		require.True(t, body.Data.StudentActions[0].HasActiveLoans)
	})

	t.Run("Validate incomplete", func(t *testing.T) {
		cfg := completeConfig()
		cfg.StudentActions[2].Action = shared.ActionPending
		rr := env.do(t, http.MethodPost, "/api/turnover/validate", tok, cfg)
		require.Equal(t, http.StatusOK, rr.Code)
		var body envelope[shared.ValidationResult]
		decode(t, rr, &body)
		require.False(t, body.Data.Valid)
		require.Equal(t, shared.ErrKindNoAction, body.Data.Errors[0].Type)
	})

	t.Run("Validate warns about loans", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/turnover/validate", tok, completeConfig())
		var body envelope[shared.ValidationResult]
		decode(t, rr, &body)
		require.True(t, body.Data.Valid)
		require.Equal(t, shared.WarnKindActiveLoans, body.Data.Warnings[0].Type)
	})

	t.Run("Malformed body", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/turnover/execute", tok, map[string]string{"fromYear": "2024"})
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Execute", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/turnover/execute", tok, completeConfig())
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var body struct {
			Success    bool                      `json:"success"`
			Statistics shared.TurnoverStatistics `json:"statistics"`
			HistoryID  string                    `json:"historyId"`
		}
		decode(t, rr, &body)
		require.True(t, body.Success)
		require.Equal(t, 2, body.Statistics.Promoted)
		require.Equal(t, 1, body.Statistics.Graduated)
		require.Equal(t, 1, body.Statistics.ActiveLoansKept)
		require.NotEmpty(t, body.HistoryID)
	})

	t.Run("Execute twice is rejected", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/turnover/execute", tok, completeConfig())
		require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})

	t.Run("History", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/turnover/history", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			History []shared.YearTurnoverHistory `json:"history"`
		}
		decode(t, rr, &body)
		require.Len(t, body.History, 1)
		require.Equal(t, shared.TurnoverCompleted, body.History[0].Status)

		rr = env.do(t, http.MethodPost, "/api/turnover/history/"+body.History[0].ID+"/resume", tok, nil)
		require.Equal(t, http.StatusConflict, rr.Code)

		rr = env.do(t, http.MethodPost, "/api/turnover/history/TURNOVER_missing/cancel", tok, nil)
		require.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Snapshot of the closed year", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/snapshots/2024", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var body envelope[snapshot.DashboardSnapshot]
		decode(t, rr, &body)
		require.Equal(t, "2024", body.Data.Year)
		require.Equal(t, 1, body.Data.Metrics.TotalLoans)
		require.Equal(t, 1, body.Data.Metrics.OverdueLoans)
		require.Equal(t, 3, body.Data.Metrics.TotalStudents)

		rr = env.do(t, http.MethodGet, "/api/snapshots/1999", tok, nil)
		require.Equal(t, http.StatusNotFound, rr.Code)

		rr = env.do(t, http.MethodGet, "/api/snapshots", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Filter snapshot", func(t *testing.T) {
		var body envelope[snapshot.FilteredDashboardData]

		rr := env.do(t, http.MethodGet, "/api/snapshots/2024/filter?start=2024-03-01&end=2024-03-31", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		decode(t, rr, &body)
		require.Equal(t, 1, body.Data.Metrics.TotalLoans)

		rr = env.do(t, http.MethodGet, "/api/snapshots/2024/filter?start=2024-04-01&end=2024-04-30", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		body = envelope[snapshot.FilteredDashboardData]{}
		decode(t, rr, &body)
		require.Equal(t, 0, body.Data.Metrics.TotalLoans)

		rr = env.do(t, http.MethodGet, "/api/snapshots/2024/filter?start=2024-05-01&end=2024-04-30", tok, nil)
		require.Equal(t, http.StatusBadRequest, rr.Code)

		rr = env.do(t, http.MethodGet, "/api/snapshots/2024/filter?start=ontem", tok, nil)
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Create snapshot on demand", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/snapshots/2025", tok, nil)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	})
}
