package tests

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"library_turnover/backend/internal/shared"
	"library_turnover/backend/internal/wizard"
)

func TestGateway_Wizard(t *testing.T) {
	env := setupGatewayTestEnv(t)
	const account = "escola_wizard"
	seedSchool(t, env.Store, account, 3)
	tok := token(t, account)

	t.Run("No session yet", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/wizard", tok, nil)
		require.Equal(t, http.StatusNotFound, rr.Code)
	})

	var st envelope[wizard.State]

	t.Run("Open", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/wizard", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		decode(t, rr, &st)
		require.Equal(t, wizard.StepPreparation, st.Data.Step)
		require.Equal(t, "2024", st.Data.Config.FromYear)
		require.Equal(t, "2025", st.Data.Config.ToYear)
		require.Len(t, st.Data.Config.StudentActions, 3)
	})

	t.Run("Preparation to class mapping", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/wizard/next", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = env.do(t, http.MethodPost, "/api/wizard/next", tok, nil)
		require.Equal(t, http.StatusConflict, rr.Code, "no classes for the new year yet")
	})

	var newClassID string
	t.Run("Add class", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/wizard/classes", tok, shared.NewClass{Name: "2A", Shift: "manhã", LevelID: "L2"})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var created envelope[shared.NewClass]
		decode(t, rr, &created)
		require.NotEmpty(t, created.Data.ID)
		require.Equal(t, "2A", created.Data.Name)
		newClassID = created.Data.ID

		rr = env.do(t, http.MethodPost, "/api/wizard/classes", tok, map[string]string{"shift": "tarde"})
		require.Equal(t, http.StatusBadRequest, rr.Code)

		rr = env.do(t, http.MethodPost, "/api/wizard/next", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Assign actions", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/wizard/actions", tok, wizard.Assignment{
			StudentIDs: []string{"s02", "s03"}, Action: shared.ActionPromote,
		})
		require.Equal(t, http.StatusBadRequest, rr.Code, "promotion without destination")

		rr = env.do(t, http.MethodPost, "/api/wizard/actions", tok, wizard.Assignment{
			StudentIDs: []string{"s02", "s03"}, Action: shared.ActionPromote, NewClassID: newClassID,
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = env.do(t, http.MethodPost, "/api/wizard/next", tok, nil)
		require.Equal(t, http.StatusConflict, rr.Code, "s01 still pending")

		rr = env.do(t, http.MethodPost, "/api/wizard/actions", tok, wizard.Assignment{
			StudentIDs: []string{"s01"}, Action: shared.ActionTransfer,
		})
		require.Equal(t, http.StatusOK, rr.Code)

		var assigned struct {
			Updated int          `json:"updated"`
			State   wizard.State `json:"state"`
		}
		decode(t, rr, &assigned)
		require.Equal(t, 1, assigned.Updated)

		rr = env.do(t, http.MethodPost, "/api/wizard/next", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		decode(t, rr, &st)
		require.Equal(t, wizard.StepReview, st.Data.Step)
	})

	t.Run("Back and forth", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/wizard/back", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		rr = env.do(t, http.MethodPost, "/api/wizard/next", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = env.do(t, http.MethodPost, "/api/wizard/steps/9/complete", tok, nil)
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Report before execution", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/wizard/report", tok, nil)
		require.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("Review and execute", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/wizard/execute", tok, nil)
		require.Equal(t, http.StatusConflict, rr.Code, "execution needs the review to pass first")

		rr = env.do(t, http.MethodPost, "/api/wizard/next", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		decode(t, rr, &st)
		require.Equal(t, wizard.StepExecution, st.Data.Step)
		require.True(t, st.Data.Validation.Valid)

		rr = env.do(t, http.MethodPost, "/api/wizard/back", tok, nil)
		require.Equal(t, http.StatusConflict, rr.Code)

		rr = env.do(t, http.MethodPost, "/api/wizard/execute", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = env.do(t, http.MethodGet, "/api/wizard", tok, nil)
		decode(t, rr, &st)
		require.Equal(t, wizard.StepCompletion, st.Data.Step)
		require.True(t, st.Data.Result.Success)
		require.Equal(t, 1, st.Data.Result.Statistics.Transferred)
	})

	t.Run("Audit report", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/wizard/report", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
		require.Contains(t, rr.Header().Get("Content-Disposition"), "virada-2024-2025.csv")

		lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
		require.Contains(t, lines, "Aluno 01,1A,manhã,Transferido,,,Sim,1")
		require.Contains(t, lines, "Aluno 02,1A,manhã,Promovido,2A,manhã,Não,0")
	})

	t.Run("A finished session is replaced on open", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/wizard", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		decode(t, rr, &st)
		require.Equal(t, wizard.StepPreparation, st.Data.Step)
		require.Equal(t, "2025", st.Data.Config.FromYear)

		rr = env.do(t, http.MethodDelete, "/api/wizard", tok, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		rr = env.do(t, http.MethodGet, "/api/wizard", tok, nil)
		require.Equal(t, http.StatusNotFound, rr.Code)
	})
}
