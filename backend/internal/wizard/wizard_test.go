package wizard

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"library_turnover/backend/internal/shared"
)

type engineMock struct{ mock.Mock }

var _ Engine = (*engineMock)(nil)

func (m *engineMock) PrepareTurnover(ctx context.Context, account string) (shared.TurnoverPreparation, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(shared.TurnoverPreparation), args.Error(1)
}

func (m *engineMock) ValidateTurnover(ctx context.Context, account string, cfg shared.TurnoverConfig) (shared.ValidationResult, error) {
	args := m.Called(ctx, account, cfg)
	return args.Get(0).(shared.ValidationResult), args.Error(1)
}

func (m *engineMock) ExecuteTurnover(ctx context.Context, account string, cfg shared.TurnoverConfig) (shared.ExecutionResult, error) {
	args := m.Called(ctx, account, cfg)
	return args.Get(0).(shared.ExecutionResult), args.Error(1)
}

const account = "school_1"

func preparation() shared.TurnoverPreparation {
	prep := shared.TurnoverPreparation{
		ActiveYear: &shared.AcademicYear{ID: "2024", Year: "2024", Status: shared.YearActive},
		NextYear:   "2025",
		Levels:     []shared.EducationalLevel{{ID: "L1", Name: "1º ano", Order: 1}, {ID: "L2", Name: "2º ano", Order: 2}},
		Classes:    []shared.Class{{ID: "c1", Name: "1A", Shift: "manhã", EducationalLevelID: "L1"}},
	}
	for _, id := range []string{"s1", "s2", "s3"} {
		prep.Students = append(prep.Students, shared.Student{ID: id, Name: "Aluno " + id, Classroom: "1A", Shift: "manhã", EducationalLevelID: "L1"})
		prep.StudentActions = append(prep.StudentActions, shared.StudentAction{
			StudentID: id, StudentName: "Aluno " + id, FromClass: "1A", FromShift: "manhã",
		})
	}
	return prep
}

func newPrepared(t *testing.T, prep shared.TurnoverPreparation) (*Wizard, *engineMock) {
	t.Helper()
	engine := new(engineMock)
	engine.On("PrepareTurnover", mock.Anything, account).Return(prep, nil)
	w := New(account, engine, zap.NewNop().Sugar())
	require.NoError(t, w.Prepare(context.Background()))
	return w, engine
}

// driveToReview fills in a complete config and stops at step 4.
func driveToReview(t *testing.T, w *Wizard) {
	t.Helper()
	ctx := context.Background()

	step, err := w.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, StepClassMapping, step)

	nc, err := w.AddNewClass(shared.NewClass{Name: "2A", Shift: "manhã", LevelID: "L2"})
	require.NoError(t, err)
	step, err = w.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, StepStudentManagement, step)

	n, err := w.AssignAction(Assignment{StudentIDs: []string{"s1", "s2"}, Action: shared.ActionPromote, NewClassID: nc.ID})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	_, err = w.AssignAction(Assignment{StudentIDs: []string{"s3"}, Action: shared.ActionRetain})
	require.NoError(t, err)

	step, err = w.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, StepReview, step)
}

func TestWizard_FullFlow(t *testing.T) {
	ctx := context.Background()
	w, engine := newPrepared(t, preparation())

	cfg := w.Config()
	require.Equal(t, "2024", cfg.FromYear)
	require.Equal(t, "2025", cfg.ToYear)
	require.Len(t, cfg.StudentActions, 3)

	driveToReview(t, w)

	engine.On("ValidateTurnover", mock.Anything, account, mock.Anything).Return(shared.ValidationResult{Valid: true}, nil).Once()
	step, err := w.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, StepExecution, step)

	_, err = w.Back()
	require.ErrorIs(t, err, ErrTerminal)
	_, err = w.AddNewClass(shared.NewClass{Name: "3A"})
	require.ErrorIs(t, err, ErrTerminal)

	stats := shared.TurnoverStatistics{TotalStudents: 3, Promoted: 2, Retained: 1, ClassesCreated: 1, ClassesArchived: 1}
	engine.On("ExecuteTurnover", mock.Anything, account, mock.MatchedBy(func(c shared.TurnoverConfig) bool {
		return len(c.NewClasses) == 1 &&
			c.StudentActions[0].Action == shared.ActionPromote &&
			c.StudentActions[0].ToClass == "2A" &&
			c.StudentActions[0].ToLevelID == "L2" &&
			c.StudentActions[2].Action == shared.ActionRetain &&
			c.StudentActions[2].ToClass == ""
	})).Return(shared.ExecutionResult{Success: true, Statistics: stats, HistoryID: "TURNOVER_1"}, nil).Once()

	res, err := w.Execute(ctx)
	require.NoError(t, err)
	require.True(t, res.Success)

	st := w.State()
	require.Equal(t, StepCompletion, st.Step)
	require.Equal(t, "completion", st.StepName)
	require.Equal(t, []Step{1, 2, 3, 4, 5, 6}, st.Completed)
	require.Equal(t, "TURNOVER_1", st.Result.HistoryID)

	var buf bytes.Buffer
	require.NoError(t, w.WriteAuditReport(&buf))
	require.Contains(t, buf.String(), "Aluno s1,1A,manhã,Promovido,2A,manhã")
	require.Contains(t, buf.String(), "Aluno s3,1A,manhã,Retido,1A,manhã")

	_, err = w.Next(ctx)
	require.ErrorIs(t, err, ErrTerminal)
	engine.AssertExpectations(t)
}

func TestWizard_PreparationGate(t *testing.T) {
	cases := map[string]func(p *shared.TurnoverPreparation){
		"no active year": func(p *shared.TurnoverPreparation) { p.ActiveYear = nil },
		"no levels":      func(p *shared.TurnoverPreparation) { p.Levels = nil },
		"no students":    func(p *shared.TurnoverPreparation) { p.Students = nil },
		"class without level": func(p *shared.TurnoverPreparation) {
			p.Classes = append(p.Classes, shared.Class{ID: "c2", Name: "1B"})
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			prep := preparation()
			mutate(&prep)
			w, _ := newPrepared(t, prep)

			step, err := w.Next(context.Background())
			require.ErrorIs(t, err, ErrStepLocked)
			require.Equal(t, StepPreparation, step)
		})
	}
}

func TestWizard_StepGates(t *testing.T) {
	ctx := context.Background()
	w, _ := newPrepared(t, preparation())

	_, err := w.Next(ctx)
	require.NoError(t, err)

	_, err = w.Next(ctx)
	require.ErrorIs(t, err, ErrStepLocked, "no new classes yet")

	nc, err := w.AddNewClass(shared.NewClass{Name: " 2A ", Shift: "tarde", LevelID: "L2"})
	require.NoError(t, err)
	require.NotEmpty(t, nc.ID)
	require.Equal(t, "2A", nc.Name)

	_, err = w.Next(ctx)
	require.NoError(t, err)

	_, err = w.AssignAction(Assignment{StudentIDs: []string{"s1", "s2"}, Action: shared.ActionGraduate})
	require.NoError(t, err)
	step, err := w.Next(ctx)
	require.ErrorIs(t, err, ErrStepLocked, "s3 still pending")
	require.Equal(t, StepStudentManagement, step)
}

func TestWizard_ReviewBlocksOnInvalidConfig(t *testing.T) {
	w, engine := newPrepared(t, preparation())
	driveToReview(t, w)

	engine.On("ValidateTurnover", mock.Anything, account, mock.Anything).Return(shared.ValidationResult{
		Valid:  false,
		Errors: []shared.ValidationError{{Type: shared.ErrKindInvalidTarget, Message: "O ano letivo 2025 já existe"}},
	}, nil).Once()

	step, err := w.Next(context.Background())
	require.ErrorIs(t, err, ErrStepLocked)
	require.Contains(t, err.Error(), "2025 já existe")
	require.Equal(t, StepReview, step)

	st := w.State()
	require.NotNil(t, st.Validation)
	require.False(t, st.Validation.Valid)

	// editing drops the stale result
	require.NoError(t, w.SetClassMappings([]shared.ClassMapping{{FromClass: "1A", ToClass: "2A", Action: shared.MappingPromote}}))
	require.Nil(t, w.State().Validation)
}

func TestWizard_ValidationErrorKeepsStep(t *testing.T) {
	w, engine := newPrepared(t, preparation())
	driveToReview(t, w)

	engine.On("ValidateTurnover", mock.Anything, account, mock.Anything).Return(shared.ValidationResult{}, errors.New("unavailable")).Once()
	step, err := w.Next(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrStepLocked)
	require.Equal(t, StepReview, step)
}

func TestWizard_Back(t *testing.T) {
	ctx := context.Background()
	w, _ := newPrepared(t, preparation())

	_, err := w.Back()
	require.ErrorIs(t, err, ErrStepLocked)

	driveToReview(t, w)
	for _, want := range []Step{StepStudentManagement, StepClassMapping, StepPreparation} {
		step, err := w.Back()
		require.NoError(t, err)
		require.Equal(t, want, step)
	}

	// edits survive navigation
	step, err := w.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, StepClassMapping, step)
	require.Len(t, w.Config().NewClasses, 1)
}

func TestWizard_CompleteStepIsIndependent(t *testing.T) {
	w, _ := newPrepared(t, preparation())

	require.NoError(t, w.CompleteStep(StepReview))
	st := w.State()
	require.Equal(t, StepPreparation, st.Step)
	require.Equal(t, []Step{StepReview}, st.Completed)

	require.ErrorIs(t, w.CompleteStep(Step(7)), ErrUnknownStep)
}

func TestWizard_ExecuteFailureLandsOnCompletion(t *testing.T) {
	cases := []struct {
		name   string
		result shared.ExecutionResult
		err    error
		want   string
	}{
		{"reported failure", shared.ExecutionResult{HistoryID: "TURNOVER_2", Error: "falha no lote 2 de 3: transaction aborted"}, nil, "falha no lote 2 de 3"},
		{"transport error", shared.ExecutionResult{}, errors.New("connection refused"), "connection refused"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			w, engine := newPrepared(t, preparation())
			driveToReview(t, w)
			engine.On("ValidateTurnover", mock.Anything, account, mock.Anything).Return(shared.ValidationResult{Valid: true}, nil)
			_, err := w.Next(ctx)
			require.NoError(t, err)

			engine.On("ExecuteTurnover", mock.Anything, account, mock.Anything).Return(tc.result, tc.err).Once()
			res, err := w.Execute(ctx)
			require.NoError(t, err)
			require.False(t, res.Success)
			require.Contains(t, res.Error, tc.want)

			st := w.State()
			require.Equal(t, StepCompletion, st.Step)
			require.NotContains(t, st.Completed, StepCompletion)
			require.ErrorIs(t, w.WriteAuditReport(&bytes.Buffer{}), ErrNotCompleted)

			_, err = w.Execute(ctx)
			require.ErrorIs(t, err, ErrExecutionLocked)
		})
	}
}

func TestWizard_ExecuteOnlyFromExecutionStep(t *testing.T) {
	w, engine := newPrepared(t, preparation())
	_, err := w.Execute(context.Background())
	require.ErrorIs(t, err, ErrExecutionLocked)
	engine.AssertNotCalled(t, "ExecuteTurnover", mock.Anything, mock.Anything, mock.Anything)
}

func TestWizard_AssignAction(t *testing.T) {
	w, _ := newPrepared(t, preparation())

	_, err := w.AssignAction(Assignment{StudentIDs: []string{"s1"}, Action: shared.ActionPromote})
	require.ErrorIs(t, err, ErrMissingDest)

	_, err = w.AssignAction(Assignment{StudentIDs: []string{"s1"}, Action: "expel"})
	require.ErrorIs(t, err, ErrInvalidAction)

	_, err = w.AssignAction(Assignment{StudentIDs: []string{"s1"}, Action: shared.ActionRetain, NewClassID: "missing"})
	require.ErrorIs(t, err, ErrUnknownClass)

	nc, err := w.AddNewClass(shared.NewClass{Name: "2A", Shift: "manhã", LevelID: "L2"})
	require.NoError(t, err)
	_, err = w.AddNewClass(nc)
	require.ErrorIs(t, err, ErrInvalidClass)

	_, err = w.AssignAction(Assignment{StudentIDs: []string{"s1", "ghost"}, Action: shared.ActionPromote, NewClassID: nc.ID})
	require.ErrorIs(t, err, ErrUnknownStudent)
	require.Equal(t, shared.ActionPending, w.Config().StudentActions[0].Action, "no partial assignment")

	_, err = w.AssignAction(Assignment{StudentIDs: []string{"s1", "s2"}, Action: shared.ActionPromote, NewClassID: nc.ID})
	require.NoError(t, err)

	// a transfer clears any destination
	_, err = w.AssignAction(Assignment{StudentIDs: []string{"s2"}, Action: shared.ActionTransfer, NewClassID: nc.ID})
	require.NoError(t, err)
	s2 := w.Config().StudentActions[1]
	require.Equal(t, shared.ActionTransfer, s2.Action)
	require.Empty(t, s2.ToClass)

	require.NoError(t, w.RemoveNewClass(nc.ID))
	cfg := w.Config()
	require.Empty(t, cfg.NewClasses)
	require.Equal(t, shared.ActionPending, cfg.StudentActions[0].Action)
	require.Empty(t, cfg.StudentActions[0].ToClass)
	require.Equal(t, shared.ActionTransfer, cfg.StudentActions[1].Action)

	require.ErrorIs(t, w.RemoveNewClass(nc.ID), ErrUnknownClass)
}

func TestWizard_Cancel(t *testing.T) {
	w, _ := newPrepared(t, preparation())
	w.Cancel()

	_, err := w.Next(context.Background())
	require.ErrorIs(t, err, ErrCancelled)
	_, err = w.AssignAction(Assignment{StudentIDs: []string{"s1"}, Action: shared.ActionGraduate})
	require.ErrorIs(t, err, ErrCancelled)
	require.True(t, w.State().Cancelled)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	engine := new(engineMock)
	engine.On("PrepareTurnover", mock.Anything, account).Return(preparation(), nil)
	sessions := NewSessions(engine, zap.NewNop().Sugar())

	_, ok := sessions.Get(account)
	require.False(t, ok)

	first, err := sessions.Open(ctx, account)
	require.NoError(t, err)
	again, err := sessions.Open(ctx, account)
	require.NoError(t, err)
	require.Same(t, first, again)
	engine.AssertNumberOfCalls(t, "PrepareTurnover", 1)

	first.Cancel()
	replaced, err := sessions.Open(ctx, account)
	require.NoError(t, err)
	require.NotSame(t, first, replaced)
	engine.AssertNumberOfCalls(t, "PrepareTurnover", 2)

	sessions.Close(account)
	_, ok = sessions.Get(account)
	require.False(t, ok)
	require.True(t, replaced.State().Cancelled)
}

func TestSessions_PrepareFailure(t *testing.T) {
	engine := new(engineMock)
	engine.On("PrepareTurnover", mock.Anything, "school_2").Return(shared.TurnoverPreparation{}, errors.New("unavailable"))
	sessions := NewSessions(engine, zap.NewNop().Sugar())

	_, err := sessions.Open(context.Background(), "school_2")
	require.Error(t, err)
	_, ok := sessions.Get("school_2")
	require.False(t, ok)
}
