// Package wizard drives the six-step year turnover workflow. It accumulates a
// TurnoverConfig across the first four steps and only lets the operator move
// forward once the current step's requirements hold.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"go.uber.org/zap"

	"library_turnover/backend/internal/shared"
	"library_turnover/backend/internal/turnover"
)

// Step is a wizard screen
type Step int

const (
	StepPreparation Step = iota + 1
	StepClassMapping
	StepStudentManagement
	StepReview
	StepExecution
	StepCompletion
)

func (s Step) String() string {
	switch s {
	case StepPreparation:
		return "preparation"
	case StepClassMapping:
		return "class_mapping"
	case StepStudentManagement:
		return "student_management"
	case StepReview:
		return "review"
	case StepExecution:
		return "execution"
	case StepCompletion:
		return "completion"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Valid reports whether s is one of the six steps
func (s Step) Valid() bool {
	return s >= StepPreparation && s <= StepCompletion
}

var (
	ErrStepLocked      = errors.New("step requirements not met")
	ErrTerminal        = errors.New("turnover already started")
	ErrCancelled       = errors.New("wizard cancelled")
	ErrUnknownStep     = errors.New("unknown step")
	ErrUnknownStudent  = errors.New("unknown student")
	ErrUnknownClass    = errors.New("unknown new class")
	ErrInvalidClass    = errors.New("invalid new class")
	ErrMissingDest     = errors.New("promotion needs a destination class")
	ErrNotCompleted    = errors.New("turnover has not completed successfully")
	ErrInvalidAction   = errors.New("invalid action")
	ErrNotPrepared     = errors.New("wizard has not been prepared")
	ErrExecutionLocked = errors.New("execution only runs from the execution step")
)

// Engine is what the wizard needs from the turnover service
type Engine interface {
	PrepareTurnover(ctx context.Context, account string) (shared.TurnoverPreparation, error)
	ValidateTurnover(ctx context.Context, account string, cfg shared.TurnoverConfig) (shared.ValidationResult, error)
	ExecuteTurnover(ctx context.Context, account string, cfg shared.TurnoverConfig) (shared.ExecutionResult, error)
}

// State is a copy of the wizard's progress
type State struct {
	Account     string                     `json:"account"`
	Step        Step                       `json:"step"`
	StepName    string                     `json:"stepName"`
	Completed   []Step                     `json:"completed"`
	Cancelled   bool                       `json:"cancelled"`
	Preparation shared.TurnoverPreparation `json:"preparation"`
	Config      shared.TurnoverConfig      `json:"config"`
	Validation  *shared.ValidationResult   `json:"validation,omitempty"`
	Result      *shared.ExecutionResult    `json:"result,omitempty"`
}

// Wizard is one operator's turnover session for an account
type Wizard struct {
	mu sync.Mutex

	account string
	engine  Engine
	log     *zap.SugaredLogger

	step       Step
	completed  map[Step]bool
	cancelled  bool
	prepared   bool
	prep       shared.TurnoverPreparation
	cfg        shared.TurnoverConfig
	validation *shared.ValidationResult
	result     *shared.ExecutionResult
}

// New creates a wizard at the preparation step. Call Prepare before anything else.
func New(account string, engine Engine, log *zap.SugaredLogger) *Wizard {
	return &Wizard{
		account:   account,
		engine:    engine,
		log:       log.With("account", account),
		step:      StepPreparation,
		completed: make(map[Step]bool),
	}
}

// ============================================================================
// Navigation
// ============================================================================

// Prepare (re)loads the preparation data and seeds the config with one
// pending action per student. Earlier edits are discarded.
func (w *Wizard) Prepare(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.editable(); err != nil {
		return err
	}
	prep, err := w.engine.PrepareTurnover(ctx, w.account)
	if err != nil {
		return fmt.Errorf("prepare turnover: %w", err)
	}

	w.prep = prep
	w.cfg = shared.TurnoverConfig{
		FromYear:       activeYear(prep),
		ToYear:         prep.NextYear,
		StudentActions: append([]shared.StudentAction{}, prep.StudentActions...),
	}
	w.step = StepPreparation
	w.completed = make(map[Step]bool)
	w.validation = nil
	w.prepared = true

	w.log.Infow("wizard prepared",
		"from_year", w.cfg.FromYear,
		"to_year", w.cfg.ToYear,
		"students", len(prep.Students),
		"classes", len(prep.Classes),
	)
	return nil
}

func activeYear(prep shared.TurnoverPreparation) string {
	if prep.ActiveYear == nil {
		return ""
	}
	return prep.ActiveYear.Year
}

// Next moves forward one step when the current step's requirements hold.
// Leaving the review step runs a fresh validation.
func (w *Wizard) Next(ctx context.Context) (Step, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.editable(); err != nil {
		return w.step, err
	}
	if !w.prepared {
		return w.step, ErrNotPrepared
	}

	switch w.step {
	case StepPreparation:
		if err := preparationReady(w.prep); err != nil {
			return w.step, err
		}
	case StepClassMapping:
		if len(w.cfg.NewClasses) == 0 {
			return w.step, fmt.Errorf("%w: create at least one class for %s", ErrStepLocked, w.cfg.ToYear)
		}
	case StepStudentManagement:
		if pending := pendingStudents(w.cfg); len(pending) > 0 {
			return w.step, fmt.Errorf("%w: %d students without an action", ErrStepLocked, len(pending))
		}
	case StepReview:
		res, err := w.engine.ValidateTurnover(ctx, w.account, w.cfg)
		if err != nil {
			return w.step, fmt.Errorf("validate turnover: %w", err)
		}
		w.validation = &res
		if !res.Valid {
			return w.step, fmt.Errorf("%w: %s", ErrStepLocked, turnover.ErrorSummary(res))
		}
	}

	w.completed[w.step] = true
	w.step++
	w.log.Debugw("wizard advanced", "step", w.step.String())
	return w.step, nil
}

// Back moves to the previous step. Only steps 2-4 can go back.
func (w *Wizard) Back() (Step, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.editable(); err != nil {
		return w.step, err
	}
	if w.step == StepPreparation {
		return w.step, fmt.Errorf("%w: already at the first step", ErrStepLocked)
	}
	w.step--
	return w.step, nil
}

// CompleteStep marks a step finished without moving the current step.
func (w *Wizard) CompleteStep(s Step) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStep, int(s))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.completed[s] = true
	return nil
}

// Cancel ends the session. The wizard rejects every later call except State.
// A running execution holds the lock, so Cancel waits for it to finish.
func (w *Wizard) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cancelled = true
	w.log.Infow("wizard cancelled", "step", w.step.String())
}

// editable reports whether config and navigation may still change
func (w *Wizard) editable() error {
	if w.cancelled {
		return ErrCancelled
	}
	if w.step >= StepExecution {
		return ErrTerminal
	}
	return nil
}

func preparationReady(prep shared.TurnoverPreparation) error {
	switch {
	case prep.ActiveYear == nil:
		return fmt.Errorf("%w: no active academic year", ErrStepLocked)
	case len(prep.Levels) == 0:
		return fmt.Errorf("%w: no educational levels", ErrStepLocked)
	case len(prep.Students) == 0:
		return fmt.Errorf("%w: no students", ErrStepLocked)
	}
	for _, c := range prep.Classes {
		if c.EducationalLevelID == "" {
			return fmt.Errorf("%w: class %s has no educational level", ErrStepLocked, c.Name)
		}
	}
	return nil
}

func pendingStudents(cfg shared.TurnoverConfig) []string {
	var ids []string
	for _, a := range cfg.StudentActions {
		if !a.Action.IsValid() {
			ids = append(ids, a.StudentID)
		}
	}
	return ids
}

// ============================================================================
// Execution
// ============================================================================

// Execute runs the turnover from the execution step and always lands on the
// completion step, where the result (success or failure) is shown.
func (w *Wizard) Execute(ctx context.Context) (shared.ExecutionResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancelled {
		return shared.ExecutionResult{}, ErrCancelled
	}
	if w.step != StepExecution {
		return shared.ExecutionResult{}, fmt.Errorf("%w (current step: %s)", ErrExecutionLocked, w.step)
	}

	res, err := w.engine.ExecuteTurnover(ctx, w.account, w.cfg)
	if err != nil {
		res = shared.ExecutionResult{Error: err.Error()}
	}
	w.result = &res
	w.completed[StepExecution] = true
	w.step = StepCompletion
	if res.Success {
		w.completed[StepCompletion] = true
		w.log.Infow("turnover completed", "history_id", res.HistoryID, "promoted", res.Statistics.Promoted)
	} else {
		w.log.Errorw("turnover failed", "history_id", res.HistoryID, "error", res.Error)
	}
	return res, nil
}

// WriteAuditReport writes the CSV audit report of a successful turnover
func (w *Wizard) WriteAuditReport(out io.Writer) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.result == nil || !w.result.Success {
		return ErrNotCompleted
	}
	return turnover.WriteAuditReport(out, w.cfg, w.result.Statistics)
}

// State returns a copy of the current progress
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	completed := make([]Step, 0, len(w.completed))
	for s, done := range w.completed {
		if done {
			completed = append(completed, s)
		}
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i] < completed[j] })

	st := State{
		Account:     w.account,
		Step:        w.step,
		StepName:    w.step.String(),
		Completed:   completed,
		Cancelled:   w.cancelled,
		Preparation: w.prep,
		Config:      cloneConfig(w.cfg),
	}
	if w.validation != nil {
		v := *w.validation
		st.Validation = &v
	}
	if w.result != nil {
		r := *w.result
		st.Result = &r
	}
	return st
}

func cloneConfig(cfg shared.TurnoverConfig) shared.TurnoverConfig {
	out := cfg
	out.ClassMappings = append([]shared.ClassMapping{}, cfg.ClassMappings...)
	out.StudentActions = append([]shared.StudentAction{}, cfg.StudentActions...)
	out.NewClasses = append([]shared.NewClass{}, cfg.NewClasses...)
	return out
}
