package wizard

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"library_turnover/backend/internal/shared"
)

// ============================================================================
// Step 2: classes of the new year
// ============================================================================

// AddNewClass adds a destination class and returns it with its id filled in.
func (w *Wizard) AddNewClass(nc shared.NewClass) (shared.NewClass, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.editable(); err != nil {
		return shared.NewClass{}, err
	}
	nc.Name = strings.TrimSpace(nc.Name)
	if nc.Name == "" {
		return shared.NewClass{}, fmt.Errorf("%w: name is required", ErrInvalidClass)
	}
	if nc.ID == "" {
		nc.ID = uuid.NewString()
	}
	for _, existing := range w.cfg.NewClasses {
		if existing.ID == nc.ID {
			return shared.NewClass{}, fmt.Errorf("%w: %s already added", ErrInvalidClass, nc.ID)
		}
	}

	w.cfg.NewClasses = append(w.cfg.NewClasses, nc)
	w.invalidate()
	return nc, nil
}

// RemoveNewClass drops a destination class. Students that were headed there
// lose their destination and go back to pending when promoted.
func (w *Wizard) RemoveNewClass(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.editable(); err != nil {
		return err
	}
	idx := -1
	for i, nc := range w.cfg.NewClasses {
		if nc.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownClass, id)
	}
	removed := w.cfg.NewClasses[idx]
	w.cfg.NewClasses = append(w.cfg.NewClasses[:idx:idx], w.cfg.NewClasses[idx+1:]...)

	for i, a := range w.cfg.StudentActions {
		if a.ToClass != removed.Name || a.ToShift != removed.Shift {
			continue
		}
		if a.Action == shared.ActionPromote {
			a.Action = shared.ActionPending
		}
		a.ToClass, a.ToShift, a.ToLevelID = "", "", ""
		w.cfg.StudentActions[i] = a
	}
	w.invalidate()
	return nil
}

// SetClassMappings replaces the class-level mapping table
func (w *Wizard) SetClassMappings(mappings []shared.ClassMapping) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.editable(); err != nil {
		return err
	}
	w.cfg.ClassMappings = append([]shared.ClassMapping{}, mappings...)
	w.invalidate()
	return nil
}

// ============================================================================
// Step 3: per-student actions
// ============================================================================

// Assignment applies one action to a set of students. NewClassID names the
// destination for promotions; retained students may name one to change class.
type Assignment struct {
	StudentIDs []string      `json:"studentIds" validate:"required,min=1,dive,required"`
	Action     shared.Action `json:"action" validate:"required,oneof=promote retain transfer graduate"`
	NewClassID string        `json:"newClassId,omitempty"`
}

// AssignAction applies an assignment to every listed student. Nothing changes
// unless every student is known.
func (w *Wizard) AssignAction(a Assignment) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.editable(); err != nil {
		return 0, err
	}
	if !a.Action.IsValid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAction, a.Action)
	}

	var dest *shared.NewClass
	if a.NewClassID != "" {
		for i := range w.cfg.NewClasses {
			if w.cfg.NewClasses[i].ID == a.NewClassID {
				dest = &w.cfg.NewClasses[i]
				break
			}
		}
		if dest == nil {
			return 0, fmt.Errorf("%w: %s", ErrUnknownClass, a.NewClassID)
		}
	}
	if a.Action == shared.ActionPromote && dest == nil {
		return 0, ErrMissingDest
	}

	index := make(map[string]int, len(w.cfg.StudentActions))
	for i, sa := range w.cfg.StudentActions {
		index[sa.StudentID] = i
	}
	targets := make([]int, 0, len(a.StudentIDs))
	for _, id := range a.StudentIDs {
		i, ok := index[id]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownStudent, id)
		}
		targets = append(targets, i)
	}

	for _, i := range targets {
		sa := w.cfg.StudentActions[i]
		sa.Action = a.Action
		sa.ToClass, sa.ToShift, sa.ToLevelID = "", "", ""
		if !a.Action.RemovesStudent() && dest != nil {
			sa.ToClass, sa.ToShift, sa.ToLevelID = dest.Name, dest.Shift, dest.LevelID
		}
		w.cfg.StudentActions[i] = sa
	}
	w.invalidate()

	w.log.Debugw("actions assigned", "action", a.Action, "students", len(targets))
	return len(targets), nil
}

// Config returns a copy of the accumulated config
func (w *Wizard) Config() shared.TurnoverConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneConfig(w.cfg)
}

// invalidate drops a validation result that no longer matches the config
func (w *Wizard) invalidate() {
	w.validation = nil
}
