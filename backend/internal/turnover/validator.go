package turnover

import (
	"fmt"
	"sort"
	"strings"

	"library_turnover/backend/internal/shared"
)

// CurrentData is the store state a config is validated against
type CurrentData struct {
	ActiveYear    *shared.AcademicYear
	ExistingYears []shared.AcademicYear
	Levels        []shared.EducationalLevel
	Students      []shared.Student
	Classes       []shared.Class
	ClassIDs      map[string]bool // every stored class, archived included
	Loans         []shared.Loan
}

// ActiveLoansByStudent counts active loans per student id
func (d CurrentData) ActiveLoansByStudent() map[string]int {
	counts := make(map[string]int)
	for _, l := range d.Loans {
		if l.IsActive() {
			counts[l.StudentID]++
		}
	}
	return counts
}

// Validator checks a TurnoverConfig against current data
type Validator struct {
	LargeClassThreshold int
}

// NewValidator creates a Validator; a non-positive threshold uses the default.
func NewValidator(largeClassThreshold int) Validator {
	if largeClassThreshold <= 0 {
		largeClassThreshold = shared.DefaultLargeClassThreshold
	}
	return Validator{LargeClassThreshold: largeClassThreshold}
}

// Validate runs every check in a fixed order and collects all errors and
// warnings. The result depends only on its inputs.
func (v Validator) Validate(cfg shared.TurnoverConfig, data CurrentData) shared.ValidationResult {
	res := shared.ValidationResult{
		Errors:   []shared.ValidationError{},
		Warnings: []shared.ValidationWarning{},
	}
	addError := func(kind, msg string, items []string) {
		res.Errors = append(res.Errors, shared.ValidationError{Type: kind, Message: msg, AffectedItems: nonNil(items)})
	}
	addWarning := func(kind, msg string, items []string) {
		res.Warnings = append(res.Warnings, shared.ValidationWarning{Type: kind, Message: msg, AffectedItems: nonNil(items)})
	}

	// 1. active year
	if data.ActiveYear == nil {
		addError(shared.ErrKindMissingLevel, "Nenhum ano letivo ativo encontrado", nil)
	}

	// 2. destination year must not exist yet
	for _, y := range data.ExistingYears {
		if y.Year == cfg.ToYear || y.ID == cfg.ToYear {
			addError(shared.ErrKindInvalidTarget,
				fmt.Sprintf("O ano letivo %s já existe", cfg.ToYear), []string{cfg.ToYear})
			break
		}
	}

	// 3. destination classes
	if len(cfg.NewClasses) == 0 {
		addError(shared.ErrKindNoMapping, "Nenhuma turma criada para o novo ano letivo", nil)
	}

	// 4. every student needs an action
	if len(data.Students) == 0 && len(cfg.StudentActions) == 0 {
		addWarning(shared.WarnKindNoStudents, "Nenhum aluno ativo encontrado", nil)
	}
	var pending []string
	for _, a := range cfg.StudentActions {
		if !a.Action.IsValid() {
			pending = append(pending, a.StudentName)
		}
	}
	covered := make(map[string]bool, len(cfg.StudentActions))
	for _, a := range cfg.StudentActions {
		covered[a.StudentID] = true
	}
	for _, s := range data.Students {
		if !covered[s.ID] {
			pending = append(pending, s.Name)
		}
	}
	if len(pending) > 0 {
		addError(shared.ErrKindNoAction,
			fmt.Sprintf("%d aluno(s) sem ação definida", len(pending)), pending)
	}
	actions := make(map[string]int, len(cfg.StudentActions))
	var repeated []string
	for _, a := range cfg.StudentActions {
		actions[a.StudentID]++
		if actions[a.StudentID] == 2 {
			repeated = append(repeated, a.StudentName)
		}
	}
	if len(repeated) > 0 {
		addError(shared.ErrKindNoAction,
			fmt.Sprintf("%d aluno(s) com mais de uma ação", len(repeated)), repeated)
	}

	// 5. every current class needs a level
	var unleveled []string
	for _, c := range data.Classes {
		if c.IsActive() && strings.TrimSpace(c.EducationalLevelID) == "" {
			unleveled = append(unleveled, c.Name)
		}
	}
	if len(unleveled) > 0 {
		addError(shared.ErrKindMissingLevel,
			fmt.Sprintf("%d turma(s) sem nível educacional", len(unleveled)), unleveled)
	}

	// 6. leaving students with books still out
	var withLoans []string
	loanTotal := 0
	for _, a := range cfg.StudentActions {
		if a.Action.RemovesStudent() && a.HasActiveLoans {
			withLoans = append(withLoans, a.StudentName)
			loanTotal += a.ActiveLoansCount
		}
	}
	if len(withLoans) > 0 {
		addWarning(shared.WarnKindActiveLoans,
			fmt.Sprintf("%d aluno(s) saindo com %d empréstimo(s) ativo(s)", len(withLoans), loanTotal), withLoans)
	}

	// 7. unusually large destination classes
	sizes := make(map[string]int)
	labels := make(map[string]string)
	for _, a := range cfg.StudentActions {
		class, shift, ok := destination(a)
		if !ok {
			continue
		}
		key := shared.ClassKey(class, shift)
		sizes[key]++
		labels[key] = classLabel(class, shift)
	}
	var large []string
	for key, n := range sizes {
		if n > v.LargeClassThreshold {
			large = append(large, fmt.Sprintf("%s (%d alunos)", labels[key], n))
		}
	}
	if len(large) > 0 {
		sort.Strings(large)
		addWarning(shared.WarnKindLargeClass,
			fmt.Sprintf("%d turma(s) com mais de %d alunos", len(large), v.LargeClassThreshold), large)
	}

	// 8. one mapping per source class
	seen := make(map[string]int)
	var duplicated []string
	for _, m := range cfg.ClassMappings {
		key := shared.ClassKey(m.FromClass, m.FromShift)
		seen[key]++
		if seen[key] == 2 {
			duplicated = append(duplicated, classLabel(m.FromClass, m.FromShift))
		}
	}
	if len(duplicated) > 0 {
		addError(shared.ErrKindDuplicateMapping,
			fmt.Sprintf("%d turma(s) mapeada(s) mais de uma vez", len(duplicated)), duplicated)
	}

	// 9. targets must make sense
	var noTarget []string
	for _, a := range cfg.StudentActions {
		if a.Action == shared.ActionPromote && strings.TrimSpace(a.ToClass) == "" {
			noTarget = append(noTarget, a.StudentName)
		}
	}
	if len(noTarget) > 0 {
		addError(shared.ErrKindInvalidTarget,
			fmt.Sprintf("%d aluno(s) promovido(s) sem turma de destino", len(noTarget)), noTarget)
	}
	if len(data.Students) > 0 {
		known := make(map[string]bool, len(data.Students))
		for _, s := range data.Students {
			known[s.ID] = true
		}
		var unknown []string
		for _, a := range cfg.StudentActions {
			if !known[a.StudentID] {
				unknown = append(unknown, a.StudentName)
			}
		}
		if len(unknown) > 0 {
			addError(shared.ErrKindInvalidTarget,
				fmt.Sprintf("%d aluno(s) não encontrado(s) no cadastro atual", len(unknown)), unknown)
		}
	}
	var clashing []string
	for _, nc := range cfg.NewClasses {
		if nc.ID != "" && data.ClassIDs[nc.ID] {
			clashing = append(clashing, nc.Name)
		}
	}
	if len(clashing) > 0 {
		addError(shared.ErrKindInvalidTarget,
			fmt.Sprintf("%d turma(s) nova(s) com identificador já usado", len(clashing)), clashing)
	}
	if data.ActiveYear != nil && cfg.FromYear != data.ActiveYear.Year {
		addError(shared.ErrKindInvalidTarget,
			fmt.Sprintf("O ano de origem %s não é o ano letivo ativo (%s)", cfg.FromYear, data.ActiveYear.Year),
			[]string{cfg.FromYear})
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// ErrorSummary joins every error message, as reported by a failed execution
func ErrorSummary(res shared.ValidationResult) string {
	msgs := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// destination returns the class a student will sit in next year
func destination(a shared.StudentAction) (class, shift string, ok bool) {
	switch a.Action {
	case shared.ActionPromote:
		if a.ToClass == "" {
			return "", "", false
		}
		return a.ToClass, a.ToShift, true
	case shared.ActionRetain:
		class, shift = a.FromClass, a.FromShift
		if a.ToClass != "" {
			class, shift = a.ToClass, a.ToShift
		}
		return class, shift, class != ""
	}
	return "", "", false
}

func classLabel(class, shift string) string {
	if shift == "" {
		return class
	}
	return class + " - " + shift
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
