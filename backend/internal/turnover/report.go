package turnover

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"library_turnover/backend/internal/shared"
)

var actionLabels = map[shared.Action]string{
	shared.ActionPromote:  "Promovido",
	shared.ActionRetain:   "Retido",
	shared.ActionTransfer: "Transferido",
	shared.ActionGraduate: "Formado",
}

// WriteAuditReport writes one CSV row per student action followed by the
// statistics summary.
func WriteAuditReport(w io.Writer, cfg shared.TurnoverConfig, stats shared.TurnoverStatistics) error {
	cw := csv.NewWriter(w)

	rows := [][]string{
		{"Virada de ano", cfg.FromYear + " -> " + cfg.ToYear},
		{},
		{"Aluno", "Turma origem", "Turno origem", "Ação", "Turma destino", "Turno destino", "Empréstimos ativos", "Qtd. empréstimos"},
	}
	for _, a := range cfg.StudentActions {
		toClass, toShift := "", ""
		if class, shift, ok := destination(a); ok {
			toClass, toShift = class, shift
		}
		label, ok := actionLabels[a.Action]
		if !ok {
			label = string(a.Action)
		}
		rows = append(rows, []string{
			a.StudentName,
			a.FromClass,
			a.FromShift,
			label,
			toClass,
			toShift,
			yesNo(a.HasActiveLoans),
			strconv.Itoa(a.ActiveLoansCount),
		})
	}

	rows = append(rows,
		[]string{},
		[]string{"Resumo"},
		[]string{"Total de alunos", strconv.Itoa(stats.TotalStudents)},
		[]string{"Promovidos", strconv.Itoa(stats.Promoted)},
		[]string{"Retidos", strconv.Itoa(stats.Retained)},
		[]string{"Transferidos", strconv.Itoa(stats.Transferred)},
		[]string{"Formados", strconv.Itoa(stats.Graduated)},
		[]string{"Alunos removidos", strconv.Itoa(stats.StudentsDeleted)},
		[]string{"Turmas criadas", strconv.Itoa(stats.ClassesCreated)},
		[]string{"Turmas arquivadas", strconv.Itoa(stats.ClassesArchived)},
		[]string{"Empréstimos ativos mantidos", strconv.Itoa(stats.ActiveLoansKept)},
	)

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write audit report: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Sim"
	}
	return "Não"
}
