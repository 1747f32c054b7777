package turnover

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"library_turnover/backend/internal/academicyear"
	"library_turnover/backend/internal/docstore"
	"library_turnover/backend/internal/shared"
)

// plan is the ordered list of batches for one turnover and the statistics
// counted while building it. The same inputs always produce the same plan,
// which is what lets a failed run resume at a batch index.
type plan struct {
	Batches    [][]docstore.Op
	Statistics shared.TurnoverStatistics
}

type planInput struct {
	Config           shared.TurnoverConfig
	ExecutedAt       time.Time
	ArchivedClassIDs []string
	ActiveLoans      map[string]int
	BatchSize        int
}

// batcher seals a batch whenever it reaches size
type batcher struct {
	size    int
	batches [][]docstore.Op
	current []docstore.Op
}

func (b *batcher) add(ops ...docstore.Op) {
	for _, op := range ops {
		b.current = append(b.current, op)
		if len(b.current) == b.size {
			b.batches = append(b.batches, b.current)
			b.current = nil
		}
	}
}

func (b *batcher) seal() [][]docstore.Op {
	if len(b.current) > 0 {
		b.batches = append(b.batches, b.current)
		b.current = nil
	}
	return b.batches
}

func buildPlan(in planInput) (plan, error) {
	size := in.BatchSize
	if size <= 0 {
		size = shared.DefaultBatchSize
	}
	if size > docstore.MaxBatchOps {
		return plan{}, fmt.Errorf("batch size %d exceeds store limit %d", size, docstore.MaxBatchOps)
	}

	cfg := in.Config
	at := shared.NewDateTime(in.ExecutedAt)
	b := &batcher{size: size}
	var stats shared.TurnoverStatistics

	// new year first, then the old one archived
	newYear, err := academicyear.NewYear(cfg.ToYear, at)
	if err != nil {
		return plan{}, err
	}
	b.add(academicyear.ActivationOps(newYear, []string{cfg.FromYear}, at)...)

	for _, a := range cfg.StudentActions {
		stats.TotalStudents++
		switch a.Action {
		case shared.ActionPromote:
			stats.Promoted++
			b.add(docstore.UpdateOp(docstore.Students, a.StudentID,
				placementFields(a.ToClass, coalesce(a.ToShift, a.FromShift), a.ToLevelID, at)))
		case shared.ActionRetain:
			stats.Retained++
			b.add(docstore.UpdateOp(docstore.Students, a.StudentID,
				placementFields(coalesce(a.ToClass, a.FromClass), coalesce(a.ToShift, a.FromShift), a.ToLevelID, at)))
		case shared.ActionTransfer, shared.ActionGraduate:
			if a.Action == shared.ActionTransfer {
				stats.Transferred++
			} else {
				stats.Graduated++
			}
			stats.StudentsDeleted++
			// loans stay behind, orphaned but queryable
			stats.ActiveLoansKept += in.ActiveLoans[a.StudentID]
			b.add(docstore.DeleteOp(docstore.Students, a.StudentID))
		default:
			return plan{}, fmt.Errorf("student %s has no valid action (%q)", a.StudentID, a.Action)
		}
	}

	for _, nc := range cfg.NewClasses {
		stats.ClassesCreated++
		b.add(docstore.CreateOp(docstore.Classes, nc.ID, shared.Class{
			ID:                 nc.ID,
			Name:               nc.Name,
			Shift:              nc.Shift,
			EducationalLevelID: nc.LevelID,
			AcademicYear:       cfg.ToYear,
			Status:             shared.ClassActive,
			CreatedAt:          at,
		}))
	}

	for _, id := range in.ArchivedClassIDs {
		stats.ClassesArchived++
		b.add(docstore.UpdateOp(docstore.Classes, id, bson.M{
			"status":     shared.ClassArchived,
			"archivedAt": at,
		}))
	}

	return plan{Batches: b.seal(), Statistics: stats}, nil
}

func placementFields(class, shift, levelID string, at time.Time) bson.M {
	fields := bson.M{
		"classroom": class,
		"shift":     shift,
		"updatedAt": at,
	}
	if levelID != "" {
		fields["educationalLevelId"] = levelID
	}
	return fields
}

func coalesce(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// normalizeConfig gives every new class a unique id so the plan can be replayed.
func normalizeConfig(cfg shared.TurnoverConfig) shared.TurnoverConfig {
	out := cfg
	out.ClassMappings = append([]shared.ClassMapping{}, cfg.ClassMappings...)
	out.StudentActions = append([]shared.StudentAction{}, cfg.StudentActions...)
	out.NewClasses = make([]shared.NewClass, len(cfg.NewClasses))

	seen := make(map[string]bool, len(cfg.NewClasses))
	for i, nc := range cfg.NewClasses {
		if nc.ID == "" || seen[nc.ID] {
			nc.ID = shared.GenerateClassID()
		}
		seen[nc.ID] = true
		out.NewClasses[i] = nc
	}
	return out
}
