// ============================================================================
// backend/internal/shared/models.go
// Shared data models for per-account documents and the turnover workflow
// ============================================================================

package shared

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// Academic Year Models
// ============================================================================

// YearStatus is the lifecycle state of an academic year
type YearStatus string

const (
	YearActive   YearStatus = "active"
	YearArchived YearStatus = "archived"
)

// AcademicYear represents one school year of an account. The document id is the year itself.
type AcademicYear struct {
	ID         string     `bson:"_id" json:"id" validate:"required"`
	Year       string     `bson:"year" json:"year" validate:"required,numeric"`
	StartDate  time.Time  `bson:"startDate" json:"startDate"`
	EndDate    time.Time  `bson:"endDate" json:"endDate"`
	Status     YearStatus `bson:"status" json:"status" validate:"required,oneof=active archived"`
	CreatedAt  time.Time  `bson:"createdAt" json:"createdAt"`
	ArchivedAt *time.Time `bson:"archivedAt,omitempty" json:"archivedAt,omitempty"`
}

// ErrInvalidYear is returned for year strings that are not integers
var ErrInvalidYear = errors.New("invalid year")

// YearBounds returns the first and last instant (UTC, millisecond precision) of a calendar year.
func YearBounds(year string) (time.Time, time.Time, error) {
	n, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidYear, year, err)
	}
	start := time.Date(n, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(n, time.December, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC)
	return start, end, nil
}

// ============================================================================
// Roster Models
// ============================================================================

// EducationalLevel represents a grade level (e.g. "1º ano")
type EducationalLevel struct {
	ID    string `bson:"_id" json:"id" validate:"required"`
	Name  string `bson:"name" json:"name" validate:"required"`
	Order int    `bson:"order" json:"order"`
}

// Student represents an enrolled student. Every stored student is active.
type Student struct {
	ID                 string    `bson:"_id" json:"id" validate:"required"`
	Name               string    `bson:"name" json:"name" validate:"required"`
	Classroom          string    `bson:"classroom" json:"classroom"`
	Shift              string    `bson:"shift" json:"shift"`
	EducationalLevelID string    `bson:"educationalLevelId" json:"educationalLevelId"`
	CreatedAt          time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time `bson:"updatedAt" json:"updatedAt"`
}

// ClassStatus is the lifecycle state of a class
type ClassStatus string

const (
	ClassActive   ClassStatus = "active"
	ClassArchived ClassStatus = "archived"
)

// Class represents a classroom container for one academic year
type Class struct {
	ID                 string      `bson:"_id" json:"id" validate:"required"`
	Name               string      `bson:"name" json:"name" validate:"required"`
	Shift              string      `bson:"shift" json:"shift"`
	EducationalLevelID string      `bson:"educationalLevelId" json:"educationalLevelId"`
	AcademicYear       string      `bson:"academicYear" json:"academicYear"`
	Status             ClassStatus `bson:"status" json:"status" validate:"omitempty,oneof=active archived"`
	CreatedAt          time.Time   `bson:"createdAt" json:"createdAt"`
	ArchivedAt         *time.Time  `bson:"archivedAt,omitempty" json:"archivedAt,omitempty"`
}

// IsActive reports whether the class belongs to the current roster. Legacy
// documents without a status count as active.
func (c Class) IsActive() bool {
	return c.Status != ClassArchived
}

// ClassKey identifies a class by name and shift, the way students reference it.
func ClassKey(name, shift string) string {
	return name + "|" + shift
}

// ============================================================================
// Catalog & Loan Models
// ============================================================================

// Book represents a catalog entry
type Book struct {
	ID        string    `bson:"_id" json:"id" validate:"required"`
	Title     string    `bson:"title" json:"title" validate:"required"`
	Author    string    `bson:"author" json:"author"`
	Category  string    `bson:"category" json:"category"`
	Genre     string    `bson:"genre" json:"genre"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// LoanStatus is the lifecycle state of a loan
type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
)

// Loan represents a book borrowed by a student
type Loan struct {
	ID              string     `bson:"_id" json:"id" validate:"required"`
	StudentID       string     `bson:"studentId" json:"studentId" validate:"required"`
	BookID          string     `bson:"bookId" json:"bookId" validate:"required"`
	BorrowDate      time.Time  `bson:"borrowDate" json:"borrowDate" validate:"required"`
	DueDate         time.Time  `bson:"dueDate" json:"dueDate"`
	ReturnDate      *time.Time `bson:"returnDate,omitempty" json:"returnDate,omitempty"`
	Status          LoanStatus `bson:"status" json:"status" validate:"required,oneof=active returned"`
	Completed       bool       `bson:"completed" json:"completed"`
	ReadingProgress int        `bson:"readingProgress" json:"readingProgress" validate:"min=0,max=100"`
}

// IsActive reports whether the book is still out
func (l Loan) IsActive() bool {
	return l.Status == LoanActive
}

// IsOverdue reports whether an active loan is past due at the given instant
func (l Loan) IsOverdue(at time.Time) bool {
	return l.IsActive() && !l.DueDate.IsZero() && l.DueDate.Before(at)
}

// ============================================================================
// Turnover Configuration Models
// ============================================================================

// Action is what happens to a student during a turnover
type Action string

const (
	ActionPending  Action = ""
	ActionPromote  Action = "promote"
	ActionRetain   Action = "retain"
	ActionTransfer Action = "transfer"
	ActionGraduate Action = "graduate"
)

// IsValid reports whether the action is one of the four assignable actions
func (a Action) IsValid() bool {
	switch a {
	case ActionPromote, ActionRetain, ActionTransfer, ActionGraduate:
		return true
	}
	return false
}

// RemovesStudent reports whether the action deletes the student record
func (a Action) RemovesStudent() bool {
	return a == ActionTransfer || a == ActionGraduate
}

// StudentAction is the decision taken for one student
type StudentAction struct {
	StudentID        string `bson:"studentId" json:"studentId" validate:"required"`
	StudentName      string `bson:"studentName" json:"studentName"`
	FromClass        string `bson:"fromClass" json:"fromClass"`
	FromShift        string `bson:"fromShift" json:"fromShift"`
	Action           Action `bson:"action" json:"action" validate:"omitempty,oneof=promote retain transfer graduate"`
	ToClass          string `bson:"toClass,omitempty" json:"toClass,omitempty"`
	ToShift          string `bson:"toShift,omitempty" json:"toShift,omitempty"`
	ToLevelID        string `bson:"toLevelId,omitempty" json:"toLevelId,omitempty"`
	HasActiveLoans   bool   `bson:"hasActiveLoans" json:"hasActiveLoans"`
	ActiveLoansCount int    `bson:"activeLoansCount" json:"activeLoansCount"`
}

// NewClass is a class container to be created in the destination year
type NewClass struct {
	ID      string `bson:"id" json:"id"`
	Name    string `bson:"name" json:"name" validate:"required"`
	Shift   string `bson:"shift" json:"shift"`
	LevelID string `bson:"levelId" json:"levelId"`
}

// MappingAction describes a class-level transform
type MappingAction string

const (
	MappingPromote   MappingAction = "promote"
	MappingSplit     MappingAction = "split"
	MappingMerge     MappingAction = "merge"
	MappingUnchanged MappingAction = "unchanged"
)

// ClassMapping maps a current class onto a destination class
type ClassMapping struct {
	FromClass   string        `bson:"fromClass" json:"fromClass" validate:"required"`
	FromShift   string        `bson:"fromShift" json:"fromShift"`
	FromLevelID string        `bson:"fromLevelId" json:"fromLevelId"`
	ToClass     string        `bson:"toClass" json:"toClass"`
	ToShift     string        `bson:"toShift" json:"toShift"`
	ToLevelID   string        `bson:"toLevelId" json:"toLevelId"`
	Action      MappingAction `bson:"action" json:"action" validate:"omitempty,oneof=promote split merge unchanged"`
}

// TurnoverConfig is the complete proposed transition between two years
type TurnoverConfig struct {
	FromYear       string          `bson:"fromYear" json:"fromYear" validate:"required,numeric"`
	ToYear         string          `bson:"toYear" json:"toYear" validate:"required,numeric"`
	ClassMappings  []ClassMapping  `bson:"classMappings" json:"classMappings" validate:"dive"`
	StudentActions []StudentAction `bson:"studentActions" json:"studentActions" validate:"dive"`
	NewClasses     []NewClass      `bson:"newClasses" json:"newClasses" validate:"dive"`
}

// ============================================================================
// Validation Models
// ============================================================================

// Validation error kinds
const (
	ErrKindMissingLevel     = "missing_level"
	ErrKindNoAction         = "no_action"
	ErrKindNoMapping        = "no_mapping"
	ErrKindDuplicateMapping = "duplicate_mapping"
	ErrKindInvalidTarget    = "invalid_target"
)

// Validation warning kinds
const (
	WarnKindActiveLoans = "active_loans"
	WarnKindNoStudents  = "no_students"
	WarnKindLargeClass  = "large_class"
)

// ValidationError blocks execution
type ValidationError struct {
	Type          string   `json:"type"`
	Message       string   `json:"message"`
	AffectedItems []string `json:"affectedItems"`
}

// ValidationWarning is informational only
type ValidationWarning struct {
	Type          string   `json:"type"`
	Message       string   `json:"message"`
	AffectedItems []string `json:"affectedItems"`
}

// ValidationResult is the outcome of one validator run
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []ValidationError   `json:"errors"`
	Warnings []ValidationWarning `json:"warnings"`
}

// ============================================================================
// Execution & History Models
// ============================================================================

// TurnoverStatistics is computed once during execution
type TurnoverStatistics struct {
	TotalStudents   int `bson:"totalStudents" json:"totalStudents"`
	Promoted        int `bson:"promoted" json:"promoted"`
	Retained        int `bson:"retained" json:"retained"`
	Transferred     int `bson:"transferred" json:"transferred"`
	Graduated       int `bson:"graduated" json:"graduated"`
	StudentsDeleted int `bson:"studentsDeleted" json:"studentsDeleted"`
	ClassesCreated  int `bson:"classesCreated" json:"classesCreated"`
	ClassesArchived int `bson:"classesArchived" json:"classesArchived"`
	ActiveLoansKept int `bson:"activeLoansKept" json:"activeLoansKept"`
}

// TurnoverStatus is the state of one turnover attempt
type TurnoverStatus string

const (
	TurnoverInProgress TurnoverStatus = "in_progress"
	TurnoverCompleted  TurnoverStatus = "completed"
	TurnoverFailed     TurnoverStatus = "failed"
	TurnoverCancelled  TurnoverStatus = "cancelled"
)

// YearTurnoverHistory is the audit record of one turnover attempt. The frozen
// config and batch cursor allow a failed run to be resumed.
type YearTurnoverHistory struct {
	ID               string             `bson:"_id" json:"id" validate:"required"`
	FromYear         string             `bson:"fromYear" json:"fromYear" validate:"required"`
	ToYear           string             `bson:"toYear" json:"toYear" validate:"required"`
	ExecutedAt       time.Time          `bson:"executedAt" json:"executedAt"`
	CompletedAt      *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	Status           TurnoverStatus     `bson:"status" json:"status" validate:"required,oneof=in_progress completed failed cancelled"`
	Statistics       TurnoverStatistics `bson:"statistics" json:"statistics"`
	Error            string             `bson:"error,omitempty" json:"error,omitempty"`
	Config           TurnoverConfig     `bson:"config" json:"config"`
	ArchivedClassIDs []string           `bson:"archivedClassIds" json:"archivedClassIds"`
	BatchSize        int                `bson:"batchSize" json:"batchSize"`
	TotalBatches     int                `bson:"totalBatches" json:"totalBatches"`
	CommittedBatches int                `bson:"committedBatches" json:"committedBatches"`
}

// ExecutionResult is returned to the caller of an execution
type ExecutionResult struct {
	Success    bool               `json:"success"`
	Statistics TurnoverStatistics `json:"statistics"`
	HistoryID  string             `json:"historyId,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// TurnoverPreparation is everything the first wizard step shows
type TurnoverPreparation struct {
	ActiveYear     *AcademicYear      `json:"activeYear,omitempty"`
	NextYear       string             `json:"nextYear,omitempty"`
	Levels         []EducationalLevel `json:"levels"`
	Students       []Student          `json:"students"`
	Classes        []Class            `json:"classes"`
	StudentActions []StudentAction    `json:"studentActions"`
}
