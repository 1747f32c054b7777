package snapshot

import (
	"time"

	"library_turnover/backend/internal/shared"
)

// isoLayout matches the millisecond UTC strings stored in rawData
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// rankingSize is the number of entries kept per ranking
const rankingSize = 10

const unknownLabel = "unknown"

// DashboardSnapshot is the frozen record of one year, keyed by year
type DashboardSnapshot struct {
	ID        string    `bson:"_id" json:"-"`
	Year      string    `bson:"year" json:"year" validate:"required"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	Metrics   Metrics   `bson:"metrics" json:"metrics"`
	Charts    Charts    `bson:"charts" json:"charts"`
	Rankings  Rankings  `bson:"rankings" json:"rankings"`
	RawData   RawData   `bson:"rawData" json:"rawData"`
}

// Metrics are the scalar aggregates of a loan set
type Metrics struct {
	TotalLoans      int     `bson:"totalLoans" json:"totalLoans"`
	ActiveLoans     int     `bson:"activeLoans" json:"activeLoans"`
	CompletedLoans  int     `bson:"completedLoans" json:"completedLoans"`
	OverdueLoans    int     `bson:"overdueLoans" json:"overdueLoans"`
	AverageProgress float64 `bson:"averageProgress" json:"averageProgress"`
	TotalStudents   int     `bson:"totalStudents" json:"totalStudents"`
	TotalBooks      int     `bson:"totalBooks" json:"totalBooks"`
	ActiveReaders   int     `bson:"activeReaders" json:"activeReaders"`
}

// ChartPoint is one bar of a chart series
type ChartPoint struct {
	Label string `bson:"label" json:"label"`
	Value int    `bson:"value" json:"value"`
}

// Charts holds the chart series
type Charts struct {
	MonthlyLoans    []ChartPoint `bson:"monthlyLoans" json:"monthlyLoans"`
	LoansByCategory []ChartPoint `bson:"loansByCategory" json:"loansByCategory"`
	LoansByLevel    []ChartPoint `bson:"loansByLevel" json:"loansByLevel"`
}

// RankingEntry is one row of a top-N list
type RankingEntry struct {
	ID    string `bson:"id" json:"id"`
	Name  string `bson:"name" json:"name"`
	Count int    `bson:"count" json:"count"`
}

// Rankings holds the top-N lists
type Rankings struct {
	TopBooks    []RankingEntry `bson:"topBooks" json:"topBooks"`
	TopStudents []RankingEntry `bson:"topStudents" json:"topStudents"`
	TopClasses  []RankingEntry `bson:"topClasses" json:"topClasses"`
	TopGenres   []RankingEntry `bson:"topGenres" json:"topGenres"`
}

// RawLoan is a denormalized loan with string dates
type RawLoan struct {
	ID              string `bson:"id" json:"id"`
	StudentID       string `bson:"studentId" json:"studentId"`
	BookID          string `bson:"bookId" json:"bookId"`
	BorrowDate      string `bson:"borrowDate" json:"borrowDate"`
	DueDate         string `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
	ReturnDate      string `bson:"returnDate,omitempty" json:"returnDate,omitempty"`
	Status          string `bson:"status" json:"status"`
	Completed       bool   `bson:"completed" json:"completed"`
	ReadingProgress int    `bson:"readingProgress" json:"readingProgress"`
}

type RawStudent struct {
	ID                 string `bson:"id" json:"id"`
	Name               string `bson:"name" json:"name"`
	Classroom          string `bson:"classroom,omitempty" json:"classroom,omitempty"`
	Shift              string `bson:"shift,omitempty" json:"shift,omitempty"`
	EducationalLevelID string `bson:"educationalLevelId,omitempty" json:"educationalLevelId,omitempty"`
}

type RawBook struct {
	ID       string `bson:"id" json:"id"`
	Title    string `bson:"title" json:"title"`
	Author   string `bson:"author,omitempty" json:"author,omitempty"`
	Category string `bson:"category,omitempty" json:"category,omitempty"`
	Genre    string `bson:"genre,omitempty" json:"genre,omitempty"`
}

// RawData is everything needed to recompute a snapshot without the live store
type RawData struct {
	Loans    []RawLoan    `bson:"loans" json:"loans"`
	Students []RawStudent `bson:"students" json:"students"`
	Books    []RawBook    `bson:"books" json:"books"`
}

// DateRange is an inclusive borrow-date window
type DateRange struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// FilteredDashboardData is a snapshot recomputed over a date range
type FilteredDashboardData struct {
	Year     string    `json:"year"`
	Range    DateRange `json:"range"`
	Metrics  Metrics   `json:"metrics"`
	Charts   Charts    `json:"charts"`
	Rankings Rankings  `json:"rankings"`
}

// NewRawData denormalizes live records
func NewRawData(loans []shared.Loan, students []shared.Student, books []shared.Book) RawData {
	raw := RawData{
		Loans:    make([]RawLoan, 0, len(loans)),
		Students: make([]RawStudent, 0, len(students)),
		Books:    make([]RawBook, 0, len(books)),
	}
	for _, l := range loans {
		rl := RawLoan{
			ID:              l.ID,
			StudentID:       l.StudentID,
			BookID:          l.BookID,
			BorrowDate:      formatTime(l.BorrowDate),
			DueDate:         formatTime(l.DueDate),
			Status:          string(l.Status),
			Completed:       l.Completed,
			ReadingProgress: l.ReadingProgress,
		}
		if l.ReturnDate != nil {
			rl.ReturnDate = formatTime(*l.ReturnDate)
		}
		raw.Loans = append(raw.Loans, rl)
	}
	for _, s := range students {
		raw.Students = append(raw.Students, RawStudent{
			ID:                 s.ID,
			Name:               s.Name,
			Classroom:          s.Classroom,
			Shift:              s.Shift,
			EducationalLevelID: s.EducationalLevelID,
		})
	}
	for _, b := range books {
		raw.Books = append(raw.Books, RawBook{
			ID:       b.ID,
			Title:    b.Title,
			Author:   b.Author,
			Category: b.Category,
			Genre:    b.Genre,
		})
	}
	return raw
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(isoLayout)
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
