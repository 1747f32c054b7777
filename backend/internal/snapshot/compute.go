package snapshot

import (
	"fmt"
	"sort"
	"time"

	"library_turnover/backend/internal/shared"
)

// Build computes a snapshot from raw data. Overdue loans are evaluated at createdAt.
func Build(year string, raw RawData, createdAt time.Time) DashboardSnapshot {
	createdAt = shared.NewDateTime(createdAt)
	metrics, charts, rankings := compute(raw, raw.Loans, createdAt)
	return DashboardSnapshot{
		ID:        year,
		Year:      year,
		CreatedAt: createdAt,
		Metrics:   metrics,
		Charts:    charts,
		Rankings:  rankings,
		RawData:   raw,
	}
}

// FilterSnapshotByDateRange recomputes metrics, charts and rankings from the
// snapshot's raw data, keeping loans borrowed inside r (inclusive).
func FilterSnapshotByDateRange(snap DashboardSnapshot, r DateRange) (FilteredDashboardData, error) {
	if r.EndDate.Before(r.StartDate) {
		return FilteredDashboardData{}, fmt.Errorf("end date %s is before start date %s",
			r.EndDate.Format(time.RFC3339), r.StartDate.Format(time.RFC3339))
	}

	loans := make([]RawLoan, 0, len(snap.RawData.Loans))
	for _, l := range snap.RawData.Loans {
		if borrowedWithin(l, r.StartDate, r.EndDate) {
			loans = append(loans, l)
		}
	}

	metrics, charts, rankings := compute(snap.RawData, loans, snap.CreatedAt)
	return FilteredDashboardData{
		Year:     snap.Year,
		Range:    r,
		Metrics:  metrics,
		Charts:   charts,
		Rankings: rankings,
	}, nil
}

func borrowedWithin(l RawLoan, start, end time.Time) bool {
	t, ok := parseTime(l.BorrowDate)
	if !ok {
		return false
	}
	return !t.Before(start) && !t.After(end)
}

// compute derives every aggregate from loans, joined against raw's students and books.
func compute(raw RawData, loans []RawLoan, asOf time.Time) (Metrics, Charts, Rankings) {
	students := make(map[string]RawStudent, len(raw.Students))
	for _, s := range raw.Students {
		students[s.ID] = s
	}
	books := make(map[string]RawBook, len(raw.Books))
	for _, b := range raw.Books {
		books[b.ID] = b
	}

	m := Metrics{
		TotalLoans:    len(loans),
		TotalStudents: len(raw.Students),
		TotalBooks:    len(raw.Books),
	}

	var progressSum, returned int
	readers := make(map[string]bool)
	monthly := newCounter()
	byCategory := newCounter()
	byLevel := newCounter()
	topBooks := newCounter()
	topStudents := newCounter()
	topClasses := newCounter()
	topGenres := newCounter()

	for _, l := range loans {
		switch shared.LoanStatus(l.Status) {
		case shared.LoanActive:
			m.ActiveLoans++
			if due, ok := parseTime(l.DueDate); ok && due.Before(asOf) {
				m.OverdueLoans++
			}
		case shared.LoanReturned:
			m.CompletedLoans++
			returned++
			if l.Completed {
				progressSum += 100
			} else {
				progressSum += l.ReadingProgress
			}
		}

		if l.StudentID != "" {
			readers[l.StudentID] = true
		}

		if t, ok := parseTime(l.BorrowDate); ok {
			monthly.add(t.Format("2006-01"), t.Format("2006-01"))
		}

		book, hasBook := books[l.BookID]
		category, genre, title := unknownLabel, "", l.BookID
		if hasBook {
			if book.Category != "" {
				category = book.Category
			}
			genre = book.Genre
			if book.Title != "" {
				title = book.Title
			}
		}
		byCategory.add(category, category)
		topBooks.add(l.BookID, title)
		if genre != "" {
			topGenres.add(genre, genre)
		}

		student, hasStudent := students[l.StudentID]
		level := unknownLabel
		if hasStudent {
			if student.EducationalLevelID != "" {
				level = student.EducationalLevelID
			}
			topStudents.add(student.ID, student.Name)
			if student.Classroom != "" {
				topClasses.add(shared.ClassKey(student.Classroom, student.Shift), classLabel(student))
			}
		}
		byLevel.add(level, level)
	}

	if returned > 0 {
		m.AverageProgress = float64(progressSum) / float64(returned)
	}
	m.ActiveReaders = len(readers)

	charts := Charts{
		MonthlyLoans:    monthly.byLabel(),
		LoansByCategory: byCategory.byCount(),
		LoansByLevel:    byLevel.byCount(),
	}
	rankings := Rankings{
		TopBooks:    topBooks.top(rankingSize),
		TopStudents: topStudents.top(rankingSize),
		TopClasses:  topClasses.top(rankingSize),
		TopGenres:   topGenres.top(rankingSize),
	}
	return m, charts, rankings
}

func classLabel(s RawStudent) string {
	if s.Shift == "" {
		return s.Classroom
	}
	return s.Classroom + " - " + s.Shift
}

// counter tallies keys and remembers a display name for each
type counter struct {
	counts map[string]int
	names  map[string]string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int), names: make(map[string]string)}
}

func (c *counter) add(key, name string) {
	c.counts[key]++
	if _, ok := c.names[key]; !ok {
		c.names[key] = name
	}
}

func (c *counter) entries() []RankingEntry {
	out := make([]RankingEntry, 0, len(c.counts))
	for k, n := range c.counts {
		out = append(out, RankingEntry{ID: k, Name: c.names[k], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *counter) top(n int) []RankingEntry {
	out := c.entries()
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (c *counter) byCount() []ChartPoint {
	entries := c.entries()
	out := make([]ChartPoint, 0, len(entries))
	for _, e := range entries {
		out = append(out, ChartPoint{Label: e.Name, Value: e.Count})
	}
	return out
}

func (c *counter) byLabel() []ChartPoint {
	out := c.byCount()
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
