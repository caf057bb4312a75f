package book

import (
	"errors"
	"time"
)

const (
	// LoanPeriod is how long a borrow or renewal extends the due date.
	LoanPeriod = 7 * 24 * time.Hour
	// MaxRenewals caps renewals per user per loan.
	MaxRenewals = 2
	// DateLayout is the ISO calendar date format used for due dates.
	DateLayout = "2006-01-02"
)

// Rule violations returned by Borrow, Renew and Return. Their text is the
// result message sent back to the requester.
var (
	ErrNoCopies        = errors.New("no copies available")
	ErrAlreadyBorrowed = errors.New("book already borrowed by user")
	ErrNotBorrowed     = errors.New("book not borrowed by user")
	ErrRenewalLimit    = errors.New("renewal limit reached")
)

// Record is a book as stored by the record store.
type Record struct {
	ISBN            string            `json:"isbn"`
	Title           string            `json:"titulo"`
	CopiesAvailable int               `json:"copiasDisponibles"`
	BorrowedBy      []string          `json:"prestadoA"`
	Renewals        map[string]int    `json:"renovaciones"`
	DueDates        map[string]string `json:"fechaLim"`
}

// NewRecord creates a record with no active loans.
func NewRecord(isbn, title string, copies int) *Record {
	return &Record{
		ISBN:            isbn,
		Title:           title,
		CopiesAvailable: copies,
		BorrowedBy:      []string{},
		Renewals:        map[string]int{},
		DueDates:        map[string]string{},
	}
}

// Clone returns a deep copy. Nil collections come back empty so a clone
// always marshals with [] and {} rather than null.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := &Record{
		ISBN:            r.ISBN,
		Title:           r.Title,
		CopiesAvailable: r.CopiesAvailable,
		BorrowedBy:      append([]string{}, r.BorrowedBy...),
		Renewals:        make(map[string]int, len(r.Renewals)),
		DueDates:        make(map[string]string, len(r.DueDates)),
	}
	for u, n := range r.Renewals {
		c.Renewals[u] = n
	}
	for u, d := range r.DueDates {
		c.DueDates[u] = d
	}
	return c
}

// HasBorrowed reports whether user currently holds a copy.
func (r *Record) HasBorrowed(user string) bool {
	for _, u := range r.BorrowedBy {
		if u == user {
			return true
		}
	}
	return false
}

// Borrow lends one copy to user, due LoanPeriod after now.
func (r *Record) Borrow(user string, now time.Time) error {
	if r.CopiesAvailable <= 0 {
		return ErrNoCopies
	}
	if r.HasBorrowed(user) {
		return ErrAlreadyBorrowed
	}
	r.ensureMaps()
	r.CopiesAvailable--
	r.BorrowedBy = append(r.BorrowedBy, user)
	r.DueDates[user] = dueDate(now)
	r.Renewals[user] = 0
	return nil
}

// Renew extends user's loan and returns the new renewal count.
func (r *Record) Renew(user string, now time.Time) (int, error) {
	if !r.HasBorrowed(user) {
		return 0, ErrNotBorrowed
	}
	r.ensureMaps()
	count := r.Renewals[user]
	if count >= MaxRenewals {
		return count, ErrRenewalLimit
	}
	count++
	r.Renewals[user] = count
	r.DueDates[user] = dueDate(now)
	return count, nil
}

// Return takes user's copy back.
func (r *Record) Return(user string) error {
	if !r.HasBorrowed(user) {
		return ErrNotBorrowed
	}
	kept := make([]string, 0, len(r.BorrowedBy))
	for _, u := range r.BorrowedBy {
		if u != user {
			kept = append(kept, u)
		}
	}
	r.BorrowedBy = kept
	delete(r.Renewals, user)
	delete(r.DueDates, user)
	r.CopiesAvailable++
	return nil
}

func (r *Record) ensureMaps() {
	if r.Renewals == nil {
		r.Renewals = map[string]int{}
	}
	if r.DueDates == nil {
		r.DueDates = map[string]string{}
	}
}

func dueDate(now time.Time) string {
	return now.Add(LoanPeriod).Format(DateLayout)
}
