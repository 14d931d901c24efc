package lending

import (
	"fmt"
	"regexp"
	"strconv"
)

// StudentID is the university identifier, format YYDEPTnnnnn:
// 2-digit enrollment year, 3-letter department code, 5-digit sequence.
type StudentID string

var studentIDPattern = regexp.MustCompile(`^(\d{2})([A-Z]{3})(\d{5})$`)

// BuildStudentID validates the raw identifier and returns it as a StudentID.
// Returns ErrInvalidStudentID if the format check fails.
func BuildStudentID(raw string) (StudentID, error) {
	if !studentIDPattern.MatchString(raw) {
		return "", ErrInvalidStudentID
	}

	return StudentID(raw), nil
}

// Validate re-checks the identifier format, for StudentID values that were
// not built through BuildStudentID.
func (id StudentID) Validate() error {
	if !studentIDPattern.MatchString(string(id)) {
		return ErrInvalidStudentID
	}

	return nil
}

func (id StudentID) String() string {
	return string(id)
}

// Department returns the 3-letter department code embedded in the identifier.
func (id StudentID) Department() string {
	m := studentIDPattern.FindStringSubmatch(string(id))
	if m == nil {
		return ""
	}

	return m[2]
}

// EnrollmentYear returns the 4-digit enrollment year (2-digit year + 2000).
func (id StudentID) EnrollmentYear() int {
	m := studentIDPattern.FindStringSubmatch(string(id))
	if m == nil {
		return 0
	}

	year, _ := strconv.Atoi(m[1])

	return 2000 + year
}

// DefaultName derives a display name from the 5-digit sequence, used when a
// student record is created lazily without a supplied name.
func (id StudentID) DefaultName() string {
	m := studentIDPattern.FindStringSubmatch(string(id))
	if m == nil {
		return ""
	}

	return fmt.Sprintf("Student %s", m[3])
}

// Student is the roster record. Points and the two counters only ever
// increase - there are no penalty paths. Seq is a monotonic insertion
// sequence used to break leaderboard ties in favor of earlier registrations.
type Student struct {
	UID           StudentID
	Name          string
	Department    string
	Year          int
	Points        int
	BooksBorrowed int
	BooksReturned int
	Seq           int64
}
