package domain

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
)

// Enrollment and ProgressRecord are read-only views of collaborator data.
// The core never writes them back.
type Enrollment struct {
	UserID   string           `json:"user_id"`
	CourseID string           `json:"course_id"`
	Status   EnrollmentStatus `json:"status"`
	Progress float64          `json:"progress"`
}

type ProgressRecord struct {
	UserID    string `json:"user_id"`
	TimeSpent int    `json:"time_spent"`
}

// CourseCandidate is the slice of the external course entity the
// recommendation engine reads.
type CourseCandidate struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Subject            Subject    `json:"subject"`
	Difficulty         Difficulty `json:"difficulty"`
	AgeTier            AgeTier    `json:"age_tier"`
	CurrentEnrollments int        `json:"enrollments"`
	IsFeatured         bool       `json:"is_featured"`
}

// LearnerProfile is derived from enrollment and progress history on every
// recommendation request. It is never cached or persisted.
type LearnerProfile struct {
	UserID             string
	EnrolledCourseIDs  []string
	CompletedCourseIDs []string
	SubjectHistogram   map[Subject]int
	DifficultyHistory  []Difficulty
	AgeTier            AgeTier
	AverageProgress    float64
	TotalTimeSpent     int
}

// HighestCompletedLevel returns the ordinal difficulty of the hardest
// completed course, 0 when nothing has been completed.
func (p LearnerProfile) HighestCompletedLevel() int {
	highest := 0
	for _, difficulty := range p.DifficultyHistory {
		if level := DifficultyLevel(difficulty); level > highest {
			highest = level
		}
	}
	return highest
}

type Recommendation struct {
	CourseID   string     `json:"course_id"`
	Score      float64    `json:"score"`
	Reason     string     `json:"reason"`
	Difficulty Difficulty `json:"difficulty"`
	Subject    Subject    `json:"subject"`
}
