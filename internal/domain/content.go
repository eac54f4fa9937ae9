package domain

import "time"

type ContentType string

const (
	ContentTypeCourse ContentType = "course"
	ContentTypeLesson ContentType = "lesson"
	ContentTypeQuiz   ContentType = "quiz"
)

type Subject string

const (
	SubjectQuran   Subject = "quran"
	SubjectHadith  Subject = "hadith"
	SubjectFiqh    Subject = "fiqh"
	SubjectAqeedah Subject = "aqeedah"
	SubjectSeerah  Subject = "seerah"
	SubjectArabic  Subject = "arabic"
	SubjectAkhlaq  Subject = "akhlaq"
)

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// DifficultyLevel maps difficulties onto an ordinal scale used for
// progression scoring. Unknown values map to 0.
func DifficultyLevel(d Difficulty) int {
	switch d {
	case DifficultyBeginner:
		return 1
	case DifficultyIntermediate:
		return 2
	case DifficultyAdvanced:
		return 3
	default:
		return 0
	}
}

type AgeTier string

const (
	AgeTierChildren AgeTier = "children"
	AgeTierYouth    AgeTier = "youth"
	AgeTierAdult    AgeTier = "adult"
)

type ChunkMetadata struct {
	Subject    Subject    `json:"subject,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	AgeTier    AgeTier    `json:"age_tier,omitempty"`
}

// ContentChunk is one embedded window of a source content item. Identity is
// (ContentType, ContentID, ChunkIndex); all chunks of a content item are
// replaced wholesale on re-index.
type ContentChunk struct {
	ContentType ContentType
	ContentID   string
	ChunkIndex  int
	Text        string
	CharStart   int
	CharEnd     int
	Embedding   []float32
	Title       string
	Metadata    ChunkMetadata
	UpdatedAt   time.Time
}

// SearchResult is one distinct content item returned by the retrieval layer.
type SearchResult struct {
	ContentType ContentType `json:"content_type"`
	ContentID   string      `json:"content_id"`
	Title       string      `json:"title"`
	Snippet     string      `json:"snippet"`
	Score       float64     `json:"score"`
}
