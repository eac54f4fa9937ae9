package policy

import (
	"strings"

	"github.com/ilmhub/lms-ai-back/internal/domain"
)

// ModerationFlags is the closed vocabulary the moderation prompt asks the
// model to choose from. Unknown flags coming back from the model are dropped
// by the quality layer.
var ModerationFlags = []string{
	"unverified_attribution",
	"missing_source_citation",
	"sectarian_polemics",
	"age_inappropriate",
	"factual_error",
	"off_topic",
}

// ModerationRecommendations are the allowed dispositions for moderated content.
var ModerationRecommendations = []string{"approve", "review", "reject"}

const baseGuidelines = `Content guidelines:
- Quranic verses must cite surah and ayah numbers.
- Hadith must name the collection and grading where known.
- Avoid sectarian polemics; present mainstream positions neutrally.
- Scholarly differences of opinion should be acknowledged, not erased.`

var ageTierGuidelines = map[domain.AgeTier]string{
	domain.AgeTierChildren: `Audience: children. Use simple vocabulary, short sentences, and gentle framing. Avoid graphic descriptions of punishment or warfare.`,
	domain.AgeTierYouth:    `Audience: youth. Practical, relatable examples are preferred. Historical context may be discussed plainly.`,
	domain.AgeTierAdult:    `Audience: adults. Full scholarly detail, including differences between schools of law, is appropriate.`,
}

// PromptGuidelines returns the policy text injected into every content
// prompt. This is policy data, not core logic; editors maintain it.
func PromptGuidelines(ageTier domain.AgeTier) string {
	tier, ok := ageTierGuidelines[ageTier]
	if !ok {
		tier = ageTierGuidelines[domain.AgeTierAdult]
	}
	return baseGuidelines + "\n" + tier
}

// KnownSubjects and friends back the quality layer's normalization of model
// output to the LMS vocabulary.
var KnownSubjects = []domain.Subject{
	domain.SubjectQuran,
	domain.SubjectHadith,
	domain.SubjectFiqh,
	domain.SubjectAqeedah,
	domain.SubjectSeerah,
	domain.SubjectArabic,
	domain.SubjectAkhlaq,
}

var KnownDifficulties = []domain.Difficulty{
	domain.DifficultyBeginner,
	domain.DifficultyIntermediate,
	domain.DifficultyAdvanced,
}

var KnownAgeTiers = []domain.AgeTier{
	domain.AgeTierChildren,
	domain.AgeTierYouth,
	domain.AgeTierAdult,
}

func IsModerationFlag(flag string) bool {
	normalized := strings.ToLower(strings.TrimSpace(flag))
	for _, known := range ModerationFlags {
		if normalized == known {
			return true
		}
	}
	return false
}

func IsModerationRecommendation(value string) bool {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, known := range ModerationRecommendations {
		if normalized == known {
			return true
		}
	}
	return false
}
