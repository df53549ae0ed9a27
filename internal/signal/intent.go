package signal

import (
	"fmt"
	"strings"

	"github.com/avdeev/takeover/internal/domain"
)

// IntentEvery is how often the intent classifier runs, in visitor turns. The
// voice path has no per-turn trigger detection, so this periodic pass is its
// only escalation signal.
const IntentEvery = 3

// hotLeadThreshold is the minimum intent score that classifies a session as
// a hot lead.
const hotLeadThreshold = 3

// Intent is the output of the periodic lightweight intent classifier.
type Intent struct {
	Score   int
	Summary string
}

// AnalyzeIntent scores recent visitor messages for hiring/engagement intent.
// It is a coarser net than per-turn trigger detection: it counts distinct
// soft hiring phrases plus hard trigger phrases across the whole window.
// Returns ok=true when the session qualifies as a hot lead.
func AnalyzeIntent(recent []domain.Message) (Intent, bool) {
	score := 0
	hits := []string{}

	for _, msg := range recent {
		if msg.Role != domain.RoleVisitor {
			continue
		}
		text := strings.ToLower(msg.Content)
		if n := countMatches(text, hiringIntentPhrases); n > 0 {
			score += n
			hits = append(hits, "hiring-language")
		}
		if matchAny(text, availabilityPhrases) || matchAny(text, salaryPhrases) {
			score += 2
			hits = append(hits, "logistics")
		}
		if matchAny(text, highInterestPhrases) {
			score += 2
			hits = append(hits, "interest")
		}
	}

	if score < hotLeadThreshold {
		return Intent{Score: score}, false
	}

	return Intent{
		Score:   score,
		Summary: fmt.Sprintf("hot lead (score %d): %s", score, strings.Join(dedupe(hits), ", ")),
	}, true
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
