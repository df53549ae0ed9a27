package signal

import (
	"strings"
)

// predictRule maps leading phrasing to a human-readable best guess of the
// next question. The guesses feed the predictive notification only; they
// never influence escalation.
type predictRule struct {
	phrases []string
	guess   string
}

var predictRules = []predictRule{
	{
		phrases: []string{
			"we're looking for", "we are looking for", "looking for someone",
			"searching for a", "мы ищем", "в поиске",
		},
		guess: "Role pitch forming — expect an availability or interest question next",
	},
	{
		phrases: []string{
			"what's your rate", "what is your rate", "what's your hourly",
			"какая у тебя ставка", "сколько берешь",
		},
		guess: "Rate probe — expect a salary/compensation question next",
	},
	{
		phrases: []string{
			"are you open to", "would you consider", "would you be open",
			"открыт ли ты", "рассмотришь ли",
		},
		guess: "Opportunity probe — expect an availability question next",
	},
	{
		phrases: []string{
			"tell me about your experience", "walk me through", "how did you build",
			"расскажи про опыт", "как ты делал",
		},
		guess: "Screening has started — expect resume or contact requests soon",
	},
}

// Predict scans a visitor message for leading phrasing and returns a best
// guess of what comes next. The second return is false when nothing matched.
func Predict(message string) (string, bool) {
	text := strings.ToLower(strings.TrimSpace(message))
	if text == "" {
		return "", false
	}
	for _, rule := range predictRules {
		for _, p := range rule.phrases {
			if matchPhrase(text, p) {
				return rule.guess, true
			}
		}
	}
	return "", false
}
