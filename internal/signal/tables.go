// Package signal classifies visitor utterances into intervention triggers.
// All functions here are pure: no I/O, no clock, no store access.
package signal

import (
	"strings"
	"unicode"
)

// Phrase tables are matched case-insensitively with word boundaries, English
// and Russian. Keep short tokens out of these lists unless boundary matching
// makes them safe ("cv" must not match "cvs pharmacy" — it does not, boundary
// matching treats "cvs" as one word).

var recruiterPhrases = []string{
	"recruiter", "headhunter", "talent acquisition", "we're hiring", "we are hiring",
	"hiring for", "hiring manager", "job opening", "open role", "open position",
	"sourcing candidates", "staffing agency",
	"рекрутер", "хедхантер", "вакансия", "нанимаем", "ищем разработчика", "ищем инженера",
	"кадровое агентство",
}

var availabilityPhrases = []string{
	"availability", "available to start", "when can you start", "when could you start",
	"start date", "notice period", "open to work", "open to new opportunities",
	"free to chat this week", "available for a call",
	"когда можешь начать", "когда сможешь начать", "готов приступить", "дата выхода",
	"открыт к предложениям", "доступен для звонка",
}

var salaryPhrases = []string{
	"salary", "compensation", "pay range", "salary range", "salary expectations",
	"expected salary", "your rate", "hourly rate", "day rate", "how much do you charge",
	"total comp", "base pay", "equity",
	"зарплата", "зарплатные ожидания", "компенсация", "ставка в час", "сколько ты стоишь",
	"вилка по деньгам", "оклад",
}

var resumePhrases = []string{
	"resume", "résumé", "cv", "curriculum vitae", "send me your resume",
	"copy of your resume", "portfolio",
	"резюме", "пришли резюме", "портфолио",
}

var contactPhrases = []string{
	"contact you", "get in touch", "reach you", "reach out", "email address",
	"phone number", "linkedin", "calendly", "book a time",
	"связаться с тобой", "как с тобой связаться", "контакты", "номер телефона",
	"адрес почты", "напиши мне",
}

var highInterestPhrases = []string{
	"i'm interested", "i am interested", "we are interested", "we're interested",
	"very impressive", "really impressive", "let's talk", "lets talk",
	"schedule a call", "set up a call", "set up an interview", "move forward",
	"next steps", "интересно обсудить", "впечатляет", "давай созвонимся",
	"назначим звонок", "следующие шаги", "собеседование",
}

var technicalPhrases = []string{
	"goroutine", "concurrency", "race condition", "latency", "throughput",
	"kubernetes", "distributed system", "distributed systems", "consensus",
	"algorithm", "data structure", "architecture", "microservice", "microservices",
	"database schema", "indexing", "compiler", "garbage collector", "profiling",
	"api design", "load balancing", "caching",
	"горутина", "конкурентность", "микросервис", "архитектура", "алгоритм",
	"профилирование", "индексы", "шардирование",
}

// hiringIntentPhrases feed the periodic hot-lead classifier. Broader and
// softer than the per-turn trigger tables: any of these counts toward the
// intent score without firing an intervention on its own.
var hiringIntentPhrases = []string{
	"hiring", "role", "position", "opportunity", "team", "join us", "offer",
	"interview", "candidate", "job", "startup", "company",
	"вакансия", "команда", "оффер", "позиция", "компания", "работа",
}

// matchAny reports whether any phrase from the table occurs in text as a
// whole word or phrase. text must already be lowercased.
func matchAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if matchPhrase(text, p) {
			return true
		}
	}
	return false
}

// countMatches returns how many distinct phrases from the table occur in text.
func countMatches(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if matchPhrase(text, p) {
			n++
		}
	}
	return n
}

// matchPhrase is a boundary-aware substring search: the phrase must not be
// embedded inside a longer word on either side.
func matchPhrase(text, phrase string) bool {
	for start := 0; ; {
		idx := strings.Index(text[start:], phrase)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(phrase)
		if boundaryBefore(text, idx) && boundaryAfter(text, end) {
			return true
		}
		start = idx + 1
		if start >= len(text) {
			return false
		}
	}
}

func boundaryBefore(text string, idx int) bool {
	if idx == 0 {
		return true
	}
	r := lastRune(text[:idx])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r := firstRune(text[end:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		last = r
	}
	return last
}
