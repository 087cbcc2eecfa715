// Package quiz cleans generated quiz JSON and scores submissions.
package quiz

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"studyhub/portal/internal/domain"
)

// rawQuestion accepts any JSON shape so that malformed entries can be dropped
// individually instead of failing the whole document.
type rawQuestion struct {
	Question any `json:"question"`
	Options  any `json:"options"`
	Answer   any `json:"answer"`
}

type rawQuiz struct {
	Quiz json.RawMessage `json:"quiz"`
}

// Sanitize extracts valid questions from generated text shaped like
// {"quiz":[...]}, possibly wrapped in code fences or prose. It never fails:
// unparseable input yields an empty list.
func Sanitize(raw string) []domain.QuizQuestion {
	text := stripFences(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return []domain.QuizQuestion{}
	}

	var doc rawQuiz
	if err := json.Unmarshal([]byte(text[start:end+1]), &doc); err != nil || len(doc.Quiz) == 0 {
		return []domain.QuizQuestion{}
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(doc.Quiz, &entries); err != nil {
		return []domain.QuizQuestion{}
	}

	out := make([]domain.QuizQuestion, 0, len(entries))
	for _, entry := range entries {
		var q rawQuestion
		if err := json.Unmarshal(entry, &q); err != nil {
			continue
		}
		if valid, ok := toQuestion(q); ok {
			out = append(out, valid)
		}
	}
	return out
}

// SanitizeParts sanitizes each generated part on its own and concatenates the
// survivors in part order.
func SanitizeParts(parts []string) []domain.QuizQuestion {
	out := []domain.QuizQuestion{}
	for _, p := range parts {
		out = append(out, Sanitize(p)...)
	}
	return out
}

func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func toQuestion(q rawQuestion) (domain.QuizQuestion, bool) {
	question, ok := q.Question.(string)
	if !ok || strings.TrimSpace(question) == "" {
		return domain.QuizQuestion{}, false
	}
	answer, ok := q.Answer.(string)
	if !ok || strings.TrimSpace(answer) == "" {
		return domain.QuizQuestion{}, false
	}
	list, ok := q.Options.([]any)
	if !ok || len(list) < 2 {
		return domain.QuizQuestion{}, false
	}
	options := make([]string, 0, len(list))
	for _, o := range list {
		s, ok := o.(string)
		if !ok {
			return domain.QuizQuestion{}, false
		}
		options = append(options, s)
	}
	return domain.QuizQuestion{Question: question, Options: options, Answer: answer}, true
}

// ParseStrict decodes an administrator-supplied quiz array. Unlike Sanitize,
// any invalid entry rejects the whole input.
func ParseStrict(data string) ([]domain.QuizQuestion, error) {
	var entries []rawQuestion
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, fmt.Errorf("quiz must be a JSON array: %w", err)
	}
	out := make([]domain.QuizQuestion, 0, len(entries))
	for i, entry := range entries {
		q, ok := toQuestion(entry)
		if !ok {
			return nil, fmt.Errorf("quiz entry %d needs a question, at least 2 string options and an answer", i)
		}
		out = append(out, q)
	}
	return out, nil
}

// Score counts answers equal to the question's answer. Answers are keyed by
// question index as a string; missing keys score nothing.
func Score(questions []domain.QuizQuestion, answers map[string]string) (score, total int) {
	for i, q := range questions {
		if given, ok := answers[strconv.Itoa(i)]; ok && given == q.Answer {
			score++
		}
	}
	return score, len(questions)
}
