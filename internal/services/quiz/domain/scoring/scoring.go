// Package scoring accumulates trait counters from answer choices and
// classifies them into a work-style profile.
package scoring

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	apperrors "github.com/louisbranch/workprint/internal/platform/errors"
	"github.com/louisbranch/workprint/internal/services/quiz/domain/script"
)

// Counters maps each trait to its accumulated total.
type Counters map[Trait]int

// Clone returns an independent copy of the counters.
func (c Counters) Clone() Counters {
	out := make(Counters, len(c))
	for trait, value := range c {
		out[trait] = value
	}
	return out
}

// Choice is one answered question.
type Choice struct {
	Question int
	Letter   string
}

// Result is the outcome of scoring a batch of choices.
type Result struct {
	Scores   Counters
	Profile  string
	Answered int
}

// Engine scores answers against one Config. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	cfg  Config
	rank map[string]int
}

// NewEngine returns an engine for an already validated config.
func NewEngine(cfg Config) *Engine {
	rank := make(map[string]int, len(cfg.TieBreak))
	for i, name := range cfg.TieBreak {
		rank[name] = i
	}
	return &Engine{cfg: cfg, rank: rank}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// InitCounters returns counters with every declared trait at zero.
func (e *Engine) InitCounters() Counters {
	counters := make(Counters, len(e.cfg.Traits))
	for _, trait := range e.cfg.Traits {
		counters[trait] = 0
	}
	return counters
}

// ApplyChoice adds the increments for (question, letter) to counters in
// place. Invalid input is rejected before anything is written.
func (e *Engine) ApplyChoice(counters Counters, question int, letter string) error {
	if question < 1 || question > script.QuestionCount {
		return apperrors.WithMetadata(apperrors.CodeInvalidQuestionIndex,
			fmt.Sprintf("question %d is outside 1..%d", question, script.QuestionCount),
			map[string]string{"question": fmt.Sprint(question)})
	}
	increments, ok := e.cfg.Matrix[question][letter]
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeInvalidAnswerLetter,
			fmt.Sprintf("answer %q is not one of A, B, C, D", letter),
			map[string]string{"question": fmt.Sprint(question), "letter": letter})
	}
	if counters == nil {
		return apperrors.New(apperrors.CodeScoringInvalid, "counters are required")
	}
	for trait, weight := range increments {
		counters[trait] += weight
	}
	return nil
}

// Classify returns the profile with the highest weighted aggregate. Ties go
// to the profile listed first in the tie-break order, and counters whose
// aggregates are all zero yield the default profile.
func (e *Engine) Classify(counters Counters) string {
	best := ""
	bestScore := 0
	for _, profile := range e.cfg.Profiles {
		score := 0
		for trait, weight := range profile.Weights {
			score += weight * counters[trait]
		}
		if score <= 0 {
			continue
		}
		if best == "" || score > bestScore || (score == bestScore && e.rank[profile.Name] < e.rank[best]) {
			best = profile.Name
			bestScore = score
		}
	}
	if best == "" {
		return e.cfg.DefaultProfile
	}
	return best
}

// ScoreChoices applies every choice to fresh counters and classifies them.
// A question may be answered at most once.
func (e *Engine) ScoreChoices(choices []Choice) (Result, error) {
	counters := e.InitCounters()
	seen := make(map[int]bool, len(choices))
	for _, choice := range choices {
		if seen[choice.Question] {
			return Result{}, apperrors.WithMetadata(apperrors.CodeDuplicateAnswer,
				fmt.Sprintf("question %d answered more than once", choice.Question),
				map[string]string{"question": fmt.Sprint(choice.Question)})
		}
		if err := e.ApplyChoice(counters, choice.Question, choice.Letter); err != nil {
			return Result{}, err
		}
		seen[choice.Question] = true
	}
	return Result{Scores: counters, Profile: e.Classify(counters), Answered: len(choices)}, nil
}

// ScoreLetters scores a sequence of up to eighteen answer letters, the i-th
// letter answering question i. Case, whitespace and punctuation are ignored,
// so "A, d, B" and "adb" score the same.
func (e *Engine) ScoreLetters(letters string) (Result, error) {
	choices, err := ParseLetters(letters)
	if err != nil {
		return Result{}, err
	}
	return e.ScoreChoices(choices)
}

// ParseLetters converts a letter sequence into ordered choices.
func ParseLetters(letters string) ([]Choice, error) {
	var choices []Choice
	for _, r := range letters {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		letter := strings.ToUpper(string(r))
		question := len(choices) + 1
		if !isLetter(letter) {
			return nil, apperrors.WithMetadata(apperrors.CodeInvalidAnswerLetter,
				fmt.Sprintf("answer %q for question %d is not one of A, B, C, D", string(r), question),
				map[string]string{"question": fmt.Sprint(question), "letter": string(r)})
		}
		if question > script.QuestionCount {
			return nil, apperrors.WithMetadata(apperrors.CodeInvalidQuestionIndex,
				fmt.Sprintf("more than %d answers supplied", script.QuestionCount),
				map[string]string{"question": fmt.Sprint(question)})
		}
		choices = append(choices, Choice{Question: question, Letter: letter})
	}
	return choices, nil
}

// ChoicesFromAnswers orders a question-to-letter map into choices.
func ChoicesFromAnswers(answers map[int]string) []Choice {
	questions := make([]int, 0, len(answers))
	for question := range answers {
		questions = append(questions, question)
	}
	sort.Ints(questions)
	choices := make([]Choice, 0, len(questions))
	for _, question := range questions {
		choices = append(choices, Choice{Question: question, Letter: answers[question]})
	}
	return choices
}

func isLetter(letter string) bool {
	for _, valid := range Letters {
		if letter == valid {
			return true
		}
	}
	return false
}
