// Package progression decides which assessment block each session sees
// next. A session moves WELCOME, Q1..Q18, COMPLETE, one block per call, and
// stays COMPLETE once every block was delivered.
package progression

import (
	"github.com/louisbranch/workprint/internal/services/quiz/domain/answer"
	"github.com/louisbranch/workprint/internal/services/quiz/domain/script"
)

// Step is the result of advancing a session: a block to deliver, or
// completion.
type Step struct {
	Complete bool
	Block    script.Block
}

// Kind names the step for transports: "welcome", "question" or "complete".
func (s Step) Kind() string {
	if s.Complete {
		return "complete"
	}
	return string(s.Block.Kind)
}

// Turn is the outcome of Respond.
type Turn struct {
	Step Step
	// Recorded is set when the reply was stored as an answer.
	Recorded bool
	Question int
	Letter   string
	Answers  map[int]string
}

// Engine advances sessions through a catalog.
type Engine struct {
	catalog *script.Catalog
	store   Store
}

// NewEngine builds an engine over catalog and store.
func NewEngine(catalog *script.Catalog, store Store) *Engine {
	if catalog == nil {
		catalog = script.Default()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Engine{catalog: catalog, store: store}
}

// NextBlock returns the next block for the session and advances it. An
// unseen id starts a new session at the welcome block. It never fails.
func (e *Engine) NextBlock(sessionID string) Step {
	var step Step
	e.store.Update(sessionID, func(s *Session) {
		step = e.advance(s)
	})
	return step
}

// Respond records reply as the answer to the question the session is
// waiting on, when it names a letter, and then advances like NextBlock.
// Both happen under one lock so concurrent turns cannot interleave.
func (e *Engine) Respond(sessionID string, reply string) Turn {
	var turn Turn
	session := e.store.Update(sessionID, func(s *Session) {
		if question := pendingQuestion(s); question > 0 {
			if letter, ok := answer.Parse(reply); ok {
				s.Answers[question] = letter
				turn.Recorded = true
				turn.Question = question
				turn.Letter = letter
			}
		}
		turn.Step = e.advance(s)
	})
	turn.Answers = session.Answers
	return turn
}

// Snapshot returns a copy of the session state.
func (e *Engine) Snapshot(sessionID string) (Session, bool) {
	return e.store.Get(sessionID)
}

func (e *Engine) advance(s *Session) Step {
	if s.Pointer >= e.catalog.Len() {
		s.Completed = true
		return Step{Complete: true}
	}
	block, _ := e.catalog.Block(s.Pointer)
	s.Pointer++
	return Step{Block: block}
}

// pendingQuestion returns the question number most recently delivered, or
// zero when the session is not waiting on a question.
func pendingQuestion(s *Session) int {
	if s.Completed || s.Pointer < 2 || s.Pointer > script.BlockCount {
		return 0
	}
	return s.Pointer - 1
}
