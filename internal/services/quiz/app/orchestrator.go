package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	apperrors "github.com/louisbranch/workprint/internal/platform/errors"
	"github.com/louisbranch/workprint/internal/platform/i18n/catalog"
	"github.com/louisbranch/workprint/internal/platform/id"
	"github.com/louisbranch/workprint/internal/services/quiz/domain/progression"
	"github.com/louisbranch/workprint/internal/services/quiz/domain/scoring"
	"github.com/louisbranch/workprint/internal/services/quiz/domain/script"
	"github.com/louisbranch/workprint/internal/services/quiz/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/louisbranch/workprint/internal/services/quiz/app")

var errBackendNotConfigured = errors.New("conversational backend is not configured")

// Backend is the conversational assistant that delivers text to the
// respondent.
type Backend interface {
	Configured() bool
	CreateThread(ctx context.Context) (string, error)
	Reply(ctx context.Context, threadID string, message string, instructions string) (string, error)
}

// turnInput is one inbound chat turn.
type turnInput struct {
	SessionID string
	Message   string
	Locale    string
	// RequireBackend rejects the turn when no backend is configured instead
	// of answering with the block text directly.
	RequireBackend bool
}

// turnResult is what the transports send back.
type turnResult struct {
	SessionID  string         `json:"thread_id"`
	OutputText string         `json:"output_text"`
	Step       string         `json:"step"`
	Question   int            `json:"question,omitempty"`
	Recorded   string         `json:"recorded,omitempty"`
	Profile    string         `json:"profile,omitempty"`
	Scores     map[string]int `json:"scores,omitempty"`
	Answered   int            `json:"answered,omitempty"`
}

// orchestrator turns chat messages into progression steps, relays blocks
// through the backend and scores completed sessions.
type orchestrator struct {
	progression *progression.Engine
	scoring     *scoring.Engine
	backend     Backend
	outcomes    storage.OutcomeStore
	messages    *catalog.Bundle
	clock       func() time.Time
}

func newOrchestrator(progressionEngine *progression.Engine, scoringEngine *scoring.Engine, backend Backend, outcomes storage.OutcomeStore) *orchestrator {
	return &orchestrator{
		progression: progressionEngine,
		scoring:     scoringEngine,
		backend:     backend,
		outcomes:    outcomes,
		messages:    catalog.Default(),
		clock:       time.Now,
	}
}

func (o *orchestrator) backendConfigured() bool {
	return o.backend != nil && o.backend.Configured()
}

// Turn processes one message. The progression step is committed before the
// backend is called, so backend failures never roll a session back.
func (o *orchestrator) Turn(ctx context.Context, in turnInput) (turnResult, error) {
	ctx, span := tracer.Start(ctx, "quiz.Turn")
	defer span.End()

	result, err := o.turn(ctx, in)
	span.SetAttributes(
		attribute.String("quiz.session_id", result.SessionID),
		attribute.String("quiz.step", result.Step),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
	}
	return result, err
}

func (o *orchestrator) turn(ctx context.Context, in turnInput) (turnResult, error) {
	useBackend := o.backendConfigured()
	if in.RequireBackend && !useBackend {
		return turnResult{}, errBackendNotConfigured
	}
	locale := in.Locale
	if locale == "" {
		locale = catalog.BaseLocale
	}

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		var err error
		if useBackend {
			sessionID, err = o.backend.CreateThread(ctx)
		} else {
			sessionID, err = id.NewSessionID()
		}
		if err != nil {
			return turnResult{}, fmt.Errorf("create session: %w", err)
		}
	}

	turn := o.progression.Respond(sessionID, in.Message)
	result := turnResult{SessionID: sessionID, Step: turn.Step.Kind()}
	if turn.Recorded {
		result.Recorded = turn.Letter
	}

	var instructions, fallback string
	if turn.Step.Complete {
		scored, err := o.scoring.ScoreChoices(scoring.ChoicesFromAnswers(turn.Answers))
		if err != nil {
			return result, fmt.Errorf("score session %s: %w", sessionID, err)
		}
		result.Profile = scored.Profile
		result.Answered = scored.Answered
		result.Scores = make(map[string]int, len(scored.Scores))
		for trait, value := range scored.Scores {
			result.Scores[string(trait)] = value
		}
		o.recordOutcome(ctx, sessionID, result, turn.Answers)

		if scored.Answered < script.QuestionCount {
			fallback = o.messages.Sprintf(locale, "relay.complete_partial", scored.Answered, scored.Profile)
		} else {
			fallback = o.messages.Sprintf(locale, "relay.complete", scored.Profile)
		}
		instructions = o.messages.Sprintf(locale, "relay.deliver_profile", scored.Profile)
	} else {
		result.Question = turn.Step.Block.Number
		fallback = turn.Step.Block.Text
		instructions = o.messages.Sprintf(locale, "relay.deliver_block", turn.Step.Block.Text)
	}

	if !useBackend {
		result.OutputText = fallback
		return result, nil
	}
	text, err := o.backend.Reply(ctx, sessionID, in.Message, instructions)
	if err != nil {
		return result, err
	}
	if strings.TrimSpace(text) == "" {
		text = o.messages.Sprintf(locale, "relay.no_response")
	}
	result.OutputText = text
	return result, nil
}

func (o *orchestrator) recordOutcome(ctx context.Context, sessionID string, result turnResult, answers map[int]string) {
	if o.outcomes == nil {
		return
	}
	err := o.outcomes.RecordOutcome(ctx, storage.Outcome{
		SessionID:   sessionID,
		Profile:     result.Profile,
		Scores:      result.Scores,
		Answers:     answers,
		CompletedAt: o.clock(),
	})
	if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
		log.Printf("quiz: record outcome session=%q err=%v", sessionID, err)
	}
}

// errorCode maps turn errors onto domain codes.
func errorCode(err error) apperrors.Code {
	if errors.Is(err, errBackendNotConfigured) {
		return apperrors.CodeBackendUnavailable
	}
	return apperrors.CodeOf(err)
}
