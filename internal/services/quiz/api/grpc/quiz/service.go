package quiz

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/workprint/internal/platform/errors"
	"github.com/louisbranch/workprint/internal/platform/i18n/catalog"
	"github.com/louisbranch/workprint/internal/services/quiz/domain/progression"
	"github.com/louisbranch/workprint/internal/services/quiz/domain/scoring"
	"github.com/louisbranch/workprint/internal/services/quiz/storage"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Service implements QuizServer over the progression and scoring engines and
// the optional outcome ledger.
type Service struct {
	progression *progression.Engine
	scoring     *scoring.Engine
	outcomes    storage.OutcomeStore
	messages    *catalog.Bundle
}

// NewService creates a quiz service. outcomes may be nil, in which case the
// ledger methods report LEDGER_UNAVAILABLE.
func NewService(progressionEngine *progression.Engine, scoringEngine *scoring.Engine, outcomes storage.OutcomeStore) *Service {
	return &Service{
		progression: progressionEngine,
		scoring:     scoringEngine,
		outcomes:    outcomes,
		messages:    catalog.Default(),
	}
}

// NextBlock returns the next block for a session and advances it.
func (s *Service) NextBlock(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "next block request is required")
	}
	if s == nil || s.progression == nil {
		return nil, status.Error(codes.Internal, "progression engine is not configured")
	}
	sessionID := strings.TrimSpace(in.GetValue())
	if sessionID == "" {
		return nil, s.statusError(ctx, apperrors.New(apperrors.CodeSessionIDRequired, "session id is required"))
	}

	step := s.progression.NextBlock(sessionID)
	fields := map[string]any{
		"session_id": sessionID,
		"kind":       step.Kind(),
	}
	if !step.Complete {
		fields["text"] = step.Block.Text
		fields["index"] = step.Block.Index
		if step.Block.Number > 0 {
			fields["question"] = step.Block.Number
		}
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode next block: %v", err)
	}
	return out, nil
}

// Score classifies up to eighteen answer letters.
func (s *Service) Score(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "score request is required")
	}
	if s == nil || s.scoring == nil {
		return nil, status.Error(codes.Internal, "scoring engine is not configured")
	}
	value, ok := in.GetFields()["letters"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "letters is required")
	}
	letters, ok := value.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "letters must be a string")
	}

	result, err := s.scoring.ScoreLetters(letters.StringValue)
	if err != nil {
		return nil, s.statusError(ctx, err)
	}
	out, err := structpb.NewStruct(ResultFields(result))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode score: %v", err)
	}
	return out, nil
}

// Outcome returns the ledger entry recorded when a session completed.
func (s *Service) Outcome(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "outcome request is required")
	}
	if s == nil {
		return nil, status.Error(codes.Internal, "quiz service is not configured")
	}
	sessionID := strings.TrimSpace(in.GetValue())
	if sessionID == "" {
		return nil, s.statusError(ctx, apperrors.New(apperrors.CodeSessionIDRequired, "session id is required"))
	}
	if s.outcomes == nil {
		return nil, s.statusError(ctx, apperrors.New(apperrors.CodeLedgerUnavailable, "outcome ledger is not configured"))
	}

	outcome, err := s.outcomes.GetOutcome(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, s.statusError(ctx, apperrors.WithMetadata(apperrors.CodeNotFound,
			"no outcome recorded", map[string]string{"session_id": sessionID}))
	}
	if err != nil {
		return nil, s.statusError(ctx, err)
	}
	out, err := structpb.NewStruct(outcomeFields(outcome))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode outcome: %v", err)
	}
	return out, nil
}

// Ledger lists the most recent outcomes together with how many completed
// assessments landed on each profile.
func (s *Service) Ledger(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "ledger request is required")
	}
	limit := 0
	if value, ok := in.GetFields()["limit"]; ok {
		number, ok := value.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, status.Error(codes.InvalidArgument, "limit must be a number")
		}
		limit = int(number.NumberValue)
	}
	if s == nil {
		return nil, status.Error(codes.Internal, "quiz service is not configured")
	}
	if s.outcomes == nil {
		return nil, s.statusError(ctx, apperrors.New(apperrors.CodeLedgerUnavailable, "outcome ledger is not configured"))
	}

	recent, err := s.outcomes.ListOutcomes(ctx, limit)
	if err != nil {
		return nil, s.statusError(ctx, err)
	}
	counts, err := s.outcomes.CountByProfile(ctx)
	if err != nil {
		return nil, s.statusError(ctx, err)
	}

	outcomes := make([]any, 0, len(recent))
	for _, outcome := range recent {
		outcomes = append(outcomes, outcomeFields(outcome))
	}
	totals := make(map[string]any, len(counts))
	for profile, count := range counts {
		totals[profile] = count
	}
	out, err := structpb.NewStruct(map[string]any{
		"outcomes": outcomes,
		"counts":   totals,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode ledger: %v", err)
	}
	return out, nil
}

func outcomeFields(outcome storage.Outcome) map[string]any {
	scores := make(map[string]any, len(outcome.Scores))
	for trait, value := range outcome.Scores {
		scores[trait] = value
	}
	answers := make(map[string]any, len(outcome.Answers))
	for question, letter := range outcome.Answers {
		answers[strconv.Itoa(question)] = letter
	}
	return map[string]any{
		"session_id":   outcome.SessionID,
		"profile":      outcome.Profile,
		"scores":       scores,
		"answers":      answers,
		"completed_at": outcome.CompletedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ResultFields renders a scoring result as plain values.
func ResultFields(result scoring.Result) map[string]any {
	scores := make(map[string]any, len(result.Scores))
	for trait, value := range result.Scores {
		scores[string(trait)] = value
	}
	return map[string]any{
		"profile":  result.Profile,
		"scores":   scores,
		"answered": result.Answered,
	}
}

// statusError maps domain errors to a gRPC status localized from the
// caller's accept-language metadata.
func (s *Service) statusError(ctx context.Context, err error) error {
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		log.Printf("quiz: unexpected error err=%v", err)
		return status.Error(codes.Internal, "internal error")
	}
	locale := catalog.BaseLocale
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("accept-language"); len(values) > 0 {
			locale = s.messages.Match(values[0])
		}
	}
	userMessage := domainErr.Message
	if key := messageKey(domainErr.Code); key != "" {
		userMessage = s.messages.Sprintf(locale, key)
	}
	return domainErr.ToGRPCStatus(locale, userMessage)
}

func messageKey(code apperrors.Code) string {
	switch code {
	case apperrors.CodeInvalidQuestionIndex:
		return "errors.invalid_question_index"
	case apperrors.CodeInvalidAnswerLetter:
		return "errors.invalid_answer_letter"
	case apperrors.CodeDuplicateAnswer:
		return "errors.duplicate_answer"
	case apperrors.CodeSessionIDRequired:
		return "errors.session_id_required"
	case apperrors.CodeNotFound:
		return "errors.outcome_not_found"
	case apperrors.CodeLedgerUnavailable:
		return "errors.ledger_unavailable"
	}
	return ""
}

var _ QuizServer = (*Service)(nil)
