package domain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/workprint/internal/platform/id"
	quizapi "github.com/louisbranch/workprint/internal/services/quiz/api/grpc/quiz"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// QuizClient is the subset of the quiz gRPC client the tools call.
type QuizClient interface {
	NextBlock(ctx context.Context, sessionID string, opts ...grpc.CallOption) (quizapi.Block, error)
	Score(ctx context.Context, letters string, opts ...grpc.CallOption) (quizapi.ScoreResult, error)
	Outcome(ctx context.Context, sessionID string, opts ...grpc.CallOption) (quizapi.Outcome, error)
	Ledger(ctx context.Context, limit int, opts ...grpc.CallOption) (quizapi.Ledger, error)
}

// NextBlockInput represents the MCP tool input for advancing a session.
type NextBlockInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"assessment session identifier (defaults to the current session, or starts a new one)"`
	Locale    string `json:"locale,omitempty" jsonschema:"preferred locale for error messages, e.g. pt-BR"`
}

// NextBlockResult represents the MCP tool output for advancing a session.
type NextBlockResult struct {
	SessionID string `json:"session_id" jsonschema:"assessment session identifier"`
	Kind      string `json:"kind" jsonschema:"welcome, question or complete"`
	Text      string `json:"text,omitempty" jsonschema:"block text to show the respondent verbatim"`
	Index     int    `json:"index" jsonschema:"block position in the script, 0 for welcome"`
	Question  int    `json:"question,omitempty" jsonschema:"question number for question blocks"`
}

// NextBlockTool defines the MCP tool schema for advancing a session.
func NextBlockTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "quiz_next_block",
		Description: "Returns the next block of the 18-question work-style assessment for a session and advances it. Blocks arrive as welcome, question 1..18, then complete.",
	}
}

// NextBlockHandler executes a next block request.
func NextBlockHandler(client QuizClient, session *SessionContext) mcp.ToolHandlerFor[NextBlockInput, NextBlockResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input NextBlockInput) (*mcp.CallToolResult, NextBlockResult, error) {
		sessionID := strings.TrimSpace(input.SessionID)
		if sessionID == "" {
			sessionID = session.Current()
		}
		if sessionID == "" {
			generated, err := id.NewSessionID()
			if err != nil {
				return nil, NextBlockResult{}, fmt.Errorf("generate session id: %w", err)
			}
			sessionID = generated
		}

		runCtx, cancel := context.WithTimeout(ctx, grpcCallTimeout)
		defer cancel()

		block, err := client.NextBlock(outgoingContext(runCtx, input.Locale), sessionID)
		if err != nil {
			return nil, NextBlockResult{}, fmt.Errorf("quiz next block failed: %s", statusMessage(err))
		}
		session.Set(sessionID)

		return nil, NextBlockResult{
			SessionID: sessionID,
			Kind:      block.Kind,
			Text:      block.Text,
			Index:     block.Index,
			Question:  block.Question,
		}, nil
	}
}

// ScoreInput represents the MCP tool input for scoring answers.
type ScoreInput struct {
	Letters string `json:"letters" jsonschema:"answer letters A-D in question order, e.g. ABDC or A B D C"`
	Locale  string `json:"locale,omitempty" jsonschema:"preferred locale for error messages, e.g. pt-BR"`
}

// ScoreResult represents the MCP tool output for scoring answers.
type ScoreResult struct {
	Profile  string         `json:"profile" jsonschema:"work-style profile name"`
	Scores   map[string]int `json:"scores" jsonschema:"accumulated points per trait"`
	Answered int            `json:"answered" jsonschema:"number of answers scored"`
}

// ScoreTool defines the MCP tool schema for scoring answers.
func ScoreTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "quiz_score",
		Description: "Scores up to 18 answer letters (the first letter answers question 1) and returns the work-style profile.",
	}
}

// ScoreHandler executes a score request.
func ScoreHandler(client QuizClient) mcp.ToolHandlerFor[ScoreInput, ScoreResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ScoreInput) (*mcp.CallToolResult, ScoreResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, grpcCallTimeout)
		defer cancel()

		result, err := client.Score(outgoingContext(runCtx, input.Locale), input.Letters)
		if err != nil {
			return nil, ScoreResult{}, fmt.Errorf("quiz score failed: %s", statusMessage(err))
		}
		scores := result.Scores
		if scores == nil {
			scores = map[string]int{}
		}
		return nil, ScoreResult{
			Profile:  result.Profile,
			Scores:   scores,
			Answered: result.Answered,
		}, nil
	}
}

// OutcomeInput represents the MCP tool input for reading a recorded outcome.
type OutcomeInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"completed session identifier (defaults to the current session)"`
	Locale    string `json:"locale,omitempty" jsonschema:"preferred locale for error messages, e.g. pt-BR"`
}

// OutcomeResult represents one recorded assessment outcome.
type OutcomeResult struct {
	SessionID   string            `json:"session_id" jsonschema:"assessment session identifier"`
	Profile     string            `json:"profile" jsonschema:"work-style profile name"`
	Scores      map[string]int    `json:"scores" jsonschema:"accumulated points per trait"`
	Answers     map[string]string `json:"answers" jsonschema:"recorded letter keyed by question number"`
	CompletedAt string            `json:"completed_at" jsonschema:"completion time in RFC 3339"`
}

// OutcomeTool defines the MCP tool schema for reading a recorded outcome.
func OutcomeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "quiz_outcome",
		Description: "Returns the recorded profile, trait scores and answers of a completed assessment session.",
	}
}

// OutcomeHandler executes an outcome lookup.
func OutcomeHandler(client QuizClient, session *SessionContext) mcp.ToolHandlerFor[OutcomeInput, OutcomeResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input OutcomeInput) (*mcp.CallToolResult, OutcomeResult, error) {
		sessionID := strings.TrimSpace(input.SessionID)
		if sessionID == "" {
			sessionID = session.Current()
		}
		if sessionID == "" {
			return nil, OutcomeResult{}, fmt.Errorf("session_id is required when no session is active")
		}

		runCtx, cancel := context.WithTimeout(ctx, grpcCallTimeout)
		defer cancel()

		outcome, err := client.Outcome(outgoingContext(runCtx, input.Locale), sessionID)
		if err != nil {
			return nil, OutcomeResult{}, fmt.Errorf("quiz outcome failed: %s", statusMessage(err))
		}
		return nil, outcomeResult(outcome), nil
	}
}

// LedgerInput represents the MCP tool input for summarizing the ledger.
type LedgerInput struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of recent outcomes to return"`
	Locale string `json:"locale,omitempty" jsonschema:"preferred locale for error messages, e.g. pt-BR"`
}

// LedgerResult represents recent outcomes and per-profile totals.
type LedgerResult struct {
	Outcomes []OutcomeResult `json:"outcomes" jsonschema:"most recent outcomes first"`
	Counts   map[string]int  `json:"counts" jsonschema:"completed assessments per profile"`
}

// LedgerTool defines the MCP tool schema for summarizing the ledger.
func LedgerTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "quiz_ledger",
		Description: "Lists recently completed assessments and how many landed on each work-style profile.",
	}
}

// LedgerHandler executes a ledger summary request.
func LedgerHandler(client QuizClient) mcp.ToolHandlerFor[LedgerInput, LedgerResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input LedgerInput) (*mcp.CallToolResult, LedgerResult, error) {
		if input.Limit < 0 {
			return nil, LedgerResult{}, fmt.Errorf("limit must not be negative")
		}
		runCtx, cancel := context.WithTimeout(ctx, grpcCallTimeout)
		defer cancel()

		ledger, err := client.Ledger(outgoingContext(runCtx, input.Locale), input.Limit)
		if err != nil {
			return nil, LedgerResult{}, fmt.Errorf("quiz ledger failed: %s", statusMessage(err))
		}
		result := LedgerResult{
			Outcomes: make([]OutcomeResult, 0, len(ledger.Outcomes)),
			Counts:   ledger.Counts,
		}
		if result.Counts == nil {
			result.Counts = map[string]int{}
		}
		for _, outcome := range ledger.Outcomes {
			result.Outcomes = append(result.Outcomes, outcomeResult(outcome))
		}
		return nil, result, nil
	}
}

func outcomeResult(outcome quizapi.Outcome) OutcomeResult {
	scores := outcome.Scores
	if scores == nil {
		scores = map[string]int{}
	}
	answers := make(map[string]string, len(outcome.Answers))
	for question, letter := range outcome.Answers {
		answers[strconv.Itoa(question)] = letter
	}
	completedAt := ""
	if !outcome.CompletedAt.IsZero() {
		completedAt = outcome.CompletedAt.UTC().Format(time.RFC3339)
	}
	return OutcomeResult{
		SessionID:   outcome.SessionID,
		Profile:     outcome.Profile,
		Scores:      scores,
		Answers:     answers,
		CompletedAt: completedAt,
	}
}

// statusMessage prefers the server's localized message over the raw status.
func statusMessage(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return err.Error()
	}
	for _, detail := range st.Details() {
		if localized, ok := detail.(*errdetails.LocalizedMessage); ok && strings.TrimSpace(localized.GetMessage()) != "" {
			return fmt.Sprintf("%s: %s", st.Code(), localized.GetMessage())
		}
	}
	return fmt.Sprintf("%s: %s", st.Code(), st.Message())
}
