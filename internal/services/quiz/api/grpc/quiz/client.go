package quiz

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Block is the decoded NextBlock response.
type Block struct {
	SessionID string
	Kind      string
	Text      string
	Index     int
	Question  int
}

// ScoreResult is the decoded Score response.
type ScoreResult struct {
	Profile  string
	Scores   map[string]int
	Answered int
}

// Outcome is the decoded ledger entry of one completed session.
type Outcome struct {
	SessionID   string
	Profile     string
	Scores      map[string]int
	Answers     map[int]string
	CompletedAt time.Time
}

// Ledger is the decoded Ledger response.
type Ledger struct {
	Outcomes []Outcome
	Counts   map[string]int
}

// Client calls QuizService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// NextBlock advances a session and returns its next block.
func (c *Client) NextBlock(ctx context.Context, sessionID string, opts ...grpc.CallOption) (Block, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, nextBlockMethod, wrapperspb.String(sessionID), out, opts...); err != nil {
		return Block{}, err
	}
	fields := out.GetFields()
	return Block{
		SessionID: fields["session_id"].GetStringValue(),
		Kind:      fields["kind"].GetStringValue(),
		Text:      fields["text"].GetStringValue(),
		Index:     int(fields["index"].GetNumberValue()),
		Question:  int(fields["question"].GetNumberValue()),
	}, nil
}

// Score classifies a letter sequence.
func (c *Client) Score(ctx context.Context, letters string, opts ...grpc.CallOption) (ScoreResult, error) {
	in, err := structpb.NewStruct(map[string]any{"letters": letters})
	if err != nil {
		return ScoreResult{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, scoreMethod, in, out, opts...); err != nil {
		return ScoreResult{}, err
	}
	fields := out.GetFields()
	return ScoreResult{
		Profile:  fields["profile"].GetStringValue(),
		Scores:   numberMap(fields["scores"].GetStructValue()),
		Answered: int(fields["answered"].GetNumberValue()),
	}, nil
}

// Outcome fetches the recorded outcome of a completed session.
func (c *Client) Outcome(ctx context.Context, sessionID string, opts ...grpc.CallOption) (Outcome, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, outcomeMethod, wrapperspb.String(sessionID), out, opts...); err != nil {
		return Outcome{}, err
	}
	return decodeOutcome(out), nil
}

// Ledger lists up to limit recent outcomes; zero asks for the server default.
func (c *Client) Ledger(ctx context.Context, limit int, opts ...grpc.CallOption) (Ledger, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if limit > 0 {
		in.Fields["limit"] = structpb.NewNumberValue(float64(limit))
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ledgerMethod, in, out, opts...); err != nil {
		return Ledger{}, err
	}
	fields := out.GetFields()
	ledger := Ledger{Counts: numberMap(fields["counts"].GetStructValue())}
	for _, value := range fields["outcomes"].GetListValue().GetValues() {
		ledger.Outcomes = append(ledger.Outcomes, decodeOutcome(value.GetStructValue()))
	}
	return ledger, nil
}

func decodeOutcome(in *structpb.Struct) Outcome {
	fields := in.GetFields()
	answers := map[int]string{}
	for key, value := range fields["answers"].GetStructValue().GetFields() {
		question, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		answers[question] = value.GetStringValue()
	}
	completedAt, _ := time.Parse(time.RFC3339Nano, fields["completed_at"].GetStringValue())
	return Outcome{
		SessionID:   fields["session_id"].GetStringValue(),
		Profile:     fields["profile"].GetStringValue(),
		Scores:      numberMap(fields["scores"].GetStructValue()),
		Answers:     answers,
		CompletedAt: completedAt,
	}
}

func numberMap(in *structpb.Struct) map[string]int {
	out := map[string]int{}
	for key, value := range in.GetFields() {
		out[key] = int(value.GetNumberValue())
	}
	return out
}
