package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/workprint/internal/platform/errors"
)

// fakeAPI is a minimal in-memory Assistants API.
type fakeAPI struct {
	mu          sync.Mutex
	t           *testing.T
	statuses    []string
	polls       int
	messages    []string
	runBodies   []map[string]any
	replyJSON   string
	failThreads bool
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, r *http.Request) {
		if f.failThreads {
			http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"id":"thread_abc","object":"thread"}`))
	})
	mux.HandleFunc("POST /threads/{thread}/messages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decode message: %v", err)
		}
		if body.Role != "user" {
			f.t.Errorf("role = %q, want user", body.Role)
		}
		f.mu.Lock()
		f.messages = append(f.messages, body.Content)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"msg_1"}`))
	})
	mux.HandleFunc("POST /threads/{thread}/runs", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.runBodies = append(f.runBodies, body)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"run_1","status":"queued"}`))
	})
	mux.HandleFunc("GET /threads/{thread}/runs/{run}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.statuses[len(f.statuses)-1]
		if f.polls < len(f.statuses) {
			status = f.statuses[f.polls]
		}
		f.polls++
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"run_1","status":"` + status + `"}`))
	})
	mux.HandleFunc("GET /threads/{thread}/messages", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "1" {
			f.t.Errorf("limit = %q, want 1", got)
		}
		_, _ = w.Write([]byte(f.replyJSON))
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			f.t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("OpenAI-Beta"); got != "assistants=v2" {
			f.t.Errorf("OpenAI-Beta = %q", got)
		}
		mux.ServeHTTP(w, r)
	})
}

func (f *fakeAPI) snapshot() (int, []string, []map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls, append([]string(nil), f.messages...), append([]map[string]any(nil), f.runBodies...)
}

func newTestClient(t *testing.T, api *fakeAPI, runTimeout time.Duration) *Client {
	t.Helper()
	api.t = t
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)
	return NewClient(Config{
		APIKey:          "sk-test",
		AssistantID:     "asst_1",
		BaseURL:         server.URL + "/",
		HTTPClient:      server.Client(),
		RunTimeout:      runTimeout,
		PollInterval:    time.Millisecond,
		MaxPollInterval: 5 * time.Millisecond,
	})
}

const textReply = `{"data":[{"content":[{"type":"image_file"},{"type":"text","text":{"value":"Question 1 of 18."}}]}]}`

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{})
	if client.cfg.BaseURL != DefaultBaseURL {
		t.Fatalf("base url = %q", client.cfg.BaseURL)
	}
	if client.cfg.RunTimeout != 120*time.Second {
		t.Fatalf("run timeout = %v", client.cfg.RunTimeout)
	}
	if client.cfg.PollInterval != 800*time.Millisecond {
		t.Fatalf("poll interval = %v", client.cfg.PollInterval)
	}
	if client.Configured() {
		t.Fatal("client without credentials should not be configured")
	}
	if !NewClient(Config{APIKey: "k", AssistantID: "a"}).Configured() {
		t.Fatal("expected configured client")
	}
}

func TestCreateThread(t *testing.T) {
	client := newTestClient(t, &fakeAPI{statuses: []string{"completed"}}, time.Second)
	threadID, err := client.CreateThread(context.Background())
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if threadID != "thread_abc" {
		t.Fatalf("thread id = %q", threadID)
	}
}

func TestCreateThreadReportsStatusAndBody(t *testing.T) {
	client := newTestClient(t, &fakeAPI{failThreads: true}, time.Second)
	_, err := client.CreateThread(context.Background())
	if got := apperrors.CodeOf(err); got != apperrors.CodeBackendUnavailable {
		t.Fatalf("code = %s, want %s", got, apperrors.CodeBackendUnavailable)
	}
	if !strings.Contains(err.Error(), "OpenAI 500") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error = %q", err.Error())
	}
}

func TestReplyPollsUntilCompleted(t *testing.T) {
	api := &fakeAPI{
		statuses:  []string{"in_progress", "in_progress", "completed"},
		replyJSON: textReply,
	}
	client := newTestClient(t, api, time.Second)

	text, err := client.Reply(context.Background(), "thread_abc", "B", "Deliver verbatim")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if text != "Question 1 of 18." {
		t.Fatalf("text = %q", text)
	}
	polls, messages, runBodies := api.snapshot()
	if polls != 3 {
		t.Fatalf("polls = %d, want 3", polls)
	}
	if len(messages) != 1 || messages[0] != "B" {
		t.Fatalf("messages = %v", messages)
	}
	if got := runBodies[0]["assistant_id"]; got != "asst_1" {
		t.Fatalf("assistant_id = %v", got)
	}
	if got := runBodies[0]["additional_instructions"]; got != "Deliver verbatim" {
		t.Fatalf("additional_instructions = %v", got)
	}
}

func TestReplyWithoutTextReturnsEmpty(t *testing.T) {
	api := &fakeAPI{statuses: []string{"completed"}, replyJSON: `{"data":[]}`}
	client := newTestClient(t, api, time.Second)
	text, err := client.Reply(context.Background(), "thread_abc", "hi", "")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if text != "" {
		t.Fatalf("text = %q, want empty", text)
	}
	_, _, runBodies := api.snapshot()
	if _, ok := runBodies[0]["additional_instructions"]; ok {
		t.Fatal("blank instructions should be omitted")
	}
}

func TestReplyRunFailed(t *testing.T) {
	api := &fakeAPI{statuses: []string{"failed"}, replyJSON: textReply}
	client := newTestClient(t, api, time.Second)
	_, err := client.Reply(context.Background(), "thread_abc", "hi", "")
	if got := apperrors.CodeOf(err); got != apperrors.CodeBackendRunFailed {
		t.Fatalf("code = %s, want %s", got, apperrors.CodeBackendRunFailed)
	}
	if err.Error() != "Run ended with status: failed" {
		t.Fatalf("error = %q", err.Error())
	}
}

func TestWaitRunStopsAtBudget(t *testing.T) {
	api := &fakeAPI{statuses: []string{"in_progress"}}
	client := newTestClient(t, api, 50*time.Millisecond)

	started := time.Now()
	_, err := client.WaitRun(context.Background(), "thread_abc", Run{ID: "run_1", Status: "queued"})
	if got := apperrors.CodeOf(err); got != apperrors.CodeBackendTimeout {
		t.Fatalf("code = %s, want %s (err=%v)", got, apperrors.CodeBackendTimeout, err)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("polling ran for %v past its budget", elapsed)
	}
}

func TestWaitRunReturnsTerminalRunImmediately(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	run, err := client.WaitRun(context.Background(), "t", Run{ID: "r", Status: StatusCancelled})
	if err != nil {
		t.Fatalf("WaitRun: %v", err)
	}
	if run.Status != StatusCancelled {
		t.Fatalf("status = %q", run.Status)
	}
}

func TestReplyRequiresConfiguration(t *testing.T) {
	_, err := NewClient(Config{}).Reply(context.Background(), "t", "hi", "")
	if got := apperrors.CodeOf(err); got != apperrors.CodeBackendUnavailable {
		t.Fatalf("code = %s, want %s", got, apperrors.CodeBackendUnavailable)
	}
}
