package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/workprint/internal/platform/errors"
	"github.com/louisbranch/workprint/internal/platform/i18n/catalog"
	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type wsTurnPayload struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type wsReplyPayload struct {
	SessionID  string         `json:"session_id"`
	OutputText string         `json:"output_text"`
	Step       string         `json:"step"`
	Question   int            `json:"question,omitempty"`
	Recorded   string         `json:"recorded,omitempty"`
	Profile    string         `json:"profile,omitempty"`
	Scores     map[string]int `json:"scores,omitempty"`
	Answered   int            `json:"answered,omitempty"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

func newWSHandler(orch *orchestrator) http.Handler {
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, orch)
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
}

func handleWSConn(conn *websocket.Conn, orch *orchestrator) {
	defer func() {
		_ = conn.Close()
	}()

	locale := catalog.BaseLocale
	if request := conn.Request(); request != nil {
		locale = requestLocale(request)
	}

	decoder := json.NewDecoder(conn)
	peer := newWSPeer(json.NewEncoder(conn))

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(peer, "", "INVALID_ARGUMENT", orch.messages.Sprintf(locale, "errors.invalid_frame"), false)
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large", false)
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(peer, frame.RequestID, "RESOURCE_EXHAUSTED", orch.messages.Sprintf(locale, "errors.rate_limited"), true)
			return
		}

		switch frame.Type {
		case "quiz.turn":
			handleTurnFrame(conn, peer, orch, locale, frame)
		default:
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", orch.messages.Sprintf(locale, "errors.unknown_frame"), false)
		}
	}
}

func handleTurnFrame(conn *websocket.Conn, peer *wsPeer, orch *orchestrator, locale string, frame wsFrame) {
	var payload wsTurnPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", orch.messages.Sprintf(locale, "errors.invalid_frame"), false)
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", orch.messages.Sprintf(locale, "errors.missing_message"), false)
		return
	}

	ctx := conn.Request().Context()
	result, err := orch.Turn(ctx, turnInput{
		SessionID: payload.SessionID,
		Message:   payload.Message,
		Locale:    locale,
	})
	if err != nil {
		log.Printf("quiz: websocket turn failed session=%q err=%v", result.SessionID, err)
		code := errorCode(err)
		retryable := code == apperrors.CodeBackendUnavailable || code == apperrors.CodeBackendTimeout
		_ = writeWSError(peer, frame.RequestID, string(code), chatError(orch, locale, err).Error, retryable)
		return
	}

	_ = peer.writeFrame(wsFrame{
		Type:      "quiz.reply",
		RequestID: frame.RequestID,
		Payload: mustJSON(wsReplyPayload{
			SessionID:  result.SessionID,
			OutputText: result.OutputText,
			Step:       result.Step,
			Question:   result.Question,
			Recorded:   result.Recorded,
			Profile:    result.Profile,
			Scores:     result.Scores,
			Answered:   result.Answered,
		}),
	})
}

func writeWSError(peer *wsPeer, requestID string, code string, message string, retryable bool) error {
	return peer.writeFrame(wsFrame{
		Type:      "quiz.error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      code,
				Message:   message,
				Retryable: retryable,
			},
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
