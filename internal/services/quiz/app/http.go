package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"slices"
	"strings"

	apperrors "github.com/louisbranch/workprint/internal/platform/errors"
	"github.com/louisbranch/workprint/internal/platform/i18n/catalog"
	"github.com/louisbranch/workprint/internal/platform/requestctx"
)

const maxChatBodyBytes = 64 * 1024

type chatRequest struct {
	Message  *string `json:"message"`
	ThreadID string  `json:"thread_id,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// newHandler builds the HTTP surface: banner, health, chat relay and the
// websocket endpoint, wrapped in CORS.
func newHandler(orch *orchestrator, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, orch.messages.Sprintf(requestLocale(r), "relay.banner"))
	})
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		handleChat(w, r, orch)
	})
	mux.Handle("/ws", newWSHandler(orch))
	return withCORS(withLocale(mux, orch.messages), allowedOrigins)
}

// langParam selects a locale explicitly, ahead of Accept-Language.
const langParam = "lang"

// withLocale negotiates the response locale once per request.
func withLocale(next http.Handler, messages *catalog.Bundle) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		preference := r.Header.Get("Accept-Language")
		if lang := strings.TrimSpace(r.URL.Query().Get(langParam)); lang != "" {
			preference = lang
		}
		locale := messages.Match(preference)
		next.ServeHTTP(w, r.WithContext(requestctx.WithLocale(r.Context(), locale)))
	})
}

func requestLocale(r *http.Request) string {
	if locale := requestctx.LocaleFromContext(r.Context()); locale != "" {
		return locale
	}
	return catalog.BaseLocale
}

func handleChat(w http.ResponseWriter, r *http.Request, orch *orchestrator) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	locale := requestLocale(r)

	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: orch.messages.Sprintf(locale, "errors.missing_message")})
		return
	}
	if req.Message == nil || strings.TrimSpace(*req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: orch.messages.Sprintf(locale, "errors.missing_message")})
		return
	}
	if !orch.backendConfigured() {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: orch.messages.Sprintf(locale, "errors.backend_not_configured")})
		return
	}

	result, err := orch.Turn(r.Context(), turnInput{
		SessionID:      req.ThreadID,
		Message:        *req.Message,
		Locale:         locale,
		RequireBackend: true,
	})
	if err != nil {
		log.Printf("quiz: chat turn failed thread=%q err=%v", result.SessionID, err)
		writeJSON(w, chatErrorStatus(err), chatError(orch, locale, err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func chatErrorStatus(err error) int {
	code := errorCode(err)
	if code == apperrors.CodeUnknown {
		return http.StatusBadGateway
	}
	return code.HTTPStatus()
}

func chatError(orch *orchestrator, locale string, err error) errorResponse {
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) && domainErr.Code == apperrors.CodeBackendRunFailed {
		return errorResponse{Error: orch.messages.Sprintf(locale, "errors.run_status", domainErr.Metadata["status"])}
	}
	return errorResponse{
		Error:  orch.messages.Sprintf(locale, "errors.backend_failed"),
		Detail: err.Error(),
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		log.Printf("quiz: write response err=%v", err)
	}
}

// withCORS answers preflight requests and stamps allowed origins onto every
// response. An empty allow-list or a "*" entry allows any origin.
func withCORS(next http.Handler, allowedOrigins []string) http.Handler {
	allowAll := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(allowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept-Language")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
