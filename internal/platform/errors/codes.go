// Package errors provides structured domain errors with machine-readable codes.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Scoring input errors
	CodeInvalidQuestionIndex Code = "INVALID_QUESTION_INDEX"
	CodeInvalidAnswerLetter  Code = "INVALID_ANSWER_LETTER"
	CodeDuplicateAnswer      Code = "DUPLICATE_ANSWER"

	// Session errors
	CodeSessionRaceConflict Code = "SESSION_RACE_CONFLICT"
	CodeSessionIDRequired   Code = "SESSION_ID_REQUIRED"

	// Configuration errors
	CodeScriptInvalid  Code = "SCRIPT_INVALID"
	CodeScoringInvalid Code = "SCORING_INVALID"

	// Outcome ledger errors
	CodeNotFound          Code = "NOT_FOUND"
	CodeLedgerUnavailable Code = "LEDGER_UNAVAILABLE"

	// Conversational backend errors
	CodeBackendUnavailable Code = "BACKEND_UNAVAILABLE"
	CodeBackendTimeout     Code = "BACKEND_TIMEOUT"
	CodeBackendRunFailed   Code = "BACKEND_RUN_FAILED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidQuestionIndex,
		CodeInvalidAnswerLetter,
		CodeDuplicateAnswer,
		CodeSessionIDRequired:
		return codes.InvalidArgument

	// Aborted - concurrent update lost the race
	case CodeSessionRaceConflict:
		return codes.Aborted

	case CodeNotFound:
		return codes.NotFound

	// FailedPrecondition - the server runs without a ledger
	case CodeLedgerUnavailable:
		return codes.FailedPrecondition

	case CodeBackendUnavailable, CodeBackendRunFailed:
		return codes.Unavailable

	case CodeBackendTimeout:
		return codes.DeadlineExceeded

	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes for the chat relay.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidQuestionIndex,
		CodeInvalidAnswerLetter,
		CodeDuplicateAnswer,
		CodeSessionIDRequired:
		return http.StatusBadRequest
	case CodeSessionRaceConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeLedgerUnavailable:
		return http.StatusServiceUnavailable
	case CodeBackendUnavailable,
		CodeBackendRunFailed,
		CodeBackendTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
