// Package id generates URL-safe identifiers for locally created sessions.
//
// Identifiers are UUIDv4 bytes encoded as lowercase base32 (RFC 4648) with no
// padding, so they are 26 characters long and safe in URLs and log fields.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID generates a new identifier.
func NewID() (string, error) {
	raw, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(raw[:])), nil
}

// NewSessionID generates a session identifier with the "ws_" prefix used
// for sessions that did not arrive with a backend thread id.
func NewSessionID() (string, error) {
	value, err := NewID()
	if err != nil {
		return "", err
	}
	return "ws_" + value, nil
}
