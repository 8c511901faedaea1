// Package rpc implements the daemon's line-delimited JSON-RPC 2.0
// surface over stdio or a unix socket. Confirmation hand-offs run as
// reverse requests (elicitation/create) on the same connection,
// correlated by id, so an agent client can route them to a human.
package rpc

import (
	"encoding/json"
	"errors"

	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

const jsonrpcVersion = "2.0"

// message is one line on the wire, either direction. A non-empty
// Method marks a request; otherwise it is a response.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

func (m *message) isRequest() bool { return m.Method != "" }

// Standard JSON-RPC error codes, plus an application range where the
// code encodes the taxonomy exit code as -32000-exit.
const (
	codeParse          = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeAppBase        = -32000
)

type wireError struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *errorData `json:"data,omitempty"`
}

// errorData carries the structured taxonomy alongside the numeric
// JSON-RPC code so clients can switch on stable string codes.
type errorData struct {
	Code       string            `json:"code"`
	Suggestion string            `json:"suggestion,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

func toWireError(err error) *wireError {
	var he *halerr.HalyardError
	if errors.As(err, &he) {
		return &wireError{
			Code:    codeAppBase - he.ExitCode,
			Message: err.Error(),
			Data: &errorData{
				Code:       he.Code,
				Suggestion: he.Suggestion,
				Details:    he.Details,
			},
		}
	}
	return &wireError{Code: codeInternal, Message: err.Error()}
}
