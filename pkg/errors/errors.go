// Package errors provides structured error handling for Halyard.
// It defines sentinel errors, exit codes, and helpers for adding
// context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes used by the CLI.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input
	ExitAuth       = 3 // Authentication failed
	ExitNotFound   = 4 // Resource not found
	ExitPermission = 5 // Permission denied or policy refusal
	ExitBusy       = 6 // Keystore held by another process; retry after backoff
)

// HalyardError is the structured error type for Halyard. Every error
// surfaced to a client carries a stable machine-readable Code alongside
// the human-readable Message. Secrets must never appear in any field.
type HalyardError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *HalyardError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *HalyardError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for HalyardError.
func (e *HalyardError) Is(target error) bool {
	var t *HalyardError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &HalyardError{
		Code:     "general_error",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidRequest = &HalyardError{
		Code:     "invalid_request",
		Message:  "invalid request",
		ExitCode: ExitInput,
	}

	// Keystore errors.
	ErrWalletNotFound = &HalyardError{
		Code:     "wallet_not_found",
		Message:  "wallet not found",
		ExitCode: ExitNotFound,
	}

	ErrWalletExists = &HalyardError{
		Code:     "wallet_exists",
		Message:  "wallet already exists",
		ExitCode: ExitInput,
	}

	ErrInvalidKeyMaterial = &HalyardError{
		Code:     "invalid_key_material",
		Message:  "secret material does not decode to a recognized key type",
		ExitCode: ExitInput,
	}

	ErrAuthenticationFailed = &HalyardError{
		Code:     "authentication_failed",
		Message:  "authentication failed - wrong passphrase or tampered ciphertext",
		ExitCode: ExitAuth,
	}

	ErrInsufficientShares = &HalyardError{
		Code:     "insufficient_shares",
		Message:  "not enough valid shares to reconstruct the secret",
		ExitCode: ExitAuth,
	}

	ErrCorruptKeystore = &HalyardError{
		Code:     "corrupt_keystore",
		Message:  "keystore record failed integrity checks - refusing to operate",
		ExitCode: ExitGeneral,
	}

	ErrKeystoreBusy = &HalyardError{
		Code:     "keystore_busy",
		Message:  "keystore is held by another process; retry the operation",
		ExitCode: ExitBusy,
	}

	ErrAccountOutOfRange = &HalyardError{
		Code:     "account_index_out_of_range",
		Message:  "account index out of range",
		ExitCode: ExitInput,
	}

	// Session errors.
	ErrPassphraseRequired = &HalyardError{
		Code:     "passphrase_required",
		Message:  "passphrase required",
		ExitCode: ExitAuth,
	}

	ErrWeakPassphrase = &HalyardError{
		Code:     "weak_passphrase",
		Message:  "passphrase is too short",
		ExitCode: ExitInput,
	}

	// Policy errors.
	ErrPolicyViolation = &HalyardError{
		Code:     "policy_violation",
		Message:  "operation blocked by policy",
		ExitCode: ExitPermission,
	}

	// Confirmation errors.
	ErrUserDeclined = &HalyardError{
		Code:     "user_declined",
		Message:  "user declined the operation",
		ExitCode: ExitPermission,
	}

	ErrBackupNotConfirmed = &HalyardError{
		Code:     "backup_not_confirmed",
		Message:  "offline share not confirmed correctly",
		ExitCode: ExitInput,
	}

	ErrApprovalNotFound = &HalyardError{
		Code:     "approval_not_found",
		Message:  "no pending approval with that id",
		ExitCode: ExitNotFound,
	}

	// Execution errors.
	ErrSimulationFailed = &HalyardError{
		Code:     "simulation_failed",
		Message:  "transaction simulation failed; nothing was broadcast",
		ExitCode: ExitGeneral,
	}

	ErrBroadcastFailed = &HalyardError{
		Code:     "broadcast_failed",
		Message:  "broadcast failed; verify on-chain state before retrying",
		ExitCode: ExitGeneral,
	}

	ErrPriceUnavailable = &HalyardError{
		Code:     "price_unavailable",
		Message:  "unable to compute USD value (pricing unavailable)",
		ExitCode: ExitGeneral,
	}

	// Config errors.
	ErrConfigNotFound = &HalyardError{
		Code:     "config_not_found",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &HalyardError{
		Code:     "config_invalid",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	// Backup errors.
	ErrBackupNotFound = &HalyardError{
		Code:     "backup_not_found",
		Message:  "backup file not found",
		ExitCode: ExitNotFound,
	}

	ErrBackupCorrupted = &HalyardError{
		Code:     "backup_corrupted",
		Message:  "backup file is corrupted - checksum mismatch",
		ExitCode: ExitInput,
	}
)

// New creates a new HalyardError with the given code and message.
func New(code, message string) *HalyardError {
	return &HalyardError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var he *HalyardError
	if errors.As(err, &he) {
		return &HalyardError{
			Code:       he.Code,
			Message:    fmt.Sprintf("%s: %s", msg, he.Message),
			Details:    he.Details,
			Suggestion: he.Suggestion,
			Cause:      err,
			ExitCode:   he.ExitCode,
		}
	}

	return &HalyardError{
		Code:     "general_error",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var he *HalyardError
	if errors.As(err, &he) {
		return &HalyardError{
			Code:       he.Code,
			Message:    he.Message,
			Details:    details,
			Suggestion: he.Suggestion,
			Cause:      he.Cause,
			ExitCode:   he.ExitCode,
		}
	}

	return &HalyardError{
		Code:     "general_error",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var he *HalyardError
	if errors.As(err, &he) {
		return &HalyardError{
			Code:       he.Code,
			Message:    he.Message,
			Details:    he.Details,
			Suggestion: suggestion,
			Cause:      he.Cause,
			ExitCode:   he.ExitCode,
		}
	}

	return &HalyardError{
		Code:       "general_error",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// Code returns the machine-readable code for an error, or "general_error"
// for errors that are not HalyardError values.
func Code(err error) string {
	var he *HalyardError
	if errors.As(err, &he) {
		return he.Code
	}
	return "general_error"
}

// ExitCodeFor returns the CLI exit code for an error.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var he *HalyardError
	if errors.As(err, &he) {
		return he.ExitCode
	}
	return ExitGeneral
}
