package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller-facing boundary.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindNotAuthorized    Kind = "not_authorized"
	KindExpired          Kind = "expired"
	KindConflict         Kind = "conflict"
	KindInvalidSignature Kind = "invalid_signature"
	KindLedger           Kind = "ledger"
	KindArtifact         Kind = "artifact"
	KindInternal         Kind = "internal"
)

// Error is a classified error. Msg is safe to show to callers for the
// validation, not-found, authorization, expiry and conflict kinds.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and message so sentinels survive wrapping
// with a cause attached.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Msg == t.Msg
}

// E builds a classified error.
func E(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a cause to a classified error.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain,
// or KindInternal if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message of a classified error.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}

var (
	ErrInvalidAddress   = &Error{Kind: KindValidation, Msg: "invalid wallet address"}
	ErrInvalidHash      = &Error{Kind: KindValidation, Msg: "invalid hash format"}
	ErrInvalidMessage   = &Error{Kind: KindValidation, Msg: "invalid message format"}
	ErrChallengeMissing = &Error{Kind: KindNotFound, Msg: "no challenge found for this wallet"}
	ErrChallengeExpired = &Error{Kind: KindExpired, Msg: "challenge expired"}
	ErrInvalidSignature = &Error{Kind: KindInvalidSignature, Msg: "invalid signature"}
	ErrSignerMismatch   = &Error{Kind: KindInvalidSignature, Msg: "signature does not match wallet address"}
	ErrNotValidIssuer   = &Error{Kind: KindNotAuthorized, Msg: "wallet is not a valid issuer on the ledger"}
	ErrIssuerRevoked    = &Error{Kind: KindNotAuthorized, Msg: "issuer wallet revoked or invalid on the ledger"}
	ErrWalletNotFound   = &Error{Kind: KindNotFound, Msg: "wallet not mapped or inactive"}
	ErrWalletMismatch   = &Error{Kind: KindNotAuthorized, Msg: "wallet address mismatch"}
	ErrWalletTaken      = &Error{Kind: KindConflict, Msg: "wallet already mapped"}
	ErrUserNotFound     = &Error{Kind: KindNotFound, Msg: "user not found"}
	ErrNotIssuer        = &Error{Kind: KindNotAuthorized, Msg: "wallet owner is not an issuer"}
	ErrEmailTaken       = &Error{Kind: KindConflict, Msg: "email already registered"}
	ErrBadCredentials   = &Error{Kind: KindNotAuthorized, Msg: "invalid credentials"}
	ErrAccountInactive  = &Error{Kind: KindNotAuthorized, Msg: "account is not active"}
	ErrForbidden        = &Error{Kind: KindNotAuthorized, Msg: "access denied"}
	ErrInvalidToken     = &Error{Kind: KindNotAuthorized, Msg: "invalid token"}
	ErrTokenExpired     = &Error{Kind: KindExpired, Msg: "token has expired"}
	ErrTokenMismatch    = &Error{Kind: KindNotAuthorized, Msg: "token user mismatch"}
	ErrKeyMismatch      = &Error{Kind: KindNotAuthorized, Msg: "private key does not match signed wallet address"}
	ErrDuplicateHash    = &Error{Kind: KindConflict, Msg: "duplicate certificate hash"}
	ErrDuplicateNumber  = &Error{Kind: KindConflict, Msg: "duplicate certificate number"}
	ErrCertNotFound     = &Error{Kind: KindNotFound, Msg: "certificate not found"}
	ErrAlreadyRevoked   = &Error{Kind: KindConflict, Msg: "already revoked"}
	ErrLedger           = &Error{Kind: KindLedger, Msg: "ledger operation failed"}
	ErrArtifact         = &Error{Kind: KindArtifact, Msg: "file generation failed"}
)
