package access

import (
	"errors"
	"fmt"
)

// Reason is the machine readable cause of a rejected code or upload.
type Reason string

const (
	ReasonNotFound         Reason = "NOT_FOUND"
	ReasonInactive         Reason = "INACTIVE"
	ReasonExpired          Reason = "EXPIRED"
	ReasonLimitReached     Reason = "LIMIT_REACHED"
	ReasonFileTooLarge     Reason = "FILE_TOO_LARGE"
	ReasonInvalidType      Reason = "INVALID_TYPE"
	ReasonFileLimitReached Reason = "FILE_LIMIT_REACHED"
	ReasonInvalidTable     Reason = "INVALID_TABLE"
	ReasonStoreError       Reason = "STORE_ERROR"
)

var messages = map[Reason]string{
	ReasonNotFound:         "This code does not exist. Please check it and try again.",
	ReasonInactive:         "This code has been deactivated by the organiser.",
	ReasonExpired:          "This code has expired.",
	ReasonLimitReached:     "This code has reached its maximum number of uses.",
	ReasonFileTooLarge:     "The file is larger than this event allows.",
	ReasonInvalidType:      "This file type is not accepted for this event.",
	ReasonFileLimitReached: "This event has reached its upload limit.",
	ReasonInvalidTable:     "The table number is not valid for this event.",
	ReasonStoreError:       "The service is temporarily unavailable. Please try again in a moment.",
}

// Message is the text shown to a guest for the reason.
func (r Reason) Message() string {
	if m, ok := messages[r]; ok {
		return m
	}
	return "Request rejected."
}

// ErrStore marks infrastructure failures; details stay in logs.
var ErrStore = errors.New("store error")

// Rejection is an expected, user-facing refusal. It travels on the error
// channel but is never logged as a failure.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail != "" {
		return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
	}
	return string(r.Reason)
}

func Reject(reason Reason) error {
	return &Rejection{Reason: reason}
}

func Rejectf(reason Reason, format string, args ...any) error {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf classifies err: rejections return their reason, anything else is
// a store error.
func ReasonOf(err error) (Reason, bool) {
	if err == nil {
		return "", false
	}
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return ReasonStoreError, false
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStore, op, err)
}
