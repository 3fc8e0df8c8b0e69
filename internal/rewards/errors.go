package rewards

import (
	"fmt"
	"net/http"

	"tbot/internal/ledger"
)

type ErrorKind int

const (
	KindAuth ErrorKind = iota + 1
	KindValidation
	KindQuota
	KindStore
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindQuota:
		return "quota"
	case KindStore:
		return "store"
	default:
		return "internal"
	}
}

// Status is the HTTP status code answered for errors of this kind.
func (k ErrorKind) Status() int {
	switch k {
	case KindAuth:
		return http.StatusUnauthorized
	case KindValidation, KindQuota:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is returned by Service.Handle for every request that does not succeed.
type Error struct {
	Kind   ErrorKind
	Reason ledger.Reason // set for validation and quota rejections
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Reason != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the client-facing text; store and internal details never leave the process.
func (e *Error) Message() string {
	switch e.Kind {
	case KindAuth:
		return "Unauthorized: invalid init data"
	case KindValidation, KindQuota:
		return string(e.Reason)
	default:
		return "Internal server error"
	}
}

func rejection(reason ledger.Reason) *Error {
	if reason.Quota() {
		return &Error{Kind: KindQuota, Reason: reason}
	}
	return &Error{Kind: KindValidation, Reason: reason}
}
