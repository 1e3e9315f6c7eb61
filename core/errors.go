package core

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Kind is the stable, transport-neutral category of a domain error.
type Kind int

const (
	KindUnknown Kind = iota

	// authorization
	KindNotAuthenticated
	KindForbidden
	KindNotOwner

	// lifecycle
	KindFeatureDisabled
	KindEventClosed
	KindStateFrozen
	KindStateFinal
	KindInvalidTransition

	// resource
	KindCapacityExhausted
	KindPaymentProofMissing
	KindAlreadyEnrolled
	KindDuplicateNaturalKey

	// data
	KindFieldRequired
	KindFieldInvalid
	KindReasonRequired
	KindWeightNonPositive

	// referential
	KindCriterionInUse
	KindCodeUnknown
	KindCodeExpired
	KindNotFound

	// infrastructure
	KindUnavailable
)

var kindNames = map[Kind]string{
	KindUnknown:             "Unknown",
	KindNotAuthenticated:    "NotAuthenticated",
	KindForbidden:           "Forbidden",
	KindNotOwner:            "NotOwner",
	KindFeatureDisabled:     "FeatureDisabled",
	KindEventClosed:         "EventClosed",
	KindStateFrozen:         "StateFrozen",
	KindStateFinal:          "StateFinal",
	KindInvalidTransition:   "InvalidTransition",
	KindCapacityExhausted:   "CapacityExhausted",
	KindPaymentProofMissing: "PaymentProofMissing",
	KindAlreadyEnrolled:     "AlreadyEnrolled",
	KindDuplicateNaturalKey: "DuplicateNaturalKey",
	KindFieldRequired:       "FieldRequired",
	KindFieldInvalid:        "FieldInvalid",
	KindReasonRequired:      "ReasonRequired",
	KindWeightNonPositive:   "WeightNonPositive",
	KindCriterionInUse:      "CriterionInUse",
	KindCodeUnknown:         "CodeUnknown",
	KindCodeExpired:         "CodeExpired",
	KindNotFound:            "NotFound",
	KindUnavailable:         "Unavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a domain error carrying a stable Kind and, for data errors, the offending field.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is match any *Error of the same Kind (and Field, if the target sets one).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Field == "" || t.Field == e.Field)
}

func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func NewFieldError(kind Kind, field, msg string) error {
	return &Error{Kind: kind, Field: field, Msg: msg}
}

// Unavailable hides an infrastructure failure behind an opaque KindUnavailable error.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindUnavailable, Msg: "service unavailable", Err: err}
}

// KindOf reports the Kind of err, looking through wrapped errors and validation errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Kind
	}
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		for _, fe := range vErrs {
			if strings.HasPrefix(fe.Tag(), "required") {
				return KindFieldRequired
			}
		}
		return KindFieldInvalid
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return KindFieldInvalid
	}
	return KindUnknown
}

// IsKind reports whether err is of the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
