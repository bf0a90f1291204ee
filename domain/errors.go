package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the fulfillment engine matches exactly
// one of these through errors.Is.
var (
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrSevereInteraction   = errors.New("severe drug interaction")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrNotFound            = errors.New("not found")
	ErrInvalidArgument     = errors.New("invalid argument")

	// Reasons carried by a TransitionError; the wrapping error also matches
	// ErrInvalidTransition.
	ErrRefillLimitReached = errors.New("refill limit reached")
	ErrAlreadyRefilled    = errors.New("prescription was already refilled")
)

// TransitionError names the state a prescription was in and the action that
// was refused.
type TransitionError struct {
	PrescriptionID int64
	From           Status
	Action         Action
	Reason         error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s prescription in state %s", e.Action, e.From)
	if e.PrescriptionID != 0 {
		msg = fmt.Sprintf("cannot %s prescription %d in state %s", e.Action, e.PrescriptionID, e.From)
	}
	if e.Reason != nil {
		msg += ": " + e.Reason.Error()
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func (e *TransitionError) Unwrap() error {
	return e.Reason
}

// Shortfall describes one line that cannot be filled.
type Shortfall struct {
	ItemID    int64 `json:"inventory_id"`
	Requested int64 `json:"requested"`
	Available int64 `json:"available"`
}

// Missing is how many units the item is short by.
func (s Shortfall) Missing() int64 {
	return s.Requested - s.Available
}

// InsufficientStockError lists every short item of a dispense attempt.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("item %d short by %d (requested %d, available %d)",
			s.ItemID, s.Missing(), s.Requested, s.Available))
	}
	return ErrInsufficientStock.Error() + ": " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// InteractionError carries the blocking pair.
type InteractionError struct {
	Interaction Interaction
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("%s: medicines %d and %d (%s): %s", ErrSevereInteraction,
		e.Interaction.MedicineA, e.Interaction.MedicineB, e.Interaction.Severity, e.Interaction.Description)
}

func (e *InteractionError) Is(target error) bool {
	return target == ErrSevereInteraction
}

// IsRetryable reports whether re-running the whole operation may succeed.
// Only lost races qualify; nothing from the failed attempt was persisted.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// NotFoundf builds an error matching ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflictf builds an error matching ErrConcurrencyConflict.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConcurrencyConflict, fmt.Sprintf(format, args...))
}

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

// InvalidArgument builds an error matching ErrInvalidArgument.
func InvalidArgument(msg string) error {
	return invalidArgument(msg)
}
