package domain

import "time"

// Status is the lifecycle state of a prescription.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDispensed Status = "DISPENSED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Action is something a caller asks the engine to do to a prescription.
type Action string

const (
	ActionDispense Action = "dispense"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionRefill   Action = "refill"
)

type transitionKey struct {
	from   Status
	action Action
}

// transitions is the complete set of legal moves. A refill leaves the source
// COMPLETED; the new PENDING prescription is a separate entity.
var transitions = map[transitionKey]Status{
	{StatusPending, ActionDispense}:   StatusDispensed,
	{StatusDispensed, ActionComplete}: StatusCompleted,
	{StatusPending, ActionCancel}:     StatusCancelled,
	{StatusDispensed, ActionCancel}:   StatusCancelled,
	{StatusCompleted, ActionRefill}:   StatusCompleted,
}

// Transition returns the state reached by applying action in state from, or
// a *TransitionError if the pair is not allowed.
func Transition(from Status, action Action) (Status, error) {
	to, ok := transitions[transitionKey{from, action}]
	if !ok {
		return from, &TransitionError{From: from, Action: action}
	}
	return to, nil
}

// Prescription is the unit of fulfillment. It is never deleted.
type Prescription struct {
	ID                 int64      `db:"id" json:"id"`
	PharmacyID         int64      `db:"pharmacy_id" json:"pharmacy_id"`
	Status             Status     `db:"status" json:"status"`
	PrescriptionDate   time.Time  `db:"prescription_date" json:"prescription_date"`
	DoctorID           int64      `db:"doctor_id" json:"doctor_id"`
	PatientID          int64      `db:"patient_id" json:"patient_id"`
	DispensedAt        *time.Time `db:"dispensed_at" json:"dispensed_at,omitempty"`
	DispensedBy        *int64     `db:"dispensed_by" json:"dispensed_by,omitempty"`
	CompletedAt        *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy        *int64     `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	TimesFilled        int64      `db:"times_filled" json:"times_filled"`
	AllowedRefills     int64      `db:"allowed_refills" json:"allowed_refills"`
	RefillOf           *int64     `db:"refill_of" json:"refill_of,omitempty"`
	RefilledBy         *int64     `db:"refilled_by" json:"refilled_by,omitempty"`
	Version            int64      `db:"version" json:"version"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`

	Items []PrescriptionItem `db:"-" json:"items"`
}

// PrescriptionItem is one line of a prescription. Dosage, frequency and
// duration are carried through untouched.
type PrescriptionItem struct {
	ID                 int64  `db:"id" json:"id"`
	PrescriptionID     int64  `db:"prescription_id" json:"prescription_id"`
	ItemID             int64  `db:"inventory_id" json:"inventory_id"`
	MedicineID         int64  `db:"medicine_id" json:"medicine_id"`
	PrescribedQuantity int64  `db:"prescribed_quantity" json:"prescribed_quantity"`
	DispensedQuantity  int64  `db:"dispensed_quantity" json:"dispensed_quantity"`
	Dosage             string `db:"dosage" json:"dosage,omitempty"`
	Frequency          string `db:"frequency" json:"frequency,omitempty"`
	Duration           string `db:"duration" json:"duration,omitempty"`
}

// MaxFills is the original fill plus every allowed refill.
func (p *Prescription) MaxFills() int64 {
	return p.AllowedRefills + 1
}

// CanRefill reports whether a refill may be issued from p.
func (p *Prescription) CanRefill() bool {
	return p.refillBlocker() == nil
}

// refillBlocker returns the reason p cannot be refilled, or nil.
func (p *Prescription) refillBlocker() error {
	if _, err := Transition(p.Status, ActionRefill); err != nil {
		return err
	}
	if p.RefilledBy != nil {
		return ErrAlreadyRefilled
	}
	if p.TimesFilled >= p.MaxFills() {
		return ErrRefillLimitReached
	}
	return nil
}

// CheckRefill returns a *TransitionError describing why p cannot be
// refilled, or nil if it can.
func (p *Prescription) CheckRefill() error {
	err := p.refillBlocker()
	if err == nil {
		return nil
	}
	if te, ok := err.(*TransitionError); ok {
		te.PrescriptionID = p.ID
		return te
	}
	return &TransitionError{PrescriptionID: p.ID, From: p.Status, Action: ActionRefill, Reason: err}
}

// Check applies the transition table to p for action, naming p in the error.
func (p *Prescription) Check(action Action) (Status, error) {
	to, err := Transition(p.Status, action)
	if te, ok := err.(*TransitionError); ok {
		te.PrescriptionID = p.ID
	}
	return to, err
}

// Validate checks the structural invariants of a prescription about to be
// stored.
func (p *Prescription) Validate() error {
	if p.PharmacyID <= 0 {
		return invalidArgument("pharmacy is required")
	}
	if p.DoctorID <= 0 || p.PatientID <= 0 {
		return invalidArgument("doctor and patient are required")
	}
	if p.AllowedRefills < 0 {
		return invalidArgument("allowed refills must not be negative")
	}
	if p.TimesFilled < 0 || p.TimesFilled > p.MaxFills() {
		return invalidArgument("times filled exceeds allowed refills + 1")
	}
	if len(p.Items) == 0 {
		return invalidArgument("at least one item is required")
	}
	seen := make(map[int64]struct{}, len(p.Items))
	for _, item := range p.Items {
		if item.ItemID <= 0 {
			return invalidArgument("inventory_id is required for each item")
		}
		if item.PrescribedQuantity <= 0 {
			return invalidArgument("prescribed quantity must be positive")
		}
		if _, dup := seen[item.ItemID]; dup {
			return invalidArgument("an inventory item may appear only once per prescription")
		}
		seen[item.ItemID] = struct{}{}
	}
	return nil
}

// NewRefill builds the successor of a completed prescription: same doctor,
// patient and lines, fresh PENDING state, fill count carried over.
func (p *Prescription) NewRefill(now time.Time) *Prescription {
	source := p.ID
	next := &Prescription{
		PharmacyID:       p.PharmacyID,
		Status:           StatusPending,
		PrescriptionDate: now,
		DoctorID:         p.DoctorID,
		PatientID:        p.PatientID,
		TimesFilled:      p.TimesFilled,
		AllowedRefills:   p.AllowedRefills,
		RefillOf:         &source,
		Items:            make([]PrescriptionItem, len(p.Items)),
	}
	for i, item := range p.Items {
		next.Items[i] = PrescriptionItem{
			ItemID:             item.ItemID,
			MedicineID:         item.MedicineID,
			PrescribedQuantity: item.PrescribedQuantity,
			Dosage:             item.Dosage,
			Frequency:          item.Frequency,
			Duration:           item.Duration,
		}
	}
	return next
}
