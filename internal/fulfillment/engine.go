// Package fulfillment drives a prescription through its lifecycle. Each
// operation is one database transaction: the status change, the stock
// decrements and the ledger entries commit together or not at all.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"medeasy/rx/domain"
	"medeasy/rx/internal/database"
	"medeasy/rx/internal/events"
	"medeasy/rx/internal/interaction"
	"medeasy/rx/internal/inventory"
	"medeasy/rx/internal/ledger"
)

const tracerName = "medeasy/rx/fulfillment"

// DispenseResult is what a successful dispense returns. Warnings holds the
// non-blocking interactions found among the prescription's medicines.
type DispenseResult struct {
	Prescription *domain.Prescription `json:"prescription"`
	Entries      []domain.LedgerEntry `json:"ledger_entries"`
	Warnings     []domain.Interaction `json:"warnings"`
}

// RefillEligibility explains whether a refill may be issued.
type RefillEligibility struct {
	PrescriptionID int64         `json:"prescription_id"`
	Status         domain.Status `json:"status"`
	Eligible       bool          `json:"eligible"`
	TimesFilled    int64         `json:"times_filled"`
	MaxFills       int64         `json:"max_fills"`
	Reason         string        `json:"reason,omitempty"`
}

// Engine is the fulfillment service.
type Engine struct {
	db        *database.DB
	rx        *Repository
	inventory *inventory.Store
	ledger    *ledger.Ledger
	checker   interaction.Checker
	publisher events.Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets where committed transitions are announced.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New wires an Engine. The checker must read through db.Conn so its lookups
// run inside the dispense transaction.
func New(db *database.DB, inv *inventory.Store, led *ledger.Ledger, checker interaction.Checker, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		db:        db,
		rx:        NewRepository(db),
		inventory: inv,
		ledger:    led,
		checker:   checker,
		publisher: events.Nop{},
		logger:    logger.Named("fulfillment"),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) start(ctx context.Context, op string, caller domain.Caller, id int64) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "fulfillment."+op, trace.WithAttributes(
		attribute.Int64("rx.pharmacy_id", caller.PharmacyID),
		attribute.Int64("rx.prescription_id", id),
		attribute.Int64("rx.actor_id", caller.UserID),
	))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Create stores a new PENDING prescription for the caller's pharmacy. Every
// line must reference an inventory item of that pharmacy.
func (e *Engine) Create(ctx context.Context, caller domain.Caller, p domain.Prescription) (_ *domain.Prescription, err error) {
	ctx, span := e.start(ctx, "create", caller, 0)
	defer func() { finish(span, err) }()

	if err := caller.Validate(); err != nil {
		return nil, err
	}
	p.ID = 0
	p.PharmacyID = caller.PharmacyID
	p.Status = domain.StatusPending
	p.TimesFilled = 0
	p.RefillOf, p.RefilledBy = nil, nil
	if p.PrescriptionDate.IsZero() {
		p.PrescriptionDate = e.now().UTC()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var created *domain.Prescription
	err = e.db.WithTx(ctx, func(ctx context.Context) error {
		ids := make([]int64, len(p.Items))
		for i, item := range p.Items {
			ids[i] = item.ItemID
		}
		stock, err := e.inventory.GetMany(ctx, caller.PharmacyID, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, ok := stock[id]; !ok {
				return domain.NotFoundf("inventory item %d", id)
			}
		}
		if err := e.rx.insert(ctx, &p, e.now().UTC()); err != nil {
			return err
		}
		created, err = e.rx.Get(ctx, caller.PharmacyID, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("prescription created",
		zap.Int64("pharmacy_id", created.PharmacyID),
		zap.Int64("prescription_id", created.ID),
		zap.Int("items", len(created.Items)))
	return created, nil
}

// Get returns one prescription of the caller's pharmacy.
func (e *Engine) Get(ctx context.Context, caller domain.Caller, id int64) (*domain.Prescription, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	return e.rx.Get(ctx, caller.PharmacyID, id)
}

// Dispense fills a PENDING prescription. Availability is checked for every
// line first so the caller hears about all shortfalls at once, then the
// interaction gate runs, then the prescription is claimed and each line is
// decremented with its SALE entry. The decrement is itself conditional, so a
// concurrent dispense that drained an item after the check still fails the
// whole operation rather than driving stock negative.
func (e *Engine) Dispense(ctx context.Context, caller domain.Caller, id int64) (_ *DispenseResult, err error) {
	ctx, span := e.start(ctx, "dispense", caller, id)
	defer func() { finish(span, err) }()

	if err := caller.Validate(); err != nil {
		return nil, err
	}

	var result DispenseResult
	err = e.db.WithTx(ctx, func(ctx context.Context) error {
		p, err := e.rx.Get(ctx, caller.PharmacyID, id)
		if err != nil {
			return err
		}
		if _, err := p.Check(domain.ActionDispense); err != nil {
			return err
		}
		if p.TimesFilled >= p.MaxFills() {
			return &domain.TransitionError{PrescriptionID: p.ID, From: p.Status, Action: domain.ActionDispense, Reason: domain.ErrRefillLimitReached}
		}

		if err := e.checkAvailability(ctx, p); err != nil {
			return err
		}

		warnings, err := e.gate(ctx, p)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Int("rx.interaction_warnings", len(warnings)))

		now := e.now().UTC()
		ok, err := e.rx.markDispensed(ctx, p, caller.UserID, now)
		if err != nil {
			return err
		}
		if !ok {
			return e.lostRace(ctx, p, domain.ActionDispense)
		}

		entries := make([]domain.LedgerEntry, 0, len(p.Items))
		// Items come back ordered by inventory id; taking row locks in that
		// order keeps two dispenses over the same items from deadlocking.
		for _, item := range p.Items {
			after, err := e.inventory.Decrement(ctx, caller.PharmacyID, item.ItemID, item.PrescribedQuantity)
			if err != nil {
				return err
			}
			rxID := p.ID
			entry, err := e.ledger.Append(ctx, domain.LedgerEntry{
				PharmacyID:     caller.PharmacyID,
				ItemID:         item.ItemID,
				Type:           domain.TransactionSale,
				Quantity:       item.PrescribedQuantity,
				StockBefore:    after + item.PrescribedQuantity,
				StockAfter:     after,
				PrescriptionID: &rxID,
				ActorID:        caller.UserID,
				CreatedAt:      now,
			})
			if err != nil {
				return err
			}
			if err := e.rx.markItemDispensed(ctx, item.ID); err != nil {
				return err
			}
			entries = append(entries, entry)
		}

		updated, err := e.rx.Get(ctx, caller.PharmacyID, p.ID)
		if err != nil {
			return err
		}
		result = DispenseResult{Prescription: updated, Entries: entries, Warnings: warnings}
		return nil
	})
	if err != nil {
		e.logger.Warn("dispense refused",
			zap.Int64("pharmacy_id", caller.PharmacyID),
			zap.Int64("prescription_id", id),
			zap.Error(err))
		return nil, err
	}

	if result.Warnings == nil {
		result.Warnings = []domain.Interaction{}
	}
	e.logger.Info("prescription dispensed",
		zap.Int64("pharmacy_id", caller.PharmacyID),
		zap.Int64("prescription_id", id),
		zap.Int64("times_filled", result.Prescription.TimesFilled),
		zap.Int("warnings", len(result.Warnings)))
	e.publish(ctx, events.New(events.PrescriptionDispensed, result.Prescription, caller.UserID, e.now()))
	return &result, nil
}

// checkAvailability reports every line whose item holds less than the
// prescribed quantity.
func (e *Engine) checkAvailability(ctx context.Context, p *domain.Prescription) error {
	ids := make([]int64, len(p.Items))
	for i, item := range p.Items {
		ids[i] = item.ItemID
	}
	stock, err := e.inventory.GetMany(ctx, p.PharmacyID, ids)
	if err != nil {
		return err
	}
	var shortfalls []domain.Shortfall
	for _, item := range p.Items {
		inv, ok := stock[item.ItemID]
		if !ok {
			return domain.NotFoundf("inventory item %d", item.ItemID)
		}
		if inv.Quantity < item.PrescribedQuantity {
			shortfalls = append(shortfalls, domain.Shortfall{
				ItemID:    item.ItemID,
				Requested: item.PrescribedQuantity,
				Available: inv.Quantity,
			})
		}
	}
	if len(shortfalls) > 0 {
		return &domain.InsufficientStockError{Shortfalls: shortfalls}
	}
	return nil
}

// gate fails on a SEVERE pair and returns the rest as warnings.
func (e *Engine) gate(ctx context.Context, p *domain.Prescription) ([]domain.Interaction, error) {
	medicines := make([]int64, len(p.Items))
	for i, item := range p.Items {
		medicines[i] = item.MedicineID
	}
	found, err := e.checker.Check(ctx, medicines)
	if err != nil {
		return nil, fmt.Errorf("interaction check: %w", err)
	}
	if blocking, ok := interaction.Blocking(found); ok {
		return nil, &domain.InteractionError{Interaction: blocking}
	}
	return found, nil
}

// lostRace explains a compare-and-set that matched no row. If the
// prescription moved to a state the action is not allowed from, the caller
// gets the transition error; otherwise someone else changed it underneath
// and the caller may retry.
func (e *Engine) lostRace(ctx context.Context, p *domain.Prescription, action domain.Action) error {
	current, err := e.rx.Get(ctx, p.PharmacyID, p.ID)
	if err != nil {
		return err
	}
	if current.Status != p.Status {
		if _, err := current.Check(action); err != nil {
			return err
		}
	}
	if action == domain.ActionRefill {
		if err := current.CheckRefill(); err != nil {
			return err
		}
	}
	return domain.Conflictf("prescription %d was modified concurrently", p.ID)
}

// Complete records patient pickup of a DISPENSED prescription.
func (e *Engine) Complete(ctx context.Context, caller domain.Caller, id int64) (_ *domain.Prescription, err error) {
	ctx, span := e.start(ctx, "complete", caller, id)
	defer func() { finish(span, err) }()

	if err := caller.Validate(); err != nil {
		return nil, err
	}
	var updated *domain.Prescription
	err = e.db.WithTx(ctx, func(ctx context.Context) error {
		p, err := e.rx.Get(ctx, caller.PharmacyID, id)
		if err != nil {
			return err
		}
		if _, err := p.Check(domain.ActionComplete); err != nil {
			return err
		}
		ok, err := e.rx.markCompleted(ctx, p, e.now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return e.lostRace(ctx, p, domain.ActionComplete)
		}
		updated, err = e.rx.Get(ctx, caller.PharmacyID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("prescription completed",
		zap.Int64("pharmacy_id", caller.PharmacyID),
		zap.Int64("prescription_id", id))
	e.publish(ctx, events.New(events.PrescriptionCompleted, updated, caller.UserID, e.now()))
	return updated, nil
}

// Cancel stops a PENDING or DISPENSED prescription. Cancelling after
// dispense needs a reason. Stock that already left the shelf is written off;
// nothing is returned to inventory.
func (e *Engine) Cancel(ctx context.Context, caller domain.Caller, id int64, reason string) (_ *domain.Prescription, err error) {
	ctx, span := e.start(ctx, "cancel", caller, id)
	defer func() { finish(span, err) }()

	if err := caller.Validate(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)

	var (
		updated *domain.Prescription
		from    domain.Status
	)
	err = e.db.WithTx(ctx, func(ctx context.Context) error {
		p, err := e.rx.Get(ctx, caller.PharmacyID, id)
		if err != nil {
			return err
		}
		if _, err := p.Check(domain.ActionCancel); err != nil {
			return err
		}
		if p.Status == domain.StatusDispensed && reason == "" {
			return domain.InvalidArgument("a reason is required to cancel a dispensed prescription")
		}
		var stored *string
		if reason != "" {
			stored = &reason
		}
		from = p.Status
		ok, err := e.rx.markCancelled(ctx, p, caller.UserID, stored, e.now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return e.lostRace(ctx, p, domain.ActionCancel)
		}
		updated, err = e.rx.Get(ctx, caller.PharmacyID, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Int64("pharmacy_id", caller.PharmacyID),
		zap.Int64("prescription_id", id),
		zap.String("from", from.String()),
	}
	if from == domain.StatusDispensed {
		e.logger.Warn("dispensed prescription cancelled, stock written off", append(fields, zap.String("reason", reason))...)
	} else {
		e.logger.Info("prescription cancelled", fields...)
	}
	e.publish(ctx, events.New(events.PrescriptionCancelled, updated, caller.UserID, e.now()))
	return updated, nil
}

// Refill issues a new PENDING prescription from a COMPLETED one. The source
// stays COMPLETED and records its successor, so it can be refilled once.
func (e *Engine) Refill(ctx context.Context, caller domain.Caller, id int64) (_ *domain.Prescription, err error) {
	ctx, span := e.start(ctx, "refill", caller, id)
	defer func() { finish(span, err) }()

	if err := caller.Validate(); err != nil {
		return nil, err
	}
	var (
		source *domain.Prescription
		next   *domain.Prescription
	)
	err = e.db.WithTx(ctx, func(ctx context.Context) error {
		p, err := e.rx.Get(ctx, caller.PharmacyID, id)
		if err != nil {
			return err
		}
		if err := p.CheckRefill(); err != nil {
			return err
		}
		now := e.now().UTC()
		successor := p.NewRefill(now)
		if err := e.rx.insert(ctx, successor, now); err != nil {
			return err
		}
		ok, err := e.rx.markRefilled(ctx, p, successor.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return e.lostRace(ctx, p, domain.ActionRefill)
		}
		if source, err = e.rx.Get(ctx, caller.PharmacyID, id); err != nil {
			return err
		}
		next, err = e.rx.Get(ctx, caller.PharmacyID, successor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("prescription refilled",
		zap.Int64("pharmacy_id", caller.PharmacyID),
		zap.Int64("prescription_id", id),
		zap.Int64("refill_id", next.ID),
		zap.Int64("times_filled", next.TimesFilled))
	evt := events.New(events.PrescriptionRefilled, source, caller.UserID, e.now())
	evt.RefillID = &next.ID
	e.publish(ctx, evt)
	return next, nil
}

// CanRefill reports refill eligibility without changing anything.
func (e *Engine) CanRefill(ctx context.Context, caller domain.Caller, id int64) (*RefillEligibility, error) {
	p, err := e.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	out := &RefillEligibility{
		PrescriptionID: p.ID,
		Status:         p.Status,
		Eligible:       true,
		TimesFilled:    p.TimesFilled,
		MaxFills:       p.MaxFills(),
	}
	if err := p.CheckRefill(); err != nil {
		out.Eligible = false
		var te *domain.TransitionError
		if errors.As(err, &te) && te.Reason != nil {
			out.Reason = te.Reason.Error()
		} else {
			out.Reason = err.Error()
		}
	}
	return out, nil
}

// Ledger returns the stock movements caused by a prescription.
func (e *Engine) Ledger(ctx context.Context, caller domain.Caller, id int64) ([]domain.LedgerEntry, error) {
	if _, err := e.Get(ctx, caller, id); err != nil {
		return nil, err
	}
	return e.ledger.ListByPrescription(ctx, caller.PharmacyID, id)
}

// publish runs after commit. The transition stands whether or not the event
// goes out.
func (e *Engine) publish(ctx context.Context, evt events.Event) {
	if err := e.publisher.Publish(ctx, evt); err != nil {
		e.logger.Error("failed to publish event",
			zap.String("event_type", string(evt.Type)),
			zap.Int64("prescription_id", evt.PrescriptionID),
			zap.Error(err))
	}
}
