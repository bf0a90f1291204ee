package api

import (
	"net/http"
	"time"

	"medeasy/rx/domain"
)

type prescriptionItemRequest struct {
	InventoryID        int64  `json:"inventory_id"`
	PrescribedQuantity int64  `json:"prescribed_quantity"`
	Dosage             string `json:"dosage"`
	Frequency          string `json:"frequency"`
	Duration           string `json:"duration"`
}

type prescriptionRequest struct {
	PrescriptionDate *time.Time                `json:"prescription_date"`
	DoctorID         int64                     `json:"doctor_id"`
	PatientID        int64                     `json:"patient_id"`
	AllowedRefills   int64                     `json:"allowed_refills"`
	Items            []prescriptionItemRequest `json:"items"`
}

func (h *Handler) createPrescription(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, roleOwner, roleEmployee) {
		return
	}
	var req prescriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	p := domain.Prescription{
		DoctorID:       req.DoctorID,
		PatientID:      req.PatientID,
		AllowedRefills: req.AllowedRefills,
		Items:          make([]domain.PrescriptionItem, 0, len(req.Items)),
	}
	if req.PrescriptionDate != nil {
		p.PrescriptionDate = req.PrescriptionDate.UTC()
	}
	for _, item := range req.Items {
		p.Items = append(p.Items, domain.PrescriptionItem{
			ItemID:             item.InventoryID,
			PrescribedQuantity: item.PrescribedQuantity,
			Dosage:             item.Dosage,
			Frequency:          item.Frequency,
			Duration:           item.Duration,
		})
	}
	created, err := h.engine.Create(r.Context(), callerFrom(r), p)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) getPrescription(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.engine.Get(r.Context(), callerFrom(r), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) dispense(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, roleOwner, roleEmployee) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.engine.Dispense(r.Context(), callerFrom(r), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, roleOwner, roleEmployee) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.engine.Complete(r.Context(), callerFrom(r), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, roleOwner, roleEmployee) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := decodeOptionalJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	p, err := h.engine.Cancel(r.Context(), callerFrom(r), id, payload.Reason)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) refill(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, roleOwner, roleEmployee) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	next, err := h.engine.Refill(r.Context(), callerFrom(r), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, next)
}

func (h *Handler) refillEligibility(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := h.engine.CanRefill(r.Context(), callerFrom(r), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) prescriptionLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entries, err := h.engine.Ledger(r.Context(), callerFrom(r), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}
