package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"medeasy/rx/domain"
)

type inventoryRequest struct {
	MedicineID int64           `json:"medicine_id"`
	Code       string          `json:"code"`
	Unit       string          `json:"unit"`
	Quantity   int64           `json:"quantity"`
	CostPrice  decimal.Decimal `json:"cost_price"`
	SalePrice  decimal.Decimal `json:"sale_price"`
	ExpiryDate string          `json:"expiry_date"`
}

type stockRequest struct {
	Quantity int64  `json:"quantity"`
	Note     string `json:"note"`
}

func (h *Handler) addInventory(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, roleOwner, roleEmployee) {
		return
	}
	var req inventoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	caller := callerFrom(r)
	item := domain.Item{
		PharmacyID: caller.PharmacyID,
		MedicineID: req.MedicineID,
		Code:       strings.TrimSpace(req.Code),
		Unit:       strings.TrimSpace(req.Unit),
		Quantity:   req.Quantity,
		CostPrice:  req.CostPrice,
		SalePrice:  req.SalePrice,
	}
	if req.ExpiryDate != "" {
		expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_argument", "expiry_date must be YYYY-MM-DD")
			return
		}
		item.ExpiryDate = &expiry
	}
	created, err := h.inventory.Add(r.Context(), item, caller.UserID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) getInventory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := h.inventory.Get(r.Context(), callerFrom(r).PharmacyID, id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, roleOwner, roleEmployee) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	caller := callerFrom(r)
	entry, err := h.inventory.Restock(r.Context(), caller.PharmacyID, id, req.Quantity, caller.UserID, req.Note)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// adjust sets an absolute count after a stock-take. Owners only.
func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, roleOwner) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	caller := callerFrom(r)
	entry, err := h.inventory.Adjust(r.Context(), caller.PharmacyID, id, req.Quantity, caller.UserID, req.Note)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if entry == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": "unchanged"})
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (h *Handler) inventoryLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	caller := callerFrom(r)
	if _, err := h.inventory.Get(r.Context(), caller.PharmacyID, id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	entries, err := h.ledger.ListByItem(r.Context(), caller.PharmacyID, id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.ledger.Reconcile(r.Context(), callerFrom(r).PharmacyID, id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
