package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"medeasy/rx/domain"
	"medeasy/rx/internal/database"
	"medeasy/rx/internal/fulfillment"
	"medeasy/rx/internal/interaction"
	"medeasy/rx/internal/inventory"
	"medeasy/rx/internal/ledger"
	"medeasy/rx/internal/observability"
)

type ctxKey string

const ctxCaller ctxKey = "caller"

const (
	roleOwner    = "owner"
	roleEmployee = "employee"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db        *database.DB
	engine    *fulfillment.Engine
	inventory *inventory.Store
	ledger    *ledger.Ledger
	checker   interaction.Checker
	secret    string
	logger    *zap.Logger
}

// New constructs a Handler.
func New(db *database.DB, engine *fulfillment.Engine, inv *inventory.Store, led *ledger.Ledger,
	checker interaction.Checker, secret string, logger *zap.Logger) *Handler {
	return &Handler{
		db:        db,
		engine:    engine,
		inventory: inv,
		ledger:    led,
		checker:   checker,
		secret:    secret,
		logger:    logger.Named("api"),
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(observability.RequestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/prescriptions", func(r chi.Router) {
			r.Post("/", h.createPrescription)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getPrescription)
				r.Post("/dispense", h.dispense)
				r.Post("/complete", h.complete)
				r.Post("/cancel", h.cancel)
				r.Post("/refill", h.refill)
				r.Get("/refill-eligibility", h.refillEligibility)
				r.Get("/ledger", h.prescriptionLedger)
			})
		})

		pr.Route("/inventory", func(r chi.Router) {
			r.Post("/", h.addInventory)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getInventory)
				r.Post("/restock", h.restock)
				r.Post("/adjust", h.adjust)
				r.Get("/ledger", h.inventoryLedger)
				r.Get("/reconcile", h.reconcile)
			})
		})

		pr.Get("/medicines", h.searchMedicines)
		pr.Post("/interactions/check", h.checkInteractions)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers

// authClaims is what the identity service puts in a bearer token. Tokens
// are only verified here, never issued.
type authClaims struct {
	UserID     int64  `json:"user_id"`
	PharmacyID int64  `json:"pharmacy_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok {
			respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token claims")
			return
		}
		caller := domain.Caller{UserID: claims.UserID, PharmacyID: claims.PharmacyID, Role: claims.Role}
		if err := caller.Validate(); err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized", "token carries no user or pharmacy")
			return
		}
		ctx := context.WithValue(r.Context(), ctxCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFrom(r *http.Request) domain.Caller {
	caller, _ := r.Context().Value(ctxCaller).(domain.Caller)
	return caller
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	current := callerFrom(r).Role
	if current == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing role")
		return false
	}
	for _, allowedRole := range allowed {
		if current == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "forbidden", "insufficient permissions")
	return false
}

// Catalog rows from older imports may lack a brand id or descriptive fields.
const medicineColumns = `id, COALESCE(brand_id, 0) AS brand_id, brand_name, COALESCE(type, '') AS type,
        COALESCE(generic_name, '') AS generic_name, COALESCE(manufacturer, '') AS manufacturer`

func (h *Handler) searchMedicines(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, roleOwner, roleEmployee) {
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	medicines := []domain.Medicine{}
	var err error
	if query == "" {
		err = h.db.SelectContext(r.Context(), &medicines, `SELECT `+medicineColumns+` FROM medicines ORDER BY brand_name LIMIT 25`)
	} else {
		like := "%" + strings.ToLower(query) + "%"
		err = h.db.SelectContext(r.Context(), &medicines, h.db.Rebind(`SELECT `+medicineColumns+`
            FROM medicines WHERE LOWER(brand_name) LIKE ? OR LOWER(generic_name) LIKE ? ORDER BY brand_name LIMIT 25`), like, like)
	}
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, medicines)
}

type interactionCheckRequest struct {
	MedicineIDs []int64 `json:"medicine_ids"`
}

type interactionCheckResponse struct {
	Interactions []domain.Interaction `json:"interactions"`
	Blocked      bool                 `json:"blocked"`
}

func (h *Handler) checkInteractions(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, roleOwner, roleEmployee) {
		return
	}
	var req interactionCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	found, err := h.checker.Check(r.Context(), req.MedicineIDs)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if found == nil {
		found = []domain.Interaction{}
	}
	_, blocked := interaction.Blocking(found)
	respondJSON(w, http.StatusOK, interactionCheckResponse{Interactions: found, Blocked: blocked})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_argument", "invalid id")
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(r *http.Request, dest interface{}) error {
	if err := decodeJSON(r, dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type errorResponse struct {
	Error       string              `json:"error"`
	Code        string              `json:"code"`
	Shortfalls  []domain.Shortfall  `json:"shortfalls,omitempty"`
	Interaction *domain.Interaction `json:"interaction,omitempty"`
	Retryable   bool                `json:"retryable,omitempty"`
}

// respondErr maps an error kind to its status code and a stable code string.
// Anything unrecognised is logged and reported as a bare 500.
func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	body := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status, body.Code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrNotFound):
		status, body.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, body.Code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		status, body.Code = http.StatusConflict, "concurrency_conflict"
	case errors.Is(err, domain.ErrSevereInteraction):
		status, body.Code = http.StatusConflict, "severe_interaction"
		var ie *domain.InteractionError
		if errors.As(err, &ie) {
			body.Interaction = &ie.Interaction
		}
	case errors.Is(err, domain.ErrInsufficientStock):
		status, body.Code = http.StatusUnprocessableEntity, "insufficient_stock"
		var se *domain.InsufficientStockError
		if errors.As(err, &se) {
			body.Shortfalls = se.Shortfalls
		}
	default:
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		body = errorResponse{Error: "internal error", Code: "internal"}
	}
	body.Retryable = domain.IsRetryable(err)
	respondJSON(w, status, body)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
