package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dealcraft/negotiator/internal/auth"
	"github.com/dealcraft/negotiator/internal/catalog"
	"github.com/dealcraft/negotiator/internal/config"
	"github.com/dealcraft/negotiator/internal/negotiation"
)

type Server struct {
	cfg      config.Config
	catalog  catalog.Catalog
	manager  *negotiation.Manager
	verifier *auth.Verifier
}

func New(cfg config.Config, cat catalog.Catalog, mgr *negotiation.Manager, verifier *auth.Verifier) *Server {
	return &Server{cfg: cfg, catalog: cat, manager: mgr, verifier: verifier}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/negotiations", func(r chi.Router) {
		r.Use(s.verifier.Middleware)
		r.Post("/", s.handleStart)
		r.Get("/{id}", s.handleTranscript)
		r.Post("/{id}/offers", s.handleOffer)
		r.Post("/{id}/bulk-upgrade", s.handleBulkUpgrade)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	})
}

type startRequest struct {
	ProductCode string `json:"product_code"`
	Variant     string `json:"variant"`
	Quantity    int    `json:"quantity"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	hit, err := s.catalog.FindProduct(req.ProductCode)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	variant, err := hit.Product.Variant(req.Variant)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		// Bad pricing data is a configuration error, not a computable case.
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result, err := s.manager.Start(r.Context(), negotiation.StartInput{
		ProductCode: hit.Product.ProductCode,
		ProductName: hit.Product.ProductName,
		Firm:        hit.Firm,
		Category:    hit.Category,
		VariantName: req.Variant,
		Variant:     variant,
		Quantity:    req.Quantity,
	})
	if err != nil {
		if errors.Is(err, negotiation.ErrInvalidQuantity) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

type offerRequest struct {
	Offer *float64 `json:"offer"`
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req offerRequest
	// A malformed offer is recoverable: 400, no negotiation round consumed.
	if err := decodeJSON(w, r, &req); err != nil || req.Offer == nil {
		respondError(w, http.StatusBadRequest, "invalid offer input")
		return
	}
	resp, err := s.manager.SubmitOffer(r.Context(), id, *req.Offer)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

type bulkUpgradeRequest struct {
	Accept bool `json:"accept"`
}

func (s *Server) handleBulkUpgrade(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req bulkUpgradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.manager.ResolveBulkSuggestion(r.Context(), id, req.Accept)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	rec, err := s.manager.Transcript(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, negotiation.ErrUnknownSession):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, negotiation.ErrSessionClosed),
		errors.Is(err, negotiation.ErrNoPendingSuggestion):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
