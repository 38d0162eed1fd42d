package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/portfolio-analytics/internal/analytics"
	"github.com/Dan9191/portfolio-analytics/internal/auth"
	"github.com/Dan9191/portfolio-analytics/internal/middleware"
	"github.com/Dan9191/portfolio-analytics/internal/models"
	"github.com/Dan9191/portfolio-analytics/internal/service"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc  *service.Service
	auth *auth.Authenticator
	log  *logrus.Logger
	loc  *time.Location
	now  func() time.Time
}

func NewHandler(svc *service.Service, a *auth.Authenticator, log *logrus.Logger, loc *time.Location) *Handler {
	return &Handler{svc: svc, auth: a, log: log, loc: loc, now: time.Now}
}

// NewRouter wires public, protected and operational routes
func NewRouter(h *Handler, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logging(h.log))

	// Public routes
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics).Methods(http.MethodGet)

	// Protected routes
	api := r.PathPrefix("/").Subrouter()
	api.Use(middleware.AuthMiddleware(h.auth))
	api.HandleFunc("/risk/summary", h.RiskSummary).Methods(http.MethodGet)
	api.HandleFunc("/risk/clients", h.RiskClients).Methods(http.MethodGet)
	api.HandleFunc("/risk/clients/{id:[0-9]+}", h.RiskClient).Methods(http.MethodGet)
	api.HandleFunc("/risk/snapshots", h.RiskSnapshots).Methods(http.MethodGet)
	api.HandleFunc("/forecast/summary", h.ForecastSummary).Methods(http.MethodGet)
	api.HandleFunc("/forecast/monthly", h.ForecastMonthly).Methods(http.MethodGet)
	api.HandleFunc("/forecast/pipeline", h.Pipeline).Methods(http.MethodGet)
	api.HandleFunc("/forecast/due-invoices", h.DueInvoices).Methods(http.MethodGet)
	return r
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles operator authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := h.auth.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.log.Warnf("Failed login for %q", req.Username)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Infof("Operator logged in: %s", req.Username)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RiskSummary handles the portfolio risk summary
func (h *Handler) RiskSummary(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	summary, err := h.svc.PortfolioRiskSummary(r.Context(), asOf)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// RiskClients handles the ranked client list
func (h *Handler) RiskClients(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	scores, err := h.svc.ListClientRisk(r.Context(), asOf)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

// RiskClient handles the detailed risk view of one client
func (h *Handler) RiskClient(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: invalid client id", analytics.ErrInvalidArgument))
		return
	}
	asOf, err := h.asOf(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	detail, err := h.svc.ClientRisk(r.Context(), id, asOf)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// RiskSnapshots handles the persisted summary history
func (h *Handler) RiskSnapshots(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 30)
	if err != nil {
		h.writeError(w, err)
		return
	}
	snapshots, err := h.svc.RiskSnapshots(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// ForecastSummary handles horizon totals
func (h *Handler) ForecastSummary(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	months, err := intParam(r, "months", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if months == 0 && r.URL.Query().Has("months") {
		h.writeError(w, fmt.Errorf("%w: months must be at least 1", analytics.ErrInvalidArgument))
		return
	}
	summary, err := h.svc.ForecastSummary(r.Context(), asOf, months)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ForecastMonthly handles the per-month projection
func (h *Handler) ForecastMonthly(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	months, err := intParam(r, "months", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if months == 0 && r.URL.Query().Has("months") {
		h.writeError(w, fmt.Errorf("%w: months must be at least 1", analytics.ErrInvalidArgument))
		return
	}
	forecast, err := h.svc.ForecastMonthly(r.Context(), asOf, months)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

// Pipeline handles the sales pipeline analysis
func (h *Handler) Pipeline(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	summary, err := h.svc.PipelineSummary(r.Context(), asOf)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// DueInvoices handles the upcoming receivables list
func (h *Handler) DueInvoices(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	days, err := intParam(r, "days", 30)
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	list, err := h.svc.DueInvoices(r.Context(), asOf, days, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// asOf reads the as_of query parameter, defaulting to today in the configured zone.
// The instant is normalised to midnight UTC of that calendar day.
func (h *Handler) asOf(r *http.Request) (time.Time, error) {
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: as_of must be YYYY-MM-DD", analytics.ErrInvalidArgument)
		}
		return t, nil
	}
	return models.DateIn(h.now(), h.loc), nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", analytics.ErrInvalidArgument, name)
	}
	return v, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analytics.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, analytics.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Errorf("Request failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// writeJSON encodes before writing the status so an unencodable value becomes a 500.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}
