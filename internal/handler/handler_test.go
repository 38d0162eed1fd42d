package handler

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/portfolio-analytics/internal/analytics"
	"github.com/Dan9191/portfolio-analytics/internal/auth"
	"github.com/Dan9191/portfolio-analytics/internal/config"
	"github.com/Dan9191/portfolio-analytics/internal/metrics"
	"github.com/Dan9191/portfolio-analytics/internal/models"
	"github.com/Dan9191/portfolio-analytics/internal/service"
)

type stubStore struct {
	snapshot models.Snapshot
}

func (s *stubStore) LoadSnapshot(ctx context.Context) (models.Snapshot, error) {
	return s.snapshot, nil
}
func (s *stubStore) SaveClients(ctx context.Context, clients []models.Client) error { return nil }
func (s *stubStore) SaveInvoices(ctx context.Context, invoices []models.Invoice) error {
	return nil
}
func (s *stubStore) SaveOpportunities(ctx context.Context, opportunities []models.Opportunity) error {
	return nil
}
func (s *stubStore) SaveRiskSnapshot(ctx context.Context, snapshot *models.RiskSnapshot) error {
	return nil
}
func (s *stubStore) ListRiskSnapshots(ctx context.Context, limit int) ([]models.RiskSnapshot, error) {
	return []models.RiskSnapshot{}, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type testServer struct {
	server *httptest.Server
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := &stubStore{snapshot: models.Snapshot{
		Clients: []models.Client{{ID: 1, Name: "Acme Ltda"}, {ID: 2, Name: "Casa Verde"}},
		Invoices: []models.Invoice{
			{ID: 1, ClientID: 1, DueDate: date(2026, time.January, 10), Amount: decimal.NewFromInt(50000)},
			{ID: 2, ClientID: 2, DueDate: date(2026, time.March, 25), Amount: decimal.NewFromInt(500)},
			{ID: 3, ClientID: 2, DueDate: date(2026, time.April, 4), Amount: decimal.NewFromInt(200)},
		},
	}}

	log := logrus.New()
	log.SetOutput(io.Discard)
	engine, err := analytics.NewEngine(analytics.DefaultPolicy())
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}
	m := metrics.New()
	svc := service.NewService(store, engine, log, m)

	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	a := auth.NewAuthenticator(&config.Config{OperatorUsername: "analyst", OperatorPasswordHash: hash, JWTSecret: "k"})

	h := NewHandler(svc, a, log, time.UTC)
	h.now = func() time.Time { return time.Date(2026, time.March, 15, 23, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(NewRouter(h, m.Handler()))
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/login", "application/json", strings.NewReader(`{"username":"analyst","password":"pw"}`))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	return &testServer{server: srv, token: body["token"]}
}

func (s *testServer) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestRiskRoutes(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	var summary models.PortfolioRiskSummary
	if code := s.get(t, "/risk/summary", &summary); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if summary.TotalClientsAnalyzed != 2 {
		t.Errorf("Expected 2 clients, got %d", summary.TotalClientsAnalyzed)
	}
	if !summary.AsOf.Equal(date(2026, time.March, 15)) {
		t.Errorf("Expected clock date as asOf, got %s", summary.AsOf)
	}

	var scores []models.RiskScore
	if code := s.get(t, "/risk/clients?as_of=2026-03-01", &scores); code != http.StatusOK || len(scores) != 2 {
		t.Fatalf("Expected 2 scores, got %d (status %d)", len(scores), code)
	}
	if scores[0].ClientID != 1 {
		t.Errorf("Expected client 1 ranked first, got %d", scores[0].ClientID)
	}

	var detail models.ClientRiskDetail
	if code := s.get(t, "/risk/clients/1", &detail); code != http.StatusOK || detail.ClientName != "Acme Ltda" {
		t.Errorf("Unexpected detail %+v (status %d)", detail, code)
	}
	if code := s.get(t, "/risk/clients/77", nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown client, got %d", code)
	}
	if code := s.get(t, "/risk/summary?as_of=15/03/2026", nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed as_of, got %d", code)
	}
}

func TestForecastRoutes(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	var months []models.ForecastMonth
	if code := s.get(t, "/forecast/monthly?months=6", &months); code != http.StatusOK || len(months) != 6 {
		t.Fatalf("Expected 6 months, got %d (status %d)", len(months), code)
	}
	if code := s.get(t, "/forecast/monthly?months=0", nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero horizon, got %d", code)
	}
	if code := s.get(t, "/forecast/summary?months=abc", nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-numeric months, got %d", code)
	}

	var summary models.ForecastSummary
	if code := s.get(t, "/forecast/summary", &summary); code != http.StatusOK || summary.HorizonMonths != 12 {
		t.Errorf("Expected default horizon 12, got %d (status %d)", summary.HorizonMonths, code)
	}

	var pipeline models.PipelineSummary
	if code := s.get(t, "/forecast/pipeline", &pipeline); code != http.StatusOK {
		t.Errorf("Expected 200 for pipeline, got %d", code)
	}

	var due models.DueInvoiceList
	if code := s.get(t, "/forecast/due-invoices?days=30", &due); code != http.StatusOK {
		t.Fatalf("Expected 200 for due invoices, got %d", code)
	}
	if len(due.Items) != 2 || due.Items[0].ID != 2 || due.Items[1].ID != 3 {
		t.Errorf("Unexpected due invoices %+v", due.Items)
	}
	if code := s.get(t, "/forecast/due-invoices?days=-1", nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative window, got %d", code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	resp, err := http.Get(s.server.URL + "/risk/summary")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}

	resp, err = http.Get(s.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for health check, got %d", resp.StatusCode)
	}

	resp, err = http.Post(s.server.URL+"/login", "application/json", strings.NewReader(`{"username":"analyst","password":"bad"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad password, got %d", resp.StatusCode)
	}
}

func TestWriteJSONUnencodableValue(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"weighted_delay_days": math.NaN()})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]int{"score": 16})
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"score":16}` {
		t.Errorf("Unexpected response %d %q", rec.Code, rec.Body.String())
	}
}
