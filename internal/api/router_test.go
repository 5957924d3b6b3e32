package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/storeaudit/internal/db"
	"github.com/soaringjerry/storeaudit/internal/metrics"
	"github.com/soaringjerry/storeaudit/internal/middleware"
	"github.com/soaringjerry/storeaudit/internal/services"
)

const seedYAML = `
categories:
  - name: Limpieza
    weight: 10
    subcategories:
      - name: Piso
        questions: ["Piso trapeado", "Piso sin basura"]
  - name: Exhibición
    weight: 20
    subcategories:
      - name: Vitrinas
        questions: ["Vitrina ordenada", "Precios visibles"]
`

type testAPI struct {
	srv      *httptest.Server
	token    string
	sessions *services.SessionManager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	conn, err := db.Open(ctx, db.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.RunMigrations(conn, db.DialectSQLite, ""))
	store, err := db.NewSQLStore(conn, db.DialectSQLite, logger)
	require.NoError(t, err)

	catalog := services.NewCatalogService(store, logger)
	seed, err := services.ParseCatalogSeed([]byte(seedYAML))
	require.NoError(t, err)
	_, err = catalog.SeedCatalog(ctx, seed, "admin")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cfg := services.DefaultAuditConfig()
	cfg.DebounceDelay = time.Hour
	audits := services.NewAuditService(store,
		services.WithLogger(logger), services.WithMetrics(m), services.WithAuditConfig(cfg))
	sessions := services.NewSessionManager(audits, time.Hour, logger)
	auth := middleware.NewAuthenticator("test-secret", "")
	token, err := auth.Sign("u1", "u1@example.com", "auditor", time.Hour)
	require.NoError(t, err)

	rt := NewRouter(Deps{
		Catalog:     catalog,
		Audits:      audits,
		Sessions:    sessions,
		Analytics:   services.NewAnalyticsService(store),
		Auth:        auth,
		Metrics:     m,
		Gatherer:    reg,
		Logger:      logger,
		CORSOrigins: []string{"*"},
		Build:       BuildInfo{Version: "test"},
	})
	srv := httptest.NewServer(rt.Handler())
	t.Cleanup(func() {
		srv.Close()
		sessions.CloseAll()
	})
	return &testAPI{srv: srv, token: token, sessions: sessions}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type apiError struct {
	Error errorBody `json:"error"`
}

func questionIDs(t *testing.T, tree services.AuditTree) map[string]string {
	t.Helper()
	out := map[string]string{}
	for _, c := range tree.Categories {
		for _, s := range c.Subcategories {
			for _, q := range s.Questions {
				out[q.Text] = q.ID
			}
		}
	}
	return out
}

func TestAuditFlowOverHTTP(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, http.MethodPost, "/api/stores", map[string]string{"name": "Sucursal Centro"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	store := decode[map[string]any](t, resp)
	storeID := store["id"].(string)

	resp = a.do(t, http.MethodPost, "/api/audits", map[string]string{"store_id": storeID, "date": "2026-03-14"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[map[string]any](t, resp)
	auditID := created["id"].(string)
	assert.Equal(t, "u1", created["auditor_id"])

	resp = a.do(t, http.MethodGet, "/api/audits/"+auditID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ids := questionIDs(t, decode[services.AuditTree](t, resp))
	require.Len(t, ids, 4)

	answers := map[string]bool{"Piso trapeado": true, "Piso sin basura": false, "Vitrina ordenada": true, "Precios visibles": true}
	for text, passed := range answers {
		resp = a.do(t, http.MethodPut, "/api/audits/"+auditID+"/responses/"+ids[text], map[string]any{"passed": passed})
		require.Equal(t, http.StatusOK, resp.StatusCode, text)
	}

	resp = a.do(t, http.MethodPatch, "/api/audits/"+auditID+"/responses/"+ids["Piso sin basura"]+"/comment", map[string]string{"text": "basura junto a la caja"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	pending := decode[map[string]any](t, resp)
	assert.Equal(t, "basura junto a la caja", pending["comment"])

	resp = a.do(t, http.MethodGet, "/api/audits/"+auditID+"/score", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 83, decode[map[string]any](t, resp)["total"])

	resp = a.do(t, http.MethodGet, "/api/audits/"+auditID+"/precheck", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pc := decode[services.Precheck](t, resp)
	assert.Empty(t, pc.Unanswered)
	assert.Equal(t, []string{"facade", "interior"}, pc.MissingPhotoTypes)

	resp = a.do(t, http.MethodPost, "/api/audits/"+auditID+"/finalize", map[string]string{"conclusion_notes": "Mejorar limpieza"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	final := decode[map[string]any](t, resp)
	assert.EqualValues(t, 83, final["total_score"])
	assert.Equal(t, "completed", final["state"])

	resp = a.do(t, http.MethodGet, "/api/audits/"+auditID+"/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[[]map[string]any](t, resp)
	require.Len(t, history, 1)
	assert.Equal(t, "score 83", history[0]["note"])

	resp = a.do(t, http.MethodGet, "/api/audits/"+auditID+"/report.csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	csvBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(csvBody), "basura junto a la caja")

	resp = a.do(t, http.MethodGet, "/api/audits/"+auditID+"/report.xlsx", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")

	resp = a.do(t, http.MethodGet, "/api/stores/"+storeID+"/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[map[string]any](t, resp)
	assert.EqualValues(t, 1, summary["completed"])
	assert.EqualValues(t, 83, summary["last_score"])
}

func TestRemoveMissingQuestionIsNoContent(t *testing.T) {
	a := newTestAPI(t)
	st := decode[map[string]any](t, a.do(t, http.MethodPost, "/api/stores", map[string]string{"name": "Norte"}))
	audit := decode[map[string]any](t, a.do(t, http.MethodPost, "/api/audits", map[string]string{"store_id": st["id"].(string), "date": "2026-03-14"}))

	resp := a.do(t, http.MethodDelete, "/api/audits/"+audit["id"].(string)+"/questions/does-not-exist", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestResponsePutKeepsOmittedFields(t *testing.T) {
	a := newTestAPI(t)
	st := decode[map[string]any](t, a.do(t, http.MethodPost, "/api/stores", map[string]string{"name": "Sur"}))
	audit := decode[map[string]any](t, a.do(t, http.MethodPost, "/api/audits", map[string]string{"store_id": st["id"].(string), "date": "2026-03-14"}))
	auditID := audit["id"].(string)
	ids := questionIDs(t, decode[services.AuditTree](t, a.do(t, http.MethodGet, "/api/audits/"+auditID, nil)))
	path := "/api/audits/" + auditID + "/responses/" + ids["Piso trapeado"]

	resp := a.do(t, http.MethodPut, path, map[string]any{"passed": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodPut, path, map[string]any{"comment": "esquina húmeda"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	assert.Equal(t, true, got["passed"])
	assert.Equal(t, "esquina húmeda", got["comment"])

	resp = a.do(t, http.MethodPut, path, map[string]any{"passed": nil})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[map[string]any](t, resp)
	assert.Nil(t, got["passed"])
	assert.Equal(t, "esquina húmeda", got["comment"])

	resp = a.do(t, http.MethodPut, path, map[string]any{"passed": "yes"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, http.MethodPost, "/api/audits", map[string]string{"store_id": "S1", "date": "14/03/2026"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", decode[apiError](t, resp).Error.Code)

	resp = a.do(t, http.MethodGet, "/api/audits/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/api/catalog/categories", map[string]any{"name": "Sin peso", "weight": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/api/stores", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnauthorizedIsLocalized(t *testing.T) {
	a := newTestAPI(t)
	a.token = ""

	resp := a.do(t, http.MethodGet, "/api/catalog", nil, "Accept-Language", "es-MX")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decode[apiError](t, resp)
	assert.Equal(t, "unauthorized", body.Error.Code)
	assert.Equal(t, "Inicie sesión para continuar", body.Error.Message)

	resp = a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCatalogEndpoints(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, http.MethodGet, "/api/catalog/export.csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "\ufeffcategory,weight"))

	req, err := http.NewRequest(http.MethodPost, a.srv.URL+"/api/catalog/import.csv",
		strings.NewReader("category,weight,subcategory,question,order,active\nSeguridad,15,Extintores,Extintor vigente,1,true\n"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+a.token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decode[map[string]any](t, resp)["imported"])

	resp = a.do(t, http.MethodGet, "/api/catalog?active=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cat := decode[map[string][]map[string]any](t, resp)
	assert.Len(t, cat["categories"], 3)
	assert.Len(t, cat["questions"], 5)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodGet, "/api/stores", nil)

	resp := a.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `storeaudit_http_requests_total{route="GET /api/stores",status="200"} 1`)
}
