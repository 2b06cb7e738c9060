package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-resolver/internal/model"
	"github.com/sells-group/parcel-resolver/internal/worker"
)

func serveRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	rr := serveRequest(buildRouter(nil, nil, []string{"*"}), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRouter_Resolve(t *testing.T) {
	var got model.LookupInput
	resolver := resolverFunc(func(_ context.Context, in model.LookupInput) *model.LookupResult {
		got = in
		owner := "DOE JANE"
		return &model.LookupResult{OwnerName: &owner, Source: "gis_st_lucie", ConfidenceScore: 75}
	})
	h := buildRouter(resolver, nil, []string{"*"})

	rr := serveRequest(h, http.MethodPost, "/v1/resolve",
		`{"address":" 123 Main St ","jurisdiction":"St. Lucie County","timeout_ms":2500}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var res model.LookupResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "gis_st_lucie", res.Source)
	assert.Equal(t, 75, res.ConfidenceScore)
	require.NotNil(t, res.OwnerName)
	assert.Equal(t, "DOE JANE", *res.OwnerName)

	assert.Equal(t, "123 Main St", got.Address)
	assert.Equal(t, "St. Lucie County", got.Jurisdiction)
	assert.Equal(t, int64(2500), got.Timeout.Milliseconds())
}

func TestRouter_ResolveValidation(t *testing.T) {
	resolver := resolverFunc(func(context.Context, model.LookupInput) *model.LookupResult {
		t.Fatal("resolver must not be called")
		return nil
	})
	h := buildRouter(resolver, nil, []string{"*"})

	rr := serveRequest(h, http.MethodPost, "/v1/resolve", `{"address":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "address or lat/lng is required")

	rr = serveRequest(h, http.MethodPost, "/v1/resolve", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serveRequest(h, http.MethodGet, "/v1/resolve", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRouter_BatchRun(t *testing.T) {
	useTestConfig(t)
	r := &fakeRunner{summary: worker.Summary{Fetched: 3, Processed: 3}}
	h := buildRouter(nil, r, []string{"*"})

	rr := serveRequest(h, http.MethodPost, "/v1/batch/run",
		`{"scope_ids":{"tenant_id":"t1","scope_id":"evt-4"},"concurrency":2,"take":10,"timeout_ms":5000}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"processed":3}`, rr.Body.String())
	assert.Equal(t, "evt-4", r.gotFilter.ScopeID)
	assert.Equal(t, 2, r.gotOpts.Concurrency)
	assert.Equal(t, 10, r.gotOpts.Take)
}

func TestRouter_BatchRunEmptyBodyAndQueue(t *testing.T) {
	useTestConfig(t)
	h := buildRouter(nil, &fakeRunner{}, []string{"*"})

	rr := serveRequest(h, http.MethodPost, "/v1/batch/run", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"processed":0,"message":"queue empty"}`, rr.Body.String())
}

func TestRouter_UnconfiguredDependencies(t *testing.T) {
	h := buildRouter(nil, nil, []string{"*"})

	rr := serveRequest(h, http.MethodPost, "/v1/resolve", `{"address":"1 MAIN ST"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = serveRequest(h, http.MethodPost, "/v1/batch/run", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"job store not configured"}`, rr.Body.String())
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := buildRouter(nil, nil, []string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/v1/resolve", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}
