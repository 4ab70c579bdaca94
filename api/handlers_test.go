/*
handlers_test.go - HTTP tests for the API layer

Tests run the chi router over the in-memory store, exercising the full
request path: JSON decoding, validation, engine call, error mapping.
*/
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recon-engine/ledger/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := NewHandler(store.NewMemory(), log)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func doJSONList(t *testing.T, srv *httptest.Server, path string) []map[string]any {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func seedPair(t *testing.T, srv *httptest.Server, movementAmount, expenseAmount string) {
	t.Helper()
	resp, _ := doJSON(t, srv, "POST", "/api/movements", map[string]any{
		"id": "m-1", "company": "acme", "amount": movementAmount,
		"currency": "EUR", "date": "2026-03-02",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, srv, "POST", "/api/expenses", map[string]any{
		"id": "e-1", "company": "acme", "amount": expenseAmount,
		"currency": "EUR", "date": "2026-03-02",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCreateMovement_Validation(t *testing.T) {
	srv := newTestServer(t)

	// Missing company fails validation before any store write.
	resp, body := doJSON(t, srv, "POST", "/api/movements", map[string]any{
		"id": "m-1", "amount": "100.00", "currency": "EUR", "date": "2026-03-02",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request body", body["error"])

	// Sub-minor-unit precision is rejected at the boundary.
	resp, _ = doJSON(t, srv, "POST", "/api/movements", map[string]any{
		"id": "m-1", "company": "acme", "amount": "100.001",
		"currency": "EUR", "date": "2026-03-02",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateAndGetMovement(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, "POST", "/api/movements", map[string]any{
		"id": "m-1", "company": "acme", "amount": "-250.00",
		"currency": "EUR", "date": "2026-03-02",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "-250.00", body["amount"])
	assert.Equal(t, "250.00", body["unallocated"])

	resp, body = doJSON(t, srv, "GET", "/api/movements/m-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "posted", body["status"])

	resp, _ = doJSON(t, srv, "GET", "/api/movements/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Duplicate id conflicts rather than overwriting.
	resp, _ = doJSON(t, srv, "POST", "/api/movements", map[string]any{
		"id": "m-1", "company": "acme", "amount": "1.00",
		"currency": "EUR", "date": "2026-03-02",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProposeSplit_CompletesOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	seedPair(t, srv, "500.00", "500.00")

	resp, _ := doJSON(t, srv, "POST", "/api/movements", map[string]any{
		"id": "m-2", "company": "acme", "amount": "200.00",
		"currency": "EUR", "date": "2026-03-02",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, srv, "POST", "/api/splits", map[string]any{
		"group_id": "g-1", "type": "one_to_many",
		"target_expense": "e-1", "currency": "EUR",
		"members": []map[string]any{
			{"movement_id": "m-1", "amount": "300.00", "percent": "60"},
			{"movement_id": "m-2", "amount": "200.00"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %v", body)
	assert.Equal(t, true, body["complete"])
	assert.Equal(t, "complete", body["status"])
	assert.Equal(t, "0.00", body["remaining"])

	// One member can only give 300 of m-1's 500.
	resp, body = doJSON(t, srv, "GET", "/api/movements/m-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "300.00", body["allocated"])

	resp, body = doJSON(t, srv, "GET", "/api/expenses/e-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0.00", body["pending"])
}

func TestProposeSplit_OverflowConflicts(t *testing.T) {
	srv := newTestServer(t)
	seedPair(t, srv, "600.00", "500.00")

	resp, _ := doJSON(t, srv, "POST", "/api/splits", map[string]any{
		"group_id": "g-1", "type": "one_to_many",
		"target_expense": "e-1", "currency": "EUR",
		"members": []map[string]any{
			{"movement_id": "m-1", "amount": "500.01"},
		},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Nothing was written.
	resp, _ = doJSON(t, srv, "GET", "/api/splits/g-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSplitRejectReleasesOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	seedPair(t, srv, "1000.00", "400.00")

	resp, body := doJSON(t, srv, "POST", "/api/splits", map[string]any{
		"group_id": "g-1", "type": "many_to_one",
		"target_movement": "m-1", "currency": "EUR",
		"members": []map[string]any{
			{"expense_id": "e-1", "amount": "400.00"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, false, body["complete"])
	assert.Equal(t, "600.00", body["remaining"])

	resp, body = doJSON(t, srv, "POST", "/api/splits/g-1/reject", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rejected", body["status"])

	resp, body = doJSON(t, srv, "GET", "/api/expenses/e-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0.00", body["reconciled"])
	assert.Empty(t, body["split_group"])
}

func TestAdvanceLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, srv, "POST", "/api/expenses", map[string]any{
		"id": "e-1", "company": "acme", "amount": "850.50",
		"currency": "EUR", "date": "2026-03-02",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, srv, "POST", "/api/advances", map[string]any{
		"id": "a-1", "company": "acme", "employee": "emp-7", "expense_id": "e-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "850.50", body["amount"])

	// The flagged expense left the reconcilable pool.
	resp, body = doJSON(t, srv, "GET", "/api/expenses/e-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "non_reconcilable", body["mode"])
	assert.Equal(t, true, body["is_advance"])

	resp, body = doJSON(t, srv, "POST", "/api/advances/a-1/reimbursements", map[string]any{
		"amount": "500.00", "currency": "EUR", "operation_id": "op-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "partial", body["status"])
	assert.Equal(t, "350.50", body["pending"])

	// Overpayment conflicts, never clamps.
	resp, _ = doJSON(t, srv, "POST", "/api/advances/a-1/reimbursements", map[string]any{
		"amount": "400.00", "currency": "EUR", "operation_id": "op-2",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = doJSON(t, srv, "POST", "/api/advances/a-1/reimbursements", map[string]any{
		"amount": "350.50", "currency": "EUR", "operation_id": "op-3",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])
}

func TestCaseFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, srv, "POST", "/api/expenses", map[string]any{
		"id": "e-1", "company": "acme", "amount": "120.00",
		"currency": "EUR", "date": "2026-03-02",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, srv, "POST", "/api/cases", map[string]any{
		"id": "c-1", "company": "acme", "expense_id": "e-1",
		"reason": "MISSING_RECEIPT", "priority": 3, "actor": "ops",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, float64(1), body["level"])
	assert.Equal(t, "missing_data", body["category"])

	resp, body = doJSON(t, srv, "POST", "/api/cases/c-1/start", map[string]any{"actor": "ops"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "in_progress", body["status"])

	resp, body = doJSON(t, srv, "POST", "/api/cases/c-1/resolve", map[string]any{
		"actor": "ops", "note": "receipt uploaded",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "resolved", body["status"])
	assert.NotEmpty(t, body["resolved_at"])

	// A resolved case refuses further work.
	resp, _ = doJSON(t, srv, "POST", "/api/cases/c-1/start", map[string]any{"actor": "ops"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, srv, "POST", "/api/cases/c-1/frobnicate", map[string]any{"actor": "ops"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	hist := doJSONList(t, srv, "/api/cases/c-1/history")
	require.Len(t, hist, 3)
	assert.Equal(t, "resolved", hist[2]["to"])
}

func TestRulesAndSweepOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, srv, "POST", "/api/rules/defaults?company=acme", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	rules := doJSONList(t, srv, "/api/rules?company=acme")
	require.NotEmpty(t, rules)

	// A malformed rule set is rejected wholesale.
	req, err := http.NewRequest("PUT", srv.URL+"/api/rules",
		bytes.NewBufferString(`{"company":"acme","rules":[{"id":"r-bad","reason_codes":["NOT_A_REASON"],"escalate_after_days":5,"priority":1}]}`))
	require.NoError(t, err)
	putResp, err := srv.Client().Do(req)
	require.NoError(t, err)
	putResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, putResp.StatusCode)

	resp, body := doJSON(t, srv, "POST", "/api/sweeps", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["examined"])

	runs := doJSONList(t, srv, "/api/sweeps")
	assert.Len(t, runs, 1)
}

func TestReportOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	seedPair(t, srv, "500.00", "500.00")

	resp, _ := doJSON(t, srv, "POST", "/api/splits", map[string]any{
		"group_id": "g-1", "type": "one_to_many",
		"target_expense": "e-1", "currency": "EUR",
		"members": []map[string]any{
			{"movement_id": "m-1", "amount": "500.00"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, srv, "GET", "/api/analytics/report?company=acme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "acme", body["company"])
}

func TestScenariosOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	list := doJSONList(t, srv, "/api/scenarios")
	require.Len(t, list, 4)

	resp, body := doJSON(t, srv, "POST", "/api/scenarios/load", map[string]any{
		"name": "split-partial",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "split-partial", body["loaded"])

	resp, body = doJSON(t, srv, "GET", "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "split-partial", body["current"])

	resp, body = doJSON(t, srv, "GET", "/api/splits/demo-sp-g1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "200.00", body["remaining"])

	// Reloading collides on seeded ids.
	resp, _ = doJSON(t, srv, "POST", "/api/scenarios/load", map[string]any{
		"name": "split-partial",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, srv, "POST", "/api/scenarios/load", map[string]any{
		"name": "does-not-exist",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
