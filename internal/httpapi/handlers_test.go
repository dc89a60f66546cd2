package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tillpoint/internal/cache"
	"tillpoint/internal/reconciliation"
	"tillpoint/internal/service"
	"tillpoint/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	calculator := reconciliation.NewCalculator(cache.NoopCashUpCache{}, time.Minute)
	svc := service.New(repo, calculator, "till-1")
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func loginToken(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = fmt.Sprintf("10.0.0.%d:1234", len(username))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s failed: %d (body: %s)", username, rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access_token in login response, got %v", body)
	}
	return token
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoginRateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})

	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.9:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", last)
	}
}

func TestCashierCannotReadAuditLogs(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/audit-logs", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier on audit logs, got %d", rec.Code)
	}
}

func TestFullSaleFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/shifts/start", token, map[string]any{
		"till_id":     "till-1",
		"start_float": "500.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start shift: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var shiftBody struct {
		Shift struct {
			ID string `json:"id"`
		} `json:"shift"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&shiftBody); err != nil {
		t.Fatalf("decode shift: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cart/items", token, map[string]any{
		"till_id":    "till-1",
		"product_id": "prod-cooldrink",
		"qty":        2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// 2 x 25.00 = 50.00, tender 60.00 -> change 10.00
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/payments", token, map[string]any{
		"till_id": "till-1",
		"method":  "cash",
		"amount":  "60.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("payment: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var payBody struct {
		Payment struct {
			Change string `json:"change"`
		} `json:"payment"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payBody); err != nil {
		t.Fatalf("decode payment: %v", err)
	}
	if payBody.Payment.Change != "10.00" {
		t.Fatalf("expected change 10.00, got %s", payBody.Payment.Change)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/shifts/"+shiftBody.Shift.ID+"/cash-up", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cash-up: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var cashUpBody struct {
		CashUp struct {
			ExpectedCash string `json:"expected_cash"`
		} `json:"cash_up"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&cashUpBody); err != nil {
		t.Fatalf("decode cash-up: %v", err)
	}
	if cashUpBody.CashUp.ExpectedCash != "550.00" {
		t.Fatalf("expected cash 550.00, got %s", cashUpBody.CashUp.ExpectedCash)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/shifts/end", token, map[string]any{
		"till_id":   "till-1",
		"end_float": "550.00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("end shift: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSplitPaymentMismatchReturns400(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/shifts/start", token, map[string]any{
		"till_id":     "till-1",
		"start_float": "200.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start shift failed: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cart/items", token, map[string]any{
		"till_id":    "till-1",
		"product_id": "prod-cooldrink",
		"qty":        1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add item failed: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/payments", token, map[string]any{
		"till_id": "till-1",
		"method":  "split",
		"allocations": []map[string]any{
			{"method": "cash", "amount": "10.00"},
			{"method": "card", "amount": "10.00"},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for split mismatch, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestEndShiftWithCartReturns422(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/shifts/start", token, map[string]any{
		"till_id":     "till-1",
		"start_float": "100.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start shift failed: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cart/items", token, map[string]any{
		"till_id":    "till-1",
		"product_id": "prod-bread",
		"qty":        1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add item failed: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/shifts/end", token, map[string]any{
		"till_id":   "till-1",
		"end_float": "100.00",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for non-empty cart, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestAdminCashierManagement(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/users/cashiers", token, map[string]any{
		"username": "tilloperator",
		"password": "longenough",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create cashier: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/users/cashiers", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list cashiers: expected 200, got %d", rec.Code)
	}

	// The freshly created cashier can log in right away.
	newToken := loginToken(t, handler, "tilloperator", "longenough")
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products", newToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("new cashier product list: expected 200, got %d", rec.Code)
	}
}

func TestMarkCustomerPaidRequiresAdminRole(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	cashierToken := loginToken(t, handler, "cashier", "cashier123")
	adminToken := loginToken(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/shifts/start", cashierToken, map[string]any{
		"till_id":     "till-1",
		"start_float": "100.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start shift failed: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cart/items", cashierToken, map[string]any{
		"till_id":    "till-1",
		"product_id": "prod-milk",
		"qty":        1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add item failed: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/payments", cashierToken, map[string]any{
		"till_id":        "till-1",
		"method":         "account",
		"customer_name":  "Jane",
		"customer_phone": "0821234567",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("account payment failed: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var payBody struct {
		Payment struct {
			CustomerID string `json:"customer_id"`
		} `json:"payment"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payBody); err != nil {
		t.Fatalf("decode payment: %v", err)
	}

	path := "/api/v1/customers/" + payBody.Payment.CustomerID + "/mark-paid"
	rec = doJSON(t, handler, http.MethodPost, path, cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier mark-paid, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, path, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin mark-paid: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}
