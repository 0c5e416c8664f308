package paygate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// MockRegistry is a mock implementation of Registry for testing
type MockRegistry struct {
	FindFunc func(ctx context.Context, identifier string) (*Entry, error)
}

func (m *MockRegistry) FindActive(ctx context.Context, identifier string) (*Entry, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, identifier)
	}
	return nil, nil
}

// MockVerifier is a mock implementation of ReceiptVerifier for testing
type MockVerifier struct {
	VerifyFunc func(ctx context.Context, txRef, expectedRecipient string) (*VerifiedReceipt, error)
}

func (m *MockVerifier) Verify(ctx context.Context, txRef, expectedRecipient string) (*VerifiedReceipt, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, txRef, expectedRecipient)
	}
	return &VerifiedReceipt{TxHash: txRef, Recipient: expectedRecipient}, nil
}

func testConfig() Config {
	return Config{
		RPCURL:           "http://localhost:8545",
		ContractAddress:  "0x1A2b3C4d5E6f7A8b9C0d1E2f3A4b5C6d7E8f9A0b",
		ChainID:          421614,
		Currency:         "ETH",
		RequestTimeout:   5 * time.Second,
		MaxOutboundCalls: 4,
	}
}

func newTestServer(t *testing.T, reg Registry, ver ReceiptVerifier) *httptest.Server {
	t.Helper()

	gw, err := NewGateway(testConfig(), reg, ver, nil)
	if err != nil {
		t.Fatalf("failed to build gateway: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/proxy/{identifier}", gw.HandleProxy)
	r.Post("/proxy/{identifier}", gw.HandleProxy)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func decodeError(t *testing.T, body io.Reader) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}

func TestProxyUnknownIdentifier(t *testing.T) {
	srv := newTestServer(t, &MockRegistry{}, &MockVerifier{})

	for _, withProof := range []bool{false, true} {
		req, _ := http.NewRequest("GET", srv.URL+"/proxy/zzzz99", nil)
		if withProof {
			req.Header.Set(PaymentTxHeader, "0xdeadbeef")
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("withProof=%v: expected status 404, got %d", withProof, resp.StatusCode)
		}

		body := decodeError(t, resp.Body)
		resp.Body.Close()
		if body.Error != "Proxy link not found or inactive" {
			t.Errorf("withProof=%v: unexpected error message %q", withProof, body.Error)
		}
	}
}

func TestProxyChallengeDeterministic(t *testing.T) {
	entry := &Entry{
		Identifier: "ab12cd",
		TargetURL:  "https://api.example.com/data",
		Price:      0.001,
		Active:     true,
	}
	reg := &MockRegistry{
		FindFunc: func(ctx context.Context, identifier string) (*Entry, error) {
			if identifier == entry.Identifier {
				return entry, nil
			}
			return nil, nil
		},
	}
	srv := newTestServer(t, reg, &MockVerifier{})

	var first PaymentRequiredResponse
	for i := 0; i < 2; i++ {
		resp, err := http.Get(srv.URL + "/proxy/ab12cd")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}

		if resp.StatusCode != http.StatusPaymentRequired {
			t.Fatalf("expected status 402, got %d", resp.StatusCode)
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("failed to read body: %v", err)
		}

		if strings.Contains(string(raw), entry.TargetURL) {
			t.Fatal("challenge response leaks the target URL")
		}

		var challenge PaymentRequiredResponse
		if err := json.Unmarshal(raw, &challenge); err != nil {
			t.Fatalf("failed to decode challenge: %v", err)
		}

		details := challenge.PaymentDetails
		if details.Amount != 0.001 {
			t.Errorf("expected amount 0.001, got %v", details.Amount)
		}
		if details.ChainID != 421614 {
			t.Errorf("expected chain id 421614, got %d", details.ChainID)
		}
		if details.Currency != "ETH" {
			t.Errorf("expected currency ETH, got %s", details.Currency)
		}
		if len(details.OrderID) != 66 || !strings.HasPrefix(details.OrderID, "0x") {
			t.Errorf("expected 32-byte hex order id, got %q", details.OrderID)
		}
		if details.OrderID != OrderID("ab12cd") {
			t.Errorf("order id %q does not match OrderID(identifier)", details.OrderID)
		}

		if i == 0 {
			first = challenge
		} else if challenge.PaymentDetails.OrderID != first.PaymentDetails.OrderID {
			t.Errorf("order id changed between calls: %q vs %q",
				first.PaymentDetails.OrderID, challenge.PaymentDetails.OrderID)
		}
	}
}

func TestProxyVerificationFailureMapping(t *testing.T) {
	entry := &Entry{Identifier: "ab12cd", TargetURL: "https://api.example.com/data", Price: 0.001, Active: true}
	reg := &MockRegistry{
		FindFunc: func(ctx context.Context, identifier string) (*Entry, error) { return entry, nil },
	}

	tests := []struct {
		name       string
		code       string
		wantStatus int
		wantError  string
	}{
		{"unknown transaction", CodeTxNotFound, http.StatusPaymentRequired, "Transaction failed or not found"},
		{"reverted transaction", CodeTxReverted, http.StatusPaymentRequired, "Transaction failed or not found"},
		{"wrong recipient", CodeWrongRecipient, http.StatusPaymentRequired, "Invalid payment receipt"},
		{"node unavailable", CodeVerifierUnavailable, http.StatusInternalServerError, "Internal Gateway Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ver := &MockVerifier{
				VerifyFunc: func(ctx context.Context, txRef, expectedRecipient string) (*VerifiedReceipt, error) {
					return nil, NewVerificationError(tt.code, "verification failed", nil)
				},
			}
			srv := newTestServer(t, reg, ver)

			req, _ := http.NewRequest("GET", srv.URL+"/proxy/ab12cd", nil)
			req.Header.Set(PaymentTxHeader, "0x"+strings.Repeat("ab", 32))

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if body := decodeError(t, resp.Body); body.Error != tt.wantError {
				t.Errorf("expected error %q, got %q", tt.wantError, body.Error)
			}
		})
	}
}

func TestProxyForwardsVerifiedRequest(t *testing.T) {
	var gotMethod, gotContentType, gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)

		// A failing upstream must still be relayed as a gateway success.
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"data":"upstream payload"}`))
	}))
	defer upstream.Close()

	entry := &Entry{Identifier: "ab12cd", TargetURL: upstream.URL, Price: 0.001, Active: true}
	reg := &MockRegistry{
		FindFunc: func(ctx context.Context, identifier string) (*Entry, error) { return entry, nil },
	}

	var gotRecipient string
	ver := &MockVerifier{
		VerifyFunc: func(ctx context.Context, txRef, expectedRecipient string) (*VerifiedReceipt, error) {
			gotRecipient = expectedRecipient
			return &VerifiedReceipt{TxHash: txRef, Recipient: expectedRecipient}, nil
		},
	}
	srv := newTestServer(t, reg, ver)

	req, _ := http.NewRequest("POST", srv.URL+"/proxy/ab12cd", strings.NewReader(`{"q":"hello"}`))
	req.Header.Set(PaymentTxHeader, "0x"+strings.Repeat("cd", 32))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	raw, _ := io.ReadAll(resp.Body)
	if string(raw) != `{"data":"upstream payload"}` {
		t.Errorf("unexpected relayed body %q", raw)
	}

	if got := resp.Header.Get(ServedByHeader); got != ServedByValue {
		t.Errorf("expected %s header %q, got %q", ServedByHeader, ServedByValue, got)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", got)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("upstream saw method %q", gotMethod)
	}
	if gotBody != `{"q":"hello"}` {
		t.Errorf("upstream saw body %q", gotBody)
	}
	if gotContentType != "application/json" {
		t.Errorf("upstream saw Content-Type %q", gotContentType)
	}
	if gotRecipient != testConfig().ContractAddress {
		t.Errorf("verifier saw recipient %q, want configured contract address", gotRecipient)
	}
}

func TestProxyForwardingFailure(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	entry := &Entry{Identifier: "ab12cd", TargetURL: dead.URL, Price: 0.001, Active: true}
	reg := &MockRegistry{
		FindFunc: func(ctx context.Context, identifier string) (*Entry, error) { return entry, nil },
	}
	srv := newTestServer(t, reg, &MockVerifier{})

	req, _ := http.NewRequest("GET", srv.URL+"/proxy/ab12cd", nil)
	req.Header.Set(PaymentTxHeader, "0x"+strings.Repeat("ef", 32))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", resp.StatusCode)
	}
	if body := decodeError(t, resp.Body); body.Error != "Internal Gateway Error" {
		t.Errorf("unexpected error message %q", body.Error)
	}
}

func TestProxyTrimsIdentifierWhitespace(t *testing.T) {
	var lookedUp string
	reg := &MockRegistry{
		FindFunc: func(ctx context.Context, identifier string) (*Entry, error) {
			lookedUp = identifier
			return nil, nil
		},
	}
	srv := newTestServer(t, reg, &MockVerifier{})

	resp, err := http.Get(srv.URL + "/proxy/%20ab12cd%20")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if lookedUp != "ab12cd" {
		t.Errorf("expected trimmed identifier %q, got %q", "ab12cd", lookedUp)
	}
}

func TestProxyCorruptPrice(t *testing.T) {
	entry := &Entry{Identifier: "ab12cd", TargetURL: "https://api.example.com/data", Price: -1, Active: true}
	reg := &MockRegistry{
		FindFunc: func(ctx context.Context, identifier string) (*Entry, error) { return entry, nil },
	}
	srv := newTestServer(t, reg, &MockVerifier{})

	resp, err := http.Get(srv.URL + "/proxy/ab12cd")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500 for corrupt entry, got %d", resp.StatusCode)
	}
}
