package paygate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Gateway drives a proxied request through the payment protocol: registry
// lookup, payment challenge, proof verification and upstream forwarding. One
// request maps to exactly one response; nothing is retried and no partial
// response is ever written.
//
// Verification is stateless. The same transaction reference re-verifies from
// scratch on every request, so an accepted proof can be replayed until a
// stricter ReceiptVerifier is substituted.
type Gateway struct {
	cfg       Config
	registry  Registry
	verifier  ReceiptVerifier
	forwarder *Forwarder
}

// NewGateway validates the configuration and wires the gateway's
// collaborators. All of them are shared across requests and must be safe for
// concurrent use.
func NewGateway(cfg Config, registry Registry, verifier ReceiptVerifier, forwarder *Forwarder) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if forwarder == nil {
		forwarder = NewForwarder(cfg.RequestTimeout, cfg.MaxOutboundCalls)
	}

	return &Gateway{
		cfg:       cfg,
		registry:  registry,
		verifier:  verifier,
		forwarder: forwarder,
	}, nil
}

// HandleProxy serves GET and POST requests on /proxy/{identifier}.
func (g *Gateway) HandleProxy(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.RequestTimeout)
	defer cancel()

	identifier := strings.TrimSpace(chi.URLParam(r, "identifier"))

	entry, err := g.registry.FindActive(ctx, identifier)
	if err != nil {
		log.Printf("proxy %q: registry lookup failed: %v", identifier, err)
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal Gateway Error"})
		return
	}
	if entry == nil {
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: "Proxy link not found or inactive"})
		return
	}

	txRef := r.Header.Get(PaymentTxHeader)
	if txRef == "" {
		g.sendChallenge(w, entry)
		return
	}

	if _, err := g.verifier.Verify(ctx, txRef, g.cfg.ContractAddress); err != nil {
		g.sendVerificationFailure(w, identifier, err)
		return
	}

	var body io.Reader
	if r.Method == http.MethodPost {
		body = r.Body
	}

	data, err := g.forwarder.Forward(ctx, r.Method, body, entry.TargetURL)
	if err != nil {
		log.Printf("proxy %q: forward failed: %v", identifier, err)
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal Gateway Error"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(ServedByHeader, ServedByValue)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// sendChallenge writes the 402 challenge telling the caller how to pay.
func (g *Gateway) sendChallenge(w http.ResponseWriter, entry *Entry) {
	challenge, err := BuildChallenge(g.cfg, entry)
	if err != nil {
		log.Printf("proxy %q: %v", entry.Identifier, err)
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal Gateway Error"})
		return
	}

	WriteJSON(w, http.StatusPaymentRequired, PaymentRequiredResponse{
		Error:          "Payment Required",
		Message:        "Please pay the exact amount to the contract address to access this resource.",
		PaymentDetails: challenge,
	})
}

// sendVerificationFailure maps a verification error to its response. Node
// faults become a 500 rather than a 402 so callers are not misled into paying
// twice.
func (g *Gateway) sendVerificationFailure(w http.ResponseWriter, identifier string, err error) {
	switch VerificationCode(err) {
	case CodeTxNotFound, CodeTxReverted:
		WriteJSON(w, http.StatusPaymentRequired, ErrorResponse{Error: "Transaction failed or not found"})
	case CodeWrongRecipient:
		WriteJSON(w, http.StatusPaymentRequired, ErrorResponse{Error: "Invalid payment receipt"})
	default:
		log.Printf("proxy %q: verification failed: %v", identifier, err)
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal Gateway Error"})
	}
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
