package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/payload-protocol/paygate"
	"github.com/payload-protocol/paygate/evm"
	"github.com/payload-protocol/paygate/registry"
)

// createAttempts bounds identifier-collision retries during registration.
const createAttempts = 5

func main() {
	_ = godotenv.Load()

	cfg, err := paygate.FromEnv()
	if err != nil {
		log.Fatalf("invalid gateway configuration: %v", err)
	}

	pool := mustConnect()
	defer pool.Close()

	st := registry.New(pool)
	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := st.Init(initCtx); err != nil {
		log.Fatalf("failed to initialize registry schema: %v", err)
	}
	cancel()

	verifier, err := evm.NewVerifier(cfg.RPCURL)
	if err != nil {
		log.Fatalf("failed to connect to chain node: %v", err)
	}

	forwarder := paygate.NewForwarder(cfg.RequestTimeout, cfg.MaxOutboundCalls)
	gw, err := paygate.NewGateway(cfg, st, verifier, forwarder)
	if err != nil {
		log.Fatalf("failed to build gateway: %v", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/proxy/{identifier}", gw.HandleProxy)
	r.Post("/proxy/{identifier}", gw.HandleProxy)
	r.Post("/api/create", createHandler(st))

	port := strings.TrimSpace(os.Getenv("SERVICE_PORT"))
	if port == "" {
		port = "8080"
	}

	log.Printf("gateway listening on :%s (chain %d, recipient %s)", port, cfg.ChainID, cfg.ContractAddress)
	log.Fatal(http.ListenAndServe(":"+port, r))
}

func mustConnect() *pgxpool.Pool {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		log.Fatalf("invalid DATABASE_URL: %v", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		log.Fatalf("failed to connect to registry database: %v", err)
	}
	return pool
}

// createHandler registers a new proxy link: it generates a short identifier,
// retrying on collision, and returns the public path. The target URL is
// accepted here and never echoed back.
func createHandler(st *registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TargetURL    string   `json:"targetUrl"`
			Price        *float64 `json:"price"`
			OwnerAddress string   `json:"ownerAddress"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			paygate.WriteJSON(w, http.StatusBadRequest, paygate.ErrorResponse{Error: "Invalid JSON body"})
			return
		}

		if strings.TrimSpace(req.TargetURL) == "" || req.Price == nil || strings.TrimSpace(req.OwnerAddress) == "" {
			paygate.WriteJSON(w, http.StatusBadRequest, paygate.ErrorResponse{Error: "Missing required fields"})
			return
		}
		if *req.Price < 0 {
			paygate.WriteJSON(w, http.StatusBadRequest, paygate.ErrorResponse{Error: "Price must be non-negative"})
			return
		}

		for attempt := 0; attempt < createAttempts; attempt++ {
			identifier, err := registry.NewIdentifier()
			if err != nil {
				log.Printf("create: %v", err)
				paygate.WriteJSON(w, http.StatusInternalServerError, paygate.ErrorResponse{Error: "Internal Server Error"})
				return
			}

			entry, err := st.Create(r.Context(), paygate.Entry{
				Identifier:   identifier,
				TargetURL:    strings.TrimSpace(req.TargetURL),
				Price:        *req.Price,
				OwnerAddress: req.OwnerAddress,
			})
			if errors.Is(err, registry.ErrConflict) {
				continue
			}
			if err != nil {
				log.Printf("create: %v", err)
				paygate.WriteJSON(w, http.StatusInternalServerError, paygate.ErrorResponse{Error: "Internal Server Error"})
				return
			}

			paygate.WriteJSON(w, http.StatusCreated, map[string]any{
				"success": true,
				"data": map[string]string{
					"proxyPath": entry.Identifier,
					"fullUrl":   "/proxy/" + entry.Identifier,
				},
			})
			return
		}

		paygate.WriteJSON(w, http.StatusInternalServerError, paygate.ErrorResponse{Error: "Failed to generate unique proxyPath"})
	}
}
