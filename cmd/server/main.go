package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/areumfire/retirement-mc/internal/api"
	"github.com/areumfire/retirement-mc/internal/engine"
)

// corsMiddleware adds CORS headers and handles preflight requests.
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "content-type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// handleRoot returns server info for discovery clients hitting the bare
// origin.
func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"name":        "retirement-mc",
		"version":     "1.0.0",
		"description": "Retirement Monte Carlo simulation engine",
	})
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	cfg := engine.LoadEngineConfigFromEnv()
	if cfg.CMAVersion == "" {
		log.Fatal(&engine.ConfigurationError{Detail: "CMA_VERSION must be set or defaulted"})
	}
	engine.SetActiveCMA(engine.DefaultCMA())
	engine.SetVerboseLogging(cfg.Verbose)

	server := api.NewServer(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/", handleRoot)
	server.Routes(mux)

	wrapped := corsMiddleware(mux.ServeHTTP)

	log.Printf("retirement-mc server listening on :%s", port)
	log.Printf("CMA version: %s, default iterations: %d", cfg.CMAVersion, cfg.Iterations)
	log.Printf("Endpoints:")
	log.Printf("  POST /simulate-retirement-monte-carlo")
	log.Printf("  POST /calculate-retirement-bands")
	log.Printf("  POST /calculate-retirement-bands-optimization")
	log.Printf("  POST /calculate-cumulative-ss-optimization")
	log.Printf("  POST /v2/rpc/cashflow-map")
	log.Printf("  GET  /healthz")

	if err := http.ListenAndServe(":"+port, wrapped); err != nil {
		log.Fatal(err)
	}
}
