// Command retrieval-service exposes the hybrid retrieval pipeline over
// HTTP for the conversation workers.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aii-cr/cu-su-whatsapp-business-platform-sub000/pkg/rag"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := rag.LoadConfigFromEnv()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	service := rag.NewRetrievalService(cfg, registry)
	defer service.Close()

	server := &http.Server{
		Addr:              listenAddr(),
		Handler:           newRouter(service, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Retrieval service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown did not complete cleanly", "error", err)
	}
}

func listenAddr() string {
	if addr := os.Getenv("RAG_LISTEN_ADDR"); addr != "" {
		return addr
	}
	return ":8085"
}

func newRouter(service *rag.RetrievalService, registry *prometheus.Registry) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/v1/retrieve", handleRetrieve(service)).Methods(http.MethodPost)
	router.HandleFunc("/v1/stats", handleStats(service)).Methods(http.MethodGet)
	router.HandleFunc("/v1/cache/reset", handleCacheReset(service)).Methods(http.MethodPost)
	router.HandleFunc("/v1/pool/reset", handlePoolReset(service)).Methods(http.MethodPost)
	router.HandleFunc("/healthz", handleHealth(service)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return router
}

func handleRetrieve(service *rag.RetrievalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rag.RetrievalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		result, err := service.Retrieve(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleStats(service *rag.RetrievalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window := 0
		if raw := r.URL.Query().Get("window_minutes"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusBadRequest, "window_minutes must be a non-negative integer")
				return
			}
			window = parsed
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"performance": service.GetPerformanceStats(window),
			"cache":       service.CacheStats(),
		})
	}
}

func handleCacheReset(service *rag.RetrievalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed, err := service.ResetCache(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"entries_removed": removed})
	}
}

func handlePoolReset(service *rag.RetrievalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		service.ResetPool()
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}

func handleHealth(service *rag.RetrievalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verdict := service.GetHealth()
		status := http.StatusOK
		if verdict == rag.HealthUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]interface{}{
			"health":    verdict,
			"reachable": service.Healthy(r.Context()),
		})
	}
}

// writeServiceError maps the error taxonomy onto HTTP statuses: timeouts
// become 504, upstream and connection failures 502, validation 400.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch rag.ErrorTypeOf(err) {
	case rag.ErrTypeTimeout:
		status = http.StatusGatewayTimeout
	case rag.ErrTypeUpstream, rag.ErrTypeConnection:
		status = http.StatusBadGateway
	case rag.ErrTypeValidation:
		status = http.StatusBadRequest
	case rag.ErrTypeCacheUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("Failed to encode response", "error", err)
	}
}
