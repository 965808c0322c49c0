package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/observability"
)

// RescanFunc requests a rescan of one blob path
type RescanFunc func(ctx context.Context, blobPath string) (string, error)

// NewAPIHandler routes /metrics, /healthz and, when rescan is set,
// GET /api/rescan/{path...}
func NewAPIHandler(metrics *observability.Metrics, rescan RescanFunc) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	if rescan != nil {
		mux.HandleFunc("GET /api/rescan/{path...}", func(w http.ResponseWriter, r *http.Request) {
			blobPath := r.PathValue("path")
			message, err := rescan(r.Context(), blobPath)
			if err != nil {
				status := http.StatusInternalServerError
				if faults.Is(err, faults.KindParse) {
					status = http.StatusBadRequest
				}
				log.Error().Err(err).Str("blob", blobPath).Msg("Rescan request failed")
				http.Error(w, err.Error(), status)
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			fmt.Fprint(w, message)
		})
	}
	return mux
}

// Serve runs an HTTP server on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
		return nil
	}
}
