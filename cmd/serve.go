package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aozora-lab/poster-cli/internal/model"
	"github.com/aozora-lab/poster-cli/internal/rotation"
	"github.com/aozora-lab/poster-cli/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		sel := rotation.New(st, true)
		if err := sel.Load(ctx); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: newStatusMux(st, sel),
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("status server listening", zap.String("addr", srv.Addr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	},
}

func newStatusMux(st store.Store, sel *rotation.Selector) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		counts, err := st.CountByStatus(r.Context())
		if err != nil {
			http.Error(w, `{"error":"store unavailable"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"records":  counts,
			"keywords": len(sel.Keywords()),
		})
	})

	mux.HandleFunc("GET /records", func(w http.ResponseWriter, r *http.Request) {
		filter := store.RecordFilter{Limit: 100}
		if status := r.URL.Query().Get("status"); status != "" {
			filter.Status = model.RecordStatus(status)
		}
		records, err := st.ListRecords(r.Context(), filter)
		if err != nil {
			http.Error(w, `{"error":"store unavailable"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(records)
	})

	return mux
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
