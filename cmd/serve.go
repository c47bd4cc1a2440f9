package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/usat-research/talentid-cli/internal/model"
	"github.com/usat-research/talentid-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only review API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(st, cfg.Server.AllowedOrigins),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func buildRouter(st store.Store, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/links", func(w http.ResponseWriter, req *http.Request) {
		filter := linkFilterFromQuery(req)
		links, err := st.ListLinks(req.Context(), filter)
		if err != nil {
			zap.L().Error("list links", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list links failed"})
			return
		}
		if links == nil {
			links = []store.LinkDetail{}
		}
		writeJSON(w, http.StatusOK, links)
	})

	r.Get("/counts", func(w http.ResponseWriter, req *http.Request) {
		counts, err := st.CountLinksByStatus(req.Context())
		if err != nil {
			zap.L().Error("count links", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "count links failed"})
			return
		}
		writeJSON(w, http.StatusOK, counts)
	})

	return r
}

func linkFilterFromQuery(req *http.Request) store.LinkFilter {
	q := req.URL.Query()
	filter := store.LinkFilter{
		Status:   model.VerificationStatus(q.Get("status")),
		EventKey: q.Get("event"),
	}
	if v, err := strconv.Atoi(q.Get("min_score")); err == nil {
		filter.MinScore = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = v
	}
	return filter
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
