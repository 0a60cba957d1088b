package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	apperrors "github.com/mosaicviz/mosaic/pkg/errors"
	"github.com/mosaicviz/mosaic/pkg/export"
	"github.com/mosaicviz/mosaic/pkg/grid"
)

// newServeCmd creates the serve command: a read-only HTTP server over
// an export directory, for pointing the web viewer at local output
// during development.
func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve [dir]",
		Short: "Serve an export directory for the web viewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			dir := args[0]

			srv := &http.Server{
				Addr:              addr,
				Handler:           newServeHandler(dir, logger),
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			logger.Info("serving export directory", "dir", dir, "addr", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	return cmd
}

// newServeHandler builds the read-only router over one export directory.
func newServeHandler(dir string, logger *charmlog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/grids/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		if err := apperrors.ValidateDocumentName(name); err != nil {
			http.Error(w, apperrors.UserMessage(err), http.StatusBadRequest)
			return
		}
		http.ServeFile(w, req, filepath.Join(dir, name))
	})

	// Single-cell lookup, so the viewer can refresh one cell without
	// re-fetching the whole document.
	r.Get("/cells/{res}/{key}", func(w http.ResponseWriter, req *http.Request) {
		res, err := strconv.Atoi(chi.URLParam(req, "res"))
		if err != nil || res < 1 {
			http.Error(w, "bad resolution", http.StatusBadRequest)
			return
		}
		key, err := grid.ParseCellKey(chi.URLParam(req, "key"))
		if err != nil {
			http.Error(w, apperrors.UserMessage(err), http.StatusBadRequest)
			return
		}

		data, err := os.ReadFile(filepath.Join(dir, export.GridFileName(res)))
		if err != nil {
			http.NotFound(w, req)
			return
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(data, &doc); err != nil {
			http.Error(w, "corrupt grid document", http.StatusInternalServerError)
			return
		}
		entry, ok := doc[key.String()]
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(entry)
	})

	r.Handle("/images/*", http.StripPrefix("/images/",
		http.FileServer(http.Dir(filepath.Join(dir, "images")))))

	return r
}

// requestLogger logs one line per request at debug level.
func requestLogger(logger *charmlog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)
			logger.Debug("request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).Round(time.Millisecond))
		})
	}
}
