package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/dendrite/internal/api"
	"github.com/aidanlsb/dendrite/internal/errcode"
	"github.com/aidanlsb/dendrite/internal/ui"
)

var serveAddrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the logged-in workspace over HTTP",
	Long: `Starts an HTTP server exposing the logged-in user's notes as a JSON API,
with a server-sent event stream per note for live updates.

Routes:
  GET    /health
  GET    /api/notes                      ?sort= &q= &tag=
  POST   /api/notes
  GET    /api/notes/{id}
  PUT    /api/notes/{id}
  DELETE /api/notes/{id}
  POST   /api/notes/{id}/duplicate
  POST   /api/notes/{id}/links
  GET    /api/notes/{id}/shares
  POST   /api/notes/{id}/shares
  DELETE /api/notes/{id}/shares/{grantee}
  GET    /api/notes/{id}/events          (text/event-stream)
  GET    /api/tags
  GET    /api/graph
  GET    /api/titles/{title}
  GET    /api/suggest                    ?q= &limit=`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		// Notes created or shared by other processes appear after a reload.
		watchDatabase(ctx, s.db, s.ws.Load)

		addr := serveAddrFlag
		if addr == "" {
			addr = cfg.GetServerAddr()
		}
		srv := &http.Server{
			Addr:    addr,
			Handler: api.New(s.ws, api.WithLogger(logger)).Router(),
			// No WriteTimeout: event streams stay open.
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- srv.ListenAndServe()
		}()
		if !isJSONOutput() {
			fmt.Println(ui.Successf("Serving %s's notes on http://%s", s.ws.User().Email, addr))
		}
		logger.Info("server started", "addr", addr, "user", s.ws.User().Email)

		select {
		case err := <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				return handleErrorCode(errcode.Internal, err, "Is the address already in use?")
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return handleErrorCode(errcode.Internal, fmt.Errorf("server forced to shut down: %w", err), "")
		}
		if !isJSONOutput() {
			fmt.Println(ui.Hint("Server stopped."))
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddrFlag, "addr", "", "Listen address (default from config, 127.0.0.1:8484)")
	rootCmd.AddCommand(serveCmd)
}
