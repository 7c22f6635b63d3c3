package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-blog-client/blog"
	"github.com/jrsteele09/go-blog-client/internal/fakebackend"
)

var (
	devAddr     string
	devEmail    string
	devPassword string
	devTokenTTL time.Duration
	devOrigins  []string
)

var devServerCmd = &cobra.Command{
	Use:   "dev-server",
	Short: "Run an in-memory blog backend for local testing",
	Long: `dev-server serves the blog API from memory under the path of --base-url,
with one seeded account and a few posts. Use a short --access-ttl to watch
blogctl refresh its token.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		displayAppname(cmd)

		u, err := url.Parse(baseURL)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}

		backend := fakebackend.New(fakebackend.WithTokenExpiry(devTokenTTL, 7*24*time.Hour))
		if err := seed(backend); err != nil {
			return err
		}

		handler := fakebackend.ChainMiddleware(backend.ServeHTTP,
			fakebackend.RecoverMiddleware(log.Logger),
			fakebackend.LoggingMiddleware(log.Logger),
			fakebackend.CorsMiddleware(devOrigins...),
		)

		mux := http.NewServeMux()
		prefix := strings.TrimRight(u.Path, "/")
		if prefix == "" {
			mux.Handle("/", handler)
		} else {
			mux.Handle(prefix+"/", http.StripPrefix(prefix, handler))
		}

		server := &http.Server{Addr: devAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		errs := make(chan error, 1)
		go func() { errs <- listenAndServe(server) }()

		select {
		case err := <-errs:
			return err
		case <-waitForStopSignal():
		}
		return shutdown(server)
	},
}

func seed(backend *fakebackend.Backend) error {
	userID, err := backend.AddUser(devEmail, "demo", devPassword)
	if err != nil {
		return fmt.Errorf("seeding user: %w", err)
	}
	backend.AddPost(userID, blog.PostInput{
		Title:    "Welcome to the blog",
		Body:     "This post was created by the dev server.",
		Tags:     []string{"intro"},
		Category: "web",
	})
	backend.AddPost(userID, blog.PostInput{
		Title:    "Refreshing tokens in Go",
		Body:     "One refresh at a time, everyone else waits in line.",
		Tags:     []string{"go", "auth"},
		Category: "go",
	})
	log.Info().Str("email", devEmail).Msg("Seeded demo account")
	return nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Dev server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("Dev server stopped")
	return nil
}

func init() {
	devServerCmd.Flags().StringVar(&devAddr, "addr", ":8080", "listen address")
	devServerCmd.Flags().StringVar(&devEmail, "email", "demo@example.com", "seeded account email")
	devServerCmd.Flags().StringVar(&devPassword, "password", "demo", "seeded account password")
	devServerCmd.Flags().StringSliceVar(&devOrigins, "allowed-origin", []string{"http://localhost:3000"}, "browser origins allowed to call the API")
	devServerCmd.Flags().DurationVar(&devTokenTTL, "access-ttl", 15*time.Minute, "access token lifetime")

	rootCmd.AddCommand(devServerCmd)
}
