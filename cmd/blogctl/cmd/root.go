// Package cmd provides the blogctl commands.
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-blog-client/apiclient"
	"github.com/jrsteele09/go-blog-client/blog"
	"github.com/jrsteele09/go-blog-client/credentials"
	"github.com/jrsteele09/go-blog-client/internal/config"
)

var (
	cfg      = config.New()
	baseURL  string
	logLevel string
	noBanner bool
)

var rootCmd = &cobra.Command{
	Use:   "blogctl",
	Short: "Command line client for the blog API",
	Long: `blogctl talks to the blog REST backend with a persistent session.

Access tokens are refreshed automatically when they expire. Set SESSION_PASSPHRASE
to keep the session in an encrypted file between runs.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(level)
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
			With().Timestamp().Str("env", cfg.GetEnv()).Logger()
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", cfg.GetBaseURL(),
		"API base URL (default: API_BASE_URL env var)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", cfg.GetLogLevel(),
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noBanner, "no-banner", false, "do not print the banner")
}

// app is the wiring shared by the API commands.
type app struct {
	client  *apiclient.Client
	service *blog.Service
	history *blog.SearchHistory
}

func newApp() (*app, error) {
	store, err := newStore()
	if err != nil {
		return nil, err
	}

	options := append(apiclient.FromConfig(cfg),
		apiclient.WithLogger(log.Logger),
		apiclient.WithSessionInvalidatedHandler(func(e apiclient.SessionInvalidated) {
			log.Warn().Err(e.Cause).Msg("Session expired, run 'blogctl login' to sign in again")
		}),
	)
	client, err := apiclient.New(baseURL, store, options...)
	if err != nil {
		return nil, err
	}

	history, err := blog.NewSearchHistory(blog.WithHistoryFile(cfg.GetSearchHistoryFile()))
	if err != nil {
		log.Err(err).Msg("Ignoring unreadable search history")
		history, _ = blog.NewSearchHistory()
	}

	return &app{
		client:  client,
		service: blog.NewService(client, blog.WithSearchHistory(history), blog.WithServiceLogger(log.Logger)),
		history: history,
	}, nil
}

// newStore returns the encrypted session file when a passphrase is configured,
// otherwise a cookie store that lives for this run only.
func newStore() (credentials.Store, error) {
	if passphrase := cfg.GetSessionPassphrase(); passphrase != "" {
		return credentials.NewFileStore(cfg.GetSessionFile(), passphrase)
	}

	log.Debug().Msg("SESSION_PASSPHRASE not set, session is kept in memory")
	return credentials.NewCookieStore(baseURL,
		credentials.WithSecureCookies(cfg.GetSecureCookies()),
		credentials.WithCookieNames(cfg.GetAccessTokenCookie(), cfg.GetRefreshTokenCookie()),
		credentials.WithCookieExpiry(cfg.GetAccessTokenExpiry(), cfg.GetRefreshTokenExpiry()),
	)
}

func displayAppname(cmd *cobra.Command) {
	if noBanner {
		return
	}
	myFigure := figure.NewFigure(cfg.GetAppName(), "cybermedium", true)
	fmt.Fprintln(cmd.OutOrStdout(), myFigure.String())
}
