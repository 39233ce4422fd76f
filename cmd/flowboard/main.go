package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soochol/flowboard/internal/apiclient"
	"github.com/soochol/flowboard/internal/auth"
	"github.com/soochol/flowboard/internal/config"
	"github.com/soochol/flowboard/internal/editor"
	"github.com/soochol/flowboard/internal/execution"
	"github.com/soochol/flowboard/internal/notice"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// app carries what every command needs once configuration is loaded.
type app struct {
	configPath string
	apiURL     string
	logLevel   string

	stdout, stderr io.Writer

	cfg    *config.Config
	tokens *auth.TokenStore
	client *apiclient.Client
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: &lockedWriter{w: stdout}, stderr: &lockedWriter{w: stderr}}
	root := &cobra.Command{
		Use:           "flowboard",
		Short:         "Edit and run node-based workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default flowboard.yaml)")
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "workflow service base URL")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		a.loginCmd(),
		a.registerCmd(),
		a.logoutCmd(),
		a.listCmd(),
		a.createCmd(),
		a.showCmd(),
		a.deleteCmd(),
		a.addNodeCmd(),
		a.connectCmd(),
		a.editNodeCmd(),
		a.removeNodeCmd(),
		a.runCmd(),
		a.devServerCmd(),
	)
	return root
}

func (a *app) init() error {
	var err error
	if a.configPath != "" {
		if err = config.LoadEnvFile(".env"); err == nil {
			a.cfg, err = config.Load(a.configPath)
		}
	} else {
		a.cfg, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		a.cfg.API.BaseURL = a.apiURL
	}
	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}
	setupLogger(a.stderr, a.cfg.Log)

	path := a.cfg.API.TokenFile
	if path == "" {
		if path, err = auth.DefaultTokenPath(); err != nil {
			return err
		}
	}
	a.tokens = auth.NewTokenStore(path)

	token := a.cfg.API.Token
	if token == "" {
		token, err = a.tokens.Load()
		switch {
		case errors.Is(err, auth.ErrNoToken):
		case errors.Is(err, auth.ErrExpired):
			slog.Warn("saved token expired", "path", path)
		case err != nil:
			return err
		}
	}
	a.client = apiclient.New(apiclient.Options{
		BaseURL:    a.cfg.API.BaseURL,
		Timeout:    a.cfg.API.Timeout,
		Token:      token,
		RetryCount: a.cfg.API.RetryCount,
		Debug:      strings.EqualFold(a.cfg.Log.Level, "debug"),
	})
	return nil
}

func setupLogger(w io.Writer, cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

func (a *app) requireLogin() error {
	if a.client.Token() == "" {
		return errors.New("not logged in: run `flowboard login` first")
	}
	return nil
}

// session opens workflow id in a fresh editing session whose notices are
// printed to stderr.
func (a *app) session(ctx context.Context, id int64) (*editor.Session, error) {
	if err := a.requireLogin(); err != nil {
		return nil, err
	}
	notices := notice.NewCenter(a.cfg.Notices.Duration)
	notices.Listen(func(n notice.Notice) {
		fmt.Fprintf(a.stderr, "[%s] %s\n", n.Kind, n.Message)
	})
	s := editor.NewSession(editor.Deps{
		Store:   a.client,
		Remote:  a.client,
		Notices: notices,
		Execution: execution.Options{
			PollInterval:    a.cfg.Execution.PollInterval,
			MaxPollFailures: a.cfg.Execution.MaxPollFailures,
		},
	})
	if err := s.Open(ctx, id); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// lockedWriter serializes writes from the poll and watch goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
