package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/analysis"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/complaint"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/logging"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/memory"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/triage"
)

var (
	dbPath      string
	owner       string
	analysisURL string
	token       string
	formURL     string
	timeout     time.Duration
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "triagectl",
	Short: "Terminal client for the incident triage assistant",
	Long: `triagectl talks to the incident classifier from a terminal.

The conversation is stored locally in SQLite and restored on the next run,
so a chat can be continued until it is cleared.`,
	SilenceUsage: true,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start or continue the conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return withRouter(ctx, toastNotifier{out: cmd.ErrOrStderr()}, func(r *triage.Router) error {
			c := newClient(r, cmd.OutOrStdout())
			c.prompt = term.IsTerminal(int(os.Stdin.Fd()))
			c.printHistory()
			return c.run(ctx, cmd.InOrStdin())
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRouter(cmd.Context(), nil, func(r *triage.Router) error {
			newClient(r, cmd.OutOrStdout()).printHistory()
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Erase the stored conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRouter(cmd.Context(), nil, func(r *triage.Router) error {
			r.NewChat(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Conversation cleared.")
			return nil
		})
	},
}

func init() {
	home, _ := os.UserHomeDir()
	defaultDB := filepath.Join(home, ".triagectl", "chat.db")
	defaultOwner := os.Getenv("USER")
	if defaultOwner == "" {
		defaultOwner = "local"
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "SQLite file holding the conversation")
	rootCmd.PersistentFlags().StringVar(&owner, "owner", defaultOwner, "conversation owner")
	rootCmd.PersistentFlags().StringVar(&analysisURL, "analysis-url", os.Getenv("ANALYSIS_URL"), "classifier endpoint (empty uses the offline classifier)")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("TRIAGE_TOKEN"), "bearer token forwarded to the classifier")
	rootCmd.PersistentFlags().StringVar(&formURL, "form-url", "http://localhost:3000/user-dashboard/complaint", "complaint form opened on submit")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "classifier request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")

	rootCmd.AddCommand(chatCmd, historyCmd, clearCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withRouter opens the local store, restores the conversation and runs fn.
func withRouter(ctx context.Context, notifier triage.Notifier, fn func(*triage.Router) error) error {
	logger, err := logging.NewDevelopment(verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	blobs, err := memory.NewSQLiteStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer blobs.Close()

	analyzer, err := analysis.NewAnalyzer(analysis.Config{URL: strings.TrimSpace(analysisURL), Timeout: timeout})
	if err != nil {
		return err
	}
	logger.Debug("client ready",
		zap.String("db", dbPath),
		zap.String("analysis_mode", analysis.ModeOf(analyzer)),
	)

	store := conversation.NewStore(conversation.Key(owner), blobs, logger)
	store.Restore(ctx)
	return fn(triage.New(triage.Config{
		Store:        store,
		Analyzer:     analyzer,
		Materializer: complaint.Materializer{FormURL: formURL},
		Token:        token,
		Notifier:     notifier,
		Logger:       logger,
	}))
}
