package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"kudosbot/internal/classify"
	"kudosbot/internal/config"
	"kudosbot/internal/db"
	"kudosbot/internal/domain"
	"kudosbot/internal/events"
	"kudosbot/internal/ledger"
	"kudosbot/internal/migrate"
	"kudosbot/internal/platform"
	"kudosbot/internal/reconcile"
	"kudosbot/internal/render"
	"kudosbot/internal/report"
	"kudosbot/internal/scan"
	"kudosbot/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "kudosbot",
	Short: "Kudosbot CLI",
	Long: `Kudosbot watches a discussion community for award tokens, classifies each
comment against the award rules, keeps a durable point ledger and reconciles
its own replies as comments change between scans.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("KUDOSBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("platform-url", "", "platform API base URL (overrides config)")
	rootCmd.PersistentFlags().String("platform-token", "", "platform API token (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("platform-url", rootCmd.PersistentFlags().Lookup("platform-url"))
	_ = viper.BindPFlag("platform-token", rootCmd.PersistentFlags().Lookup("platform-token"))
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(rescanCmd())
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(awardsCmd())
	rootCmd.AddCommand(dispoCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func newLogger() (*zap.Logger, error) {
	if viper.GetBool("json") {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func newClient(cfg *config.Config) (platform.Client, error) {
	baseURL := viper.GetString("platform-url")
	if baseURL == "" {
		baseURL = cfg.Platform.BaseURL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("platform base URL is required (--platform-url, KUDOSBOT_PLATFORM_URL or config platform.base_url)")
	}
	token := viper.GetString("platform-token")
	if token == "" {
		token = cfg.Platform.Token
	}
	return platform.NewHTTP(baseURL, token), nil
}

// withLedger opens the workspace db, migrates and hands the ledger to fn.
func withLedger(ctx context.Context, fn func(context.Context, ledger.Ledger) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, ledger.Ledger{DB: conn})
}

// withRunner wires the whole pipeline: platform client, classifier,
// renderer, reconciler and scan driver.
func withRunner(ctx context.Context, fn func(context.Context, *scan.Runner) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	l := ledger.Ledger{DB: conn}
	cls := classify.New(client, l, cfg, log)
	rend, err := render.New(cfg.Account.Username, cfg.Community, cfg.TemplatesDir)
	if err != nil {
		return err
	}
	recon := reconcile.New(conn, l, client, cls, rend, log)
	stateFile := filepath.Join(workspace, ".kudosbot", "last-comment-id")
	runner := scan.New(client, recon, l, cfg, log, stateFile)
	return fn(ctx, runner)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot loop until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return withRunner(ctx, func(ctx context.Context, r *scan.Runner) error {
				err := r.Run(ctx)
				if errors.Is(err, scan.ErrStopRequested) || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a single scan pass over new comments",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return withRunner(ctx, func(ctx context.Context, r *scan.Runner) error {
				return r.Once(ctx, false)
			})
		},
	}
}

func rescanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rescan",
		Short: "Replay recent rescannable dispositions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return withRunner(ctx, func(ctx context.Context, r *scan.Runner) error {
				return r.Rescan(ctx)
			})
		},
	}
}

func processCmd() *cobra.Command {
	var noStrict bool
	cmd := &cobra.Command{
		Use:   "process <comment-id>",
		Short: "Classify and reconcile a single comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return withRunner(ctx, func(ctx context.Context, r *scan.Runner) error {
				cm, err := r.Client.Comment(ctx, args[0])
				if err != nil {
					return err
				}
				return r.Recon.ProcessComment(ctx, cm, !noStrict)
			})
		},
	}
	cmd.Flags().BoolVar(&noStrict, "no-strict", false, "skip token, length and duplicate-in-tree checks")
	return cmd
}

func awardsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "awards", Short: "Query the award ledger"}
	cmd.AddCommand(awardsListCmd())
	cmd.AddCommand(awardsTopCmd())
	return cmd
}

func awardsListCmd() *cobra.Command {
	var awardee string
	var year, month int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List awards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				var (
					awards []domain.Award
					err    error
				)
				switch {
				case year != 0 && month != 0:
					awards, err = l.AwardsByMonth(ctx, year, time.Month(month))
				case awardee != "":
					awards, err = l.AwardsByAwardee(ctx, awardee)
				default:
					awards, err = l.AllAwards(ctx)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(awards)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Awardee", "Awarder", "Submission", "Time"})
				for _, a := range awards {
					tw.AppendRow(table.Row{
						a.AwardedCommentAuthor,
						a.AwardingCommentAuthor,
						a.SubmissionTitle,
						time.Unix(int64(a.AwardingCommentTime), 0).UTC().Format(time.RFC3339),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&awardee, "awardee", "", "filter by awarded author")
	cmd.Flags().IntVar(&year, "year", 0, "filter by year (with --month)")
	cmd.Flags().IntVar(&month, "month", 0, "filter by month (with --year)")
	return cmd
}

func awardsTopCmd() *cobra.Command {
	var year, month, limit int
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the scoreboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				var (
					awards []domain.Award
					err    error
				)
				if year != 0 && month != 0 {
					awards, err = l.AwardsByMonth(ctx, year, time.Month(month))
				} else {
					awards, err = l.AllAwards(ctx)
				}
				if err != nil {
					return err
				}
				leaders := report.TopAwardees(awards, limit)
				if viper.GetBool("json") {
					return printJSON(leaders)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "Awardee", "Points"})
				for i, lead := range leaders {
					tw.AppendRow(table.Row{i + 1, lead.Awardee, lead.Awards})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "scoreboard year (with --month)")
	cmd.Flags().IntVar(&month, "month", 0, "scoreboard month (with --year)")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of rows, 0 for all")
	return cmd
}

func dispoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispo <comment-id>",
		Short: "Show the last logged disposition for a comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				entry, err := l.GetDispositionLog(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"comment_id":   entry.CommentID,
					"dispo":        entry.Dispo.String(),
					"reply_id":     entry.ReplyID,
					"comment_time": entry.CommentTime,
				})
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default kudosbot.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("KUDOSBOT_JWT_SECRET"), Logger: log}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("KUDOSBOT_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Ledger:   ledger.Ledger{DB: conn},
				Events:   events.Writer{DB: conn},
				BasePath: basePath,
				Auth:     authCfg,
			})
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Kudosbot API on http://%s%s\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
