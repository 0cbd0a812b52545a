package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"edihub/internal/app"
	"edihub/internal/config"
	"edihub/internal/db"
	"edihub/internal/domain"
	"edihub/internal/ingest"
	"edihub/internal/logging"
	"edihub/internal/migrate"
	"edihub/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "edihub",
	Short: "Outgoing message hub",
	Long: `edihub assembles outgoing market documents and delivers them to actor mailboxes.
- Enqueue: calculation results become outgoing messages, one per gap-free segment, grouped into bundles per mailbox.
- Mailbox: actors peek the oldest bundle as a rendered document (Json, Xml, Ebix) and dequeue it once handled.
- Delegation: a grid operator may hand its mailbox for a process and grid area to another actor for a period.
Configuration lives in <workspace>/edihub.yml and EDIHUB_* environment variables.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(enqueueCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(tokenCmd())
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mailbox HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config.Server
				if cfg.JWTSecret == "" {
					return fmt.Errorf("%s_SERVER_JWT_SECRET is required for bearer auth", config.EnvPrefix)
				}
				handler, err := server.New(server.Config{
					Engine:   rt.Engine,
					BasePath: cfg.BasePath,
					Auth:     server.AuthConfig{JWTSecret: cfg.JWTSecret, Logger: logging.New("http")},
					Metrics:  rt.Registry,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				rt.Log.Infof("serving mailbox API on %s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)", cfg.Addr, cfg.BasePath, cfg.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().String("base-path", "", "API base path")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.base_path", cmd.Flags().Lookup("base-path"))
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.MigrateContext(cmd.Context(), conn); err != nil {
				return err
			}
			v, err := migrate.Version(cmd.Context(), conn)
			if err != nil {
				return err
			}
			fmt.Printf("database %s at schema version %d\n", db.Path(workspace), v)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace configuration"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default edihub.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetViper(), viper.GetString("workspace"))
			if err != nil {
				return err
			}
			c.Server.JWTSecret = redact(c.Server.JWTSecret)
			return printJSON(c)
		},
	}
	cfg.AddCommand(initCmd, showCmd)
	return cfg
}

func enqueueCmd() *cobra.Command {
	var kind, file string
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a calculation result or rejection event from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			t, err := ingest.Decode(kind, data)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				drafts, err := t.Drafts(ctx, rt.Engine.Repo)
				if err != nil {
					return err
				}
				type row struct {
					Receiver  string                   `json:"receiver"`
					Draft     string                   `json:"draft_id"`
					MessageID domain.OutgoingMessageID `json:"message_id"`
				}
				var rows []row
				var errs []error
				for _, d := range drafts {
					ids, err := rt.Engine.Enqueue(ctx, d)
					for _, id := range ids {
						rows = append(rows, row{Receiver: d.Receiver.String(), Draft: d.ID, MessageID: id})
					}
					if err != nil {
						errs = append(errs, fmt.Errorf("draft %s: %w", d.ID, err))
					}
				}
				if viper.GetBool("json") {
					if err := printJSON(rows); err != nil {
						return err
					}
				} else {
					tw := newTable()
					tw.AppendHeader(table.Row{"Receiver", "Draft", "Message"})
					for _, r := range rows {
						tw.AppendRow(table.Row{r.Receiver, r.Draft, r.MessageID})
					}
					fmt.Println(tw.Render())
				}
				return errors.Join(errs...)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "event kind: energy_result_v1, energy_result_v2, wholesale_result, rejected_request")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "event JSON file, - for stdin")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func statusCmd() *cobra.Command {
	var number, role string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the mailbox status of an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags(number, role)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				st, err := rt.Engine.QueueStatus(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Mailbox", "Open", "Closed", "Dequeued", "Waiting messages"})
				tw.AppendRow(table.Row{st.Owner.String(), st.Open, st.Closed, st.Dequeued, st.Messages})
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&number, "actor", "", "actor number")
	cmd.Flags().StringVar(&role, "role", "", "actor role")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func tokenCmd() *cobra.Command {
	var number, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags(number, role)
			if err != nil {
				return err
			}
			cfg, err := config.Load(viper.GetViper(), viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("%s_SERVER_JWT_SECRET is required to sign tokens", config.EnvPrefix)
			}
			now := time.Now()
			tok, err := server.IssueToken(cfg.Server.JWTSecret, actor, jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			})
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&number, "actor", "", "actor number")
	cmd.Flags().StringVar(&role, "role", "", "actor role")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, viper.GetViper(), viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func actorFromFlags(number, role string) (domain.Actor, error) {
	r, err := domain.ParseActorRole(role)
	if err != nil {
		return domain.Actor{}, err
	}
	a := domain.NewActor(number, r)
	return a, a.Validate()
}

func readInput(file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(file)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
