package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"frontdesk/internal/ai"
	"frontdesk/internal/config"
	"frontdesk/internal/engine"
	"frontdesk/internal/journal"
	"frontdesk/internal/notify"
	"frontdesk/internal/server"
	frontdesksdk "frontdesk/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "frontdesk",
	Short: "Frontdesk CLI",
	Long: `Frontdesk runs a virtual office behind a chat inbox.
How it works:
- Messages: anything your users send lands at the front desk, where the orchestrator reads it.
- Conversations: each sender gets one open conversation at a time; it moves gathering -> processing -> generating -> review -> complete.
- Workers: a small roster (copywriter, researcher, ...) picks up requests once all the needed details are in.
- Artifacts: the deliverables workers produce - newsletters, research notes - waiting for your approve/reject.
- Review loop: rejecting with feedback reopens the conversation; the same worker drafts a new version.
- Event log: diary of everything that happened, view with 'frontdesk log tail'.`,
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
	viper.SetEnvPrefix("FRONTDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "API server URL for client commands")
	rootCmd.PersistentFlags().String("api-key", "", "API key for client commands")
	rootCmd.PersistentFlags().String("token", "", "bearer token for client commands")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("api-key", rootCmd.PersistentFlags().Lookup("api-key"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(conversationCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(artifactCmd())
	rootCmd.AddCommand(logCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the office: HTTP API, orchestrator and worker roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			j, err := journal.Open(workspace)
			if err != nil {
				return err
			}
			defer j.Close()

			gw, err := ai.New(cfg.AI)
			if err != nil {
				return err
			}
			var notifier notify.Notifier
			if cfg.Notify.RelayURL != "" {
				notifier = notify.NewRelay(cfg.Notify.RelayURL)
			} else {
				notifier = notify.LogNotifier{}
			}
			e := engine.New(cfg, gw, j, notifier)

			jwtSecret := cfg.Auth.JWTSecret
			if env := os.Getenv("FRONTDESK_JWT_SECRET"); env != "" {
				jwtSecret = env
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:              jwtSecret,
					APIKeyHashes:           cfg.Auth.APIKeyHashes,
					AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving %s on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
				cfg.Office.Name, addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage office configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default frontdesk.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func messageCmd() *cobra.Command {
	msg := &cobra.Command{Use: "message", Short: "Send messages into the office"}
	msg.AddCommand(messageSendCmd())
	return msg
}

func messageSendCmd() *cobra.Command {
	var owner, text string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a chat message as an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" || text == "" {
				return fmt.Errorf("--owner and --text required")
			}
			res, err := newClient().SendMessage(cmd.Context(), owner, text)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			fmt.Printf("conversation %s  phase=%s intent=%s\n", res.ConversationID, res.Phase, res.Intent)
			for _, reply := range res.Replies {
				fmt.Println("<", reply)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner key (for example chat:12345)")
	cmd.Flags().StringVar(&text, "text", "", "message text")
	return cmd
}

func conversationCmd() *cobra.Command {
	conv := &cobra.Command{Use: "conversation", Short: "Inspect conversations"}
	conv.AddCommand(conversationListCmd())
	conv.AddCommand(conversationShowCmd())
	return conv
}

func conversationListCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := newClient().Conversations(cmd.Context(), owner)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Owner", "Phase", "Intent", "Assignee", "Updated"})
			for _, c := range items {
				assignee := ""
				if c.AssignedTo != nil {
					assignee = *c.AssignedTo
				}
				tw.AppendRow(table.Row{c.ID, c.OwnerKey, c.Phase, c.Intent, assignee, c.UpdatedAt})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "filter by owner key")
	return cmd
}

func conversationShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := newClient().Conversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSONOrTable(conv)
		},
	}
	return cmd
}

func workerCmd() *cobra.Command {
	worker := &cobra.Command{Use: "worker", Short: "Inspect the worker roster"}
	worker.AddCommand(workerListCmd())
	return worker
}

func workerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := newClient().Workers(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Role", "Status", "Current Task", "Done", "Approval"})
			for _, w := range items {
				current := ""
				if w.CurrentTask != nil {
					current = *w.CurrentTask
				}
				tw.AppendRow(table.Row{w.ID, w.Name, w.Role, w.Status, current, w.CompletedTasks, fmt.Sprintf("%.0f%%", w.ApprovalRate*100)})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Inspect tasks"}
	task.AddCommand(taskListCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := newClient().Tasks(cmd.Context(), conversationID)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assignee", "Conversation"})
			for _, t := range items {
				tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.AssignedTo, t.ConversationID})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "filter by conversation id")
	return cmd
}

func artifactCmd() *cobra.Command {
	art := &cobra.Command{Use: "artifact", Short: "Review artifacts"}
	art.AddCommand(artifactListCmd())
	art.AddCommand(artifactShowCmd())
	art.AddCommand(artifactApproveCmd())
	art.AddCommand(artifactRejectCmd())
	return art
}

func artifactListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := newClient().Artifacts(cmd.Context(), status)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Subject", "Status", "Created By", "Conversation"})
			for _, a := range items {
				tw.AppendRow(table.Row{a.ID, a.Subject, a.Status, a.CreatedBy, a.ConversationID})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (pending-review, approved, rejected)")
	return cmd
}

func artifactShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			art, err := newClient().Artifact(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(art)
			}
			fmt.Printf("%s  [%s]\n\n%s\n", art.Subject, art.Status, art.Body)
			if art.Feedback != "" {
				fmt.Println("feedback:", art.Feedback)
			}
			return nil
		},
	}
	return cmd
}

func artifactApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			art, err := newClient().Approve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSONOrTable(art)
		},
	}
	return cmd
}

func artifactRejectCmd() *cobra.Command {
	var feedback string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject an artifact with feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(feedback) == "" {
				return fmt.Errorf("--feedback required")
			}
			art, err := newClient().Reject(cmd.Context(), args[0], feedback)
			if err != nil {
				return err
			}
			return printJSONOrTable(art)
		},
	}
	cmd.Flags().StringVar(&feedback, "feedback", "", "what should change in the next version")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: messages, assignments, settlements, reviews.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events from the local journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer j.Close()
			events, err := j.LatestEvents(cmd.Context(), n, evtType, entityKind, entityID)
			if err != nil {
				return err
			}
			return printJSONOrTable(events)
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func newClient() *frontdesksdk.Client {
	c := frontdesksdk.New(viper.GetString("server"))
	c.APIKey = viper.GetString("api-key")
	c.BearerToken = viper.GetString("token")
	c.ActorID = viper.GetString("actor-id")
	return c
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
