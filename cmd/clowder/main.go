package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"clowder/internal/breeds"
	"clowder/internal/config"
	"clowder/internal/db"
	"clowder/internal/domain"
	"clowder/internal/engine"
	"clowder/internal/migrate"
	"clowder/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "clowder",
	Short: "Clowder CLI",
	Long: `Clowder manages a spy cat agency: agents, missions, and targets.
- Agents: field operatives with a validated breed and at most one active mission.
- Missions: units of work owning one or more targets; completed missions freeze.
- Targets: sub-objectives living and dying with their mission.
Breeds are checked against an external catalog on every create/update.`,
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
	viper.SetEnvPrefix("CLOWDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/clowder.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(configCmd())
}

// loadConfig honors an explicit --config path, otherwise reads the
// workspace clowder.yml (falling back to defaults when absent).
func loadConfig() (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		return config.FromFile(path)
	}
	return config.Load(viper.GetString("workspace"))
}

// withEngine opens the workspace database, applies migrations, and
// hands a ready engine to fn, closing the connection afterwards.
func withEngine(ctx context.Context, fn func(ctx context.Context, e engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	validator := breeds.NewCatalogClient(cfg.Breeds.CatalogURL, cfg.BreedTimeout())
	return fn(ctx, engine.New(conn, cfg, validator))
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			validator := breeds.NewCatalogClient(cfg.Breeds.CatalogURL, cfg.BreedTimeout())
			e := engine.New(conn, cfg, validator)
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("serving", "addr", cfg.Server.Addr, "base_path", cfg.Server.BasePath, "db", db.Path(workspace))
				errCh <- srv.ListenAndServe()
			}()
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-stop:
				logger.Info("shutting down")
				return srv.Shutdown(cmd.Context())
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default clowder.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
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
	return cfg
}

func agentCmd() *cobra.Command {
	agent := &cobra.Command{Use: "agent", Short: "Manage agents"}
	agent.AddCommand(agentListCmd())
	agent.AddCommand(agentShowCmd())
	agent.AddCommand(agentCreateCmd())
	agent.AddCommand(agentUpdateCmd())
	agent.AddCommand(agentDeleteCmd())
	agent.AddCommand(agentAssignCmd())
	return agent
}

func agentListCmd() *cobra.Command {
	var skip, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListAgents(ctx, skip, limit)
				if err != nil {
					return err
				}
				return printAgents(items)
			})
		},
	}
	cmd.Flags().IntVar(&skip, "skip", 0, "rows to skip")
	cmd.Flags().IntVar(&limit, "limit", -1, "max rows (negative = config default)")
	return cmd
}

func agentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetAgent(ctx, id)
				if err != nil {
					return err
				}
				return printAgents([]domain.Agent{a})
			})
		},
	}
	return cmd
}

func agentFlags(cmd *cobra.Command, opts *engine.AgentOptions) {
	cmd.Flags().StringVar(&opts.Name, "name", "", "agent name")
	cmd.Flags().IntVar(&opts.ExperienceYears, "experience", 0, "years of experience")
	cmd.Flags().StringVar(&opts.Breed, "breed", "", "breed (validated against the catalog)")
	cmd.Flags().Float64Var(&opts.Salary, "salary", 0, "salary")
}

func agentCreateCmd() *cobra.Command {
	var opts engine.AgentOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAgent(ctx, opts)
				if err != nil {
					return err
				}
				return printAgents([]domain.Agent{a})
			})
		},
	}
	agentFlags(cmd, &opts)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("breed")
	return cmd
}

func agentUpdateCmd() *cobra.Command {
	var opts engine.AgentOptions
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace an agent's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateAgent(ctx, id, opts)
				if err != nil {
					return err
				}
				return printAgents([]domain.Agent{a})
			})
		},
	}
	agentFlags(cmd, &opts)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("breed")
	return cmd
}

func agentDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteAgent(ctx, id); err != nil {
					return err
				}
				fmt.Println("agent deleted")
				return nil
			})
		},
	}
	return cmd
}

func agentAssignCmd() *cobra.Command {
	var missionID int64
	cmd := &cobra.Command{
		Use:   "assign-mission <id>",
		Short: "Assign a mission to an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if missionID == 0 {
				return fmt.Errorf("--mission required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.AssignMission(ctx, id, missionID)
				if err != nil {
					return err
				}
				return printAgents([]domain.Agent{a})
			})
		},
	}
	cmd.Flags().Int64Var(&missionID, "mission", 0, "mission id")
	_ = cmd.MarkFlagRequired("mission")
	return cmd
}

func missionCmd() *cobra.Command {
	mission := &cobra.Command{Use: "mission", Short: "Manage missions"}
	mission.AddCommand(missionListCmd())
	mission.AddCommand(missionShowCmd())
	mission.AddCommand(missionCreateCmd())
	mission.AddCommand(missionUpdateCmd())
	mission.AddCommand(missionDeleteCmd())
	return mission
}

func missionListCmd() *cobra.Command {
	var skip, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListMissions(ctx, skip, limit)
				if err != nil {
					return err
				}
				return printMissions(items)
			})
		},
	}
	cmd.Flags().IntVar(&skip, "skip", 0, "rows to skip")
	cmd.Flags().IntVar(&limit, "limit", -1, "max rows (negative = config default)")
	return cmd
}

func missionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a mission with its targets and assigned agents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.GetMission(ctx, id)
				if err != nil {
					return err
				}
				return printMissions([]domain.Mission{m})
			})
		},
	}
	return cmd
}

func missionCreateCmd() *cobra.Command {
	var description string
	var completed bool
	var targetSpecs []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission with targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseTargetSpecs(targetSpecs)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMission(ctx, engine.MissionOptions{
					Description: description,
					IsCompleted: completed,
					Targets:     targets,
				})
				if err != nil {
					return err
				}
				return printMissions([]domain.Mission{m})
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "mission description")
	cmd.Flags().BoolVar(&completed, "completed", false, "mark completed")
	cmd.Flags().StringArrayVar(&targetSpecs, "target", nil, "target spec name:country[:notes] (repeatable)")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func missionUpdateCmd() *cobra.Command {
	var description string
	var completed bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.UpdateMission(ctx, id, description, completed)
				if err != nil {
					return err
				}
				return printMissions([]domain.Mission{m})
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "mission description")
	cmd.Flags().BoolVar(&completed, "completed", false, "mark completed")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func missionDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a mission and its targets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteMission(ctx, id); err != nil {
					return err
				}
				fmt.Println("mission deleted")
				return nil
			})
		},
	}
	return cmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// parseTargetSpecs turns name:country[:notes] strings into specs.
func parseTargetSpecs(raw []string) ([]engine.TargetSpec, error) {
	var specs []engine.TargetSpec
	for _, s := range raw {
		parts := strings.SplitN(s, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, errors.New("target spec must be name:country[:notes]")
		}
		spec := engine.TargetSpec{Name: parts[0], Country: parts[1]}
		if len(parts) == 3 {
			spec.Notes = parts[2]
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAgents(items []domain.Agent) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Experience", "Breed", "Salary", "Mission"})
	for _, a := range items {
		mission := "-"
		if a.CurrentMissionID != nil {
			mission = strconv.FormatInt(*a.CurrentMissionID, 10)
		}
		t.AppendRow(table.Row{a.ID, a.Name, a.ExperienceYears, a.Breed, a.Salary, mission})
	}
	t.Render()
	return nil
}

func printMissions(items []domain.Mission) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Description", "Completed", "Targets", "Assigned"})
	for _, m := range items {
		var names []string
		for _, tg := range m.Targets {
			names = append(names, tg.Name)
		}
		var agents []string
		for _, a := range m.AssignedAgents {
			agents = append(agents, a.Name)
		}
		t.AppendRow(table.Row{m.ID, m.Description, m.IsCompleted, strings.Join(names, ","), strings.Join(agents, ",")})
	}
	t.Render()
	return nil
}
