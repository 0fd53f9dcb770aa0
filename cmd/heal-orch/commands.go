package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/ci"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/config"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/diagnose"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/fixer"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/gitops"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/llm"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/notify"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/orchestrator"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/prompts"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/registry"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/testrunner"
	"github.com/hochfrequenz/ci-heal-orchestrator/web/api"
)

var (
	servePort int
	serveHost string
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator API server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "host to bind (overrides config)")
	rootCmd.AddCommand(serveCmd)

	runCmd := &cobra.Command{
		Use:   "run REPO_URL TEAM_NAME LEADER_NAME",
		Short: "Run one healing pipeline in the foreground",
		Args:  cobra.ExactArgs(3),
		RunE:  runOnce,
	}
	rootCmd.AddCommand(runCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// stack bundles everything a pipeline needs.
type stack struct {
	cfg      *config.Config
	git      *gitops.Service
	orch     *orchestrator.Orchestrator
	registry *registry.Registry
	store    *registry.Store
}

func buildStack(cfg *config.Config, withStore bool) (*stack, error) {
	loader := prompts.DefaultLoader()
	llmClient := llm.New(cfg.LLM, loader)

	git := gitops.New(cfg.Git)
	parser := &diagnose.Parser{CloneMarker: cfg.Git.ClonesDir}
	runner := testrunner.New(cfg.Runner, parser)
	applicator := fixer.New(llmClient)

	var poller orchestrator.CIPoller
	if cfg.Git.PAT != "" {
		poller = ci.New(cfg.CI, cfg.Git.PAT)
	}

	var store *registry.Store
	if withStore {
		var err error
		store, err = registry.NewStore(config.ExpandPath(cfg.Registry.DatabasePath))
		if err != nil {
			return nil, fmt.Errorf("opening run store: %w", err)
		}
	}
	reg := registry.New(cfg.Registry, store)

	orch := orchestrator.New(git, runner, applicator, llmClient, poller, reg, notify.FromConfig(cfg.Notifications))

	return &stack{cfg: cfg, git: git, orch: orch, registry: reg, store: store}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}

	st, err := buildStack(cfg, true)
	if err != nil {
		return err
	}
	defer st.store.Close()

	if err := st.registry.StartSweeper(cfg.Registry.SweepCron); err != nil {
		return fmt.Errorf("starting registry sweeper: %w", err)
	}
	defer st.registry.StopSweeper()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := api.NewServer(st.registry, st.orch, cfg, addr)
	st.orch.SetEvents(server)

	// Credential changes in the config file take effect without a
	// restart.
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	watcher, err := config.NewWatcher(path, func(updated *config.Config) {
		st.git.SetPAT(updated.Git.PAT)
		log.Printf("[serve] configuration reloaded from %s", path)
	})
	if err != nil {
		log.Printf("[serve] config watcher unavailable: %v", err)
	} else {
		if err := watcher.Start(context.Background()); err != nil {
			log.Printf("[serve] config watcher failed to start: %v", err)
		}
		defer watcher.Stop()
	}

	log.Printf("[serve] listening on %s", addr)
	return server.Start()
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := buildStack(cfg, false)
	if err != nil {
		return err
	}

	run := &domain.Run{
		ID:         uuid.NewString(),
		RepoURL:    args[0],
		TeamName:   args[1],
		LeaderName: args[2],
		BranchName: domain.DeriveBranchName(args[1], args[2]),
		Status:     domain.RunQueued,
		StartedAt:  time.Now().UTC(),
		Live:       domain.NewLiveStatus(),
	}
	st.registry.Add(run)

	fmt.Printf("Run %s on branch %s\n", run.ID, run.BranchName)
	st.orch.Execute(context.Background(), run)

	state := run.State()
	if state.Status == domain.RunFailed {
		return fmt.Errorf("run failed: %s", state.Error)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(state.Result)
}
