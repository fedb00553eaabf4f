package cli

import (
	"fmt"
	"time"

	"github.com/probelab/scout/internal/config"
	"github.com/probelab/scout/internal/logger"
	"github.com/probelab/scout/pkg/agent"
	"github.com/probelab/scout/pkg/session"
	"github.com/probelab/scout/pkg/tools"
)

// runtime bundles the wired collaborators a command needs.
type runtime struct {
	cfg      *config.Config
	log      *logger.Logger
	store    *session.Store
	executor *tools.Executor
	runner   *agent.Runner
}

// buildRuntime loads configuration and wires the full stack: logger, session
// store, tool executor, model provider, agent runner. Configuration problems
// surface here, before anything starts serving.
func buildRuntime(sink agent.Sink) (*runtime, error) {
	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: true,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zl := log.GetZerolog()

	var archive *session.Archive
	if cfg.Sessions.ArchiveOnDrop {
		archive, err = session.NewArchive(cfg.Sessions.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open session archive: %w", err)
		}
	}

	store, err := session.New(session.Config{
		MaxMessages:   cfg.Sessions.MaxMessages,
		MaxSessions:   cfg.Sessions.MaxSessions,
		TTL:           time.Duration(cfg.Sessions.TTLMinutes) * time.Minute,
		SweepInterval: time.Duration(cfg.Sessions.SweepMinutes) * time.Minute,
		Archive:       archive,
		Logger:        zl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	searchClient, err := tools.NewSearchClient(tools.SearchClientConfig{
		APIKey:     cfg.Search.APIKey,
		Endpoint:   cfg.Search.Endpoint,
		MaxResults: cfg.Search.MaxResults,
		Timeout:    time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	fetchClient := tools.NewFetchClient(tools.FetchClientConfig{
		MaxChars: cfg.Fetch.MaxChars,
		Timeout:  time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
	})

	executor := tools.New(zl)
	if err := executor.Register(tools.SearchTool(searchClient)); err != nil {
		return nil, err
	}
	if err := executor.Register(tools.FetchTool(fetchClient)); err != nil {
		return nil, err
	}

	profile := cfg.AI.Profiles[0]
	provider, err := agent.NewProvider(agent.Credential{
		Provider: profile.Provider,
		APIKey:   profile.APIKey,
	})
	if err != nil {
		return nil, err
	}

	runner, err := agent.NewRunner(agent.Config{
		Store:         store,
		Executor:      executor,
		Provider:      provider,
		Logger:        zl,
		Model:         cfg.Agent.Model,
		FinalModel:    cfg.Agent.FinalModel,
		MaxIterations: cfg.Agent.MaxIterations,
		SystemPrompt:  cfg.Agent.SystemPrompt,
		Temperature:   cfg.Agent.Temperature,
		MaxTokens:     cfg.Agent.MaxTokens,
		Sink:          sink,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent runner: %w", err)
	}

	return &runtime{
		cfg:      cfg,
		log:      log,
		store:    store,
		executor: executor,
		runner:   runner,
	}, nil
}

func (rt *runtime) close() {
	rt.store.Close()
	rt.log.Close()
}
