// Package main is the Sylas edge worker's single entry point: it loads
// config.json, wires every internal package together, and serves the
// inbound tracker-webhook HTTP surface until told to stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sylas-dev/sylas/internal/common/config"
	"github.com/sylas-dev/sylas/internal/common/logger"
	"github.com/sylas-dev/sylas/internal/events/bus"
	"github.com/sylas-dev/sylas/internal/ingress"
	"github.com/sylas-dev/sylas/internal/persistence"
	"github.com/sylas-dev/sylas/internal/procedure"
	"github.com/sylas-dev/sylas/internal/relay"
	"github.com/sylas-dev/sylas/internal/runner"
	"github.com/sylas-dev/sylas/internal/runner/dockerrt"
	"github.com/sylas-dev/sylas/internal/session"
	"github.com/sylas-dev/sylas/internal/trackersvc"
	"github.com/sylas-dev/sylas/internal/trackersvc/climock"
	"github.com/sylas-dev/sylas/internal/trackersvc/linear"
	"github.com/sylas-dev/sylas/internal/trackersvc/slackmirror"
	"github.com/sylas-dev/sylas/internal/translate"
)

func main() {
	sylasHome := os.Getenv("SYLAS_HOME")
	if sylasHome == "" {
		sylasHome = "./sylas_home"
	}
	if err := os.MkdirAll(sylasHome, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create sylas_home: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(sylasHome)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting sylas", zap.String("sylas_home", sylasHome))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus, err := bus.New(cfg.NATS.URL, "sylas", log)
	if err != nil {
		log.Fatal("failed connecting to event bus", zap.Error(err))
	}
	defer eventBus.Close()

	logDir := filepath.Join(sylasHome, "logs")
	standaloneFactory := runner.NewFactory(runner.Commands{}, logDir, log)

	var dockerFactory *dockerrt.Factory
	dockerClient, err := dockerrt.NewClient(log)
	if err != nil {
		log.Warn("docker client unavailable; docker-runtime repositories will fail to start", zap.Error(err))
	} else if err := dockerClient.Ping(ctx); err != nil {
		log.Warn("docker daemon not reachable; docker-runtime repositories will fail to start", zap.Error(err))
		dockerClient.Close()
		dockerClient = nil
	} else {
		defer dockerClient.Close()
		log.Info("connected to docker daemon")
		dockerFactory = dockerrt.NewFactory(dockerrt.Commands{}, logDir, log, dockerClient)
	}

	buildRunner := func(runnerType runner.Type, externalSessionID, runtime, containerImage string) (runner.Supervisor, error) {
		if runtime != "docker" {
			return standaloneFactory.Build(runnerType, externalSessionID)
		}
		if dockerFactory == nil {
			return nil, fmt.Errorf("repository requires docker runtime but no docker daemon is available")
		}
		return dockerFactory.Build(runnerType, externalSessionID, containerImage)
	}

	// ============================================
	// TRACKERS
	// ============================================
	credStore := persistence.NewFileCredentialStore(filepath.Join(sylasHome, "credentials.json"))

	// OAuth token exchange is out of scope (spec's non-goals); this stub
	// lets AuthorizedRoundTripper's refresh-on-401 path fail loudly
	// instead of silently using a stale token.
	linearRefresh := func(ctx context.Context, cred trackersvc.Credential) (trackersvc.Credential, error) {
		return trackersvc.Credential{}, fmt.Errorf("oauth token refresh not implemented; re-seed credentials.json for workspace %s", cred.WorkspaceID)
	}
	linearOnRefreshed := func(cred trackersvc.Credential) error {
		return credStore.Put(cred)
	}

	climockTracker := climock.New(log)
	linearTracker := linear.New(linear.Config{
		WorkspaceID: os.Getenv("SYLAS_LINEAR_WORKSPACE_ID"),
		Endpoint:    os.Getenv("SYLAS_LINEAR_ENDPOINT"),
		Store:       credStore,
		Log:         log,
	}, linearRefresh, linearOnRefreshed)
	slackTracker := slackmirror.New(os.Getenv("SYLAS_SLACK_BOT_TOKEN"), log)

	trackers := map[string]trackersvc.Tracker{
		climockTracker.ID(): climockTracker,
		linearTracker.ID():  linearTracker,
		slackTracker.ID():   slackTracker,
	}

	registry := translate.NewRegistry(map[string]translate.Translator{
		"cli-mock":     &translate.CLIMockTranslator{},
		"linear":       &translate.LinearTranslator{},
		"slack-mirror": &translate.SlackTranslator{},
	})

	// ============================================
	// SESSION LIFECYCLE MANAGER
	// ============================================
	classify := session.NewClassifier(standaloneFactory, runner.TypeClaude, filepath.Join(sylasHome, "classifier"))
	engine := procedure.NewEngine(procedure.Config{Classify: classify, Log: log})

	persister := persistence.NewFileSnapshotPersister(filepath.Join(sylasHome, "state.json"))

	// Worktree creation mechanics are out of scope; this stub hands back
	// the repository's already-configured workspace directory.
	createWorkspace := func(ctx context.Context, repo config.Repository, issue *trackersvc.Issue) (string, error) {
		if repo.WorkspaceDir == "" {
			return "", fmt.Errorf("repository %s has no workspaceDir configured", repo.ID)
		}
		return repo.WorkspaceDir, nil
	}

	manager := session.NewManager(session.Config{
		Engine:               engine,
		Factory:              standaloneFactory,
		Trackers:             trackers,
		Runners:              cfg.Runners,
		CreateWorkspace:      createWorkspace,
		Bus:                  eventBus,
		Persister:            persister,
		Log:                  log,
		BuildRunner:          buildRunner,
		PostToolHooks:        relay.BuildPostToolHooks,
		ClassifierRunnerType: runner.TypeClaude,
		DefaultRunnerType:    runner.TypeClaude,
		ShutdownTimeout:      10 * time.Second,
	})
	if err := manager.Replay(); err != nil {
		log.Fatal("failed replaying persisted session state", zap.Error(err))
	}
	log.Info("replayed persisted session state")

	// ============================================
	// ACTIVITY RELAY
	// ============================================
	activityRelay := relay.New(relay.Config{
		Bus:        eventBus,
		TrackerFor: manager.TrackerForSession,
		Log:        log,
	})
	if err := activityRelay.Start(); err != nil {
		log.Fatal("failed starting activity relay", zap.Error(err))
	}

	// ============================================
	// CONFIG HOT RELOAD (repository list only, spec.md §3)
	// ============================================
	watcher, err := config.NewWatcher(sylasHome, func(reloaded *config.Config) {
		log.Info("reloaded config.json", zap.Int("repositories", len(reloaded.Repositories)))
		cfg.Repositories = reloaded.Repositories
	})
	if err != nil {
		log.Warn("config hot reload disabled", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	// ============================================
	// INGRESS HTTP SERVER
	// ============================================
	ingressSrv := ingress.NewServer(ingress.Config{
		Cfg:        cfg,
		Translator: registry,
		Manager:    manager,
		Bus:        eventBus,
		Log:        log,
	})
	defer ingressSrv.Close()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host(), cfg.Server.Port),
		Handler:      ingressSrv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("ingress server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ingress server failed", zap.Error(err))
		}
	}()

	// ============================================
	// GRACEFUL SHUTDOWN
	// ============================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down sylas")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("ingress server shutdown error", zap.Error(err))
	}
	if err := activityRelay.Stop(); err != nil {
		log.Error("activity relay stop error", zap.Error(err))
	}

	manager.Shutdown(shutdownCtx)

	log.Info("sylas stopped")
}
