package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"smartqa-backend/internal/analyses"
	"smartqa-backend/internal/artifacts"
	"smartqa-backend/internal/billing"
	"smartqa-backend/internal/explore"
	"smartqa-backend/internal/generation"
	"smartqa-backend/internal/llm"
	openai "smartqa-backend/internal/llm/openai"
	"smartqa-backend/internal/pipeline"
	"smartqa-backend/internal/queue"
	"smartqa-backend/internal/runs"
	"smartqa-backend/internal/services/health"
	"smartqa-backend/internal/shared/auth"
	"smartqa-backend/internal/shared/config"
	"smartqa-backend/internal/shared/server"
	"smartqa-backend/internal/shared/storage/db"
	"smartqa-backend/internal/shared/storage/object"
	localstore "smartqa-backend/internal/shared/storage/object/local"
	s3store "smartqa-backend/internal/shared/storage/object/s3"
	"smartqa-backend/internal/shared/telemetry"
	"smartqa-backend/internal/testcases"
	"smartqa-backend/internal/workerproc"
)

const localQueueBackoff = 2 * time.Second

// App holds shared dependencies for the API and worker binaries.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	// LocalQueue is set when no SQS queue is configured; its consumer runs
	// stage jobs in-process.
	LocalQueue *queue.MemoryQueue

	AnalysesRepo  analyses.Repo
	ArtifactsRepo artifacts.Repo
	TestCasesRepo testcases.Repo
	RunsRepo      runs.Repo

	BillingService  *billing.Service
	AnalysesService *analyses.Service
	Orchestrator    *pipeline.Orchestrator
}

// Options tweak Build for a specific binary.
type Options struct {
	// DBOptions overrides the pool settings; the zero value uses server defaults.
	DBOptions *db.Options
	// SkipRouter leaves Router nil, used by the worker.
	SkipRouter bool
}

// Build prepares shared dependencies and the HTTP router.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := buildDB(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: sqlDB, Store: store}
	if err := buildQueue(ctx, app); err != nil {
		return nil, err
	}
	buildRepos(app)

	var billingStore billing.Store
	if app.DB != nil {
		billingStore = billing.NewPGStore(app.DB)
	} else {
		billingStore = billing.NewMemoryStore(billing.DefaultPlans()...)
	}
	app.BillingService = billing.NewService(billingStore, cfg.DefaultPlan)
	app.AnalysesService = analyses.NewService(app.AnalysesRepo, app.BillingService, app.Store, app.Queue)

	orch, err := buildOrchestrator(app)
	if err != nil {
		return nil, err
	}
	app.Orchestrator = orch
	if app.LocalQueue != nil {
		app.LocalQueue.Consume(app.deliverLocal)
	}

	if opts.SkipRouter {
		return app, nil
	}
	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.IsDevLike())
	if err != nil {
		return nil, err
	}
	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		Verifier:        verifier,
		AnalysisHandler: analyses.NewHandler(app.AnalysesService),
		ArtifactHandler: artifacts.NewHandler(artifacts.NewService(app.ArtifactsRepo, app.AnalysesRepo)),
		TestCaseHandler: testcases.NewHandler(testcases.NewService(app.TestCasesRepo, app.AnalysesRepo)),
		RunHandler:      runs.NewHandler(app.RunsRepo, app.AnalysesRepo),
		BillingHandler:  billing.NewHandler(app.BillingService),
		Health:          app.health(),
	})
	return app, nil
}

// Close releases the database pool and waits for in-process jobs.
func (a *App) Close() {
	if a.LocalQueue != nil {
		a.LocalQueue.Wait()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

func (a *App) health() *health.Service {
	if a.DB == nil {
		return health.NewService(nil)
	}
	return health.NewService(a.DB)
}

func buildDB(ctx context.Context, cfg config.Config, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	poolOpts := db.DefaultServerOptions()
	if opts.DBOptions != nil {
		poolOpts = *opts.DBOptions
	}
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(poolOpts))
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if cfg.IsDevLike() {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("dev migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, app *App) error {
	if app.Config.QueueURL != "" {
		client, err := queue.NewSQSClient(ctx, app.Config.AWSRegion, app.Config.QueueURL)
		if err != nil {
			return err
		}
		app.Queue = client
		return nil
	}
	if !app.Config.IsDevLike() {
		return errors.New("SQA_SQS_QUEUE_URL is required outside dev")
	}
	app.LocalQueue = queue.NewMemoryQueue(app.Config.MaxReceives, localQueueBackoff)
	app.Queue = app.LocalQueue
	return nil
}

func buildRepos(app *App) {
	if app.DB != nil {
		app.AnalysesRepo = &analyses.PGRepo{DB: app.DB}
		app.ArtifactsRepo = artifacts.NewPGRepo(app.DB)
		app.TestCasesRepo = testcases.NewPGRepo(app.DB)
		app.RunsRepo = runs.NewPGRepo(app.DB)
		return
	}
	app.AnalysesRepo = analyses.NewMemoryRepo()
	app.ArtifactsRepo = artifacts.NewMemoryRepo()
	app.TestCasesRepo = testcases.NewMemoryRepo()
	app.RunsRepo = runs.NewMemoryRepo()
}

func buildOrchestrator(app *App) (*pipeline.Orchestrator, error) {
	cfg := app.Config
	explorer, err := completer(cfg, "explore", cfg.ExplorerModel)
	if err != nil {
		return nil, err
	}
	cases, err := completer(cfg, "generate_test_case", cfg.TestCaseModel)
	if err != nil {
		return nil, err
	}
	docs, err := completer(cfg, "generate_documentation", cfg.DocsModel)
	if err != nil {
		return nil, err
	}
	scripts, err := completer(cfg, "generate_scripts", cfg.ScriptsModel)
	if err != nil {
		return nil, err
	}

	snapshotter := &explore.RodSnapshotter{
		Bin:        cfg.BrowserBin,
		Headless:   cfg.BrowserHeadless,
		NavTimeout: cfg.BrowserNavTimeout,
	}
	return &pipeline.Orchestrator{
		Analyses:       app.AnalysesService,
		Writer:         app.AnalysesRepo,
		Explorer:       explore.NewAgent(snapshotter, explorer),
		TestCases:      &generation.TestCaseGenerator{Completer: cases},
		Documentation:  &generation.DocumentationGenerator{Completer: docs},
		Scripts:        &generation.ScriptGenerator{Completer: scripts},
		Artifacts:      app.ArtifactsRepo,
		Cases:          app.TestCasesRepo,
		Runs:           app.RunsRepo,
		Queue:          app.Queue,
		ExploreRetries: cfg.ExplorerRetries,
	}, nil
}

// completer builds the per-stage model client. Without an API key dev
// environments get a client that fails every call.
func completer(cfg config.Config, stage, model string) (llm.Completer, error) {
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" && cfg.IsDevLike() {
		telemetry.Warn("bootstrap.llm.unconfigured", map[string]any{"stage": stage})
		return unconfiguredCompleter{}, nil
	}
	client, err := openai.NewClient(cfg.OpenAIAPIKey, model, "", cfg.OpenAITimeout)
	if err != nil {
		return nil, fmt.Errorf("%s llm: %w", stage, err)
	}
	return llm.NewRetrying(client, map[string]any{"stage": stage, "model": model}), nil
}

type unconfiguredCompleter struct{}

func (unconfiguredCompleter) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	_ = ctx
	_ = req
	return llm.Completion{}, errors.New("llm client not configured: set OPENAI_API_KEY")
}

// deliverLocal runs one in-process delivery with the same delete and
// exhaustion rules as the SQS worker.
func (a *App) deliverLocal(ctx context.Context, msg queue.Message, receiveCount int) bool {
	err := workerproc.HandleMessage(ctx, a.Orchestrator, msg)
	decision := workerproc.Decide(err, receiveCount, a.LocalQueue.MaxReceives)
	if decision.Exhausted {
		a.Orchestrator.FailExhausted(ctx, msg, err)
	}
	if err != nil {
		telemetry.Warn("worker.local.failed", map[string]any{
			"job_id":        msg.JobID,
			"stage":         string(msg.Stage),
			"receive_count": receiveCount,
			"decision":      decision.Reason,
			"error":         err.Error(),
		})
	}
	return decision.Delete
}
