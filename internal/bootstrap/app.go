package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"interview-analyzer/internal/analysis"
	"interview-analyzer/internal/batch"
	"interview-analyzer/internal/evaluations"
	"interview-analyzer/internal/inventory"
	"interview-analyzer/internal/jobs"
	"interview-analyzer/internal/llm"
	"interview-analyzer/internal/llm/keywords"
	openai "interview-analyzer/internal/llm/openai"
	"interview-analyzer/internal/queue"
	"interview-analyzer/internal/scoring"
	"interview-analyzer/internal/services/health"
	"interview-analyzer/internal/shared/config"
	"interview-analyzer/internal/shared/server"
	"interview-analyzer/internal/shared/storage/db"
	"interview-analyzer/internal/shared/storage/object"
	localstore "interview-analyzer/internal/shared/storage/object/local"
	s3store "interview-analyzer/internal/shared/storage/object/s3"
)

// Role selects database pool defaults for the process being built.
type Role int

const (
	RoleServer Role = iota
	RoleWorker
	RoleCLI
)

// App holds shared dependencies.
type App struct {
	Config       config.Config
	Router       *gin.Engine
	DB           *sql.DB
	Store        object.Store
	Queue        queue.Client
	JobsRepo     jobs.Repo
	EvalRepo     evaluations.Repo
	Scanner      *inventory.Scanner
	Pipeline     *scoring.Pipeline
	Batch        *batch.Queue
	Orchestrator *analysis.Orchestrator
	Health       *health.Service
}

// Build prepares shared dependencies and the router. The orchestrator is not
// started; callers own its lifecycle.
func Build(ctx context.Context, cfg config.Config, role Role) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := buildDB(ctx, cfg, role)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}
	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Health = buildHealth(app)
	app.Router = server.NewRouter(server.RouterDeps{
		Config: app.Config,
		Health: server.HealthFunc(func(c *gin.Context) any {
			return app.Health.Status(c.Request.Context())
		}),
		Handlers: []server.RouteRegistrar{
			analysis.NewHandler(app.Orchestrator),
			evaluations.NewHandler(app.EvalRepo),
		},
	})
	return app, nil
}

// Close releases the database pool.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

func buildDB(ctx context.Context, cfg config.Config, role Role) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	switch role {
	case RoleWorker:
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultWorkerOptions()))
	case RoleCLI:
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	default:
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if cfg.SQSQueueURL == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	cfg := app.Config
	if app.DB != nil {
		app.JobsRepo = &jobs.PGRepo{DB: app.DB}
		app.EvalRepo = &evaluations.PGRepo{DB: app.DB}
	} else {
		app.JobsRepo = jobs.NewMemoryRepo()
		app.EvalRepo = evaluations.NewMemoryRepo()
	}

	rules, err := keywords.LoadFile(cfg.KeywordRulesPath)
	if err != nil {
		return fmt.Errorf("load keyword rules: %w", err)
	}
	analyzer := keywords.New(rules)

	var generator llm.CommentaryGenerator = analyzer
	if cfg.LLMProvider == "openai" {
		client, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel)
		if err != nil {
			return err
		}
		generator = client
	}

	app.Batch = batch.New(&batch.CommentaryProcessor{
		Jobs:        app.JobsRepo,
		Generator:   generator,
		Keywords:    analyzer,
		Evaluations: app.EvalRepo,
	}, cfg.BatchItemDelay)

	app.Scanner = &inventory.Scanner{
		Lister:      inventory.StoreLister{Store: app.Store},
		History:     app.JobsRepo,
		MaxAttempts: cfg.ScanMaxAttempts,
	}
	app.Pipeline = &scoring.Pipeline{
		Downloader: &scoring.StoreDownloader{Store: app.Store, TempDir: cfg.TempDir},
		Primary:    buildScorer("primary", cfg.PrimaryScorerURL, cfg),
		Gaze:       buildScorer("gaze", cfg.GazeScorerURL, cfg),
	}

	orch, err := analysis.New(analysis.Deps{
		Jobs:        app.JobsRepo,
		Scanner:     app.Scanner,
		Pipeline:    app.Pipeline,
		Batch:       app.Batch,
		Evaluations: app.EvalRepo,
	}, analysis.Config{
		Bucket:        cfg.S3Bucket,
		InterJobDelay: cfg.InterJobDelay,
	})
	if err != nil {
		return err
	}
	app.Orchestrator = orch
	return nil
}

func buildScorer(name, endpoint string, cfg config.Config) scoring.Scorer {
	if strings.TrimSpace(endpoint) == "" {
		log.Printf("bootstrap: no %s scorer endpoint; results fall back to defaults", name)
		return scoring.DefaultsScorer{}
	}
	return scoring.NewHTTPScorer(endpoint, cfg.ScorerAPIKey, cfg.ScorerTimeout)
}

func buildHealth(app *App) *health.Service {
	checks := map[string]health.CheckFunc{
		"database": nil,
		"object_store": func(ctx context.Context) error {
			return app.Store.Ping(ctx, app.Config.S3Bucket)
		},
		"queue": nil,
	}
	if app.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			return db.Ping(ctx, app.DB, 0)
		}
	}
	if app.Queue != nil {
		checks["queue"] = app.Queue.Ping
	}
	return health.NewService(checks)
}
