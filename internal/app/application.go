// Package app is the composition root of the customer import. It wires configuration,
// connections, the job repository and the importCustomers job explicitly, in dependency order.
package app

import (
	"context"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"

	appconfig "github.com/tigerroll/customer-import/internal/config"
	appjob "github.com/tigerroll/customer-import/internal/job"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm/sqlite"
	storageAdapter "github.com/tigerroll/customer-import/pkg/batch/adapter/storage"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/customer-import/pkg/batch/component/tasklet/migration"
	"github.com/tigerroll/customer-import/pkg/batch/component/tasklet/migration/filesystem"
	"github.com/tigerroll/customer-import/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/customer-import/pkg/batch/core/config"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	jobRepo "github.com/tigerroll/customer-import/pkg/batch/core/domain/repository"
	jobRunner "github.com/tigerroll/customer-import/pkg/batch/core/job/runner"
	"github.com/tigerroll/customer-import/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/customer-import/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/customer-import/pkg/batch/infrastructure/telemetry"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
	"github.com/tigerroll/customer-import/resources"
)

const moduleName = "app"

// Options are the start-up settings given on the command line.
type Options struct {
	// EnvFilePath is loaded into the environment before the configuration is read.
	EnvFilePath string
	// ConfigPath is an optional YAML file overriding the embedded configuration.
	ConfigPath string
	// InputPath, when set, replaces customer.input with a local file.
	InputPath string
	// ChunkSize and Concurrency override surfin.batch when positive.
	ChunkSize   int
	Concurrency int

	// EmbeddedConfig defaults to resources.ApplicationYAML.
	EmbeddedConfig config.EmbeddedConfig
	// MigrationsFS defaults to resources.MigrationsFS().
	MigrationsFS fs.FS
	// LogOutput defaults to os.Stderr.
	LogOutput io.Writer
	// Parameters are passed to the launcher as given.
	Parameters model.JobParameters
	// Now dates the archive partition.
	Now func() time.Time
}

// Application holds the wired components of one run.
type Application struct {
	cfg    *config.Config
	appCfg *appconfig.Config
	opts   Options

	dbProviders     []database.DBProvider
	dbResolver      *gormadapter.GormDBConnectionResolver
	storageResolver *storageAdapter.ConnectionResolver
	telemetry       *telemetry.Telemetry
	jobRepository   jobRepo.JobRepository
	launcher        *usecase.SimpleJobLauncher
}

// New loads the configuration, opens connections, applies migrations and builds the job.
// On error every resource opened so far is released.
func New(ctx context.Context, opts Options) (_ *Application, err error) {
	if opts.EmbeddedConfig == nil {
		opts.EmbeddedConfig = resources.ApplicationYAML
	}
	if opts.MigrationsFS == nil {
		opts.MigrationsFS = resources.MigrationsFS()
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}

	cfg, err := config.LoadConfig(config.LoadOptions{
		EnvFilePath:  opts.EnvFilePath,
		Embedded:     opts.EmbeddedConfig,
		ExternalPath: opts.ConfigPath,
	})
	if err != nil {
		return nil, err
	}
	if opts.ChunkSize > 0 {
		cfg.Surfin.Batch.ChunkSize = opts.ChunkSize
	}
	if opts.Concurrency > 0 {
		cfg.Surfin.Batch.Concurrency = opts.Concurrency
	}

	appCfg, err := appconfig.Load(cfg.Sources)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load customer settings", err, false, false)
	}
	if opts.InputPath != "" {
		appCfg.Customer.Input = appconfig.InputConfig{Path: opts.InputPath}
	}

	logger.Configure(cfg.Surfin.System.Logging.Format, opts.LogOutput)
	logger.SetLogLevel(cfg.Surfin.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Surfin.System.Logging.Level)
	model.RegisterSensitiveKeys(cfg.Surfin.Security.MaskedParameterKeys...)

	a := &Application{cfg: cfg, appCfg: appCfg, opts: opts}
	defer func() {
		if err != nil {
			if closeErr := a.Close(context.WithoutCancel(ctx)); closeErr != nil {
				logger.Warnf("Failed to release resources after start-up error: %v", closeErr)
			}
		}
	}()

	a.dbProviders = []database.DBProvider{sqlite.NewProvider(cfg), mysql.NewProvider(cfg), postgres.NewProvider(cfg)}
	a.dbResolver = gormadapter.NewGormDBConnectionResolver(cfg, a.dbProviders...)
	a.storageResolver = storageAdapter.NewConnectionResolver(cfg, local.NewProvider(cfg), gcs.NewProvider(cfg))

	if err = a.migrate(ctx); err != nil {
		return nil, err
	}

	if a.jobRepository, err = a.newJobRepository(); err != nil {
		return nil, err
	}

	if a.telemetry, err = telemetry.Setup(ctx, cfg.Surfin.Telemetry); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to set up telemetry", err, false, false)
	}

	workloadRef := cfg.Surfin.Infrastructure.WorkloadDBRef
	job, err := appjob.NewImportCustomersJob(appjob.Dependencies{
		Config:          cfg,
		AppConfig:       appCfg,
		JobRepository:   a.jobRepository,
		TxManager:       gormadapter.NewGormTransactionManager(a.dbResolver, workloadRef),
		DBResolver:      a.dbResolver,
		StorageResolver: a.storageResolver,
		MetricRecorder:  a.telemetry.Recorder,
		Tracer:          a.telemetry.Tracer,
		Now:             opts.Now,
	})
	if err != nil {
		return nil, err
	}

	a.launcher = usecase.NewSimpleJobLauncher(a.jobRepository, jobRunner.NewSimpleJobRunner(a.jobRepository), job)
	return a, nil
}

// migrate applies the batch metadata migrations (SQL job repository only) and the customers table migrations.
func (a *Application) migrate(ctx context.Context) error {
	infra := a.cfg.Surfin.Infrastructure
	if !infra.Migration.Enabled {
		logger.Infof("Database migration is disabled.")
		return nil
	}

	var targets []migration.Target
	if infra.JobRepository.Type != "inmemory" {
		targets = append(targets, migration.Target{
			DBRef: infra.JobRepositoryDBRef,
			FS:    filesystem.FrameworkMigrationsFS(),
			Table: migration.FixedFrameworkMigrationsTable,
		})
	}
	targets = append(targets, migration.Target{
		DBRef: infra.WorkloadDBRef,
		FS:    a.opts.MigrationsFS,
		Table: migration.FixedAppMigrationsTable,
	})
	return migration.NewRunner(a.cfg, a.dbProviders...).Run(ctx, targets...)
}

func (a *Application) newJobRepository() (jobRepo.JobRepository, error) {
	infra := a.cfg.Surfin.Infrastructure
	switch infra.JobRepository.Type {
	case "sql", "":
		return sqlrepo.NewSQLJobRepository(a.dbResolver, infra.JobRepositoryDBRef), nil
	case "inmemory":
		logger.Warnf("Using the in-memory JobRepository; execution history is lost on exit.")
		return inmemory.NewInMemoryJobRepository(), nil
	default:
		return nil, exception.NewBatchErrorf(moduleName, "unknown job repository type '%s'", infra.JobRepository.Type)
	}
}

// Config returns the framework configuration.
func (a *Application) Config() *config.Config { return a.cfg }

// AppConfig returns the customer settings.
func (a *Application) AppConfig() *appconfig.Config { return a.appCfg }

// Run launches importCustomers and returns its finished execution.
// The execution's status tells whether the import succeeded.
func (a *Application) Run(ctx context.Context) (*model.JobExecution, error) {
	params := a.opts.Parameters
	if params.Params == nil {
		params = model.NewJobParameters()
	}
	jobName := a.cfg.Surfin.Batch.JobName
	if jobName == "" {
		jobName = appjob.JobName
	}

	execution, err := a.launcher.Launch(ctx, jobName, params)
	if err != nil {
		return execution, err
	}
	logger.Infof("Job '%s' (Execution ID: %s) finished with status %s.", jobName, execution.ID, execution.Status)
	return execution, nil
}

// Close flushes telemetry and closes every storage and database connection.
func (a *Application) Close(ctx context.Context) error {
	var result *multierror.Error
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if a.jobRepository != nil {
		if err := a.jobRepository.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if a.storageResolver != nil {
		if err := a.storageResolver.CloseAll(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if a.dbResolver != nil {
		if err := a.dbResolver.CloseAll(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	_ = logger.Sync()
	return result.ErrorOrNil()
}

// Run builds an Application for opts, launches the job and releases everything.
func Run(ctx context.Context, opts Options) (*model.JobExecution, error) {
	a, err := New(ctx, opts)
	if err != nil {
		return nil, err
	}
	execution, runErr := a.Run(ctx)
	if closeErr := a.Close(context.WithoutCancel(ctx)); closeErr != nil {
		logger.Warnf("Failed to close application resources: %v", closeErr)
	}
	return execution, runErr
}
