package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/pflag"

	"github.com/tigerroll/customer-import/internal/app"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

var (
	envFile     = pflag.String("env-file", ".env", "path of the .env file loaded before the configuration")
	configPath  = pflag.String("config", "", "external YAML file overriding the embedded configuration")
	inputPath   = pflag.String("input", "", "local CSV file to import (overrides customer.input)")
	chunkSize   = pflag.Int("chunk-size", 0, "records per chunk transaction (overrides surfin.batch.chunk_size)")
	concurrency = pflag.Int("concurrency", 0, "maximum chunks in flight (overrides surfin.batch.concurrency)")
)

// main runs importCustomers once. The exit code is 0 only when the job completed.
func main() {
	pflag.Parse()

	// SIGINT/SIGTERM cancel the run; the job finishes as STOPPED.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	execution, err := app.Run(ctx, app.Options{
		EnvFilePath: *envFile,
		ConfigPath:  *configPath,
		InputPath:   *inputPath,
		ChunkSize:   *chunkSize,
		Concurrency: *concurrency,
	})
	if err != nil {
		logger.Errorf("customer import failed: %v", err)
		os.Exit(1)
	}
	if execution.Status != model.BatchStatusCompleted {
		logger.Errorf("Job '%s' (Execution ID: %s) ended with status %s.", execution.JobName, execution.ID, execution.Status)
		os.Exit(1)
	}
}
