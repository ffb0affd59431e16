// Package job assembles the importCustomers job.
package job

import (
	"database/sql"
	"time"

	appconfig "github.com/tigerroll/customer-import/internal/config"
	"github.com/tigerroll/customer-import/internal/domain/entity"
	"github.com/tigerroll/customer-import/internal/repository"
	customerprocessor "github.com/tigerroll/customer-import/internal/step/processor"
	customerreader "github.com/tigerroll/customer-import/internal/step/reader"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/database"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/storage"
	batchreader "github.com/tigerroll/customer-import/pkg/batch/component/step/reader"
	"github.com/tigerroll/customer-import/pkg/batch/component/step/writer"
	"github.com/tigerroll/customer-import/pkg/batch/component/tasklet/generic"
	port "github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	config "github.com/tigerroll/customer-import/pkg/batch/core/config"
	batchjob "github.com/tigerroll/customer-import/pkg/batch/core/job"
	domainrepo "github.com/tigerroll/customer-import/pkg/batch/core/domain/repository"
	"github.com/tigerroll/customer-import/pkg/batch/core/metrics"
	"github.com/tigerroll/customer-import/pkg/batch/core/support/incrementer"
	tx "github.com/tigerroll/customer-import/pkg/batch/core/tx"
	"github.com/tigerroll/customer-import/pkg/batch/engine/step/item"
	"github.com/tigerroll/customer-import/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/customer-import/pkg/batch/listener/logging"
	"github.com/tigerroll/customer-import/pkg/batch/listener/tracing"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
)

const (
	// JobName is the name the job is launched and stored under.
	JobName = "importCustomers"
	// ImportStepName is the chunk step loading the CSV file.
	ImportStepName = "stepProduct"
	// ArchiveStepName is the optional step writing a Parquet snapshot of the table.
	ArchiveStepName = "archiveCustomers"

	writerName        = "customerWriter"
	archiveReaderName = "customerTableReader"
	archiveWriterName = "customerArchiveWriter"
)

const archiveQuery = "SELECT id, first_name, last_name, email, gender, contact_no, country, dob FROM customers ORDER BY id"

// Dependencies are the collaborators the job is built from.
type Dependencies struct {
	Config          *config.Config
	AppConfig       *appconfig.Config
	JobRepository   domainrepo.JobRepository
	TxManager       tx.TransactionManager
	DBResolver      database.DBConnectionResolver
	StorageResolver storage.StorageConnectionResolver
	MetricRecorder  metrics.MetricRecorder
	Tracer          metrics.Tracer
	// Now dates the archive partition. Defaults to time.Now.
	Now func() time.Time
}

// NewImportCustomersJob builds importCustomers: stepProduct, followed by archiveCustomers
// when customer.archive.enabled is set.
func NewImportCustomersJob(deps Dependencies) (*batchjob.SimpleJob, error) {
	steps := []port.Step{NewImportStep(deps)}

	if deps.AppConfig.Customer.Archive.Enabled {
		archiveStep, err := NewArchiveStep(deps)
		if err != nil {
			return nil, err
		}
		steps = append(steps, archiveStep)
	}

	inc, err := incrementer.New(deps.Config.Surfin.Batch.Incrementer, "run.id")
	if err != nil {
		return nil, exception.NewBatchError(JobName, "invalid incrementer", err, false, false)
	}

	opts := []batchjob.Option{
		batchjob.WithListeners(logging.NewLoggingJobListener(), tracing.NewTracingJobListener(tracerOrNoop(deps.Tracer))),
		batchjob.WithMetrics(deps.MetricRecorder, deps.Tracer),
	}
	if inc != nil {
		opts = append(opts, batchjob.WithIncrementer(inc))
	}
	return batchjob.NewSimpleJob(JobName, deps.JobRepository, steps, opts...), nil
}

// NewImportStep builds stepProduct: CSV reader, CustomerProcessor and the configured writer.
func NewImportStep(deps Dependencies) port.Step {
	cfg := deps.AppConfig
	return item.NewChunkStep[*entity.Customer, *entity.Customer](
		ImportStepName,
		customerreader.NewCustomerReader(cfg, deps.StorageResolver),
		customerprocessor.NewCustomerProcessor(cfg.Customer.Processor),
		NewCustomerWriter(cfg.Customer.Writer),
		deps.JobRepository,
		deps.TxManager,
		item.WithBatchConfig(deps.Config.Surfin.Batch),
		item.WithListeners(
			logging.NewLoggingStepListener(),
			logging.NewLoggingChunkListener(),
			logging.NewLoggingItemListener(),
			logging.NewLoggingSkipListener(),
			logging.NewLoggingRetryItemListener(),
			tracing.NewTracingStepListener(tracerOrNoop(deps.Tracer)),
		),
	)
}

// NewCustomerWriter returns the writer for cfg.Mode: one upsert per record through
// CustomerRepository ("save"), or one upsert per BulkSize records ("bulk").
func NewCustomerWriter(cfg appconfig.WriterConfig) port.ItemWriter[*entity.Customer] {
	if cfg.Mode == appconfig.WriterModeBulk {
		return writer.NewSqlBulkWriter[*entity.Customer](writerName, cfg.BulkSize, entity.CustomerTableName, []string{"id"}, entity.CustomerUpdateColumns).
			WithCheck(repository.CheckID).
			WithKey(func(c *entity.Customer) string { return c.ID })
	}
	repo := repository.NewCustomerRepository()
	return writer.NewRepositoryItemWriter[*entity.Customer](writerName, repo)
}

// NewArchiveStep builds archiveCustomers, which streams the customers table into Parquet
// files under <output_base_dir>/dt=<run date>/.
func NewArchiveStep(deps Dependencies) (port.Step, error) {
	archive := deps.AppConfig.Customer.Archive
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	partition := "dt=" + now().Format("2006-01-02")

	parquetWriter, err := writer.NewParquetWriter[entity.Customer](
		archiveWriterName,
		archive.ParquetWriterConfig(),
		deps.StorageResolver,
		nil,
		func(entity.Customer) (string, error) { return partition, nil },
	)
	if err != nil {
		return nil, err
	}

	tableReader := batchreader.NewSqlCursorReader[entity.Customer](
		archiveReaderName,
		deps.DBResolver,
		deps.Config.Surfin.Infrastructure.WorkloadDBRef,
		archiveQuery,
		nil,
		scanCustomer,
	)

	exportTasklet := generic.NewExportTasklet[entity.Customer](ArchiveStepName, tableReader, parquetWriter, archive.BatchSize)
	return tasklet.NewTaskletStep(ArchiveStepName, exportTasklet, deps.JobRepository,
		tasklet.WithListeners(logging.NewLoggingStepListener(), tracing.NewTracingStepListener(tracerOrNoop(deps.Tracer))),
		tasklet.WithReadOnly(),
	), nil
}

func scanCustomer(rows *sql.Rows) (entity.Customer, error) {
	var c entity.Customer
	err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Gender, &c.ContactNo, &c.Country, &c.DOB)
	return c, err
}

func tracerOrNoop(t metrics.Tracer) metrics.Tracer {
	if t == nil {
		return metrics.NewNoOpTracer()
	}
	return t
}
