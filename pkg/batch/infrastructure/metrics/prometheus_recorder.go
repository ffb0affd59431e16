package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	port "github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-import/pkg/batch/core/config"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/customer-import/pkg/batch/core/metrics"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of metrics.MetricRecorder.
// A batch process is short-lived, so metrics leave the process through Flush
// (Pushgateway and/or node_exporter textfile) instead of a scrape endpoint.
type PrometheusRecorder struct {
	registry *prometheus.Registry
	cfg      config.PrometheusConfig
	jobLabel string

	jobDurationSeconds *prometheus.HistogramVec
	jobStatusCounter   *prometheus.CounterVec

	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	stepReadCount       *prometheus.CounterVec
	stepProcessCount    *prometheus.CounterVec
	stepWriteCount      *prometheus.CounterVec
	stepFilterCount     *prometheus.CounterVec
	stepCommitCount     *prometheus.CounterVec
	stepRollbackCount   *prometheus.CounterVec

	itemSkipCounter  *prometheus.CounterVec
	itemRetryCounter *prometheus.CounterVec

	operationDurationSeconds *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a PrometheusRecorder with its own registry.
// jobLabel is the Pushgateway grouping job name.
func NewPrometheusRecorder(cfg config.PrometheusConfig, jobLabel string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		cfg:      cfg,
		jobLabel: jobLabel,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_job_duration_seconds",
			Help:    "Duration of batch job executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "status", "exit_status"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_job_status_total",
			Help: "Total number of batch job executions by status.",
		}, []string{"job_name", "status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_step_duration_seconds",
			Help:    "Duration of batch step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "status", "exit_status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_status_total",
			Help: "Total number of batch step executions by status.",
		}, []string{"job_name", "step_name", "status"}),
		stepReadCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_read_total",
			Help: "Total items read by step.",
		}, []string{"job_name", "step_name"}),
		stepProcessCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_process_total",
			Help: "Total items processed by step.",
		}, []string{"job_name", "step_name"}),
		stepWriteCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_write_total",
			Help: "Total items written by step.",
		}, []string{"job_name", "step_name"}),
		stepFilterCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_filter_total",
			Help: "Total items filtered by step.",
		}, []string{"job_name", "step_name"}),
		stepCommitCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_commit_total",
			Help: "Total chunk commits by step.",
		}, []string{"job_name", "step_name"}),
		stepRollbackCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_rollback_total",
			Help: "Total chunk rollbacks by step.",
		}, []string{"job_name", "step_name"}),
		itemSkipCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_skip_total",
			Help: "Total items skipped by step and reason.",
		}, []string{"job_name", "step_name", "reason"}),
		itemRetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_retry_total",
			Help: "Total item retries by step and reason.",
		}, []string{"job_name", "step_name", "reason"}),
		operationDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_operation_duration_seconds",
			Help:    "Duration of named batch operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	registry.MustRegister(
		r.jobDurationSeconds,
		r.jobStatusCounter,
		r.stepDurationSeconds,
		r.stepStatusCounter,
		r.stepReadCount,
		r.stepProcessCount,
		r.stepWriteCount,
		r.stepFilterCount,
		r.stepCommitCount,
		r.stepRollbackCount,
		r.itemSkipCounter,
		r.itemRetryCounter,
		r.operationDurationSeconds,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobStatusCounter.WithLabelValues(execution.JobName, execution.Status.String()).Inc()
}

func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.jobStatusCounter.WithLabelValues(execution.JobName, execution.Status.String()).Inc()
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	r.jobDurationSeconds.WithLabelValues(execution.JobName, execution.Status.String(), execution.ExitStatus.String()).Observe(duration)
	logger.Debugf("Metrics: Job '%s' ended. Duration: %.3fs", execution.JobName, duration)
}

func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.stepStatusCounter.WithLabelValues(jobNameOf(execution), execution.StepName, execution.Status.String()).Inc()
}

// RecordStepEnd records the step duration and the filter count, which no item-level hook reports.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	jobName := jobNameOf(execution)
	r.stepStatusCounter.WithLabelValues(jobName, execution.StepName, execution.Status.String()).Inc()
	r.stepFilterCount.WithLabelValues(jobName, execution.StepName).Add(float64(execution.FilterCount))
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	r.stepDurationSeconds.WithLabelValues(jobName, execution.StepName, execution.Status.String(), execution.ExitStatus.String()).Observe(duration)
}

func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.stepReadCount.WithLabelValues(jobNameFromContext(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	r.stepProcessCount.WithLabelValues(jobNameFromContext(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.stepWriteCount.WithLabelValues(jobNameFromContext(ctx), stepName).Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.itemSkipCounter.WithLabelValues(jobNameFromContext(ctx), stepName, reason).Inc()
}

func (r *PrometheusRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.itemRetryCounter.WithLabelValues(jobNameFromContext(ctx), stepName, reason).Inc()
}

func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.stepCommitCount.WithLabelValues(jobNameFromContext(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.stepRollbackCount.WithLabelValues(jobNameFromContext(ctx), stepName).Inc()
}

// RecordDuration observes duration under the operation label. tags are not used as labels.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDurationSeconds.WithLabelValues(name).Observe(duration.Seconds())
}

// Flush pushes the registry to the Pushgateway and writes the textfile, whichever are configured.
func (r *PrometheusRecorder) Flush(ctx context.Context) error {
	var result *multierror.Error
	if r.cfg.PushgatewayURL != "" {
		if err := push.New(r.cfg.PushgatewayURL, r.jobLabel).Gatherer(r.registry).PushContext(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to push metrics to '%s': %w", r.cfg.PushgatewayURL, err))
		}
	}
	if r.cfg.TextfilePath != "" {
		if err := prometheus.WriteToTextfile(r.cfg.TextfilePath, r.registry); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to write metrics textfile '%s': %w", r.cfg.TextfilePath, err))
		}
	}
	return result.ErrorOrNil()
}

func jobNameOf(se *model.StepExecution) string {
	if se != nil && se.JobExecution != nil {
		return se.JobExecution.JobName
	}
	return ""
}

func jobNameFromContext(ctx context.Context) string {
	return jobNameOf(port.GetStepExecutionFromContext(ctx))
}

var (
	_ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
	_ metrics.Flusher        = (*PrometheusRecorder)(nil)
)
