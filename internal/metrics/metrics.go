// Package metrics publishes dispatch cycle telemetry to AWS CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchCycleMetrics emits one batch of metrics per dispatch cycle:
//
//   - JobsProcessed / JobsSucceeded / JobsFailed: counts from the report
//   - EmailsProcessed: attempted email queue items
//   - CycleDuration: wall-clock time of the cycle, in milliseconds
//
// Publish failures are logged and otherwise ignored; telemetry must never
// fail a cycle that already completed.
type CloudWatchCycleMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchCycleMetrics creates a publisher for the given namespace.
func NewCloudWatchCycleMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchCycleMetrics {
	return &CloudWatchCycleMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordCycle publishes the cycle's counters and duration in a single
// PutMetricData call.
func (m *CloudWatchCycleMetrics) RecordCycle(ctx context.Context, report *types.CycleReport, duration time.Duration) {
	if report == nil {
		return
	}

	counter := func(name string, value int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(float64(value)),
			Unit:       cwtypes.StandardUnitCount,
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			counter("JobsProcessed", report.Processed),
			counter("JobsSucceeded", report.Successful),
			counter("JobsFailed", report.Failed),
			counter("EmailsProcessed", report.EmailsProcessed),
			{
				MetricName: aws.String("CycleDuration"),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish cycle metrics",
			slog.Any("error", err),
			slog.Int("jobs_processed", report.Processed),
			slog.Int("emails_processed", report.EmailsProcessed))
	}
}
