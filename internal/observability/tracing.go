package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartDBSpan starts a span for database operations
func StartDBSpan(ctx context.Context, system, operation, table string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("DB %s %s", operation, table),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", table),
		),
	)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SyncMetrics holds the agent's sync engine instruments.
// A nil *SyncMetrics records nothing.
type SyncMetrics struct {
	runs      metric.Int64Counter
	uploads   metric.Int64Counter
	watermark metric.Int64Gauge
}

// NewSyncMetrics creates sync metrics instruments
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter(instrumentationName)

	runs, err := meter.Int64Counter(
		"photosync.sync.runs",
		metric.WithDescription("Sync passes by trigger and final status"),
		metric.WithUnit("{runs}"),
	)
	if err != nil {
		return nil, err
	}

	uploads, err := meter.Int64Counter(
		"photosync.sync.uploads",
		metric.WithDescription("Upload attempts by outcome"),
		metric.WithUnit("{uploads}"),
	)
	if err != nil {
		return nil, err
	}

	watermark, err := meter.Int64Gauge(
		"photosync.sync.watermark",
		metric.WithDescription("Persisted sync watermark in seconds since epoch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		runs:      runs,
		uploads:   uploads,
		watermark: watermark,
	}, nil
}

// RecordRun records a finished sync pass
func (m *SyncMetrics) RecordRun(ctx context.Context, trigger, status string) {
	if m == nil {
		return
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("status", status),
	))
}

// RecordUpload records a single upload attempt
func (m *SyncMetrics) RecordUpload(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordWatermark records the watermark after a pass
func (m *SyncMetrics) RecordWatermark(ctx context.Context, value int64) {
	if m == nil {
		return
	}
	m.watermark.Record(ctx, value)
}

// IntakeMetrics holds the server's upload intake instruments.
// A nil *IntakeMetrics records nothing.
type IntakeMetrics struct {
	photoUploads metric.Int64Counter
	storageUsed  metric.Int64UpDownCounter
}

// NewIntakeMetrics creates intake metrics instruments
func NewIntakeMetrics() (*IntakeMetrics, error) {
	meter := otel.Meter(instrumentationName)

	photoUploads, err := meter.Int64Counter(
		"photosync.photo.uploads",
		metric.WithDescription("Total number of photo uploads received"),
		metric.WithUnit("{uploads}"),
	)
	if err != nil {
		return nil, err
	}

	storageUsed, err := meter.Int64UpDownCounter(
		"photosync.storage.bytes",
		metric.WithDescription("Storage used in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &IntakeMetrics{
		photoUploads: photoUploads,
		storageUsed:  storageUsed,
	}, nil
}

// RecordPhotoUpload records a received upload
func (m *IntakeMetrics) RecordPhotoUpload(ctx context.Context, deviceID string, fileSize int64, duplicate bool) {
	if m == nil {
		return
	}
	m.photoUploads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("device_id", deviceID),
		attribute.Bool("duplicate", duplicate),
	))
	if !duplicate {
		m.storageUsed.Add(ctx, fileSize)
	}
}
