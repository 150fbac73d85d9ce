package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CARDINALITY:
//
// High cardinality attributes (unique values per operation) must never be
// added to spans that contribute to metrics, as they create unbounded metric
// series.
//
// AVOID as span attributes:
// - Recording IDs, file names, download paths
// - Show titles, queries, error messages with dynamic content
// - Timestamps, request IDs, UUIDs
//
// SAFE attributes (bounded sets):
// - Operation types ("sync", "download", "upload", "delete")
// - Status values ("success", "error")
// - Client types ("tablo", "putio", "s3")
// - Component names ("database", "device", "fetcher")
//
// High-cardinality data belongs in log records, correlated via request and
// trace IDs.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation instruments a generic operation with telemetry.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		span.SetAttributes(attribute.Bool("error", true))
		// The full error lands in the span status, not in an attribute.
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", operationStatus(err)),
		attribute.Float64("duration_seconds", duration.Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	t.RecordDBOperation(operation, operationStatus(err), time.Since(start))

	return err
}

// InstrumentClientOperation instruments outbound client operations (device
// API, cloud backends).
func (t *Telemetry) InstrumentClientOperation(ctx context.Context, client, operation string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "client_"+operation, "client", func(ctx context.Context) error {
		ctx, span := t.tracer.Start(ctx, "client_"+operation)
		defer span.End()

		span.SetAttributes(
			attribute.String("client.type", client),
			attribute.String("client.operation", operation),
		)

		return fn(ctx)
	})

	t.RecordClientOperation(client, operation, operationStatus(err))

	return err
}

// InstrumentSync instruments one catalog synchronization pass.
func (t *Telemetry) InstrumentSync(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "catalog_sync", "sync", fn)

	t.RecordSync(operationStatus(err), time.Since(start))

	return err
}

// InstrumentDownload instruments one recording download.
func (t *Telemetry) InstrumentDownload(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.IncrementActiveDownloads()
	defer t.DecrementActiveDownloads()

	err := t.InstrumentOperation(ctx, "download", "fetcher", fn)

	t.RecordDownload(operationStatus(err), time.Since(start))

	return err
}

// InstrumentUpload instruments one cloud upload.
func (t *Telemetry) InstrumentUpload(ctx context.Context, provider string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	t.IncrementActiveUploads()
	defer t.DecrementActiveUploads()

	err := t.InstrumentOperation(ctx, "upload", "uploader", func(ctx context.Context) error {
		ctx, span := t.tracer.Start(ctx, "upload")
		defer span.End()

		span.SetAttributes(attribute.String("upload.provider", provider))

		return fn(ctx)
	})

	t.RecordUpload(provider, operationStatus(err))

	return err
}

func operationStatus(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
