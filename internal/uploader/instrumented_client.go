package uploader

import (
	"context"
	"io"

	"tablodl/internal/telemetry"
)

// InstrumentedClient decorates a CloudClient with upload telemetry: traces,
// per-upload counters and the transferred-bytes total.
type InstrumentedClient struct {
	client    CloudClient
	telemetry *telemetry.Telemetry
}

func NewInstrumentedClient(client CloudClient, tel *telemetry.Telemetry) *InstrumentedClient {
	return &InstrumentedClient{
		client:    client,
		telemetry: tel,
	}
}

func (c *InstrumentedClient) Name() string {
	return c.client.Name()
}

func (c *InstrumentedClient) Authenticate(ctx context.Context) error {
	return c.telemetry.InstrumentClientOperation(ctx, c.client.Name(), "authenticate", func(ctx context.Context) error {
		return c.client.Authenticate(ctx)
	})
}

func (c *InstrumentedClient) Upload(ctx context.Context, r io.Reader, name string, size int64) (string, error) {
	var (
		remoteRef string
		uploadErr error
	)

	instrumentedErr := c.telemetry.InstrumentUpload(ctx, c.client.Name(), func(ctx context.Context) error {
		remoteRef, uploadErr = c.client.Upload(ctx, r, name, size)

		return uploadErr
	})
	if instrumentedErr != nil {
		return "", instrumentedErr
	}

	c.telemetry.AddUploadedBytes(c.client.Name(), size)

	return remoteRef, nil
}
