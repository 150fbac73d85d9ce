package catalog

import (
	"context"

	"tablodl/internal/telemetry"
)

// InstrumentedDevice wraps a Device with telemetry.
type InstrumentedDevice struct {
	device    Device
	telemetry *telemetry.Telemetry
}

func NewInstrumentedDevice(device Device, tel *telemetry.Telemetry) *InstrumentedDevice {
	return &InstrumentedDevice{device: device, telemetry: tel}
}

func (d *InstrumentedDevice) ID() string { return d.device.ID() }
func (d *InstrumentedDevice) IP() string { return d.device.IP() }

// Recordings lists recording identifiers with telemetry.
func (d *InstrumentedDevice) Recordings(ctx context.Context) ([]string, error) {
	var result []string

	var err error

	instrumentedErr := d.telemetry.InstrumentClientOperation(ctx, "tablo", "list_recordings", func(ctx context.Context) error {
		result, err = d.device.Recordings(ctx)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// RecordingDetails fetches metadata for one recording with telemetry.
func (d *InstrumentedDevice) RecordingDetails(ctx context.Context, id string) (*Recording, error) {
	var result *Recording

	var err error

	instrumentedErr := d.telemetry.InstrumentClientOperation(ctx, "tablo", "recording_details", func(ctx context.Context) error {
		result, err = d.device.RecordingDetails(ctx, id)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}
