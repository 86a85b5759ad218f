package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"runharvest/internal/telemetry"
)

const report_store_load = "store.load"

// ErrNotFound is returned by Store.Load when nothing has been saved yet.
var ErrNotFound = errors.New("dataset not found")

// Store persists the dataset document.
type Store interface {
	Load(ctx context.Context) (Dataset, error)
	Save(ctx context.Context, d Dataset) error
}

// Encode renders the dataset as 2-space indented JSON without HTML escaping.
func Encode(d Dataset) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Decode(buf []byte) (Dataset, error) {
	var d Dataset
	if err := json.Unmarshal(buf, &d); err != nil {
		return Dataset{}, fmt.Errorf("decode dataset: %w", err)
	}
	if d.Runners == nil {
		return Dataset{}, fmt.Errorf("decode dataset: missing runners")
	}
	for name, runner := range d.Runners {
		if runner.Name == "" {
			runner.Name = name
			d.Runners[name] = runner
		}
	}
	return d, nil
}

// LoadPrior loads the dataset for an incremental merge. A missing or unreadable dataset is
// reported and yields nil, the merge then writes the fresh harvest only.
func LoadPrior(ctx context.Context, store Store, tel telemetry.API) *Dataset {
	tel = telemetry.NewScopedAPI("dataset", tel)

	d, err := store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		tel.ReportWarning(report_store_load, "no existing dataset found")
		return nil
	}
	if err != nil {
		tel.ReportWarning(report_store_load, err)
		return nil
	}
	return &d
}
