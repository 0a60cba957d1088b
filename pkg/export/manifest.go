package export

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mosaicviz/mosaic/pkg/errors"
)

// ManifestFileName is the fixed name of the run manifest.
const ManifestFileName = "manifest.json"

// Manifest records one export run: which documents it produced, from
// which input, under which configuration. The run id ties log lines,
// documents, and uploads to the same run.
type Manifest struct {
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	InputHash   string    `json:"input_hash,omitempty"`
	Resolutions []int     `json:"resolutions"`
	ItemCount   int       `json:"item_count"`
	Config      any       `json:"config,omitempty"`
	Documents   []string  `json:"documents"`
}

// NewManifest starts a manifest for the current run.
func NewManifest(inputHash string, resolutions []int, itemCount int, config any) Manifest {
	return Manifest{
		RunID:       uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		InputHash:   inputHash,
		Resolutions: resolutions,
		ItemCount:   itemCount,
		Config:      config,
	}
}

// WriteManifest writes the manifest, always uncompressed. Written last,
// so a complete manifest implies every listed document landed.
func (e *Exporter) WriteManifest(ctx context.Context, m Manifest) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeSerialization, err, "marshaling manifest")
	}
	return e.writePlain(ctx, ManifestFileName, append(data, '\n'))
}
