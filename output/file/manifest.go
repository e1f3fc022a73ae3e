package file

import (
	"encoding/json"
	"os"
	"time"

	"github.com/c360/eegstreams/message"
)

// ManifestSuffix is appended to the recording path to name its manifest.
const ManifestSuffix = ".meta.json"

// Manifest describes a recording session.
type Manifest struct {
	SessionID  string              `json:"session_id"`
	Path       string              `json:"path"`
	Descriptor *message.Descriptor `json:"descriptor,omitempty"`
	Channels   []string            `json:"channels"`
	StartedAt  time.Time           `json:"started_at"`
	StoppedAt  *time.Time          `json:"stopped_at,omitempty"`
	Rows       uint64              `json:"rows"`
}

func writeManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadManifest loads the manifest written next to recording.
func ReadManifest(recording string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(recording + ManifestSuffix)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(data, &m)
	return m, err
}
