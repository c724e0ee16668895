package emulator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrSnapshotExists is returned when a snapshot file is already present.
var ErrSnapshotExists = errors.New("emulator: snapshot already exists")

func snapshotName(taskIndex int, episodeID uuid.UUID) string {
	return fmt.Sprintf("task_index_%d_%s.state", taskIndex, episodeID)
}

// writeSnapshot creates dir/name exclusively. A temp file is written first
// and hard-linked into place so readers never see a partial snapshot.
func writeSnapshot(dir, name string, blob []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("emulator: create snapshot dir: %w", err)
	}
	final := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("emulator: create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return "", fmt.Errorf("emulator: write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("emulator: sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("emulator: close snapshot: %w", err)
	}

	if err := os.Link(tmp.Name(), final); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrSnapshotExists, final)
		}
		return "", fmt.Errorf("emulator: publish snapshot: %w", err)
	}
	return final, nil
}
