package position

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// Tracker persists the read offset of one log file as a decimal number
type Tracker struct {
	positionFile string
}

// NewTracker creates a tracker backed by positionFile
func NewTracker(positionFile string) *Tracker {
	return &Tracker{
		positionFile: positionFile,
	}
}

// PathFor expands a checkpoint file pattern for logPath. {name} is the base
// name of the log, {hash} a short BLAKE3 digest of its absolute path, which
// keeps same-named logs in different directories apart.
func PathFor(pattern, logPath string) (string, error) {
	out := strings.ReplaceAll(pattern, "{name}", filepath.Base(logPath))

	if strings.Contains(out, "{hash}") {
		abs, err := filepath.Abs(logPath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", logPath, err)
		}
		sum := blake3.Sum256([]byte(abs))
		out = strings.ReplaceAll(out, "{hash}", hex.EncodeToString(sum[:8]))
	}

	return out, nil
}

// File returns the path of the checkpoint file
func (t *Tracker) File() string {
	return t.positionFile
}

// Load returns the saved offset. The offset is always usable: it is 0 when
// no checkpoint exists or it cannot be read, in which case the error says why.
func (t *Tracker) Load() (int64, error) {
	data, err := os.ReadFile(t.positionFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read position file: %w", err)
	}

	pos, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse position file %s: %w", t.positionFile, err)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative position %d in %s", pos, t.positionFile)
	}

	return pos, nil
}

// Save writes pos to disk atomically
func (t *Tracker) Save(pos int64) error {
	if pos < 0 {
		return fmt.Errorf("refusing to save negative position %d", pos)
	}

	dir := filepath.Dir(t.positionFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create position directory: %w", err)
	}

	// Write to temp file in same directory as destination (guaranteed atomic rename)
	tmpFile := t.positionFile + ".tmp"

	if err := os.WriteFile(tmpFile, []byte(strconv.FormatInt(pos, 10)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write temp position file: %w", err)
	}

	if err := os.Rename(tmpFile, t.positionFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename position file: %w", err)
	}

	return nil
}
