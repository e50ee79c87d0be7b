package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog/log"
)

// ErrUndelivered is returned when neither the file nor the clipboard could
// take the payload.
var ErrUndelivered = errors.New("export not delivered")

// Destination reports where a payload ended up.
type Destination string

const (
	ToFile      Destination = "file"
	ToClipboard Destination = "clipboard"
)

// Deliverer writes payloads to Dir and falls back to the clipboard.
type Deliverer struct {
	Dir string
	// DisableClipboard skips the clipboard stage.
	DisableClipboard bool
	// Clipboard overrides the system clipboard writer.
	Clipboard func(text string) error
}

// Deliver stores data under name. On total failure the raw JSON is logged
// at error level so it can still be recovered from the terminal.
func (d *Deliverer) Deliver(name string, data []byte) (Destination, string, error) {
	path := filepath.Join(d.Dir, name)
	fileErr := writeFileAtomic(path, data)
	if fileErr == nil {
		return ToFile, path, nil
	}
	log.Warn().Err(fileErr).Str("path", path).Msg("file write failed; trying clipboard")

	if !d.DisableClipboard {
		write := d.Clipboard
		if write == nil {
			write = clipboard.WriteAll
		}
		err := write(string(data))
		if err == nil {
			log.Info().Str("name", name).Msg("export copied to clipboard; paste it into a .json file")
			return ToClipboard, "", nil
		}
		log.Warn().Err(err).Msg("clipboard fallback failed")
	}

	log.Error().Str("name", name).RawJSON("payload", compactOrRaw(data)).Msg("export could not be delivered")
	return "", "", fmt.Errorf("%w: %v", ErrUndelivered, fileErr)
}

func writeFileAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

func compactOrRaw(data []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		quoted, _ := json.Marshal(string(data))
		return quoted
	}
	return buf.Bytes()
}
