// Package connectors implements source and sink connectors for frameunion pipelines.
package connectors

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a tabular file encoding.
type Format string

const (
	FormatCSV Format = "csv"
	// FormatIPC is the Arrow IPC stream format (.arrows).
	FormatIPC Format = "ipc"
	// FormatArrow is the Arrow IPC file format (.arrow, .feather).
	FormatArrow   Format = "arrow"
	FormatParquet Format = "parquet"
)

const defaultBatchSize = 1024

// ErrUnknownFormat is returned when a file format cannot be determined.
var ErrUnknownFormat = errors.New("unknown file format")

// ParseFormat validates a format name. The empty string is returned as is so
// callers can fall back to FormatFromPath.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case "", FormatCSV, FormatIPC, FormatArrow, FormatParquet:
		return f, nil
	case "arrows", "stream":
		return FormatIPC, nil
	case "feather":
		return FormatArrow, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// FormatFromPath derives the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".arrows", ".ipc":
		return FormatIPC, nil
	case ".arrow", ".feather":
		return FormatArrow, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("%w: cannot infer from %q", ErrUnknownFormat, path)
	}
}

func resolveFormat(path string, f Format) (Format, error) {
	if f != "" {
		return f, nil
	}
	return FormatFromPath(path)
}
