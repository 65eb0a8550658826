// Package export writes enriched directory entries to a tabular file.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/directory"
	"github.com/JakeFAU/directory-crawler/internal/metrics"
)

// Header is the fixed column order of every export.
var Header = []string{"Company Name", "Link", "Official Website", "Phone", "Address"}

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ErrUnsupportedFormat is returned for output paths with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Exporter saves entries in the format chosen by the output path extension.
type Exporter struct {
	logger *zap.Logger
}

// New returns an Exporter that logs through logger.
func New(logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{logger: logger.Named("export")}
}

// FormatFor maps an output path to its export format.
func FormatFor(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", "":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Row returns the cells of e in Header order.
func Row(e directory.Entry) []string {
	return []string{e.Name, e.Link, e.Website, e.Phone, e.Address}
}

// Save writes a header row followed by one row per entry to path.
// Faults are logged and returned; callers decide whether they matter.
func (x *Exporter) Save(entries []directory.Entry, path string) error {
	format, err := FormatFor(path)
	if err != nil {
		x.logger.Error("failed to save results", zap.String("path", path), zap.Error(err))
		metrics.ObserveExport("unknown", metrics.OutcomeFailed)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			x.logger.Error("failed to save results", zap.String("path", path), zap.Error(err))
			metrics.ObserveExport(format, metrics.OutcomeFailed)
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	switch format {
	case FormatXLSX:
		err = writeXLSX(entries, path)
	default:
		err = writeCSV(entries, path)
	}
	if err != nil {
		x.logger.Error("failed to save results", zap.String("path", path), zap.Error(err))
		metrics.ObserveExport(format, metrics.OutcomeFailed)
		return err
	}
	x.logger.Info("results saved", zap.String("path", path), zap.Int("rows", len(entries)))
	metrics.ObserveExport(format, metrics.OutcomeSuccess)
	return nil
}
