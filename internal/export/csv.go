package export

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/JakeFAU/directory-crawler/internal/directory"
)

func writeCSV(entries []directory.Entry, path string) (err error) {
	f, err := os.Create(path) // #nosec G304 -- output path comes from operator config.
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close csv: %w", cerr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		if err := w.Write(Row(e)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
