package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/bmm-sec/saz-insights/pkg/saz"
)

// ExportRows writes report rows as JSON, JSON lines or CSV. CSV columns
// follow the layout of the workbook.
func ExportRows(w io.Writer, rows []Row, format saz.ExportFormat, layout Layout) error {
	switch format {
	case saz.FormatJSON:
		if rows == nil {
			rows = []Row{}
		}
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case saz.FormatJSONLines:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	case saz.FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(layout.Columns()); err != nil {
			return err
		}
		for _, r := range rows {
			if err := cw.Write(layout.Values(r)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unsupported row export format %d", format)
	}
}
