package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// SummarySheet is the sheet name of a single-sheet report.
const SummarySheet = "진단요약"

const (
	minColWidth = 8
	maxColWidth = 80
	maxSheetLen = 31

	borderThin  = 1
	borderThick = 5
)

var sheetNameReplacer = strings.NewReplacer(":", "_", `\`, "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_")

// XLSXOptions configures WriteXLSX.
type XLSXOptions struct {
	Layout
	// BaseURL is written above the single summary sheet.
	BaseURL string
	// SeparateByURL writes one sheet per request host.
	SeparateByURL bool
}

type sheetData struct {
	name  string
	title string
	rows  []Row
}

// WriteXLSX writes the rows as an Excel workbook at path. Row 1 holds the
// "URL : ..." title, row 2 the headers and the rows follow.
func WriteXLSX(path string, rows []Row, opts XLSXOptions) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	styles, err := newSheetStyles(f)
	if err != nil {
		return err
	}

	sheets := planSheets(rows, opts)
	first := f.GetSheetName(0)
	for i, sd := range sheets {
		if i == 0 {
			if err := f.SetSheetName(first, sd.name); err != nil {
				return fmt.Errorf("failed to name sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sd.name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sd.name, err)
		}
		if err := writeSheet(f, sd, opts.Layout, styles); err != nil {
			return fmt.Errorf("failed to write sheet %s: %w", sd.name, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func planSheets(rows []Row, opts XLSXOptions) []sheetData {
	if !opts.SeparateByURL || len(rows) == 0 {
		sd := sheetData{name: SummarySheet, rows: rows}
		if opts.BaseURL != "" {
			sd.title = "URL : " + opts.BaseURL
		}
		return []sheetData{sd}
	}

	var sheets []sheetData
	index := make(map[string]int)
	used := make(map[string]bool)
	for _, r := range rows {
		domain := Domain(r.URL)
		i, ok := index[domain]
		if !ok {
			i = len(sheets)
			index[domain] = i
			sheets = append(sheets, sheetData{
				name:  uniqueSheetName(domain, used),
				title: "URL : " + domain,
			})
		}
		sheets[i].rows = append(sheets[i].rows, r)
	}
	return sheets
}

func uniqueSheetName(domain string, used map[string]bool) string {
	base := sheetNameReplacer.Replace(domain)
	base = strings.Trim(base, "'")
	if base == "" {
		base = SummarySheet
	}
	base = truncateRunes(base, maxSheetLen)

	name := base
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		name = truncateRunes(base, maxSheetLen-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

type sheetStyles struct {
	title, header, cell int
}

func newSheetStyles(f *excelize.File) (sheetStyles, error) {
	var s sheetStyles
	var err error
	if s.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return s, fmt.Errorf("failed to create style: %w", err)
	}
	if s.header, err = f.NewStyle(&excelize.Style{Border: boxBorder(borderThick)}); err != nil {
		return s, fmt.Errorf("failed to create style: %w", err)
	}
	if s.cell, err = f.NewStyle(&excelize.Style{Border: boxBorder(borderThin)}); err != nil {
		return s, fmt.Errorf("failed to create style: %w", err)
	}
	return s, nil
}

func boxBorder(style int) []excelize.Border {
	var out []excelize.Border
	for _, side := range []string{"left", "right", "top", "bottom"} {
		out = append(out, excelize.Border{Type: side, Color: "000000", Style: style})
	}
	return out
}

func writeSheet(f *excelize.File, sd sheetData, layout Layout, styles sheetStyles) error {
	cols := layout.Columns()
	widths := make([]int, len(cols))
	measure := func(col int, v string) {
		if n := utf8.RuneCountInString(v); n > widths[col] {
			widths[col] = n
		}
	}

	if sd.title != "" {
		if err := f.SetCellValue(sd.name, "A1", sd.title); err != nil {
			return err
		}
		if err := f.SetCellStyle(sd.name, "A1", "A1", styles.title); err != nil {
			return err
		}
		measure(0, sd.title)
	}

	if err := setRow(f, sd.name, 2, cols); err != nil {
		return err
	}
	for i, h := range cols {
		measure(i, h)
	}
	if err := styleRow(f, sd.name, 2, len(cols), styles.header); err != nil {
		return err
	}

	for i, r := range sd.rows {
		vals := layout.Values(r)
		if err := setRow(f, sd.name, i+3, vals); err != nil {
			return err
		}
		for c, v := range vals {
			measure(c, v)
		}
	}
	if len(sd.rows) > 0 {
		if err := styleRows(f, sd.name, 3, len(sd.rows)+2, len(cols), styles.cell); err != nil {
			return err
		}
	}

	for i, w := range widths {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width := min(max(minColWidth, w)+2, maxColWidth)
		if err := f.SetColWidth(sd.name, name, name, float64(width)); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, vals []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return f.SetSheetRow(sheet, cell, &out)
}

func styleRow(f *excelize.File, sheet string, row, ncols, style int) error {
	return styleRows(f, sheet, row, row, ncols, style)
}

func styleRows(f *excelize.File, sheet string, from, to, ncols, style int) error {
	start, err := excelize.CoordinatesToCellName(1, from)
	if err != nil {
		return err
	}
	end, err := excelize.CoordinatesToCellName(ncols, to)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, start, end, style)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
