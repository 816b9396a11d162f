package parser

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dgallion1/docredact/internal/doctree"
)

// CSVParser handles CSV files. The file becomes a single table; the first
// row holds column names and is styled as headings so it stays legible.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	table := &doctree.Table{}
	for i, record := range records {
		row := &doctree.TableRow{Header: i == 0}
		for _, field := range record {
			cell := &doctree.TableCell{Children: []doctree.Element{
				&doctree.Paragraph{Content: doctree.NewRun(field)},
			}}
			if row.Header {
				headerCell(cell)
			}
			row.Cells = append(row.Cells, cell)
		}
		table.Rows = append(table.Rows, row)
	}

	root := &doctree.Container{}
	if len(table.Rows) > 0 {
		root.Append(table)
	}

	return &doctree.Document{
		Title:   trimExt(filename, ".csv"),
		Root:    root,
		Encoder: &csvEncoder{table: table},
	}, nil
}

type csvEncoder struct {
	table *doctree.Table
}

func (e *csvEncoder) Encode(w io.Writer) error {
	cw := csv.NewWriter(w)
	for _, row := range e.table.Rows {
		record := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			if len(cell.Children) > 0 {
				record[i] = doctree.TextOf(cell.Children[0])
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (e *csvEncoder) Ext() string         { return ".csv" }
func (e *csvEncoder) ContentType() string { return "text/csv; charset=utf-8" }
