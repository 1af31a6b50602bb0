package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

const (
	fieldsSheet  = "Content"
	detailsSheet = "Details"
	// articleField holds a whole blog post rather than a fragment
	articleField = "blog_post_content"
	// maxCellLen is the spreadsheet cell character limit
	maxCellLen = 32767
)

// Spreadsheet renders content fields as an xlsx workbook: one row per field
// on the Content sheet and the entity ids on the Details sheet
func Spreadsheet(c *types.Content) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", fieldsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(detailsSheet); err != nil {
		return nil, fmt.Errorf("create details sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return nil, fmt.Errorf("create body style: %w", err)
	}

	if err := f.SetSheetRow(fieldsSheet, "A1", &[]interface{}{"Field", "Value"}); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(fieldsSheet, "A1", "B1", bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, field := range c.ContentFields {
		value := field.Value
		switch {
		case field.Key == articleField:
			value = ArticleText(value)
		case isHTMLField(field.Key):
			value = PlainText(value)
		}
		if len(value) > maxCellLen {
			value = value[:maxCellLen]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(fieldsSheet, cell, &[]interface{}{field.Key, value}); err != nil {
			return nil, fmt.Errorf("write field %s: %w", field.Key, err)
		}
	}
	if n := len(c.ContentFields); n > 0 {
		last, err := excelize.CoordinatesToCellName(2, n+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(fieldsSheet, "B2", last, wrap); err != nil {
			return nil, fmt.Errorf("style values: %w", err)
		}
	}
	if err := f.SetColWidth(fieldsSheet, "A", "A", 24); err != nil {
		return nil, fmt.Errorf("size key column: %w", err)
	}
	if err := f.SetColWidth(fieldsSheet, "B", "B", 100); err != nil {
		return nil, fmt.Errorf("size value column: %w", err)
	}

	details := [][]interface{}{
		{"Content ID", c.ID},
		{"Client ID", c.ClientID},
		{"Profile ID", c.ProfileID},
		{"Status", string(c.Status)},
		{"Updated", c.UpdatedAt.UTC().Format(time.RFC3339)},
	}
	for i, row := range details {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(detailsSheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(detailsSheet, "A1", fmt.Sprintf("A%d", len(details)), bold); err != nil {
		return nil, fmt.Errorf("style details: %w", err)
	}
	if err := f.SetColWidth(detailsSheet, "A", "B", 40); err != nil {
		return nil, fmt.Errorf("size details columns: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
