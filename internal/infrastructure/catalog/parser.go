package catalog

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

const listSeparator = ";"

type XLSXParser struct{}

func NewXLSXParser() *XLSXParser {
	return &XLSXParser{}
}

func (p *XLSXParser) Parse(data io.Reader) ([]domain.CatalogRow, error) {
	f, err := excelize.OpenReader(data)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("catalog needs a header row and at least one tool row")
	}

	header := headerIndex(rows[0])
	if _, ok := header["name"]; !ok {
		return nil, fmt.Errorf("catalog header is missing the name column")
	}

	out := make([]domain.CatalogRow, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		// Rows with data but no name stay in; the import isolates and reports them.
		out = append(out, parseRow(header, row))
	}
	return out, nil
}

func parseRow(header map[string]int, row []string) domain.CatalogRow {
	tool := domain.Tool{
		Name:          cell(header, row, "name"),
		Description:   cell(header, row, "description"),
		Categories:    splitList(cell(header, row, "categories")),
		Functionality: splitList(cell(header, row, "functionality")),
		Interfaces:    splitList(cell(header, row, "interfaces")),
		UserTypes:     splitList(cell(header, row, "user_types")),
		Deployment:    splitList(cell(header, row, "deployment")),
		PriceMonthly:  parsePrice(cell(header, row, "price_monthly")),
		Free:          parseBool(cell(header, row, "free")),
	}

	var relations []domain.CatalogRelation
	for _, target := range splitList(cell(header, row, "integrates_with")) {
		relations = append(relations, domain.CatalogRelation{
			Relation:   domain.RelationIntegratesWith,
			TargetName: target,
		})
	}
	for _, target := range splitList(cell(header, row, "alternative_to")) {
		relations = append(relations, domain.CatalogRelation{
			Relation:   domain.RelationAlternativeTo,
			TargetName: target,
		})
	}

	return domain.CatalogRow{Tool: tool, Relations: relations}
}

func headerIndex(row []string) map[string]int {
	index := make(map[string]int, len(row))
	for i, name := range row {
		normalized := strings.ToLower(strings.TrimSpace(name))
		normalized = strings.ReplaceAll(normalized, " ", "_")
		if normalized != "" {
			index[normalized] = i
		}
	}
	return index
}

// GetRows trims trailing empty cells; rows can be shorter than the header.
func cell(header map[string]int, row []string, column string) string {
	idx, ok := header[column]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, listSeparator)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parsePrice(value string) float64 {
	value = strings.TrimSpace(strings.TrimPrefix(value, "$"))
	if value == "" {
		return 0
	}
	price, err := strconv.ParseFloat(value, 64)
	if err != nil || price < 0 {
		return 0
	}
	return price
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "1":
		return true
	}
	return false
}

func blankRow(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
