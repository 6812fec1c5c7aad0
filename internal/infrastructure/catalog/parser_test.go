package catalog

import (
	"bytes"
	"io"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

func buildWorkbook(t *testing.T, rows [][]any) io.Reader {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName() error = %v", err)
		}
		if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func catalogHeader() []any {
	return []any{
		"Name", "Description", "Categories", "Functionality", "Interfaces",
		"User Types", "Deployment", "Price Monthly", "Free",
		"Integrates With", "Alternative To",
	}
}

func TestParseBuildsToolRows(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		catalogHeader(),
		{"CRM Pro", "sales pipeline crm", "crm; sales", "contact management; lead scoring",
			"rest_api; webhooks", "smb", "cloud", "$29.50", "no", "Zapier; Slack", "HubSpot"},
		{"Free Wiki", "team knowledge base", "wiki", "", "", "", "self_hosted", "", "yes", "", ""},
	})

	rows, err := NewXLSXParser().Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	crm := rows[0]
	if crm.Tool.Name != "CRM Pro" {
		t.Fatalf("expected name CRM Pro, got %q", crm.Tool.Name)
	}
	if len(crm.Tool.Categories) != 2 || crm.Tool.Categories[1] != "sales" {
		t.Fatalf("expected categories [crm sales], got %v", crm.Tool.Categories)
	}
	if crm.Tool.PriceMonthly != 29.50 {
		t.Fatalf("expected price 29.50, got %v", crm.Tool.PriceMonthly)
	}
	if crm.Tool.Free {
		t.Fatal("expected free=false for CRM Pro")
	}
	if len(crm.Relations) != 3 {
		t.Fatalf("expected 3 relations, got %v", crm.Relations)
	}
	if crm.Relations[0].Relation != domain.RelationIntegratesWith || crm.Relations[0].TargetName != "Zapier" {
		t.Fatalf("expected INTEGRATES_WITH Zapier first, got %+v", crm.Relations[0])
	}
	if crm.Relations[2].Relation != domain.RelationAlternativeTo || crm.Relations[2].TargetName != "HubSpot" {
		t.Fatalf("expected ALTERNATIVE_TO HubSpot last, got %+v", crm.Relations[2])
	}

	wiki := rows[1]
	if !wiki.Tool.Free {
		t.Fatal("expected free=true for Free Wiki")
	}
	if wiki.Tool.PriceMonthly != 0 {
		t.Fatalf("expected zero price, got %v", wiki.Tool.PriceMonthly)
	}
	if len(wiki.Relations) != 0 {
		t.Fatalf("expected no relations, got %v", wiki.Relations)
	}
}

func TestParseSkipsBlankRowsButKeepsNamelessData(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		catalogHeader(),
		{"", "", "", "", "", "", "", "", "", "", ""},
		{"", "orphan row with data", "", "", "", "", "", "", "", "", ""},
		{"Named Tool", "", "", "", "", "", "", "", "", "", ""},
	})

	rows, err := NewXLSXParser().Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected blank row skipped, got %d rows", len(rows))
	}
	if rows[0].Tool.Name != "" || rows[0].Tool.Description != "orphan row with data" {
		t.Fatalf("expected nameless data row kept, got %+v", rows[0].Tool)
	}
	if rows[1].Tool.Name != "Named Tool" {
		t.Fatalf("expected Named Tool, got %q", rows[1].Tool.Name)
	}
}

func TestParseRequiresNameColumn(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Title", "Description"},
		{"CRM Pro", "sales crm"},
	})

	if _, err := NewXLSXParser().Parse(data); err == nil {
		t.Fatal("expected error for missing name column")
	}
}

func TestParseRejectsHeaderOnlyWorkbook(t *testing.T) {
	data := buildWorkbook(t, [][]any{catalogHeader()})

	if _, err := NewXLSXParser().Parse(data); err == nil {
		t.Fatal("expected error for header-only catalog")
	}
}

func TestParseRejectsNonWorkbookData(t *testing.T) {
	if _, err := NewXLSXParser().Parse(bytes.NewReader([]byte("not an xlsx"))); err == nil {
		t.Fatal("expected error for non-xlsx payload")
	}
}
