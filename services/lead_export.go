package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"prepxiq_go/models"
	"prepxiq_go/utils"

	"github.com/xuri/excelize/v2"
)

// MaxExportRows caps every lead export.
const MaxExportRows = 1000

var leadExportHeader = []string{
	"Student Name", "Parent Name", "Phone", "Email", "Course Interested", "Source",
	"Stage", "Counselor", "Follow-up Date", "Remarks", "Created At",
}

func leadExportRecord(l models.Lead, loc *time.Location) []string {
	followUp := ""
	if l.FollowUpDate != nil {
		followUp = l.FollowUpDate.Format(utils.DateLayout)
	}
	if loc == nil {
		loc = time.Local
	}
	return []string{
		l.StudentName,
		l.ParentName,
		l.PhoneNumber,
		l.Email,
		l.CourseInterested,
		string(l.LeadSource),
		string(l.Stage),
		l.CounselorName(),
		followUp,
		l.Remarks,
		l.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
	}
}

// RenderLeadsCSV writes every field double-quoted with embedded quotes doubled.
// encoding/csv only quotes when needed, so quoting is done here.
func RenderLeadsCSV(leads []models.Lead, loc *time.Location) []byte {
	var b bytes.Buffer
	writeCSVLine(&b, leadExportHeader)
	for i, l := range leads {
		if i >= MaxExportRows {
			break
		}
		writeCSVLine(&b, leadExportRecord(l, loc))
	}
	return b.Bytes()
}

func writeCSVLine(b *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteString("\r\n")
}

// RenderLeadsXLSX builds a one-sheet workbook with the CSV columns.
func RenderLeadsXLSX(leads []models.Lead, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Leads"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	header := make([]interface{}, len(leadExportHeader))
	for i, h := range leadExportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(leadExportHeader))
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", style); err != nil {
		return nil, err
	}

	for i, l := range leads {
		if i >= MaxExportRows {
			break
		}
		rec := leadExportRecord(l, loc)
		row := make([]interface{}, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
