package diag

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// BuildHeartbeatXLSX renders the heartbeat ring as a spreadsheet, newest
// entry first, for attaching to support tickets.
func BuildHeartbeatXLSX(entries []HeartbeatEntry) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "heartbeats"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Recorded At")
	_ = f.SetCellValue(sheet, "B1", "Session")
	_ = f.SetCellValue(sheet, "C1", "Distance (m)")
	_ = f.SetCellValue(sheet, "D1", "Accuracy (m)")
	_ = f.SetCellValue(sheet, "E1", "Fired")
	for i, entry := range entries {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), entry.RecordedAt.UTC().Format("2006-01-02 15:04:05"))
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), entry.SessionID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), entry.DistanceM)
		if entry.AccuracyM > 0 {
			_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), entry.AccuracyM)
		}
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), entry.Fired)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
