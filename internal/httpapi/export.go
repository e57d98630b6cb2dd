package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

const sheetName = "Log"

// handleCSV buffers the export so a read failure can still become a 500.
func (s *Server) handleCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.control.Export(r.Context(), &buf); err != nil {
		s.logger.Error("log export", zap.Error(err))
		http.Error(w, "log export failed", http.StatusInternalServerError)
		return
	}
	writeAttachment(w, "text/csv", attachmentName(s.control.Device(), "csv"), buf.Bytes())
}

func (s *Server) handleXLSX(w http.ResponseWriter, r *http.Request) {
	recs, err := s.control.Records(r.Context())
	if err != nil {
		s.logger.Error("log export", zap.Error(err))
		http.Error(w, "log export failed", http.StatusInternalServerError)
		return
	}

	data, err := buildWorkbook(recs, s.control.WithState())
	if err != nil {
		s.logger.Error("xlsx export", zap.Error(err))
		http.Error(w, "log export failed", http.StatusInternalServerError)
		return
	}
	writeAttachment(w,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		attachmentName(s.control.Device(), "xlsx"), data)
}

func writeAttachment(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// attachmentName prefixes the download with the device id.
func attachmentName(device, ext string) string {
	device = strings.NewReplacer("/", "_", `"`, "", " ", "_").Replace(strings.TrimSpace(device))
	if device == "" {
		return "log." + ext
	}
	return device + "-log." + ext
}

// buildWorkbook lays the durable log out on one sheet: the durable columns
// plus the outcome, header row bold and frozen.
func buildWorkbook(recs []types.Record, withState bool) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headers := append(types.Header(withState), "outcome")
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, style); err != nil {
			return nil, fmt.Errorf("style header %s: %w", cell, err)
		}
	}

	for i, rec := range recs {
		row := append(rec.Row(withState), rec.Outcome)
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheetName, "A", lastCol, 20); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
