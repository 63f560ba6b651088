package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
	"github.com/rodrigosardinha/gerador-query-darm/internal/sqlgen"
	"github.com/rodrigosardinha/gerador-query-darm/internal/util"
)

const (
	documentsSheet = "Documentos"
	sequencesSheet = "SQ_DOC"
)

func (s *ProcessingService) writeReport(result RunResult) (string, error) {
	docs, err := s.db.ListDocuments(result.TraceID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.OutputDir, ReportFile)
	return path, ExportRunReport(docs, result.Stats.Sequences, path)
}

// ExportRun rebuilds the report of a past run from the ledger and the
// consolidated artifact it wrote, if any.
func (s *ProcessingService) ExportRun(traceID, outputPath string) error {
	run, err := s.db.GetRun(traceID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", traceID)
	}
	docs, err := s.db.ListDocuments(traceID)
	if err != nil {
		return err
	}

	var sequences []sqlgen.Sequence
	if run.ConsolidatedPath != nil {
		report, err := s.AuditConsolidated(*run.ConsolidatedPath)
		if err != nil {
			return err
		}
		for _, row := range report.Rows {
			v, err := strconv.ParseInt(row.Sequence, 10, 64)
			if err != nil {
				return fmt.Errorf("row %d: sq_doc %q is not a literal", row.Index, row.Sequence)
			}
			sequences = append(sequences, sqlgen.Sequence{Guide: row.Guide, Value: v})
		}
	}
	return ExportRunReport(docs, sequences, outputPath)
}

// ExportRunReport writes one sheet with every document of a run and one with
// the SQ_DOC literal assigned to each consolidated row.
func ExportRunReport(docs []internal.DocumentRow, sequences []sqlgen.Sequence, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), documentsSheet); err != nil {
		return err
	}
	headers := []string{
		"source_path", "source", "status", "guide_number", "registration_id",
		"principal_value", "total_value", "used_total_as_principal", "reason", "artifact",
	}
	writeRow(f, documentsSheet, 1, toAny(headers))
	for i, d := range docs {
		writeRow(f, documentsSheet, i+2, []any{
			d.SourcePath,
			d.Source,
			d.Status,
			util.DerefString(d.GuideNumber),
			util.DerefString(d.RegistrationID),
			util.DerefString(d.PrincipalValue),
			util.DerefString(d.TotalValue),
			d.UsedTotalAsPrincipal,
			util.DerefString(d.Reason),
			artifactName(d.ArtifactPath),
		})
	}

	if _, err := f.NewSheet(sequencesSheet); err != nil {
		return err
	}
	writeRow(f, sequencesSheet, 1, []any{"row", "guide_number", "sq_doc"})
	for i, seq := range sequences {
		writeRow(f, sequencesSheet, i+2, []any{i, seq.Guide, seq.Value})
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeRow(f *excelize.File, sheet string, r int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, r)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func artifactName(path *string) string {
	if path == nil {
		return ""
	}
	return filepath.Base(*path)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
