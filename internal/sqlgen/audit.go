package sqlgen

import "sort"

// AuditRow is one tuple of a consolidated artifact as read back from disk.
type AuditRow struct {
	Index    int
	Guide    string
	Sequence string
}

type AuditReport struct {
	Rows []AuditRow
	// Duplicates maps a repeated SQ_DOC to the guides carrying it.
	Duplicates map[string][]string
}

func (r AuditReport) DuplicateValues() []string {
	out := make([]string, 0, len(r.Duplicates))
	for v := range r.Duplicates {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// AuditSequences reads every tuple of a consolidated statement and reports
// SQ_DOC values that occur more than once.
func AuditSequences(statement string) (AuditReport, error) {
	tuples, err := ParseTuples(statement)
	if err != nil {
		return AuditReport{}, err
	}
	guideIdx := PhysicalIndex("guide_number")

	report := AuditReport{Duplicates: map[string][]string{}}
	byValue := map[string][]string{}
	for i, t := range tuples {
		row := AuditRow{Index: i, Guide: unquote(t[guideIdx]), Sequence: t[SequenceIndex]}
		report.Rows = append(report.Rows, row)
		byValue[row.Sequence] = append(byValue[row.Sequence], row.Guide)
	}
	for v, guides := range byValue {
		if len(guides) > 1 {
			report.Duplicates[v] = guides
		}
	}
	return report, nil
}
