package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
)

// OneShot is the dry-run view of a single file: what was read, what matched
// and the statement it would produce.
type OneShot struct {
	Source    internal.TextSource      `json:"source"`
	Text      string                   `json:"text,omitempty"`
	Fields    internal.ExtractedFields `json:"fields"`
	Trace     Trace                    `json:"trace"`
	Record    *internal.DarmRecord     `json:"record,omitempty"`
	Statement string                   `json:"statement,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// ExtractFile runs one file through the pipeline without writing artifacts or
// ledger rows. Pipeline rejections land in OneShot.Error.
func (s *ProcessingService) ExtractFile(ctx context.Context, path string, withText bool) (OneShot, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return OneShot{}, err
	}

	acquired, err := s.acquirer.Acquire(ctx, Document{Name: filepath.Base(path), Path: path, Content: content})
	out := OneShot{Source: acquired.Source, Fields: internal.ExtractedFields{}, Trace: Trace{}}
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	if withText {
		out.Text = acquired.Text
	}

	out.Fields, out.Trace = s.extractor.Extract(acquired.Text)
	validated, err := Validate(out.Fields)
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	rec := s.assembler.Assemble(validated, s.now())
	out.Record = &rec

	stmt, err := s.emitter.Insert(rec)
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	out.Statement = stmt
	return out, nil
}
