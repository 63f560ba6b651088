package pipeline

import (
	"github.com/sirupsen/logrus"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
)

// Trace maps each field to the index of the matcher that fired, -1 when none did.
type Trace map[internal.Field]int

type Extractor struct {
	specs []FieldSpec
	log   logrus.FieldLogger
}

func NewExtractor(specs []FieldSpec, log logrus.FieldLogger) *Extractor {
	return &Extractor{specs: specs, log: log}
}

// Extract runs every field cascade against the same text.
func (e *Extractor) Extract(text string) (internal.ExtractedFields, Trace) {
	fields := internal.ExtractedFields{}
	trace := Trace{}
	for _, spec := range e.specs {
		value, idx := spec.Resolve(text)
		trace[spec.Field] = idx
		if idx < 0 {
			e.log.WithField("field", spec.Field).Debug("no matcher fired")
			continue
		}
		fields[spec.Field] = value
		e.log.WithFields(logrus.Fields{"field": spec.Field, "matcher": idx, "value": value}).Debug("field extracted")
	}
	return fields, trace
}
