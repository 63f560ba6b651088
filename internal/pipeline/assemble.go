package pipeline

import (
	"regexp"
	"strconv"
	"time"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
	"github.com/rodrigosardinha/gerador-query-darm/internal/config"
	"github.com/rodrigosardinha/gerador-query-darm/internal/util"
)

var (
	reReceiptConcat    = regexp.MustCompile(`^\d{1,6}$`)
	reReceiptSeparator = regexp.MustCompile(`^\d{1,4}-\d{1,2}$`)
)

type Assembler struct {
	policy         string
	defaultReceipt string
	exerciseYear   int
	maxBarcode     int
}

func NewAssembler(cfg config.Config) *Assembler {
	return &Assembler{
		policy:         cfg.ReceiptCodePolicy,
		defaultReceipt: strconv.Itoa(cfg.DefaultReceiptCode),
		exerciseYear:   cfg.ExerciseYear,
		maxBarcode:     cfg.MaxBarcodeLength,
	}
}

// Assemble builds the typed record. now supplies the competence year, which is
// always the processing year whatever the document states.
func (a *Assembler) Assemble(v Validated, now time.Time) internal.DarmRecord {
	f := v.Fields
	rec := internal.DarmRecord{
		RegistrationID:       util.DigitsOnly(f[internal.FieldRegistrationID], 0),
		GuideNumber:          util.StripLeadingZeros(util.DigitsOnly(f[internal.FieldGuideNumber], 0)),
		ReceiptCode:          a.receiptCode(f[internal.FieldReceiptCode]),
		PrincipalValue:       util.NormalizeMonetary(f[internal.FieldPrincipalValue]),
		DueDate:              isoDate(f[internal.FieldDueDate]),
		FiscalYear:           a.exerciseYear,
		CompetenceYear:       now.Year(),
		UsedTotalAsPrincipal: v.UsedTotalAsPrincipal,
	}

	total := f[internal.FieldTotalValue]
	if total == "" {
		total = f[internal.FieldPrincipalValue]
	}
	rec.TotalValue = util.NormalizeMonetary(total)

	if year, err := strconv.Atoi(f[internal.FieldFiscalYear]); err == nil && year >= 1900 && year <= 2999 {
		rec.FiscalYear = year
	}
	if c := f[internal.FieldCompetence]; c != "" {
		rec.Competence = util.StringPtr(c)
	}
	if bc := util.DigitsOnly(f[internal.FieldBarcode], a.maxBarcode); bc != "" {
		rec.Barcode = util.StringPtr(bc)
	}
	return rec
}

func (a *Assembler) receiptCode(raw string) string {
	switch {
	case reReceiptConcat.MatchString(raw):
		return raw
	case a.policy == config.ReceiptPolicySeparator && reReceiptSeparator.MatchString(raw):
		return raw
	default:
		return a.defaultReceipt
	}
}

// isoDate converts DD/MM/YYYY; anything unparseable yields nil.
func isoDate(raw string) *string {
	if raw == "" {
		return nil
	}
	t, err := time.Parse("02/01/2006", raw)
	if err != nil {
		return nil
	}
	return util.StringPtr(t.Format("2006-01-02") + " 00:00:00")
}
