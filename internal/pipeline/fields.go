package pipeline

import (
	"regexp"
	"strings"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
	"github.com/rodrigosardinha/gerador-query-darm/internal/config"
	"github.com/rodrigosardinha/gerador-query-darm/internal/util"
)

// Strategy selects how a matcher turns a pattern into a value.
type Strategy int

const (
	// SingleCapture takes capture group 1 of the first match.
	SingleCapture Strategy = iota
	// DualCaptureConcat joins groups 1 and 2 of the first match.
	DualCaptureConcat
	// GlobalAggregate concatenates every match over the whole text.
	GlobalAggregate
)

// Transform is applied to a capture before it is stored.
type Transform int

const (
	TransformPlain Transform = iota
	TransformStripLeadingZeros
	TransformJoinDigitGroups
	TransformStripSeparator
)

type Matcher struct {
	Pattern   *regexp.Regexp
	Strategy  Strategy
	Transform Transform
	// MaxLen truncates digit-only aggregates; zero means unlimited.
	MaxLen int
}

// FieldSpec is the ordered matcher cascade for one field.
type FieldSpec struct {
	Field    internal.Field
	Matchers []Matcher
}

// Attempt is the outcome of one matcher on one text.
type Attempt struct {
	Matched bool
	Value   string
}

var noMatch = Attempt{}

var reReceiptToken = regexp.MustCompile(`^(\d{1,4})-(\d{1,2})`)

func (m Matcher) Apply(text string) Attempt {
	switch m.Strategy {
	case GlobalAggregate:
		runs := m.Pattern.FindAllString(text, -1)
		if len(runs) == 0 {
			return noMatch
		}
		value := util.DigitsOnly(strings.Join(runs, ""), m.MaxLen)
		if value == "" {
			return noMatch
		}
		return Attempt{Matched: true, Value: value}
	case DualCaptureConcat:
		groups := m.Pattern.FindStringSubmatch(text)
		if len(groups) < 3 || groups[1] == "" || groups[2] == "" {
			return noMatch
		}
		return m.finish(groups[1] + "-" + groups[2])
	default:
		groups := m.Pattern.FindStringSubmatch(text)
		if len(groups) < 2 {
			return noMatch
		}
		return m.finish(strings.TrimSpace(groups[1]))
	}
}

func (m Matcher) finish(value string) Attempt {
	switch m.Transform {
	case TransformStripLeadingZeros:
		value = util.StripLeadingZeros(value)
	case TransformJoinDigitGroups:
		value = strings.Join(strings.FieldsFunc(value, func(r rune) bool { return r < '0' || r > '9' }), "")
	case TransformStripSeparator:
		// Keep only the digit groups of a "NNNN-NN" token, dropping trailing noise.
		if g := reReceiptToken.FindStringSubmatch(value); len(g) == 3 {
			value = g[1] + g[2]
		} else {
			value = strings.ReplaceAll(value, "-", "")
		}
	}
	if value == "" {
		return noMatch
	}
	return Attempt{Matched: true, Value: value}
}

// Resolve folds the cascade left to right and returns the first match with
// its matcher index, or -1 when nothing matched.
func (s FieldSpec) Resolve(text string) (string, int) {
	for i, m := range s.Matchers {
		if a := m.Apply(text); a.Matched {
			return a.Value, i
		}
	}
	return "", -1
}

func single(pattern string, transform Transform) Matcher {
	return Matcher{Pattern: regexp.MustCompile(`(?i)` + pattern), Strategy: SingleCapture, Transform: transform}
}

// DefaultFieldSpecs returns the cascade table for the current form layout.
// policy decides whether a "262-3" receipt token keeps its separator.
func DefaultFieldSpecs(policy string, maxBarcode int) []FieldSpec {
	receiptToken := TransformStripSeparator
	if policy == config.ReceiptPolicySeparator {
		receiptToken = TransformPlain
	}
	const money = `R?\$?\s*(\d[\d,.]*)`

	return []FieldSpec{
		{Field: internal.FieldRegistrationID, Matchers: []Matcher{
			single(`(?:Inscrição|Inscrição Municipal)\s*:?\s*(\d+)`, TransformPlain),
			single(`(?:Inscricao|Inscricao Municipal)\s*:?\s*(\d+)`, TransformPlain),
			single(`Insc\.?\s*:?\s*(\d+)`, TransformPlain),
			single(`02\.\s*INSCRI\S*\s*MUNICIPAL\s*(\d+)`, TransformPlain),
		}},
		{Field: internal.FieldBarcode, Matchers: []Matcher{
			{Pattern: regexp.MustCompile(`[\d.\s]+`), Strategy: GlobalAggregate, MaxLen: maxBarcode},
		}},
		{Field: internal.FieldReceiptCode, Matchers: []Matcher{
			single(`RECEITA\s*(\d{1,4}-\d{1,2})(?:\D|$)`, receiptToken),
			single(`01\.\s*RECEITA\s*(\d{1,4}-\d{1,2})(?:\D|$)`, receiptToken),
			{Pattern: regexp.MustCompile(`(\d{1,4})-(\d{1,2})(?:\D|$)`), Strategy: DualCaptureConcat, Transform: TransformJoinDigitGroups},
			single(`RECEITA\s*(\d{3,6})(?:\D|$)`, TransformPlain),
		}},
		{Field: internal.FieldPrincipalValue, Matchers: []Matcher{
			single(`Valor Principal\s*:?\s*`+money, TransformPlain),
			single(`Principal\s*:?\s*`+money, TransformPlain),
			single(money+`\s*Principal`, TransformPlain),
			single(`06\.\s*VALOR DO TRIBUTO\s*`+money, TransformPlain),
		}},
		{Field: internal.FieldTotalValue, Matchers: []Matcher{
			single(`Valor Total\s*:?\s*`+money, TransformPlain),
			single(`Total\s*:?\s*`+money, TransformPlain),
			single(money+`\s*Total`, TransformPlain),
			single(`09\.\s*VALOR TOTAL\s*`+money, TransformPlain),
		}},
		{Field: internal.FieldDueDate, Matchers: []Matcher{
			single(`(?:Vencimento|Venc\.?)\s*:?\s*(\d{2}/\d{2}/\d{4})`, TransformPlain),
			single(`(\d{2}/\d{2}/\d{4})\s*Vencimento`, TransformPlain),
			single(`03\.\s*DATA VENCIMENTO\s*(\d{2}/\d{2}/\d{4})`, TransformPlain),
		}},
		{Field: internal.FieldFiscalYear, Matchers: []Matcher{
			single(`(?:Exercício|Exercicio|Exerc\.?)\s*:?\s*(\d{4})`, TransformPlain),
			single(`(\d{4})\s*(?:Exercício|Exercicio)`, TransformPlain),
			single(`04\.\s*ANO DE REFER\S*\s*(\d{4})`, TransformPlain),
		}},
		{Field: internal.FieldGuideNumber, Matchers: []Matcher{
			single(`05\.\s*GUIA\s*N\S?\s*([0-9]+)`, TransformStripLeadingZeros),
			single(`(?:Número da Guia|Nº Guia|Guia)\s*:?\s*(\d+)`, TransformStripLeadingZeros),
			single(`Guia\.?\s*:?\s*(\d+)`, TransformStripLeadingZeros),
		}},
		{Field: internal.FieldCompetence, Matchers: []Matcher{
			single(`(?:Competência|Competencia|Comp\.?)\s*:?\s*(\d{2}/\d{4})`, TransformPlain),
			single(`(\d{2}/\d{4})\s*(?:Competência|Competencia)`, TransformPlain),
		}},
	}
}
