package pipeline

import (
	"strings"
	"testing"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
	"github.com/rodrigosardinha/gerador-query-darm/internal/config"
	"github.com/rodrigosardinha/gerador-query-darm/internal/logging"
	"github.com/rodrigosardinha/gerador-query-darm/internal/util"
)

func newTestExtractor(policy string) *Extractor {
	return NewExtractor(DefaultFieldSpecs(policy, 48), logging.Discard())
}

func TestExtractNumberedForm(t *testing.T) {
	text := strings.Join([]string{
		"PREFEITURA MUNICIPAL",
		"01. RECEITA 262-3",
		"02. INSCRIÇÃO MUNICIPAL 12345678",
		"03. DATA VENCIMENTO 10/02/2025",
		"04. ANO DE REFERÊNCIA 2024",
		"05. GUIA Nº 000149",
		"06. VALOR DO TRIBUTO R$ 1.234,56",
		"09. VALOR TOTAL R$ 1.300,00",
	}, "\n")

	fields, trace := newTestExtractor(config.ReceiptPolicyConcat).Extract(text)

	want := map[internal.Field]string{
		internal.FieldRegistrationID: "12345678",
		internal.FieldPrincipalValue: "1.234,56",
		internal.FieldTotalValue:     "1.300,00",
		internal.FieldDueDate:        "10/02/2025",
		internal.FieldFiscalYear:     "2024",
		internal.FieldGuideNumber:    "149",
		internal.FieldReceiptCode:    "2623",
	}
	for field, value := range want {
		if got := fields[field]; got != value {
			t.Errorf("%s: got %q want %q", field, got, value)
		}
	}
	if got := util.NormalizeMonetary(fields[internal.FieldPrincipalValue]); got != "1234.56" {
		t.Fatalf("normalized principal: got %q", got)
	}
	if _, ok := fields[internal.FieldCompetence]; ok {
		t.Fatalf("competence should be a missing key, got %q", fields[internal.FieldCompetence])
	}
	if trace[internal.FieldCompetence] != -1 {
		t.Fatalf("competence trace: got %d", trace[internal.FieldCompetence])
	}
	// "06. VALOR DO TRIBUTO" is the last principal matcher.
	if trace[internal.FieldPrincipalValue] != 3 {
		t.Fatalf("principal trace: got %d", trace[internal.FieldPrincipalValue])
	}
}

func TestExtractLabelledForm(t *testing.T) {
	text := "Inscrição: 998877\nValor Principal: R$ 50,00\nVencimento: 05/03/2025\nCompetência: 02/2025\nGuia: 0042"
	fields, trace := newTestExtractor(config.ReceiptPolicyConcat).Extract(text)

	if fields[internal.FieldRegistrationID] != "998877" {
		t.Fatalf("registration: %q", fields[internal.FieldRegistrationID])
	}
	if trace[internal.FieldRegistrationID] != 0 {
		t.Fatalf("registration should fire on the first matcher, got %d", trace[internal.FieldRegistrationID])
	}
	if fields[internal.FieldPrincipalValue] != "50,00" {
		t.Fatalf("principal: %q", fields[internal.FieldPrincipalValue])
	}
	if fields[internal.FieldCompetence] != "02/2025" {
		t.Fatalf("competence: %q", fields[internal.FieldCompetence])
	}
	if fields[internal.FieldGuideNumber] != "42" {
		t.Fatalf("guide: %q", fields[internal.FieldGuideNumber])
	}
}

func TestReceiptCodePolicies(t *testing.T) {
	text := "01. RECEITA 262-3 IMPOSTO"
	cases := []struct {
		policy string
		want   string
	}{
		{config.ReceiptPolicyConcat, "2623"},
		{config.ReceiptPolicySeparator, "262-3"},
	}
	for _, tc := range cases {
		t.Run(tc.policy, func(t *testing.T) {
			fields, _ := newTestExtractor(tc.policy).Extract(text)
			if got := fields[internal.FieldReceiptCode]; got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestReceiptCodeTwoGroupsAlwaysConcatenated(t *testing.T) {
	for _, policy := range []string{config.ReceiptPolicyConcat, config.ReceiptPolicySeparator} {
		fields, trace := newTestExtractor(policy).Extract("codigo 1234-56 pago")
		if got := fields[internal.FieldReceiptCode]; got != "123456" {
			t.Fatalf("%s: got %q", policy, got)
		}
		if trace[internal.FieldReceiptCode] != 2 {
			t.Fatalf("%s: trace %d", policy, trace[internal.FieldReceiptCode])
		}
	}
}

func TestBarcodeSplitAcrossRuns(t *testing.T) {
	first := "816900000012 345678901234 567890"
	second := "123456789012 3456789012 34567"
	text := "Linha digitavel:\n" + first + "\nAUTENTICACAO MECANICA\n" + second

	fields, _ := newTestExtractor(config.ReceiptPolicyConcat).Extract(text)

	all := util.DigitsOnly(first+second, 0)
	want := all[:48]
	if got := fields[internal.FieldBarcode]; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestExtractEmptyText(t *testing.T) {
	fields, trace := newTestExtractor(config.ReceiptPolicyConcat).Extract("")
	if len(fields) != 0 {
		t.Fatalf("expected no fields, got %v", fields)
	}
	for field, idx := range trace {
		if idx != -1 {
			t.Fatalf("%s fired on empty text", field)
		}
	}
}

func TestMatcherGlobalAggregateNoDigits(t *testing.T) {
	m := DefaultFieldSpecs(config.ReceiptPolicyConcat, 48)[1].Matchers[0]
	if a := m.Apply("   .  "); a.Matched {
		t.Fatalf("whitespace-only runs should not match: %+v", a)
	}
}
