package sqlgen

import "strings"

// Column pairs the descriptive name used in code with the physical column of
// the target table. Order is significant.
type Column struct {
	Logical  string
	Physical string
}

var Columns = []Column{
	{"id", "id"},
	{"fiscal_year", "AA_EXERCICIO"},
	{"bank_code", "CD_BANCO"},
	{"agency_code", "NR_BDA"},
	{"complement_number", "NR_COMPLEMENTO"},
	{"lot_number", "NR_LOTE_NSA"},
	{"lot_type", "TP_LOTE_D"},
	{"sequence_number", "SQ_DOC"},
	{"receipt_code", "CD_RECEITA"},
	{"updating_user", "CD_USU_ALT"},
	{"including_user", "CD_USU_INCL"},
	{"updated_at", "DT_ALT"},
	{"included_at", "DT_INCL"},
	{"due_date", "DT_VENCTO"},
	{"paid_at", "DT_PAGTO"},
	{"registration_id", "NR_INSCRICAO"},
	{"guide_number", "NR_GUIA"},
	{"competence_year", "NR_COMPETENCIA"},
	{"barcode", "NR_CODIGO_BARRAS"},
	{"iptu_lot", "NR_LOTE_IPTU"},
	{"document_status", "ST_DOC_D"},
	{"tax_type", "TP_IMPOSTO"},
	{"paid_value", "VL_PAGO"},
	{"receipt_value", "VL_RECEITA"},
	{"principal_value", "VL_PRINCIPAL"},
	{"arrears_value", "VL_MORA"},
	{"fine_value", "VL_MULTA"},
	{"tcdl_fine_value", "VL_MULTAF_TCDL"},
	{"tsd_penalty_value", "VL_MULTAP_TSD"},
	{"insurance_value", "VL_INSU_TIP"},
	{"interest_value", "VL_JUROS"},
	{"processed_flag", "processado"},
	{"processing_critique", "criticaProcessamento"},
}

// SequenceIndex is the tuple position of SQ_DOC.
const SequenceIndex = 7

// columnBreaks are the positions after which the column list and value
// tuples wrap, so individual and consolidated files read the same.
var columnBreaks = map[int]bool{6: true, 13: true, 18: true, 24: true, 30: true}
var valueBreaks = map[int]bool{6: true, 11: true, 14: true, 18: true, 24: true, 30: true}

func columnList() string {
	var b strings.Builder
	b.WriteString("    ")
	for i, c := range Columns {
		b.WriteString(c.Physical)
		if i == len(Columns)-1 {
			break
		}
		b.WriteString(",")
		if columnBreaks[i] {
			b.WriteString("\n    ")
		} else {
			b.WriteString(" ")
		}
	}
	return b.String()
}

// PhysicalIndex returns the tuple position of a logical column, or -1.
func PhysicalIndex(logical string) int {
	for i, c := range Columns {
		if c.Logical == logical {
			return i
		}
	}
	return -1
}
