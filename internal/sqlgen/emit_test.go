package sqlgen

import (
	"errors"
	"strings"
	"testing"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
	"github.com/rodrigosardinha/gerador-query-darm/internal/config"
	"github.com/rodrigosardinha/gerador-query-darm/internal/util"
)

func testEmitter() *Emitter {
	return NewEmitter(config.Config{
		Database:           "silfae",
		Table:              "FarrDarmsPagos",
		ExerciseYear:       2025,
		BankCode:           70,
		AgencyCode:         37,
		ComplementNumber:   0,
		LotNumber:          730,
		LotType:            1,
		IncludingUser:      "FARR",
		DocumentStatus:     "13",
		MinStatementLength: 100,
	})
}

func testRecord(guide string) internal.DarmRecord {
	return internal.DarmRecord{
		RegistrationID: "12345678",
		GuideNumber:    guide,
		ReceiptCode:    "2623",
		PrincipalValue: "1234.56",
		TotalValue:     "1300.00",
		DueDate:        util.StringPtr("2025-02-10 00:00:00"),
		FiscalYear:     2024,
		CompetenceYear: 2026,
		Barcode:        util.StringPtr("816900000012"),
	}
}

func TestInsertLayout(t *testing.T) {
	stmt, err := testEmitter().Insert(testRecord("149"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stmt, "use silfae;\n\nINSERT INTO FarrDarmsPagos (\n") {
		t.Fatalf("unexpected prefix:\n%s", stmt)
	}
	if !strings.HasSuffix(stmt, ");") {
		t.Fatalf("statement should end with );")
	}
	for _, c := range Columns {
		if !strings.Contains(stmt, c.Physical) {
			t.Errorf("column %s missing", c.Physical)
		}
	}

	values, err := ParseValues(stmt)
	if err != nil {
		t.Fatal(err)
	}
	checks := map[string]string{
		"fiscal_year":     "2024",
		"bank_code":       "70",
		"sequence_number": SequenceExpression("149"),
		"receipt_code":    "2623",
		"including_user":  "'FARR'",
		"due_date":        "'2025-02-10 00:00:00'",
		"registration_id": "'12345678'",
		"guide_number":    "149",
		"competence_year": "2026",
		"barcode":         "'816900000012'",
		"document_status": "'13'",
		"paid_value":      "1300.00",
		"receipt_value":   "1300.00",
		"principal_value": "1234.56",
		"interest_value":  "0.00",
		"processed_flag":  "0",
	}
	for logical, want := range checks {
		if got := values[PhysicalIndex(logical)]; got != want {
			t.Errorf("%s: got %q want %q", logical, got, want)
		}
	}
}

func TestInsertNullableColumns(t *testing.T) {
	rec := testRecord("7")
	rec.DueDate = nil
	rec.Barcode = nil
	rec.ReceiptCode = "262-3"

	stmt, err := testEmitter().Insert(rec)
	if err != nil {
		t.Fatal(err)
	}
	values, err := ParseValues(stmt)
	if err != nil {
		t.Fatal(err)
	}
	if values[PhysicalIndex("due_date")] != "NULL" || values[PhysicalIndex("barcode")] != "NULL" {
		t.Fatalf("expected NULLs, got %q %q", values[PhysicalIndex("due_date")], values[PhysicalIndex("barcode")])
	}
	if got := values[PhysicalIndex("receipt_code")]; got != "'262-3'" {
		t.Fatalf("separator receipt code must be quoted, got %s", got)
	}
}

func TestInsertBelowFloor(t *testing.T) {
	e := testEmitter()
	e.minLength = 100000
	if _, err := e.Insert(testRecord("1")); !errors.Is(err, ErrMalformedStatement) {
		t.Fatalf("got %v", err)
	}
}

func TestCheckStatement(t *testing.T) {
	got := testEmitter().Check("149")
	for _, want := range []string{
		"use silfae;",
		"SELECT COUNT(*) as total FROM FarrDarmsPagos",
		"WHERE NR_GUIA = 149",
		"AND AA_EXERCICIO = 2025",
		"AND CD_BANCO = 70",
		"AND NR_BDA = 37",
		"AND NR_COMPLEMENTO = 0",
		"AND NR_LOTE_NSA = 730",
		"AND TP_LOTE_D = 1;",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in\n%s", want, got)
		}
	}
}

func TestSequenceExpression(t *testing.T) {
	want := "(((149 % 1000) * 1000) + (UNIX_TIMESTAMP() % 1000)) % 1000000"
	if got := SequenceExpression("149"); got != want {
		t.Fatalf("got %q", got)
	}
	if got := SequenceLiteral("12149", 1700000000123, 2); got != 149125 {
		t.Fatalf("literal: %d", got)
	}
}

func TestParseTuplesQuotes(t *testing.T) {
	stmt := "INSERT INTO t (a) VALUES (" + strings.Repeat("1, ", len(Columns)-2) + "'a, (b)'' c', NOW())"
	tuples, err := ParseTuples(stmt)
	if err != nil {
		t.Fatal(err)
	}
	row := tuples[0]
	if row[len(row)-2] != "'a, (b)'' c'" || row[len(row)-1] != "NOW()" {
		t.Fatalf("got %q %q", row[len(row)-2], row[len(row)-1])
	}
	if unquote(row[len(row)-2]) != "a, (b)' c" {
		t.Fatalf("unquote: %q", unquote(row[len(row)-2]))
	}

	if _, err := ParseTuples("INSERT INTO t VALUES (1, 2)"); !errors.Is(err, ErrMalformedStatement) {
		t.Fatalf("short tuple: %v", err)
	}
	if _, err := ParseTuples("SELECT 1"); !errors.Is(err, ErrMalformedStatement) {
		t.Fatalf("no values: %v", err)
	}
}

func TestEncodeLatin1(t *testing.T) {
	b, err := EncodeLatin1("INSCRIÇÃO")
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != len("INSCRICAO") {
		t.Fatalf("expected single-byte output, got %d bytes", len(b))
	}
	back, err := DecodeLatin1(b)
	if err != nil || back != "INSCRIÇÃO" {
		t.Fatalf("round trip: %q %v", back, err)
	}

	if _, err := EncodeLatin1("valor € 10"); !errors.Is(err, ErrNotLatin1) {
		t.Fatalf("expected ErrNotLatin1, got %v", err)
	}
}
