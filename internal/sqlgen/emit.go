package sqlgen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
	"github.com/rodrigosardinha/gerador-query-darm/internal/config"
	"github.com/rodrigosardinha/gerador-query-darm/internal/util"
)

var (
	ErrMalformedStatement = errors.New("malformed statement")
	ErrEmptyBatch         = errors.New("nothing to consolidate")
	ErrSequenceCollision  = errors.New("sequence number collision")
)

// Identity is the fixed batch tuple stamped on every row and used to look up
// existing guides. It comes from configuration, never from the document.
type Identity struct {
	ExerciseYear     int
	BankCode         int
	AgencyCode       int
	ComplementNumber int
	LotNumber        int
	LotType          int
}

type Emitter struct {
	database      string
	table         string
	identity      Identity
	includingUser string
	status        string
	minLength     int
}

func NewEmitter(cfg config.Config) *Emitter {
	return &Emitter{
		database: cfg.Database,
		table:    cfg.Table,
		identity: Identity{
			ExerciseYear:     cfg.ExerciseYear,
			BankCode:         cfg.BankCode,
			AgencyCode:       cfg.AgencyCode,
			ComplementNumber: cfg.ComplementNumber,
			LotNumber:        cfg.LotNumber,
			LotType:          cfg.LotType,
		},
		includingUser: cfg.IncludingUser,
		status:        cfg.DocumentStatus,
		minLength:     cfg.MinStatementLength,
	}
}

// SequenceExpression is the SQ_DOC value of an individual statement, resolved
// by the database at execution time.
func SequenceExpression(guide string) string {
	return fmt.Sprintf("(((%s %% 1000) * 1000) + (UNIX_TIMESTAMP() %% 1000)) %% 1000000", guideLiteral(guide))
}

// SequenceLiteral is the SQ_DOC value precomputed for row i of a consolidated batch.
func SequenceLiteral(guide string, batchMillis int64, i int) int64 {
	return int64(guideMod1000(guide))*1000 + batchMillis%1000 + int64(i)
}

// Tuple renders the 33 values of one row in column order.
func (e *Emitter) Tuple(rec internal.DarmRecord, sequence string) []string {
	id := e.identity
	return []string{
		"NULL",
		strconv.Itoa(rec.FiscalYear),
		strconv.Itoa(id.BankCode),
		strconv.Itoa(id.AgencyCode),
		strconv.Itoa(id.ComplementNumber),
		strconv.Itoa(id.LotNumber),
		strconv.Itoa(id.LotType),
		sequence,
		receiptLiteral(rec.ReceiptCode),
		"NULL",
		quote(e.includingUser),
		"NULL",
		"NOW()",
		nullableQuote(rec.DueDate),
		"NOW()",
		quote(rec.RegistrationID),
		guideLiteral(rec.GuideNumber),
		strconv.Itoa(rec.CompetenceYear),
		nullableQuote(rec.Barcode),
		"NULL",
		quote(e.status),
		"NULL",
		rec.TotalValue,
		rec.TotalValue,
		rec.PrincipalValue,
		"0.00",
		"0.00",
		"NULL",
		"NULL",
		"NULL",
		"0.00",
		"0",
		"NULL",
	}
}

// Insert renders the individual statement for one record. It fails with
// ErrMalformedStatement when the text falls under the well-formedness floor.
func (e *Emitter) Insert(rec internal.DarmRecord) (string, error) {
	stmt := e.render([][]string{e.Tuple(rec, SequenceExpression(rec.GuideNumber))}, false)
	if err := e.checkFloor(stmt); err != nil {
		return "", err
	}
	return stmt, nil
}

// Check renders the read-only existence query for a guide.
func (e *Emitter) Check(guide string) string {
	id := e.identity
	return fmt.Sprintf(`use %s;

SELECT COUNT(*) as total FROM %s
WHERE NR_GUIA = %s
AND AA_EXERCICIO = %d
AND CD_BANCO = %d
AND NR_BDA = %d
AND NR_COMPLEMENTO = %d
AND NR_LOTE_NSA = %d
AND TP_LOTE_D = %d;`,
		e.database, e.table, guideLiteral(guide),
		id.ExerciseYear, id.BankCode, id.AgencyCode, id.ComplementNumber, id.LotNumber, id.LotType)
}

func (e *Emitter) checkFloor(stmt string) error {
	trimmed := strings.TrimSpace(stmt)
	if len(trimmed) < e.minLength {
		return fmt.Errorf("%w: %d characters, minimum %d", ErrMalformedStatement, len(trimmed), e.minLength)
	}
	if !strings.Contains(trimmed, "VALUES") {
		return fmt.Errorf("%w: missing VALUES", ErrMalformedStatement)
	}
	return nil
}

// render lays out one or many tuples. Consolidated output puts each tuple on
// its own parenthesised block after a bare VALUES.
func (e *Emitter) render(tuples [][]string, multi bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "use %s;\n\nINSERT INTO %s (\n%s\n) VALUES", e.database, e.table, columnList())
	if !multi {
		b.WriteString(" (\n")
		writeTuple(&b, tuples[0], "    ")
		b.WriteString("\n);")
		return b.String()
	}
	b.WriteString("\n")
	for i, t := range tuples {
		b.WriteString("    (\n")
		writeTuple(&b, t, "        ")
		b.WriteString("\n    )")
		if i < len(tuples)-1 {
			b.WriteString(",\n")
		}
	}
	b.WriteString(";")
	return b.String()
}

func writeTuple(b *strings.Builder, values []string, indent string) {
	b.WriteString(indent)
	for i, v := range values {
		b.WriteString(v)
		if i == len(values)-1 {
			break
		}
		b.WriteString(",")
		if valueBreaks[i] {
			b.WriteString("\n" + indent)
		} else {
			b.WriteString(" ")
		}
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func nullableQuote(s *string) string {
	if s == nil || *s == "" {
		return "NULL"
	}
	return quote(*s)
}

// receiptLiteral emits digit codes bare and separator codes quoted, so "262-3"
// is never evaluated as a subtraction.
func receiptLiteral(code string) string {
	if util.IsDigits(code) {
		return code
	}
	return quote(code)
}

func guideLiteral(guide string) string {
	if util.IsDigits(guide) {
		return guide
	}
	return "0"
}

func guideMod1000(guide string) int {
	if !util.IsDigits(guide) {
		return 0
	}
	if len(guide) > 3 {
		guide = guide[len(guide)-3:]
	}
	n, _ := strconv.Atoi(guide)
	return n
}
