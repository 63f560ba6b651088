package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
	"github.com/rodrigosardinha/gerador-query-darm/internal/logging"
	"github.com/rodrigosardinha/gerador-query-darm/internal/sqlgen"
	"github.com/rodrigosardinha/gerador-query-darm/internal/storage"
)

type fakeRecognizer map[string]string

func (f fakeRecognizer) Recognize(_ context.Context, name string, _ []byte) (string, error) {
	text, ok := f[name]
	if !ok {
		return "", errors.New("unexpected file " + name)
	}
	return text, nil
}

func darmText(guide, registration, value string) string {
	return strings.Join([]string{
		"PREFEITURA MUNICIPAL - DARM",
		"01. RECEITA 262-3",
		"02. INSCRIÇÃO MUNICIPAL " + registration,
		"03. DATA VENCIMENTO 10/02/2025",
		"04. ANO DE REFERÊNCIA 2025",
		"05. GUIA Nº " + guide,
		"06. VALOR DO TRIBUTO R$ " + value,
	}, "\n")
}

func newTestService(t *testing.T, rec fakeRecognizer) (*ProcessingService, *storage.DB, string) {
	t.Helper()
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "data", "darm.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := testConfig()
	cfg.InputDir = filepath.Join(tmp, "darms")
	cfg.OutputDir = filepath.Join(tmp, "inserts")
	cfg.AllowedExtensions = []string{".pdf", ".png", ".txt", ".hocr", ".eml"}
	cfg.MaxFileSizeMB = 50
	cfg.GenerateCheckFiles = true
	cfg.GenerateReport = true
	if err := os.MkdirAll(cfg.InputDir, 0o755); err != nil {
		t.Fatal(err)
	}

	svc := NewProcessingService(db, cfg, rec, logging.Discard())
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 123_000_000, time.UTC) }
	return svc, db, tmp
}

func writeInput(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSmokeDirectoryToConsolidated(t *testing.T) {
	svc, db, _ := newTestService(t, fakeRecognizer{
		"e_scan.png":  darmText("000855", "55555555", "10,00"),
		"f_blank.png": "",
	})
	in := svc.cfg.InputDir
	writeInput(t, in, "a_149.txt", darmText("000149", "12345678", "1.234,56"))
	writeInput(t, in, "b_201.txt", darmText("201", "87654321", "99,90"))
	writeInput(t, in, "c_149_again.txt", darmText("000149", "12345678", "1.234,56"))
	writeInput(t, in, "d_rejected.txt", "05. GUIA Nº 777\n06. VALOR DO TRIBUTO R$ 5,00")
	writeInput(t, in, "e_scan.png", "binary")
	writeInput(t, in, "f_blank.png", "binary")
	writeInput(t, in, "g_notes.docx", "ignored")

	res, err := svc.ProcessDirectory(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	if res.Documents != 6 {
		t.Fatalf("documents: %d", res.Documents)
	}
	if res.Counts[internal.DocumentProcessed] != 4 || res.Counts[internal.DocumentRejected] != 1 || res.Counts[internal.DocumentNoText] != 1 {
		t.Fatalf("counts: %v", res.Counts)
	}
	if res.Reprocessed != 1 {
		t.Fatalf("reprocessed: %d", res.Reprocessed)
	}
	if res.Stats.Duplicates != 1 || res.Stats.Rows != 3 {
		t.Fatalf("stats: %+v", res.Stats)
	}

	out := svc.cfg.OutputDir
	for _, name := range []string{
		InsertFileName("149"), InsertFileName("201"), InsertFileName("855"),
		CheckFileName("149"), CheckFileName("855"), ConsolidatedFile, ReportFile,
	} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(out, InsertFileName("777"))); !os.IsNotExist(err) {
		t.Error("rejected document must not produce an artifact")
	}

	raw, err := os.ReadFile(filepath.Join(out, InsertFileName("149")))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "UNIX_TIMESTAMP()") || !strings.Contains(string(raw), "1234.56") {
		t.Fatalf("individual artifact:\n%s", raw)
	}

	report, err := svc.AuditConsolidated("")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"149123", "201124", "855125"}
	for i, row := range report.Rows {
		if row.Sequence != want[i] {
			t.Errorf("row %d: %+v", i, row)
		}
	}
	if len(report.Duplicates) != 0 {
		t.Fatalf("duplicates: %v", report.Duplicates)
	}

	docs, err := db.ListDocuments(res.TraceID)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 6 {
		t.Fatalf("ledger documents: %d", len(docs))
	}
	if docs[4].Source != string(internal.SourceImageOCR) || docs[4].Status != string(internal.DocumentProcessed) {
		t.Fatalf("scan document: %+v", docs[4])
	}
	run, err := db.LatestRun()
	if err != nil || run == nil || run.ConsolidatedPath == nil {
		t.Fatalf("run: %+v %v", run, err)
	}
}

func TestEmptyBatchWritesNoConsolidatedFile(t *testing.T) {
	svc, _, _ := newTestService(t, fakeRecognizer{})
	writeInput(t, svc.cfg.InputDir, "only.txt", "nothing useful here")

	res, err := svc.ProcessDirectory(context.Background(), svc.cfg.InputDir)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Empty || res.Consolidated != "" {
		t.Fatalf("expected empty batch, got %+v", res)
	}
	if _, err := os.Stat(filepath.Join(svc.cfg.OutputDir, ConsolidatedFile)); !os.IsNotExist(err) {
		t.Fatalf("consolidated file should not exist: %v", err)
	}
}

func TestEmitFailureRollsBackGuide(t *testing.T) {
	svc, _, _ := newTestService(t, fakeRecognizer{})
	svc.cfg.MinStatementLength = 1 << 20
	svc.emitter = sqlgen.NewEmitter(svc.cfg)
	writeInput(t, svc.cfg.InputDir, "a.txt", darmText("5", "1", "1,00"))

	res, err := svc.ProcessDirectory(context.Background(), svc.cfg.InputDir)
	if err != nil {
		t.Fatal(err)
	}
	if res.Counts[internal.DocumentEmitFailed] != 1 || !res.Empty {
		t.Fatalf("result: %+v", res)
	}
	if _, err := os.Stat(filepath.Join(svc.cfg.OutputDir, InsertFileName("5"))); !os.IsNotExist(err) {
		t.Fatal("failed statement must not be written")
	}
}

func TestRegenerateFromIndividualFiles(t *testing.T) {
	svc, _, _ := newTestService(t, fakeRecognizer{})
	for _, g := range []string{"855", "149", "201"} {
		writeInput(t, svc.cfg.InputDir, g+".txt", darmText(g, "1"+g, "10,00"))
	}
	if _, err := svc.ProcessDirectory(context.Background(), svc.cfg.InputDir); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(svc.cfg.OutputDir, ConsolidatedFile)); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Regenerate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Rows != 3 {
		t.Fatalf("rows: %d", res.Stats.Rows)
	}
	got := make([]string, 0, 3)
	for _, s := range res.Stats.Sequences {
		got = append(got, s.Guide)
	}
	if fmt.Sprint(got) != "[149 201 855]" {
		t.Fatalf("regenerated order: %v", got)
	}
}

func TestProcessPendingEmails(t *testing.T) {
	svc, db, tmp := newTestService(t, fakeRecognizer{})
	raw := strings.Join([]string{
		"From: banco@example.com",
		"To: farr@example.com",
		"Subject: DARM pago guia 300",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		darmText("300", "30303030", "45,00"),
		"",
	}, "\r\n")
	rawPath := filepath.Join(tmp, "1.eml")
	if err := os.WriteFile(rawPath, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	email, err := db.UpsertEmail("imap", "INBOX:1", "DARM pago guia 300", "banco@example.com", "2026-03-15T00:00:00Z", "h", rawPath, "fetched")
	if err != nil {
		t.Fatal(err)
	}

	res, n, err := svc.ProcessPendingEmails(context.Background(), 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || res.Counts[internal.DocumentProcessed] != 1 {
		t.Fatalf("n=%d result=%+v", n, res)
	}
	row, err := db.GetEmailByProviderMessageID("imap", "INBOX:1")
	if err != nil || row == nil || row.Status != "processed" {
		t.Fatalf("email %d: %+v %v", email.ID, row, err)
	}
}

// brokenPDF is structurally valid up to the page object, whose dictionary
// carries a stray ')' the reader cannot lex.
func brokenPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents ) >>",
	}
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return []byte(b.String())
}

func TestBrokenPDFDoesNotAbortBatch(t *testing.T) {
	svc, db, _ := newTestService(t, fakeRecognizer{})
	in := svc.cfg.InputDir
	writeInput(t, in, "a_good.txt", darmText("149", "12345678", "10,00"))
	writeInput(t, in, "bad.pdf", string(brokenPDF()))
	writeInput(t, in, "z_good.txt", darmText("201", "87654321", "20,00"))

	res, err := svc.ProcessDirectory(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if res.Documents != 3 || res.Counts[internal.DocumentProcessed] != 2 || res.Counts[internal.DocumentAcquireError] != 1 {
		t.Fatalf("counts: %v", res.Counts)
	}
	if res.Stats.Rows != 2 || res.Consolidated == "" {
		t.Fatalf("consolidation: %+v", res)
	}
	run, err := db.GetRun(res.TraceID)
	if err != nil || run == nil || run.FinishedAt == nil {
		t.Fatalf("run not finished: %+v %v", run, err)
	}
}

func TestCollisionStillClosesRun(t *testing.T) {
	svc, db, _ := newTestService(t, fakeRecognizer{})
	if err := os.MkdirAll(svc.cfg.OutputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Guide 1 takes row 0; guides 2000..1001000 all reduce to 0 mod 1000, so
	// row 1000 lands on the same literal as row 0.
	guides := []string{"1"}
	for g := 2000; len(guides) <= 1000; g += 1000 {
		guides = append(guides, fmt.Sprint(g))
	}
	for _, g := range guides {
		rec := internal.DarmRecord{RegistrationID: "12345678", GuideNumber: g, ReceiptCode: "2623", PrincipalValue: "1.00", TotalValue: "1.00", FiscalYear: 2025, CompetenceYear: 2026}
		stmt, err := svc.emitter.Insert(rec)
		if err != nil {
			t.Fatal(err)
		}
		writeInput(t, svc.cfg.OutputDir, InsertFileName(g), stmt)
	}

	res, err := svc.Regenerate(context.Background())
	if !errors.Is(err, sqlgen.ErrSequenceCollision) {
		t.Fatalf("expected collision, got %v", err)
	}
	if !res.Failed {
		t.Fatal("result not marked failed")
	}
	run, err := db.GetRun(res.TraceID)
	if err != nil || run == nil || run.FinishedAt == nil || run.ConsolidatedPath != nil {
		t.Fatalf("run: %+v %v", run, err)
	}
	if !strings.Contains(run.CountsJSON, `"failed":1`) {
		t.Fatalf("counts: %s", run.CountsJSON)
	}
	if _, err := os.Stat(filepath.Join(svc.cfg.OutputDir, ConsolidatedFile)); !os.IsNotExist(err) {
		t.Fatal("colliding batch must not be written")
	}
}

func TestMissingRawMailStatusFailureIsLogged(t *testing.T) {
	svc, db, tmp := newTestService(t, fakeRecognizer{})
	if _, err := db.UpsertEmail("imap", "INBOX:9", "DARM", "banco@example.com", "2026-03-15T00:00:00Z", "h", filepath.Join(tmp, "gone.eml"), "fetched"); err != nil {
		t.Fatal(err)
	}

	// A second connection installs a trigger that refuses every status update.
	side, err := sql.Open("sqlite", filepath.Join(tmp, "data", "darm.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer side.Close()
	if _, err := side.Exec(`CREATE TRIGGER emails_frozen BEFORE UPDATE ON emails BEGIN SELECT RAISE(ABORT, 'frozen'); END;`); err != nil {
		t.Fatal(err)
	}

	logger, hook := logtest.NewNullLogger()
	svc.log = logger

	res, n, err := svc.ProcessPendingEmails(context.Background(), 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || !res.Empty {
		t.Fatalf("n=%d result=%+v", n, res)
	}
	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Message == "email status not updated" && e.Data["email"] != nil {
			logged = true
		}
	}
	if !logged {
		t.Fatal("failed status update was not logged")
	}
}
