package storage

import (
	"path/filepath"
	"testing"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
	"github.com/rodrigosardinha/gerador-query-darm/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunAndDocuments(t *testing.T) {
	db := openTestDB(t)

	if run, err := db.LatestRun(); err != nil || run != nil {
		t.Fatalf("empty ledger: %v %v", run, err)
	}
	if err := db.StartRun("trace-1"); err != nil {
		t.Fatal(err)
	}

	id, err := db.InsertDocument(internal.DocumentRow{
		RunID:                "trace-1",
		SourcePath:           "darms/a.pdf",
		Source:               string(internal.SourcePDFText),
		Status:               string(internal.DocumentProcessed),
		GuideNumber:          util.StringPtr("149"),
		RegistrationID:       util.StringPtr("12345678"),
		UsedTotalAsPrincipal: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertDocument(internal.DocumentRow{
		RunID:      "trace-1",
		SourcePath: "darms/b.pdf",
		Source:     string(internal.SourcePDFOCR),
		Status:     string(internal.DocumentNoText),
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateDocumentStatus(id, string(internal.DocumentEmitFailed), "too short"); err != nil {
		t.Fatal(err)
	}

	docs, err := db.ListDocuments("trace-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("documents: %d", len(docs))
	}
	if docs[0].Status != string(internal.DocumentEmitFailed) || util.DerefString(docs[0].Reason) != "too short" {
		t.Fatalf("first document: %+v", docs[0])
	}
	if !docs[0].UsedTotalAsPrincipal || util.DerefString(docs[0].GuideNumber) != "149" {
		t.Fatalf("first document fields: %+v", docs[0])
	}
	if docs[1].GuideNumber != nil || docs[1].FieldsJSON != "{}" {
		t.Fatalf("second document: %+v", docs[1])
	}

	path := "inserts/INSERT_TODOS_DARMs.sql"
	if err := db.FinishRun("trace-1", map[string]int{"processed": 1}, &path); err != nil {
		t.Fatal(err)
	}
	run, err := db.LatestRun()
	if err != nil || run == nil {
		t.Fatalf("latest run: %v %v", run, err)
	}
	if run.FinishedAt == nil || util.DerefString(run.ConsolidatedPath) != path || run.CountsJSON != `{"processed":1}` {
		t.Fatalf("run: %+v", run)
	}
}

func TestEmailsAndMetadata(t *testing.T) {
	db := openTestDB(t)

	row, err := db.UpsertEmail("imap", "INBOX:1", "DARM pago", "a@b", "2025-01-01T00:00:00Z", "h1", "/tmp/1.eml", "fetched")
	if err != nil {
		t.Fatal(err)
	}
	again, err := db.UpsertEmail("imap", "INBOX:1", "DARM pago", "a@b", "2025-01-01T00:00:00Z", "h2", "/tmp/1.eml", "fetched")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != row.ID || again.Hash != "h2" {
		t.Fatalf("upsert should update in place: %+v", again)
	}

	if err := db.UpdateEmailStatus(row.ID, "processed"); err != nil {
		t.Fatal(err)
	}
	pending, err := db.ListEmailsByStatus("fetched", 10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending: %v %v", pending, err)
	}
	if _, err := db.MustEmailByProviderMessageID("imap", "missing"); err == nil {
		t.Fatal("expected not found")
	}

	if v, err := db.GetMetadata("k"); err != nil || v != nil {
		t.Fatalf("missing metadata: %v %v", v, err)
	}
	if err := db.SetMetadata("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMetadata("k", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.GetMetadata("k"); util.DerefString(v) != "v2" {
		t.Fatalf("metadata: %v", v)
	}
}
