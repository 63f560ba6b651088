package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
	"github.com/rodrigosardinha/gerador-query-darm/internal/config"
	"github.com/rodrigosardinha/gerador-query-darm/internal/recognition"
	"github.com/rodrigosardinha/gerador-query-darm/internal/sqlgen"
	"github.com/rodrigosardinha/gerador-query-darm/internal/storage"
	"github.com/rodrigosardinha/gerador-query-darm/internal/util"
)

const (
	ConsolidatedFile = "INSERT_TODOS_DARMs.sql"
	ReportFile       = "RELATORIO_PROCESSAMENTO.xlsx"
)

var reInsertFile = regexp.MustCompile(`^INSERT_DARM_PAGO_(\d+)\.sql$`)

func InsertFileName(guide string) string { return "INSERT_DARM_PAGO_" + guide + ".sql" }
func CheckFileName(guide string) string  { return "CHECK_GUIA_" + guide + ".sql" }

type ProcessingService struct {
	db        *storage.DB
	cfg       config.Config
	log       logrus.FieldLogger
	acquirer  *Acquirer
	extractor *Extractor
	assembler *Assembler
	emitter   *sqlgen.Emitter
	now       func() time.Time
}

func NewProcessingService(db *storage.DB, cfg config.Config, recognizer recognition.Recognizer, log logrus.FieldLogger) *ProcessingService {
	return &ProcessingService{
		db:        db,
		cfg:       cfg,
		log:       log,
		acquirer:  NewAcquirer(cfg, recognizer, log),
		extractor: NewExtractor(DefaultFieldSpecs(cfg.ReceiptCodePolicy, cfg.MaxBarcodeLength), log),
		assembler: NewAssembler(cfg),
		emitter:   sqlgen.NewEmitter(cfg),
		now:       time.Now,
	}
}

type RunResult struct {
	TraceID      string
	Documents    int
	Counts       map[internal.DocumentStatus]int
	Reprocessed  int
	Consolidated string
	Empty        bool
	Stats        sqlgen.Stats
	ReportPath   string
	// Failed is set when consolidation was refused; the run is still closed.
	Failed bool
}

func (r RunResult) countsJSON() map[string]int {
	out := map[string]int{"documents": r.Documents, "reprocessed": r.Reprocessed, "rows": r.Stats.Rows}
	for k, v := range r.Counts {
		out[string(k)] = v
	}
	if r.Failed {
		out["failed"] = 1
	}
	return out
}

// ProcessDirectory runs every accepted file under dir as one batch.
func (s *ProcessingService) ProcessDirectory(ctx context.Context, dir string) (RunResult, error) {
	docs, err := s.CollectDirectory(dir)
	if err != nil {
		return RunResult{}, err
	}
	return s.Run(ctx, docs)
}

// CollectDirectory lists input documents in name order. Mail files are split
// into their body and attachments.
func (s *ProcessingService) CollectDirectory(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var docs []Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !s.cfg.AllowsExtension(ext) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			s.log.WithError(err).WithField("file", path).Warn("cannot read input")
			continue
		}
		if ext == ".eml" {
			docs = append(docs, s.mailDocuments(content, path, nil)...)
			continue
		}
		docs = append(docs, Document{Name: entry.Name(), Path: path, Content: content})
	}
	return docs, nil
}

func (s *ProcessingService) mailDocuments(raw []byte, name string, emailID *int) []Document {
	mail, err := SplitEmail(raw, name)
	if err != nil {
		s.log.WithError(err).WithField("file", name).Warn("cannot parse message")
		return nil
	}

	var docs []Document
	if detect := DetectDarm(mail.Subject, mail.Body); detect.IsDarm {
		docs = append(docs, Document{Name: "body.txt", Path: name + "#body", Content: []byte(mail.Body), EmailID: emailID})
	}
	for _, att := range mail.Attachments {
		if !s.cfg.AllowsExtension(filepath.Ext(att.Name)) || strings.EqualFold(filepath.Ext(att.Name), ".eml") {
			continue
		}
		att.EmailID = emailID
		docs = append(docs, att)
	}
	return docs
}

// Run processes docs in order as one batch and writes the consolidated artifact.
// Per-document failures are recorded and never abort the batch.
func (s *ProcessingService) Run(ctx context.Context, docs []Document) (RunResult, error) {
	result := RunResult{
		TraceID:   uuid.NewString(),
		Documents: len(docs),
		Counts:    map[internal.DocumentStatus]int{},
	}
	log := s.log.WithField("run", result.TraceID)
	if err := s.db.StartRun(result.TraceID); err != nil {
		return result, err
	}
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return result, err
	}

	batch := NewBatchContext()
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		status, reprocessed, err := s.processDocument(ctx, result.TraceID, batch, doc)
		if err != nil {
			return result, err
		}
		result.Counts[status]++
		if reprocessed {
			result.Reprocessed++
		}
	}

	if err := s.consolidate(batch.SQLEntries(), &result); err != nil {
		return result, s.abortRun(&result, err)
	}

	if s.cfg.GenerateReport {
		path, err := s.writeReport(result)
		if err != nil {
			log.WithError(err).Warn("report not written")
		} else {
			result.ReportPath = path
		}
	}

	var consolidated *string
	if result.Consolidated != "" {
		consolidated = util.StringPtr(result.Consolidated)
	}
	if err := s.db.FinishRun(result.TraceID, result.countsJSON(), consolidated); err != nil {
		return result, err
	}
	log.WithFields(logrus.Fields{
		"documents":   result.Documents,
		"processed":   result.Counts[internal.DocumentProcessed],
		"rejected":    result.Counts[internal.DocumentRejected],
		"noText":      result.Counts[internal.DocumentNoText],
		"emitFailed":  result.Counts[internal.DocumentEmitFailed],
		"reprocessed": result.Reprocessed,
		"rows":        result.Stats.Rows,
	}).Info("run finished")
	return result, nil
}

// processDocument returns an error only for ledger failures; everything
// about the document itself is reported through its status.
func (s *ProcessingService) processDocument(ctx context.Context, traceID string, batch *BatchContext, doc Document) (internal.DocumentStatus, bool, error) {
	log := s.log.WithFields(logrus.Fields{"run": traceID, "file": doc.Path})
	row := internal.DocumentRow{RunID: traceID, SourcePath: doc.Path, EmailID: doc.EmailID}

	record := func(status internal.DocumentStatus, reason error) (internal.DocumentStatus, bool, error) {
		row.Status = string(status)
		if reason != nil {
			row.Reason = util.StringPtr(reason.Error())
		}
		_, err := s.db.InsertDocument(row)
		return status, false, err
	}

	acquired, err := s.acquirer.Acquire(ctx, doc)
	row.Source = string(acquired.Source)
	if err != nil {
		if errors.Is(err, ErrNoText) {
			log.WithError(err).Warn("no text extracted")
			return record(internal.DocumentNoText, err)
		}
		log.WithError(err).Warn("text acquisition failed")
		return record(internal.DocumentAcquireError, err)
	}

	fields, trace := s.extractor.Extract(acquired.Text)
	fieldsJSON, _ := json.Marshal(fields)
	traceJSON, _ := json.Marshal(trace)
	row.FieldsJSON = string(fieldsJSON)
	row.TraceJSON = string(traceJSON)

	validated, err := Validate(fields)
	if err != nil {
		log.WithError(err).Warn("document rejected")
		return record(internal.DocumentRejected, err)
	}

	rec := s.assembler.Assemble(validated, s.now())
	row.GuideNumber = util.StringPtr(rec.GuideNumber)
	row.RegistrationID = util.StringPtr(rec.RegistrationID)
	row.PrincipalValue = util.StringPtr(rec.PrincipalValue)
	row.TotalValue = util.StringPtr(rec.TotalValue)
	row.UsedTotalAsPrincipal = rec.UsedTotalAsPrincipal
	if rec.UsedTotalAsPrincipal {
		log.WithField("guide", rec.GuideNumber).Info("principal value missing, using total")
	}

	reprocessed := batch.Claim(rec.GuideNumber)
	if reprocessed {
		log.WithField("guide", rec.GuideNumber).Info("reprocessing guide already seen in this batch")
	}

	stmt, err := s.emitter.Insert(rec)
	var artifact string
	if err == nil {
		artifact, err = s.writeArtifact(InsertFileName(rec.GuideNumber), stmt)
	}
	if err != nil {
		batch.Release(rec.GuideNumber)
		log.WithError(err).WithField("guide", rec.GuideNumber).Error("statement not emitted")
		return record(internal.DocumentEmitFailed, err)
	}

	if s.cfg.GenerateCheckFiles {
		if _, err := s.writeArtifact(CheckFileName(rec.GuideNumber), s.emitter.Check(rec.GuideNumber)); err != nil {
			log.WithError(err).WithField("guide", rec.GuideNumber).Warn("check file not written")
		}
	}

	batch.Add(BatchEntry{Guide: rec.GuideNumber, SourcePath: doc.Path, Record: rec, Statement: stmt})
	row.ArtifactPath = util.StringPtr(artifact)
	log.WithFields(logrus.Fields{"guide": rec.GuideNumber, "source": acquired.Source}).Info("statement generated")

	status, _, err := record(internal.DocumentProcessed, nil)
	return status, reprocessed, err
}

func (s *ProcessingService) consolidate(entries []sqlgen.Entry, result *RunResult) error {
	sql, stats, err := s.emitter.Consolidate(entries, s.now())
	result.Stats = stats
	if errors.Is(err, sqlgen.ErrEmptyBatch) {
		result.Empty = true
		s.log.WithField("run", result.TraceID).Info("nothing to consolidate")
		return nil
	}
	if err != nil {
		return err
	}
	path, err := s.writeArtifact(ConsolidatedFile, sql)
	if err != nil {
		return err
	}
	result.Consolidated = path
	return nil
}

// abortRun closes the ledger run of a batch whose consolidation failed and
// returns cause. The individual artifacts already written stay in place.
func (s *ProcessingService) abortRun(result *RunResult, cause error) error {
	result.Failed = true
	s.log.WithError(cause).WithField("run", result.TraceID).Error("consolidation failed")
	if err := s.db.FinishRun(result.TraceID, result.countsJSON(), nil); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Regenerate rebuilds the consolidated artifact from the individual files
// already in the output directory, ordered by guide number.
func (s *ProcessingService) Regenerate(ctx context.Context) (RunResult, error) {
	entries, err := s.loadIndividualStatements()
	if err != nil {
		return RunResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return RunResult{}, err
	}

	result := RunResult{TraceID: uuid.NewString(), Documents: len(entries), Counts: map[internal.DocumentStatus]int{}}
	if err := s.db.StartRun(result.TraceID); err != nil {
		return result, err
	}
	if err := s.consolidate(entries, &result); err != nil {
		return result, s.abortRun(&result, err)
	}
	var consolidated *string
	if result.Consolidated != "" {
		consolidated = util.StringPtr(result.Consolidated)
	}
	return result, s.db.FinishRun(result.TraceID, result.countsJSON(), consolidated)
}

func (s *ProcessingService) loadIndividualStatements() ([]sqlgen.Entry, error) {
	files, err := os.ReadDir(s.cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	type numbered struct {
		n     int64
		entry sqlgen.Entry
	}
	var found []numbered
	for _, f := range files {
		m := reInsertFile.FindStringSubmatch(f.Name())
		if f.IsDir() || m == nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.cfg.OutputDir, f.Name()))
		if err != nil {
			return nil, err
		}
		stmt, err := sqlgen.DecodeLatin1(raw)
		if err != nil {
			return nil, err
		}
		n, _ := strconv.ParseInt(m[1], 10, 64)
		found = append(found, numbered{n: n, entry: sqlgen.Entry{Guide: m[1], Statement: stmt}})
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].n < found[j].n })

	out := make([]sqlgen.Entry, 0, len(found))
	for _, f := range found {
		out = append(out, f.entry)
	}
	return out, nil
}

// AuditConsolidated reads the consolidated artifact back and reports repeated SQ_DOC values.
func (s *ProcessingService) AuditConsolidated(path string) (sqlgen.AuditReport, error) {
	if path == "" {
		path = filepath.Join(s.cfg.OutputDir, ConsolidatedFile)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return sqlgen.AuditReport{}, err
	}
	stmt, err := sqlgen.DecodeLatin1(raw)
	if err != nil {
		return sqlgen.AuditReport{}, err
	}
	return sqlgen.AuditSequences(stmt)
}

// ProcessPendingEmails runs the documents of every fetched message as one batch.
func (s *ProcessingService) ProcessPendingEmails(ctx context.Context, limit int, provider string) (RunResult, int, error) {
	pending, err := s.db.ListEmailsByStatus("fetched", limit)
	if err != nil {
		return RunResult{}, 0, err
	}

	var docs []Document
	var emails []internal.EmailRow
	perEmail := map[int]int{}
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		raw, err := os.ReadFile(email.RawRef)
		if err != nil {
			s.log.WithError(err).WithField("email", email.ID).Warn("raw message missing")
			if err := s.db.UpdateEmailStatus(email.ID, "error"); err != nil {
				s.log.WithError(err).WithField("email", email.ID).Warn("email status not updated")
			}
			continue
		}
		id := email.ID
		found := s.mailDocuments(raw, fmt.Sprintf("%s:%s", email.Provider, email.MessageID), &id)
		perEmail[email.ID] = len(found)
		docs = append(docs, found...)
		emails = append(emails, email)
	}
	if len(emails) == 0 {
		return RunResult{Counts: map[internal.DocumentStatus]int{}, Empty: true}, 0, nil
	}

	result, err := s.Run(ctx, docs)
	if err != nil {
		return result, 0, err
	}
	for _, email := range emails {
		status := "processed"
		if perEmail[email.ID] == 0 {
			status = "skipped"
		}
		if err := s.db.UpdateEmailStatus(email.ID, status); err != nil {
			return result, 0, err
		}
	}
	return result, len(emails), nil
}

func (s *ProcessingService) writeArtifact(name, content string) (string, error) {
	encoded, err := sqlgen.EncodeLatin1(content)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.OutputDir, name)
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
