package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/rodrigosardinha/gerador-query-darm/internal/config"
	"github.com/rodrigosardinha/gerador-query-darm/internal/connectors"
	"github.com/rodrigosardinha/gerador-query-darm/internal/listener"
	"github.com/rodrigosardinha/gerador-query-darm/internal/logging"
	"github.com/rodrigosardinha/gerador-query-darm/internal/pipeline"
	"github.com/rodrigosardinha/gerador-query-darm/internal/recognition"
	"github.com/rodrigosardinha/gerador-query-darm/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	must(cfg.Validate())
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	recognizer, err := recognition.New(cfg, log)
	must(err)
	processor := pipeline.NewProcessingService(db, cfg, recognizer, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		dir := fs.String("dir", cfg.InputDir, "input directory")
		_ = fs.Parse(os.Args[2:])
		res, err := processor.ProcessDirectory(ctx, *dir)
		must(err)
		printRun(res)
	case "extract":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "single input file")
		withText := fs.Bool("text", false, "include the acquired text")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		out, err := processor.ExtractFile(ctx, *file, *withText)
		must(err)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		must(enc.Encode(out))
	case "consolidate":
		res, err := processor.Regenerate(ctx)
		must(err)
		printRun(res)
	case "audit:sqdoc":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "consolidated file (default: output dir)")
		_ = fs.Parse(os.Args[2:])
		report, err := processor.AuditConsolidated(*file)
		must(err)
		for _, v := range report.DuplicateValues() {
			fmt.Printf("duplicate SQ_DOC %s guides=%s\n", v, strings.Join(report.Duplicates[v], ","))
		}
		fmt.Printf("audit done rows=%d duplicates=%d\n", len(report.Rows), len(report.Duplicates))
		if len(report.Duplicates) > 0 {
			os.Exit(2)
		}
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.String("run", "", "run trace id (default: latest)")
		out := fs.String("out", filepath.Join(cfg.OutputDir, pipeline.ReportFile), "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *runID == "" {
			run, err := db.LatestRun()
			must(err)
			if run == nil {
				must(fmt.Errorf("no runs recorded"))
			}
			*runID = run.TraceID
		}
		must(processor.ExportRun(*runID, *out))
		fmt.Printf("exported run=%s to %s\n", *runID, *out)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		search := fs.String("search", cfg.MailSearch, "text filter")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := connectors.New(ctx, cfg, *provider, log)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, log)
		result, err := fetch.FetchAndStore(ctx, *label, *search, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d unchanged=%d\n", *provider, result.Fetched, result.Stored, result.Unchanged)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "", "gmail|imap (default: all)")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		res, emails, err := processor.ProcessPendingEmails(ctx, *batch, *provider)
		must(err)
		fmt.Printf("processed pending emails=%d\n", emails)
		printRun(res)
	case "mail:listen":
		must(listen(ctx, db, cfg, processor, log))
	default:
		usage()
		os.Exit(1)
	}
}

func listen(ctx context.Context, db *storage.DB, cfg config.Config, processor *pipeline.ProcessingService, log logrus.FieldLogger) error {
	conn, err := connectors.New(ctx, cfg, cfg.MailListenerProvider, log)
	if err != nil {
		return err
	}
	fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, log)
	return listener.NewService(cfg, cfg.MailListenerProvider, fetch, processor, log).Run(ctx)
}

func printRun(res pipeline.RunResult) {
	if res.Empty {
		fmt.Printf("run=%s documents=%d: nothing to consolidate\n", res.TraceID, res.Documents)
		return
	}
	fmt.Printf("run=%s documents=%d rows=%d duplicates=%d malformed=%d reprocessed=%d\n",
		res.TraceID, res.Documents, res.Stats.Rows, res.Stats.Duplicates, res.Stats.Malformed, res.Reprocessed)
	for status, n := range res.Counts {
		fmt.Printf("  %s=%d\n", status, n)
	}
	fmt.Printf("consolidated: %s\n", res.Consolidated)
	if res.ReportPath != "" {
		fmt.Printf("report: %s\n", res.ReportPath)
	}
}

func usage() {
	fmt.Println("usage: darm <command>")
	fmt.Println("commands:")
	fmt.Println("  process [--dir=./darms]")
	fmt.Println("  extract --file=guia.pdf [--text]")
	fmt.Println("  consolidate")
	fmt.Println("  audit:sqdoc [--file=./inserts/INSERT_TODOS_DARMs.sql]")
	fmt.Println("  export:xlsx [--run=<trace id>] [--out=...xlsx]")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --search=DARM --max=50")
	fmt.Println("  mail:process [--provider=gmail|imap] [--batch=20]")
	fmt.Println("  mail:listen")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
