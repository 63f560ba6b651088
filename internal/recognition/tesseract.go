package recognition

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rodrigosardinha/gerador-query-darm/internal/config"
)

// Tesseract shells out to a local tesseract install. PDFs are rasterised with
// pdftoppm first, one image per page.
type Tesseract struct {
	binary   string
	pdftoppm string
	language string
	dpi      int
	log      logrus.FieldLogger
}

func NewTesseract(cfg config.Config, log logrus.FieldLogger) *Tesseract {
	return &Tesseract{
		binary:   cfg.TesseractBinary,
		pdftoppm: cfg.PdftoppmBinary,
		language: cfg.OCRLanguage,
		dpi:      cfg.OCRDPI,
		log:      log,
	}
}

func (t *Tesseract) Recognize(ctx context.Context, name string, content []byte) (string, error) {
	if _, err := exec.LookPath(t.binary); err != nil {
		return "", fmt.Errorf("tesseract not available: %w", err)
	}

	dir, err := os.MkdirTemp("", "darm-ocr-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input"+strings.ToLower(filepath.Ext(name)))
	if err := os.WriteFile(input, content, 0o600); err != nil {
		return "", err
	}

	images := []string{input}
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		images, err = t.rasterize(ctx, input, dir)
		if err != nil {
			return "", err
		}
	}

	var pages []string
	for _, img := range images {
		text, err := t.run(ctx, img)
		if err != nil {
			return "", err
		}
		pages = append(pages, text)
	}
	t.log.WithFields(logrus.Fields{"file": name, "pages": len(pages)}).Debug("tesseract finished")
	return strings.Join(pages, "\n"), nil
}

func (t *Tesseract) rasterize(ctx context.Context, pdfPath, dir string) ([]string, error) {
	if _, err := exec.LookPath(t.pdftoppm); err != nil {
		return nil, fmt.Errorf("pdftoppm not available: %w", err)
	}
	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, t.pdftoppm, "-png", "-r", strconv.Itoa(t.dpi), pdfPath, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	pages, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	sort.Strings(pages)
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages for %s", filepath.Base(pdfPath))
	}
	return pages, nil
}

func (t *Tesseract) run(ctx context.Context, image string) (string, error) {
	cmd := exec.CommandContext(ctx, t.binary, image, "stdout", "-l", t.language, "--dpi", strconv.Itoa(t.dpi))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
