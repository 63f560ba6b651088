package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
	"github.com/rodrigosardinha/gerador-query-darm/internal/config"
	"github.com/rodrigosardinha/gerador-query-darm/internal/recognition"
	"github.com/rodrigosardinha/gerador-query-darm/internal/util"
)

var (
	ErrTooLarge    = errors.New("file exceeds size limit")
	ErrUnsupported = errors.New("unsupported file type")
)

// A PDF whose text layer is shorter than this is treated as a scan.
const minTextLayer = 20

var imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".tiff": true, ".tif": true}

// Document is one input handed to the pipeline.
type Document struct {
	Name    string
	Path    string
	Content []byte
	EmailID *int
}

type Acquired struct {
	Text   string
	Source internal.TextSource
}

// Acquirer produces raw text for a document, falling back to recognition for
// scans. It is the only place that knows about file formats.
type Acquirer struct {
	maxBytes   int64
	recognizer recognition.Recognizer
	log        logrus.FieldLogger
}

func NewAcquirer(cfg config.Config, recognizer recognition.Recognizer, log logrus.FieldLogger) *Acquirer {
	return &Acquirer{
		maxBytes:   int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		recognizer: recognizer,
		log:        log,
	}
}

func (a *Acquirer) Acquire(ctx context.Context, doc Document) (Acquired, error) {
	if a.maxBytes > 0 && int64(len(doc.Content)) > a.maxBytes {
		return Acquired{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(doc.Content))
	}

	ext := strings.ToLower(filepath.Ext(doc.Name))
	var (
		out Acquired
		err error
	)
	switch {
	case ext == ".pdf":
		out, err = a.fromPDF(ctx, doc)
	case imageExtensions[ext]:
		out, err = a.recognize(ctx, doc, internal.SourceImageOCR)
	case ext == ".txt":
		out = Acquired{Text: decodeText(doc.Content), Source: internal.SourcePlain}
	case ext == ".hocr" || ext == ".html" || ext == ".htm":
		out, err = fromHOCR(doc.Content)
	default:
		return Acquired{}, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
	if err != nil {
		return Acquired{}, err
	}
	if strings.TrimSpace(out.Text) == "" {
		return out, ErrNoText
	}
	return out, nil
}

func (a *Acquirer) fromPDF(ctx context.Context, doc Document) (Acquired, error) {
	text, err := pdfText(doc.Content)
	if err != nil {
		a.log.WithError(err).WithField("file", doc.Name).Debug("pdf text layer unreadable")
	}
	if len(strings.TrimSpace(text)) >= minTextLayer {
		return Acquired{Text: text, Source: internal.SourcePDFText}, nil
	}
	return a.recognize(ctx, doc, internal.SourcePDFOCR)
}

func (a *Acquirer) recognize(ctx context.Context, doc Document, source internal.TextSource) (Acquired, error) {
	text, err := a.recognizer.Recognize(ctx, doc.Name, doc.Content)
	if errors.Is(err, recognition.ErrDisabled) {
		return Acquired{Source: source}, fmt.Errorf("%w: %v", ErrNoText, err)
	}
	if err != nil {
		return Acquired{Source: source}, err
	}
	return Acquired{Text: text, Source: source}, nil
}

// pdfText reads the text layer. The reader panics on malformed object syntax,
// so a panic is turned into an error and the caller falls back to recognition.
func pdfText(content []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf reader: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		page, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range util.SplitLines(page) {
			b.WriteString(util.NormalizeSpaces(line))
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// fromHOCR keeps one output line per ocr_line so numbered blocks stay apart.
func fromHOCR(content []byte) (Acquired, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return Acquired{}, err
	}

	var lines []string
	doc.Find(".ocr_line, .ocrx_line").Each(func(_ int, line *goquery.Selection) {
		if text := util.NormalizeSpaces(line.Text()); text != "" {
			lines = append(lines, text)
		}
	})
	if len(lines) == 0 {
		doc.Find("p, td, div").Each(func(_ int, s *goquery.Selection) {
			if s.Children().Length() > 0 {
				return
			}
			if text := util.NormalizeSpaces(s.Text()); text != "" {
				lines = append(lines, text)
			}
		})
	}
	return Acquired{Text: strings.Join(lines, "\n"), Source: internal.SourceHOCR}, nil
}

// decodeText accepts UTF-8 or, failing that, Latin-1 text exports.
func decodeText(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return string(content)
	}
	return string(out)
}

// Mail is a parsed message split into candidate documents.
type Mail struct {
	Subject     string
	Body        string
	Attachments []Document
}

// SplitEmail parses a raw message. The text body becomes a pseudo-document
// named after the message so it can go through the same pipeline.
func SplitEmail(raw []byte, name string) (Mail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Mail{}, err
	}

	body := env.Text
	if strings.TrimSpace(body) == "" && env.HTML != "" {
		if acquired, err := fromHOCR([]byte(env.HTML)); err == nil {
			body = acquired.Text
		}
	}

	mail := Mail{Subject: env.GetHeader("Subject"), Body: body}
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		mail.Attachments = append(mail.Attachments, Document{
			Name:    filename,
			Path:    name + "#" + filename,
			Content: att.Content,
		})
	}
	return mail, nil
}
