// Package recognition turns scanned documents into text.
package recognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rodrigosardinha/gerador-query-darm/internal/config"
)

var ErrDisabled = errors.New("text recognition disabled")

// Recognizer returns the text of an image or image-only PDF. An empty result
// with a nil error means the backend ran but found nothing.
type Recognizer interface {
	Recognize(ctx context.Context, name string, content []byte) (string, error)
}

// New picks the backend configured by OCR_BACKEND.
func New(cfg config.Config, log logrus.FieldLogger) (Recognizer, error) {
	switch cfg.OCRBackend {
	case config.OCRBackendHTTP:
		if err := cfg.Require("OCR_API_BASE_URL", cfg.OCRAPIBaseURL); err != nil {
			return nil, err
		}
		return NewClient(cfg, log), nil
	case config.OCRBackendTesseract:
		return NewTesseract(cfg, log), nil
	case config.OCRBackendNone, "":
		return disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown OCR backend %q", cfg.OCRBackend)
	}
}

type disabled struct{}

func (disabled) Recognize(context.Context, string, []byte) (string, error) {
	return "", ErrDisabled
}
