package recognition

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rodrigosardinha/gerador-query-darm/internal/config"
)

const maxAttempts = 5

// Client calls a remote OCR service that accepts a base64 document and
// answers with the recognised text.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
	log        logrus.FieldLogger
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type recognizeRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Language string `json:"language"`
	DPI      int    `json:"dpi"`
}

type recognizePayload struct {
	Text  string   `json:"text"`
	Pages []string `json:"pages"`
}

func NewClient(cfg config.Config, log logrus.FieldLogger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.OCRTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.OCRRateLimitRPS),
		log:        log,
	}
}

func (c *Client) Recognize(ctx context.Context, name string, content []byte) (string, error) {
	body, err := json.Marshal(recognizeRequest{
		Filename: name,
		Content:  base64.StdEncoding.EncodeToString(content),
		Language: c.cfg.OCRLanguage,
		DPI:      c.cfg.OCRDPI,
	})
	if err != nil {
		return "", err
	}

	data, err := c.postJSON(ctx, "recognize", body)
	if err != nil {
		return "", err
	}

	var payload recognizePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.Text) != "" {
		return payload.Text, nil
	}
	return strings.Join(payload.Pages, "\n"), nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	target := strings.TrimRight(c.cfg.OCRAPIBaseURL, "/") + "/" + endpoint
	requestID := uuid.NewString()
	log := c.log.WithFields(logrus.Fields{"endpoint": endpoint, "requestId": requestID})

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-Id", requestID)
		if token := strings.TrimSpace(c.cfg.OCRAPIToken); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			log.WithError(err).WithField("attempt", attempt).Warn("ocr request failed")
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				log.WithFields(logrus.Fields{"status": resp.StatusCode, "attempt": attempt, "backoff": backoff}).Warn("ocr service busy, retrying")
				if err := sleepCtx(ctx, backoff); err != nil {
					return nil, err
				}
				lastErr = fmt.Errorf("ocr status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("ocr api error: status=%d body=%s", resp.StatusCode, string(respBody))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return nil, err
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("ocr api unsuccessful: %s %s", apiResp.Message, string(apiResp.Errors))
		}
		return apiResp.Data, nil
	}

	if lastErr == nil {
		lastErr = errors.New("ocr request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
