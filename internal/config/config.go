package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Receipt-code policies for a single captured token such as "262-3".
const (
	ReceiptPolicyConcat    = "concat"
	ReceiptPolicySeparator = "separator"
)

// OCR backends.
const (
	OCRBackendNone      = "none"
	OCRBackendHTTP      = "http"
	OCRBackendTesseract = "tesseract"
)

type Config struct {
	DBPath     string
	InputDir   string
	OutputDir  string
	RawMailDir string

	// Target database and the batch identity tuple stamped on every row.
	Database         string
	Table            string
	ExerciseYear     int
	BankCode         int
	AgencyCode       int
	ComplementNumber int
	LotNumber        int
	LotType          int
	IncludingUser    string
	DocumentStatus   string

	DefaultReceiptCode int
	MaxBarcodeLength   int
	ReceiptCodePolicy  string
	MinStatementLength int
	MaxFileSizeMB      int
	AllowedExtensions  []string

	GenerateCheckFiles bool
	GenerateReport     bool

	LogLevel  string
	LogFormat string

	OCRBackend      string
	OCRAPIBaseURL   string
	OCRAPIToken     string
	OCRLanguage     string
	OCRDPI          int
	OCRRateLimitRPS int
	OCRTimeoutMs    int
	TesseractBinary string
	PdftoppmBinary  string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailSearch               string
	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "darm.db")),
		InputDir:   getEnv("DARMS_DIR", filepath.Join(cwd, "darms")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "inserts")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),

		Database:         getEnv("DARM_DATABASE", "silfae"),
		Table:            getEnv("DARM_TABLE", "FarrDarmsPagos"),
		ExerciseYear:     getEnvInt("DARM_EXERCICIO", 2025),
		BankCode:         getEnvInt("DARM_CD_BANCO", 70),
		AgencyCode:       getEnvInt("DARM_NR_BDA", 37),
		ComplementNumber: getEnvInt("DARM_NR_COMPLEMENTO", 0),
		LotNumber:        getEnvInt("DARM_NR_LOTE_NSA", 730),
		LotType:          getEnvInt("DARM_TP_LOTE_D", 1),
		IncludingUser:    getEnv("DARM_CD_USU_INCL", "FARR"),
		DocumentStatus:   getEnv("DARM_ST_DOC_D", "13"),

		DefaultReceiptCode: getEnvInt("DEFAULT_CODIGO_RECEITA", 2585),
		MaxBarcodeLength:   getEnvInt("MAX_CODIGO_BARRAS", 48),
		ReceiptCodePolicy:  strings.ToLower(getEnv("RECEIPT_CODE_POLICY", ReceiptPolicyConcat)),
		MinStatementLength: getEnvInt("MIN_STATEMENT_LENGTH", 100),
		MaxFileSizeMB:      getEnvInt("MAX_FILE_SIZE_MB", 50),
		AllowedExtensions:  getEnvList("ALLOWED_EXTENSIONS", []string{".pdf", ".png", ".jpg", ".jpeg", ".bmp", ".tiff", ".tif", ".txt", ".hocr", ".html", ".eml"}),

		GenerateCheckFiles: getEnvBool("GENERATE_CHECK_FILES", true),
		GenerateReport:     getEnvBool("GENERATE_REPORT", true),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		OCRBackend:      strings.ToLower(getEnv("OCR_BACKEND", OCRBackendNone)),
		OCRAPIBaseURL:   getEnv("OCR_API_BASE_URL", ""),
		OCRAPIToken:     getEnv("OCR_API_TOKEN", ""),
		OCRLanguage:     getEnv("OCR_LANGUAGE", "por"),
		OCRDPI:          getEnvInt("OCR_DPI", 300),
		OCRRateLimitRPS: getEnvInt("OCR_RATE_LIMIT_RPS", 2),
		OCRTimeoutMs:    getEnvInt("OCR_TIMEOUT_MS", 60000),
		TesseractBinary: getEnv("TESSERACT_BIN", "tesseract"),
		PdftoppmBinary:  getEnv("PDFTOPPM_BIN", "pdftoppm"),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailSearch:               getEnv("MAIL_SEARCH", "DARM"),
		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
	}

	return cfg, nil
}

// Validate reports every out-of-range setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.ExerciseYear < 2000 || c.ExerciseYear > 2100 {
		errs = append(errs, fmt.Errorf("DARM_EXERCICIO must be between 2000 and 2100, got %d", c.ExerciseYear))
	}
	if c.BankCode <= 0 {
		errs = append(errs, fmt.Errorf("DARM_CD_BANCO must be positive, got %d", c.BankCode))
	}
	if c.MaxBarcodeLength <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CODIGO_BARRAS must be positive, got %d", c.MaxBarcodeLength))
	}
	if c.DefaultReceiptCode <= 0 {
		errs = append(errs, fmt.Errorf("DEFAULT_CODIGO_RECEITA must be positive, got %d", c.DefaultReceiptCode))
	}
	switch c.ReceiptCodePolicy {
	case ReceiptPolicyConcat, ReceiptPolicySeparator:
	default:
		errs = append(errs, fmt.Errorf("RECEIPT_CODE_POLICY must be %q or %q, got %q", ReceiptPolicyConcat, ReceiptPolicySeparator, c.ReceiptCodePolicy))
	}
	switch c.OCRBackend {
	case OCRBackendNone, OCRBackendHTTP, OCRBackendTesseract:
	default:
		errs = append(errs, fmt.Errorf("unsupported OCR_BACKEND: %s", c.OCRBackend))
	}
	if strings.TrimSpace(c.Database) == "" || strings.TrimSpace(c.Table) == "" {
		errs = append(errs, errors.New("DARM_DATABASE and DARM_TABLE are required"))
	}
	return errors.Join(errs...)
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// AllowsExtension reports whether ext (with leading dot) is accepted as input.
func (c Config) AllowsExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range c.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		out = append(out, part)
	}
	return out
}
