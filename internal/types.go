package internal

type TextSource string

const (
	SourcePDFText  TextSource = "pdf_text"
	SourcePDFOCR   TextSource = "pdf_ocr"
	SourceImageOCR TextSource = "image_ocr"
	SourcePlain    TextSource = "plain_text"
	SourceHOCR     TextSource = "hocr"
	SourceEmail    TextSource = "email"
)

// Field names the extractor may produce.
type Field string

const (
	FieldRegistrationID Field = "registration_id"
	FieldReceiptCode    Field = "receipt_code"
	FieldPrincipalValue Field = "principal_value"
	FieldTotalValue     Field = "total_value"
	FieldDueDate        Field = "due_date"
	FieldFiscalYear     Field = "fiscal_year"
	FieldGuideNumber    Field = "guide_number"
	FieldBarcode        Field = "barcode"
	FieldCompetence     Field = "competence"
)

// ExtractedFields holds raw captures; absent fields are missing keys.
type ExtractedFields map[Field]string

func (f ExtractedFields) Has(field Field) bool {
	v, ok := f[field]
	return ok && v != ""
}

// DarmRecord is the validated, typed result for one document.
type DarmRecord struct {
	RegistrationID       string  `json:"registrationId"`
	GuideNumber          string  `json:"guideNumber"`
	ReceiptCode          string  `json:"receiptCode"`
	PrincipalValue       string  `json:"principalValue"`
	TotalValue           string  `json:"totalValue"`
	DueDate              *string `json:"dueDate"`
	FiscalYear           int     `json:"fiscalYear"`
	CompetenceYear       int     `json:"competenceYear"`
	Competence           *string `json:"competence"`
	Barcode              *string `json:"barcode"`
	UsedTotalAsPrincipal bool    `json:"usedTotalAsPrincipal"`
}

type DocumentStatus string

const (
	DocumentProcessed    DocumentStatus = "processed"
	DocumentNoText       DocumentStatus = "no_text"
	DocumentRejected     DocumentStatus = "rejected"
	DocumentEmitFailed   DocumentStatus = "emit_failed"
	DocumentAcquireError DocumentStatus = "acquire_error"
)

type DocumentRow struct {
	ID                   int
	RunID                string
	SourcePath           string
	Source               string
	Status               string
	GuideNumber          *string
	RegistrationID       *string
	PrincipalValue       *string
	TotalValue           *string
	UsedTotalAsPrincipal bool
	Reason               *string
	ArtifactPath         *string
	EmailID              *int
	FieldsJSON           string
	TraceJSON            string
	CreatedAt            string
}

type RunRow struct {
	ID               int
	TraceID          string
	StartedAt        string
	FinishedAt       *string
	ConsolidatedPath *string
	CountsJSON       string
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
