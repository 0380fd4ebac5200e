package models

// These structs define the JSON payloads exchanged with callers of the
// pipeline and with subscribers of the status channel.

// SubmitRequest is the body accepted by the submit HTTP function.
type SubmitRequest struct {
	Operation  string `json:"operation"`
	DocumentID string `json:"documentId,omitempty"`
	UserID     string `json:"userId"`
	UserEmail  string `json:"userEmail"`
	Filename   string `json:"filename,omitempty"`
	// Content is the base64 encoded PDF, only for complete_process.
	Content []byte `json:"content,omitempty"`
}

// SubmitResponse acknowledges a queued task.
type SubmitResponse struct {
	Status     string `json:"status"`
	DocumentID string `json:"documentId,omitempty"`
	QueueSize  int    `json:"queueSize"`
}

// StatusEvent is pushed to the requester on every status change. Optional
// fields are only present when the update concerns them.
type StatusEvent struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	Progress       *float64        `json:"progress,omitempty"`
	PageCount      *int            `json:"page_count,omitempty"`
	BalanceDate    string          `json:"balance_date,omitempty"`
	CompanyInfo    *CompanyInfo    `json:"company_info,omitempty"`
	Validation     *Validation     `json:"validation,omitempty"`
	ProcessingTime *ProcessingTime `json:"processing_time,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

// GCSEvent is the payload of a storage object finalized event.
type GCSEvent struct {
	Bucket   string            `json:"bucket"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
