package models

// Document statuses as shown to users.
const (
	StatusQueued      = "En cola"
	StatusUploading   = "Cargando"
	StatusUploaded    = "Cargado"
	StatusConverting  = "Convirtiendo"
	StatusConverted   = "Convertido"
	StatusRecognizing = "Reconociendo"
	StatusRecognized  = "Reconocido"
	StatusAnalyzing   = "Analizando"
	StatusAnalyzed    = "Analizado"
	StatusValidating  = "Validando"
	StatusError       = "Error"
)

// Validation outcomes.
const (
	ValidationNoData    = "Sin datos"
	ValidationValidated = "Validado"
	ValidationWarning   = "Advertencia"
)

// Operation names accepted by the queue.
const (
	OperationCompleteProcess  = "complete_process"
	OperationRecognizeExtract = "recognize_extract"
	OperationExtract          = "extract"
	OperationValidate         = "validate"
)

// Stage names used as keys in ProcessingTime and in logs.
const (
	StageUploadConvert = "upload_convert"
	StageRecognize     = "recognize"
	StageExtract       = "extract"
	StageValidation    = "validation"
)
