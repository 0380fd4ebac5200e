package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

// --- Recognition Model Prompts ---
const RecognitionSystemPrompt = "Eres un analista contable que clasifica páginas escaneadas de estados contables argentinos. Respondes sólo con JSON."
const RecognitionUserPrompt = `Analiza la imagen y completa cada campo:
- is_balance_sheet: la página contiene el Estado de Situación Patrimonial completo (Activo, Pasivo y/o Patrimonio Neto totales). No cuenta si es un anexo o un cuadro auxiliar.
- is_income_statement_sheet: la página contiene el Estado de Resultados consolidado completo, con ingresos, costos y gastos hasta el resultado del ejercicio. No cuenta si es un anexo.
- is_appendix: la página es un anexo, una nota explicativa o un cuadro auxiliar.
- original_orientation_degrees: cuántos grados en sentido antihorario hay que rotar la página para leerla derecha (0, 90, 180 o 270).
- has_company_cuit: la página muestra el CUIT de la empresa.
- has_company_name: la página muestra la razón social de la empresa.
- has_company_address: la página muestra el domicilio legal de la empresa.
- has_company_activity: la página indica la actividad económica principal de la empresa.
- audit_report: la página contiene el informe del auditor independiente.`

// --- Extraction Model Prompts ---
const ExtractionSystemPrompt = "Eres un contador público que transcribe estados contables escaneados a JSON. Nunca inventas datos y respondes sólo con JSON."

// refusalPhrases mark a model answer that must not be parsed.
var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
	"no puedo ayudar",
}

// VertexOptions tunes the models and their retry policy.
type VertexOptions struct {
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

// VertexClient holds all pre-configured generative models for the pipeline.
type VertexClient struct {
	RecognitionModel *genai.GenerativeModel
	BalanceModel     *genai.GenerativeModel
	IncomeModel      *genai.GenerativeModel
	CompanyModel     *genai.GenerativeModel
	baseClient       *genai.Client
	opts             VertexOptions
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region string, opts VertexOptions) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("NewVertexClient: model cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	return &VertexClient{
		RecognitionModel: newJSONModel(baseClient, opts.Model, RecognitionSystemPrompt, recognitionSchema()),
		BalanceModel:     newJSONModel(baseClient, opts.Model, ExtractionSystemPrompt, nil),
		IncomeModel:      newJSONModel(baseClient, opts.Model, ExtractionSystemPrompt, nil),
		CompanyModel:     newJSONModel(baseClient, opts.Model, ExtractionSystemPrompt, companySchema()),
		baseClient:       baseClient,
		opts:             opts,
	}, nil
}

func newJSONModel(client *genai.Client, name, system string, schema *genai.Schema) *genai.GenerativeModel {
	m := client.GenerativeModel(name)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}
	m.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
		Temperature:      genai.Ptr[float32](0.0),
	}
	m.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
	return m
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// RecognizePage classifies a single page image.
func (c *VertexClient) RecognizePage(ctx context.Context, image models.ImagePart) (*models.RecognizedInfo, error) {
	parts := []genai.Part{imagePart(image), genai.Text(RecognitionUserPrompt)}
	var info models.RecognizedInfo
	if err := c.generateJSON(ctx, "recognition", c.RecognitionModel, parts, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ExtractBalance reads a balance sheet from its labelled page images.
func (c *VertexClient) ExtractBalance(ctx context.Context, instructions string, concepts []string, images []models.ImagePart) (*models.StatementData, error) {
	model := *c.BalanceModel
	model.GenerationConfig.ResponseSchema = statementSchema(concepts, "detalles_activo", "detalles_pasivo", "detalles_patrimonio_neto")
	return c.extractStatement(ctx, "balance", &model, instructions, concepts, images)
}

// ExtractIncome reads an income statement from its labelled page images.
func (c *VertexClient) ExtractIncome(ctx context.Context, instructions string, concepts []string, images []models.ImagePart) (*models.StatementData, error) {
	model := *c.IncomeModel
	model.GenerationConfig.ResponseSchema = statementSchema(concepts, "detalles_estado_resultados")
	return c.extractStatement(ctx, "income", &model, instructions, concepts, images)
}

func (c *VertexClient) extractStatement(ctx context.Context, task string, model *genai.GenerativeModel, instructions string, concepts []string, images []models.ImagePart) (*models.StatementData, error) {
	prompt := fmt.Sprintf("%s\n\nCódigos de concepto para resultados_principales: %s", instructions, strings.Join(concepts, ", "))
	parts := append([]genai.Part{genai.Text(prompt)}, labelledParts(images)...)

	var data models.StatementData
	if err := c.generateJSON(ctx, task, model, parts, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// companyResponse accepts a CUIT written as a string or as a number.
type companyResponse struct {
	CUIT     json.RawMessage `json:"company_cuit"`
	Name     string          `json:"company_name"`
	Activity string          `json:"company_activity"`
	Address  string          `json:"company_address"`
}

// ExtractCompanyInfo reads the company identity from up to two page images.
// The CUIT is returned as written by the model.
func (c *VertexClient) ExtractCompanyInfo(ctx context.Context, instructions string, images []models.ImagePart) (*models.CompanyInfo, error) {
	parts := append([]genai.Part{genai.Text(instructions)}, labelledParts(images)...)
	var resp companyResponse
	if err := c.generateJSON(ctx, "company_info", c.CompanyModel, parts, &resp); err != nil {
		return nil, err
	}
	cuit := strings.Trim(strings.TrimSpace(string(resp.CUIT)), `"`)
	if cuit == "null" {
		cuit = ""
	}
	return &models.CompanyInfo{
		CUIT:     cuit,
		Name:     resp.Name,
		Activity: resp.Activity,
		Address:  resp.Address,
	}, nil
}

// generateJSON calls the model with retries and decodes its JSON answer into out.
func (c *VertexClient) generateJSON(ctx context.Context, task string, model *genai.GenerativeModel, parts []genai.Part, out any) error {
	backoff := 1 * time.Second
	var lastErr error

	attempts := c.opts.MaxRetries + 1
	for i := 0; i < attempts; i++ {
		err := func() error {
			callCtx := ctx
			if c.opts.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
				defer cancel()
			}
			resp, err := model.GenerateContent(callCtx, parts...)
			if err != nil {
				return fmt.Errorf("failed to generate content from gemini: %w", err)
			}
			text := extractJSONContent(resp)
			if text == "" {
				return fmt.Errorf("gemini returned an empty response")
			}
			if isRefusal(text) {
				return fmt.Errorf("gemini response indicates refusal")
			}
			if err := json.Unmarshal([]byte(text), out); err != nil {
				return fmt.Errorf("failed to parse JSON from model: %w", err)
			}
			return nil
		}()
		if err == nil {
			return nil
		}

		lastErr = err
		if i == attempts-1 {
			break
		}
		slog.Warn("Model call failed, will retry.", "task", task, "attempt", i+1, "maxRetries", c.opts.MaxRetries, "backoff", backoff.String(), "error", err)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s: model call failed after %d attempts: %w", task, attempts, lastErr)
}

// extractJSONContent gets the raw text content from the model response.
func extractJSONContent(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return stripFences(sb.String())
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func imagePart(img models.ImagePart) genai.Part {
	format := strings.TrimPrefix(img.MIMEType, "image/")
	if format == "" {
		format = "png"
	}
	return genai.ImageData(format, img.Data)
}

// labelledParts interleaves each image with its label.
func labelledParts(images []models.ImagePart) []genai.Part {
	parts := make([]genai.Part, 0, 2*len(images))
	for _, img := range images {
		if img.Label != "" {
			parts = append(parts, genai.Text(img.Label))
		}
		parts = append(parts, imagePart(img))
	}
	return parts
}

func recognitionSchema() *genai.Schema {
	boolean := &genai.Schema{Type: genai.TypeBoolean}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"is_balance_sheet":             boolean,
			"is_income_statement_sheet":    boolean,
			"is_appendix":                  boolean,
			"original_orientation_degrees": {Type: genai.TypeInteger},
			"has_company_cuit":             boolean,
			"has_company_name":             boolean,
			"has_company_address":          boolean,
			"has_company_activity":         boolean,
			"audit_report":                 boolean,
		},
		Required: []string{
			"is_balance_sheet", "is_income_statement_sheet", "is_appendix", "original_orientation_degrees",
			"has_company_cuit", "has_company_name", "has_company_address", "has_company_activity", "audit_report",
		},
	}
}

func companySchema() *genai.Schema {
	nullable := &genai.Schema{Type: genai.TypeString, Nullable: true}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"company_cuit":     nullable,
			"company_name":     {Type: genai.TypeString},
			"company_address":  nullable,
			"company_activity": nullable,
		},
		Required: []string{"company_name"},
	}
}

// statementSchema describes a statement whose key figures are limited to concepts.
func statementSchema(concepts []string, detailSections ...string) *genai.Schema {
	number := &genai.Schema{Type: genai.TypeNumber}
	line := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"concepto":       {Type: genai.TypeString},
			"monto_actual":   number,
			"monto_anterior": number,
		},
		Required: []string{"concepto", "monto_actual", "monto_anterior"},
	}
	props := map[string]*genai.Schema{
		"informacion_general": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"empresa":          {Type: genai.TypeString, Nullable: true},
				"periodo_actual":   {Type: genai.TypeString},
				"periodo_anterior": {Type: genai.TypeString, Nullable: true},
			},
			Required: []string{"periodo_actual"},
		},
		"resultados_principales": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"concepto_code":  {Type: genai.TypeString, Enum: concepts},
					"monto_actual":   number,
					"monto_anterior": number,
				},
				Required: []string{"concepto_code", "monto_actual", "monto_anterior"},
			},
		},
	}
	required := []string{"informacion_general", "resultados_principales"}
	for _, section := range detailSections {
		props[section] = &genai.Schema{Type: genai.TypeArray, Items: line}
		required = append(required, section)
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}
