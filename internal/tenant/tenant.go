// Package tenant resolves per-tenant extraction profiles: prompts and the
// concept code to label maps of the balance and income key figures.
package tenant

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultID is the tenant used when no other one applies.
const DefaultID = "default"

//go:embed profiles.yaml
var bundledProfiles []byte

// Concepts every profile must declare for the validator to run.
var (
	requiredBalance = []Field{
		{"activo_total", "Activo Total"},
		{"activo_corriente", "Activo Corriente"},
		{"activo_no_corriente", "Activo No Corriente"},
		{"pasivo_total", "Pasivo Total"},
		{"pasivo_corriente", "Pasivo Corriente"},
		{"pasivo_no_corriente", "Pasivo No Corriente"},
		{"patrimonio_neto", "Patrimonio Neto"},
		{"disponibilidades", "Disponibilidades"},
	}
	requiredIncome = []Field{
		{"ingresos_por_venta", "Ingresos por Venta"},
		{"resultados_antes_de_impuestos", "Resultados Antes de Impuestos"},
		{"resultados_del_ejercicio", "Resultados del Ejercicio"},
	}
)

// Field is one key figure a tenant asks the model for.
type Field struct {
	Code  string `yaml:"code"`
	Label string `yaml:"label"`
}

// Prompts holds the extraction instructions of a tenant.
type Prompts struct {
	Balance     string `yaml:"balance"`
	Income      string `yaml:"income"`
	CompanyInfo string `yaml:"company_info"`
}

// Profile is the resolved configuration of one tenant.
type Profile struct {
	ID            string  `yaml:"-"`
	Name          string  `yaml:"name"`
	Status        string  `yaml:"status"`
	BalanceFields []Field `yaml:"balance_fields"`
	IncomeFields  []Field `yaml:"income_fields"`
	Prompts       Prompts `yaml:"prompts"`
}

// BalanceConcepts returns the balance concept codes in declaration order.
func (p *Profile) BalanceConcepts() []string { return codes(p.BalanceFields) }

// IncomeConcepts returns the income concept codes in declaration order.
func (p *Profile) IncomeConcepts() []string { return codes(p.IncomeFields) }

// BalanceLabel returns the label of a balance concept, or the code itself.
func (p *Profile) BalanceLabel(code string) string { return label(p.BalanceFields, code) }

// IncomeLabel returns the label of an income concept, or the code itself.
func (p *Profile) IncomeLabel(code string) string { return label(p.IncomeFields, code) }

// DeclaresBalance reports whether the tenant asks for a balance concept.
func (p *Profile) DeclaresBalance(code string) bool {
	for _, f := range p.BalanceFields {
		if f.Code == code {
			return true
		}
	}
	return false
}

func codes(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Code
	}
	return out
}

func label(fields []Field, code string) string {
	for _, f := range fields {
		if f.Code == code && f.Label != "" {
			return f.Label
		}
	}
	return code
}

// withRequired appends the required concepts a profile left out.
func withRequired(fields, required []Field) []Field {
	out := append([]Field(nil), fields...)
	for _, r := range required {
		if !hasCode(out, r.Code) {
			out = append(out, r)
		}
	}
	return out
}

func hasCode(fields []Field, code string) bool {
	for _, f := range fields {
		if f.Code == code {
			return true
		}
	}
	return false
}

// Source looks up tenant overrides in an external store.
type Source interface {
	// Lookup returns the stored profile of a tenant, or nil when there is none.
	Lookup(ctx context.Context, tenantID string) (*Profile, error)
}

type profileFile struct {
	Domains map[string]string   `yaml:"domains"`
	Tenants map[string]*Profile `yaml:"tenants"`
}

// Registry resolves and caches tenant profiles.
type Registry struct {
	source  Source
	domains map[string]string
	base    map[string]*Profile

	mu    sync.Mutex
	cache map[string]*Profile
}

// NewRegistry builds a registry from the bundled profiles, merged with the
// optional extra YAML document. source may be nil.
func NewRegistry(source Source, extra []byte) (*Registry, error) {
	r := &Registry{
		source:  source,
		domains: make(map[string]string),
		base:    make(map[string]*Profile),
		cache:   make(map[string]*Profile),
	}
	if err := r.load(bundledProfiles); err != nil {
		return nil, fmt.Errorf("bundled tenant profiles: %w", err)
	}
	if len(extra) > 0 {
		if err := r.load(extra); err != nil {
			return nil, fmt.Errorf("tenant profiles file: %w", err)
		}
	}
	if _, ok := r.base[DefaultID]; !ok {
		return nil, fmt.Errorf("tenant profiles do not define %q", DefaultID)
	}
	return r, nil
}

func (r *Registry) load(data []byte) error {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("yaml.Unmarshal: %w", err)
	}
	for domain, id := range f.Domains {
		r.domains[strings.ToLower(domain)] = id
	}
	for id, p := range f.Tenants {
		if p == nil {
			continue
		}
		p.ID = id
		r.base[id] = p
	}
	return nil
}

// TenantForEmail maps the domain of an e-mail address to a tenant id.
func (r *Registry) TenantForEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return DefaultID
	}
	if id, ok := r.domains[strings.ToLower(email[at+1:])]; ok {
		return id
	}
	return DefaultID
}

// Profile resolves a tenant, falling back to the default profile when the
// tenant is unknown. Results are cached until Clear.
func (r *Registry) Profile(ctx context.Context, tenantID string) (*Profile, error) {
	if tenantID == "" {
		tenantID = DefaultID
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.cache[tenantID]; ok {
		return p, nil
	}

	def := r.base[DefaultID]
	base, known := r.base[tenantID]
	if !known {
		base = def
	}

	var override *Profile
	if r.source != nil {
		var err error
		override, err = r.source.Lookup(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("lookup tenant %s: %w", tenantID, err)
		}
	}
	if !known && override == nil {
		slog.Warn("Tenant not found, using default profile.", "tenantId", tenantID)
	}

	p := merge(tenantID, base, override, def)
	r.cache[tenantID] = p
	return p, nil
}

// Clear drops the cached profile of a tenant, or every profile when id is empty.
func (r *Registry) Clear(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tenantID == "" {
		r.cache = make(map[string]*Profile)
		return
	}
	delete(r.cache, tenantID)
}

func merge(id string, base, override, def *Profile) *Profile {
	p := *base
	p.ID = id
	if override != nil {
		if override.Name != "" {
			p.Name = override.Name
		}
		if override.Status != "" {
			p.Status = override.Status
		}
		if len(override.BalanceFields) > 0 {
			p.BalanceFields = override.BalanceFields
		}
		if len(override.IncomeFields) > 0 {
			p.IncomeFields = override.IncomeFields
		}
		if override.Prompts.Balance != "" {
			p.Prompts.Balance = override.Prompts.Balance
		}
		if override.Prompts.Income != "" {
			p.Prompts.Income = override.Prompts.Income
		}
		if override.Prompts.CompanyInfo != "" {
			p.Prompts.CompanyInfo = override.Prompts.CompanyInfo
		}
	}
	if p.Prompts.Balance == "" {
		p.Prompts.Balance = def.Prompts.Balance
	}
	if p.Prompts.Income == "" {
		p.Prompts.Income = def.Prompts.Income
	}
	if p.Prompts.CompanyInfo == "" {
		p.Prompts.CompanyInfo = def.Prompts.CompanyInfo
	}
	p.BalanceFields = withRequired(p.BalanceFields, requiredBalance)
	p.IncomeFields = withRequired(p.IncomeFields, requiredIncome)
	return &p
}
