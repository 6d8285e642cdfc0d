package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"protocolo-municipal/internal/calendar"
)

//go:embed default_policy.toml
var defaultPolicy []byte

// Policy holds the municipality's deadline and approval rules.
type Policy struct {
	SLA      SLA      `toml:"sla"`
	Workflow Workflow `toml:"workflow"`

	prazos map[string]int
	rules  map[string]WorkflowRule
}

type SLA struct {
	DefaultPrazoDias int            `toml:"default_prazo_dias"`
	Timezone         string         `toml:"timezone"`
	Holidays         []string       `toml:"holidays"`
	Prazos           map[string]int `toml:"prazos"`
}

type Workflow struct {
	Rules map[string]WorkflowRule `toml:"rules"`
}

// WorkflowRule opens an approval workflow when a record of the keyed
// tipo_documento is created with valor >= ValorMinimo.
type WorkflowRule struct {
	RequerAprovacao bool    `toml:"requer_aprovacao"`
	ValorMinimo     float64 `toml:"valor_minimo"`
	Aprovadores     []int64 `toml:"aprovadores"`
	TipoFluxo       string  `toml:"tipo_fluxo"`
}

// Default returns the built-in policy.
func Default() Policy {
	p, err := Parse(defaultPolicy)
	if err != nil {
		panic(fmt.Sprintf("policy: embedded default is invalid: %v", err))
	}
	return p
}

// Load reads a TOML policy file. An empty path yields Default().
func Load(path string) (Policy, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Policy, error) {
	var p Policy
	if err := toml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.normalize(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p *Policy) normalize() error {
	var errs []error

	if p.SLA.DefaultPrazoDias < 0 {
		errs = append(errs, fmt.Errorf("sla.default_prazo_dias must be >= 0, got %d", p.SLA.DefaultPrazoDias))
	}
	if p.SLA.Timezone != "" {
		if _, err := time.LoadLocation(p.SLA.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("sla.timezone %q: %w", p.SLA.Timezone, err))
		}
	}
	for _, h := range p.SLA.Holidays {
		if _, err := calendar.ParseDate(h); err != nil {
			errs = append(errs, fmt.Errorf("sla.holidays: %w", err))
		}
	}

	p.prazos = make(map[string]int, len(p.SLA.Prazos))
	for k, v := range p.SLA.Prazos {
		if v < 0 {
			errs = append(errs, fmt.Errorf("sla.prazos.%s must be >= 0, got %d", k, v))
			continue
		}
		p.prazos[NormalizeKey(k)] = v
	}

	p.rules = make(map[string]WorkflowRule, len(p.Workflow.Rules))
	for k, r := range p.Workflow.Rules {
		if r.RequerAprovacao && len(r.Aprovadores) == 0 {
			errs = append(errs, fmt.Errorf("workflow.rules.%s: aprovadores is required", k))
		}
		switch r.TipoFluxo {
		case "", "sequencial", "paralelo", "maioria", "unanime":
		default:
			errs = append(errs, fmt.Errorf("workflow.rules.%s: unknown tipo_fluxo %q", k, r.TipoFluxo))
		}
		p.rules[NormalizeKey(k)] = r
	}

	return errors.Join(errs...)
}

// PrazoFor returns the default deadline for a document type.
func (p Policy) PrazoFor(tipoDocumento string) (int, bool) {
	if tipoDocumento == "" {
		return 0, false
	}
	v, ok := p.prazos[NormalizeKey(tipoDocumento)]
	if !ok || v == 0 {
		return 0, false
	}
	return v, true
}

// DefaultPrazo is the global fallback from the file (0 when unset).
func (p Policy) DefaultPrazo() int { return p.SLA.DefaultPrazoDias }

func (p Policy) RuleFor(tipoDocumento string) (WorkflowRule, bool) {
	r, ok := p.rules[NormalizeKey(tipoDocumento)]
	return r, ok
}

// Calendar builds the business-day calendar described by the policy.
func (p Policy) Calendar(now func() time.Time) *calendar.Calendar {
	cfg := calendar.Config{Now: now}
	if p.SLA.Timezone != "" {
		if loc, err := time.LoadLocation(p.SLA.Timezone); err == nil {
			cfg.Location = loc
		}
	}
	for _, h := range p.SLA.Holidays {
		if d, err := calendar.ParseDate(h); err == nil {
			cfg.Holidays = append(cfg.Holidays, d)
		}
	}
	return calendar.New(cfg)
}

// NormalizeKey makes document-type lookups insensitive to case, accents
// and surrounding whitespace ("Ofício" == "oficio").
func NormalizeKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		out = strings.TrimSpace(s)
	}
	// Casers are stateful; build one per call.
	return cases.Fold().String(strings.Join(strings.Fields(out), " "))
}
