// Package rules compiles module rule books and scores records against them.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/ghost-forensics/ghost/internal/domain"
	"github.com/google/cel-go/cel"
)

// Catalog holds the compiled rule books for every enabled module. Compiled
// once from configuration; hot-reloadable as a whole, immutable per load.
type Catalog struct {
	mu         sync.RWMutex
	env        *cel.Env
	modules    map[domain.ModuleName]*compiledModule
	thresholds domain.RiskThresholds
	minTextLen int
}

// compiledModule is one module's rule book after compilation.
type compiledModule struct {
	cfg *domain.ModuleConfig

	// keywords are sorted longest-first so overlapping terms match once.
	keywords []keywordEntry

	// immediates are the immediate-alert phrases, normalized.
	immediates []string

	patterns []compiledPattern
	metadata []compiledMetadata

	// amountRe extracts dollar amounts when amount buckets are configured.
	amountRe *regexp.Regexp

	// ageRe extracts age mentions when an age threshold is configured.
	ageRe *regexp.Regexp
}

// keywordEntry is one normalized keyword with its sub-category weight.
type keywordEntry struct {
	phrase      string
	subCategory string
	weight      int
}

type compiledPattern struct {
	name   string
	re     *regexp.Regexp
	weight int
}

type compiledMetadata struct {
	name    string
	program cel.Program
	weight  int
}

// amountPattern recognizes dollar amounts like $5,000 or $5000.00.
var amountPattern = regexp.MustCompile(`\$\s?(\d[\d,]*)(?:\.\d{1,2})?`)

// agePattern recognizes stated ages ("im 14", "she's 15", "turning 16").
var agePattern = regexp.MustCompile(`(?i)\b(?:i'?m|im|she'?s|he'?s|turning)\s+(\d{1,2})\b`)

// NewCatalog compiles the given module configurations into a catalog.
// Returns *domain.ConfigError on any malformed entry; a run never proceeds
// past a failed compile.
func NewCatalog(configs []domain.ModuleConfig, thresholds domain.RiskThresholds, minTextLen int) (*Catalog, error) {
	env, err := newMetadataEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	c := &Catalog{
		env:        env,
		modules:    make(map[domain.ModuleName]*compiledModule),
		thresholds: thresholds,
		minTextLen: minTextLen,
	}

	if err := c.load(configs); err != nil {
		return nil, err
	}
	return c, nil
}

// newMetadataEnv declares the record metadata variables available to
// module metadata rules.
func newMetadataEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("direction", cel.StringType),
		cel.Variable("platform", cel.StringType),
		cel.Variable("deleted", cel.BoolType),
		cel.Variable("has_media", cel.BoolType),
		cel.Variable("hour", cel.IntType),
	)
}

// Reload replaces every module rule book atomically. The previous catalog
// stays live if any new config fails to compile.
func (c *Catalog) Reload(configs []domain.ModuleConfig) error {
	staged := &Catalog{
		env:        c.env,
		modules:    make(map[domain.ModuleName]*compiledModule),
		thresholds: c.thresholds,
		minTextLen: c.minTextLen,
	}
	if err := staged.load(configs); err != nil {
		return err
	}

	c.mu.Lock()
	c.modules = staged.modules
	c.mu.Unlock()
	return nil
}

// Thresholds returns the global score-to-tier table the catalog was built with.
func (c *Catalog) Thresholds() domain.RiskThresholds {
	return c.thresholds
}

// ModuleCount returns the number of enabled, compiled modules.
func (c *Catalog) ModuleCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.modules)
}

// Modules returns the compiled module configurations in canonical order.
func (c *Catalog) Modules() []*domain.ModuleConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*domain.ModuleConfig, 0, len(c.modules))
	for _, name := range domain.AllModules() {
		if m, ok := c.modules[name]; ok {
			out = append(out, m.cfg)
		}
	}
	return out
}

// Policy returns the escalation policy for a module, with ok=false when the
// module is not loaded.
func (c *Catalog) Policy(name domain.ModuleName) (domain.EscalationPolicy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.modules[name]
	if !ok {
		return domain.EscalationPolicy{}, false
	}
	return m.cfg.Escalation, true
}

// Policies returns the escalation policies of every loaded module.
func (c *Catalog) Policies() map[domain.ModuleName]domain.EscalationPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[domain.ModuleName]domain.EscalationPolicy, len(c.modules))
	for name, m := range c.modules {
		out[name] = m.cfg.Escalation
	}
	return out
}

func (c *Catalog) load(configs []domain.ModuleConfig) error {
	for i := range configs {
		cfg := configs[i]
		if !cfg.Enabled {
			continue
		}
		compiled, err := c.compileModule(&cfg)
		if err != nil {
			return err
		}
		c.modules[cfg.Name] = compiled
	}
	return nil
}

func (c *Catalog) compileModule(cfg *domain.ModuleConfig) (*compiledModule, error) {
	if !domain.KnownModule(cfg.Name) {
		return nil, &domain.ConfigError{Module: cfg.Name, Field: "name", Detail: "unknown module"}
	}

	m := &compiledModule{cfg: cfg}

	for sub, words := range cfg.Keywords {
		weight, ok := cfg.Weights[sub]
		if !ok {
			return nil, &domain.ConfigError{Module: cfg.Name, Field: "weights", Detail: fmt.Sprintf("missing weight for sub-category %q", sub)}
		}
		if weight <= 0 {
			return nil, &domain.ConfigError{Module: cfg.Name, Field: "weights", Detail: fmt.Sprintf("non-positive weight for sub-category %q", sub)}
		}
		for _, w := range words {
			phrase := normalizeText(w)
			if phrase == "" {
				continue
			}
			m.keywords = append(m.keywords, keywordEntry{phrase: phrase, subCategory: sub, weight: weight})
		}
	}

	// Longest-match-first; ties broken lexically for a stable scan order.
	sort.Slice(m.keywords, func(i, j int) bool {
		if len(m.keywords[i].phrase) != len(m.keywords[j].phrase) {
			return len(m.keywords[i].phrase) > len(m.keywords[j].phrase)
		}
		return m.keywords[i].phrase < m.keywords[j].phrase
	})

	for _, p := range cfg.Patterns {
		if p.Weight <= 0 {
			return nil, &domain.ConfigError{Module: cfg.Name, Field: "patterns", Detail: fmt.Sprintf("non-positive weight for pattern %q", p.Name)}
		}
		re, err := regexp.Compile(p.Expr)
		if err != nil {
			return nil, &domain.ConfigError{Module: cfg.Name, Field: "patterns", Detail: fmt.Sprintf("pattern %q does not compile: %v", p.Name, err)}
		}
		m.patterns = append(m.patterns, compiledPattern{name: p.Name, re: re, weight: p.Weight})
	}

	for _, meta := range cfg.MetadataRules {
		if meta.Weight <= 0 {
			return nil, &domain.ConfigError{Module: cfg.Name, Field: "metadataRules", Detail: fmt.Sprintf("non-positive weight for rule %q", meta.Name)}
		}
		program, err := c.compileMetadataRule(meta)
		if err != nil {
			return nil, &domain.ConfigError{Module: cfg.Name, Field: "metadataRules", Detail: fmt.Sprintf("rule %q: %v", meta.Name, err)}
		}
		m.metadata = append(m.metadata, compiledMetadata{name: meta.Name, program: program, weight: meta.Weight})
	}

	for _, phrase := range cfg.ImmediateAlert {
		if p := normalizeText(phrase); p != "" {
			m.immediates = append(m.immediates, p)
		}
	}
	if len(m.immediates) > 0 && cfg.NotifyTier == "" {
		return nil, &domain.ConfigError{Module: cfg.Name, Field: "notifyTier", Detail: "immediate-alert set requires a notify tier"}
	}

	for i, b := range cfg.AmountThresholds {
		if b.Threshold <= 0 || b.Score <= 0 {
			return nil, &domain.ConfigError{Module: cfg.Name, Field: "amountThresholds", Detail: "thresholds and scores must be positive"}
		}
		if i > 0 && b.Threshold <= cfg.AmountThresholds[i-1].Threshold {
			return nil, &domain.ConfigError{Module: cfg.Name, Field: "amountThresholds", Detail: "thresholds must be strictly ascending"}
		}
	}
	if len(cfg.AmountThresholds) > 0 {
		m.amountRe = amountPattern
	}
	if cfg.AgeThreshold > 0 {
		m.ageRe = agePattern
	}

	pol := cfg.Escalation
	if pol.WindowHours <= 0 || pol.FrequencyThreshold <= 0 || pol.EscalationThreshold <= 0 {
		return nil, &domain.ConfigError{Module: cfg.Name, Field: "escalation", Detail: "window, frequency, and escalation thresholds must be positive"}
	}
	if pol.SeverityIncrease < 0 {
		return nil, &domain.ConfigError{Module: cfg.Name, Field: "escalation", Detail: "severity increase must not be negative"}
	}

	return m, nil
}

func (c *Catalog) compileMetadataRule(meta domain.MetadataRule) (cel.Program, error) {
	ast, issues := c.env.Compile(meta.Expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}
	return c.env.Program(ast)
}

// normalizeText lowercases and collapses whitespace so multi-word phrases
// match regardless of spacing.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
