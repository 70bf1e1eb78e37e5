package rules

import (
	"strconv"
	"strings"

	"github.com/ghost-forensics/ghost/internal/domain"
)

// ageReferenceWeight scores an underage reference like a high-risk
// sub-category hit.
const ageReferenceWeight = 4

// Match evaluates one record against every enabled module and returns its
// hits. Pure function of record and catalog; modules are scanned in
// canonical order, keywords longest-first, so hit order is deterministic.
func (c *Catalog) Match(rec domain.Record) []domain.Hit {
	c.mu.RLock()
	defer c.mu.RUnlock()

	text := normalizeText(rec.Text)
	scanText := len(text) >= c.minTextLen

	activation := map[string]any{
		"direction": string(rec.Direction),
		"platform":  rec.Platform,
		"deleted":   rec.Deleted,
		"has_media": rec.HasMedia(),
		"hour":      int64(rec.Timestamp.UTC().Hour()),
	}

	var hits []domain.Hit
	for _, name := range domain.AllModules() {
		m, ok := c.modules[name]
		if !ok {
			continue
		}
		if scanText {
			hits = append(hits, m.matchText(text)...)
		}
		hits = append(hits, m.matchMetadata(activation)...)
	}
	return hits
}

// span is a claimed half-open range of matched text.
type span struct{ start, end int }

func overlaps(claimed []span, start, end int) bool {
	for _, s := range claimed {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

// findUnclaimed returns the first occurrence of phrase in text that does not
// overlap an already claimed span, or -1.
func findUnclaimed(text, phrase string, claimed []span) int {
	from := 0
	for {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return -1
		}
		at := from + i
		if !overlaps(claimed, at, at+len(phrase)) {
			return at
		}
		from = at + 1
	}
}

// matchText scans normalized text for keywords, immediate-alert phrases,
// regex patterns, and underage references. One hit per keyword at most;
// longer phrases claim their span first so contained terms don't double
// count against the same text.
func (m *compiledModule) matchText(text string) []domain.Hit {
	var hits []domain.Hit
	var claimed []span

	for _, kw := range m.keywords {
		at := findUnclaimed(text, kw.phrase, claimed)
		if at < 0 {
			continue
		}
		claimed = append(claimed, span{at, at + len(kw.phrase)})
		hits = append(hits, domain.Hit{
			Module: m.cfg.Name,
			Kind:   domain.HitKeyword,
			Source: kw.subCategory,
			Span:   kw.phrase,
			Weight: kw.weight,
		})
	}

	for _, phrase := range m.immediates {
		if strings.Contains(text, phrase) {
			hits = append(hits, domain.Hit{
				Module:    m.cfg.Name,
				Kind:      domain.HitKeyword,
				Source:    "immediate_alert",
				Span:      phrase,
				Immediate: true,
			})
		}
	}

	for _, p := range m.patterns {
		if loc := p.re.FindString(text); loc != "" {
			hits = append(hits, domain.Hit{
				Module: m.cfg.Name,
				Kind:   domain.HitPattern,
				Source: p.name,
				Span:   loc,
				Weight: p.weight,
			})
		}
	}

	if m.ageRe != nil {
		for _, groups := range m.ageRe.FindAllStringSubmatch(text, -1) {
			age, err := strconv.Atoi(groups[1])
			if err != nil || age <= 0 || age >= m.cfg.AgeThreshold {
				continue
			}
			hits = append(hits, domain.Hit{
				Module: m.cfg.Name,
				Kind:   domain.HitPattern,
				Source: "age_reference",
				Span:   groups[0],
				Weight: ageReferenceWeight,
			})
			break
		}
	}

	return hits
}

// matchMetadata evaluates the module's metadata rules. These fire even for
// records with no usable text.
func (m *compiledModule) matchMetadata(activation map[string]any) []domain.Hit {
	var hits []domain.Hit
	for _, meta := range m.metadata {
		out, _, err := meta.program.Eval(activation)
		if err != nil {
			continue
		}
		if truth, ok := out.Value().(bool); ok && truth {
			hits = append(hits, domain.Hit{
				Module: m.cfg.Name,
				Kind:   domain.HitMetadata,
				Source: meta.name,
				Weight: meta.weight,
			})
		}
	}
	return hits
}
