package rules

import (
	"strconv"
	"strings"

	"github.com/ghost-forensics/ghost/internal/domain"
)

// Score aggregates hits into one RecordScore per module that produced at
// least one hit. Sub-category and pattern weights sum to the raw score; a
// detected dollar amount selects a severity bucket that floors the score
// rather than adding to it; an immediate-alert hit forces the tier to at
// least the module's notify tier, a hard override with no weight.
func (c *Catalog) Score(rec domain.Record, hits []domain.Hit) []domain.RecordScore {
	if len(hits) == 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	perModule := make(map[domain.ModuleName][]domain.Hit)
	for _, h := range hits {
		perModule[h.Module] = append(perModule[h.Module], h)
	}

	text := normalizeText(rec.Text)

	var scores []domain.RecordScore
	for _, name := range domain.AllModules() {
		moduleHits, ok := perModule[name]
		if !ok {
			continue
		}
		m, loaded := c.modules[name]
		if !loaded {
			continue
		}

		raw := 0
		immediate := false
		for _, h := range moduleHits {
			raw += h.Weight
			if h.Immediate {
				immediate = true
			}
		}

		if m.amountRe != nil {
			if bucket := m.amountBucket(text); bucket > raw {
				raw = bucket
			}
		}

		if ceil := m.cfg.ScoreCeiling; ceil > 0 && raw > ceil {
			raw = ceil
		}

		tier := c.thresholds.TierFor(raw)
		if immediate {
			tier = domain.MaxTier(tier, m.cfg.NotifyTier)
		}

		scores = append(scores, domain.RecordScore{
			RecordID:        rec.ID,
			ConversationKey: rec.ConversationKey,
			Module:          name,
			Score:           raw,
			Tier:            tier,
			ImmediateAlert:  immediate,
			Timestamp:       rec.Timestamp,
			Hits:            moduleHits,
		})
	}
	return scores
}

// Evaluate matches and scores a record in one call.
func (c *Catalog) Evaluate(rec domain.Record) []domain.RecordScore {
	return c.Score(rec, c.Match(rec))
}

// amountBucket returns the severity score of the highest bucket reached by
// any dollar amount in the text, or 0.
func (m *compiledModule) amountBucket(text string) int {
	best := 0
	for _, groups := range m.amountRe.FindAllStringSubmatch(text, -1) {
		digits := strings.ReplaceAll(groups[1], ",", "")
		amount, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		for _, b := range m.cfg.AmountThresholds {
			if amount >= b.Threshold && b.Score > best {
				best = b.Score
			}
		}
	}
	return best
}

// CompositeScore is the record's score across modules: the maximum, never
// the sum, so unrelated categories cannot inflate one another.
func CompositeScore(scores []domain.RecordScore) int {
	max := 0
	for _, s := range scores {
		if s.Score > max {
			max = s.Score
		}
	}
	return max
}
