package rules

import (
	"testing"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
	"github.com/stretchr/testify/assert"
)

func textRecord(text string) domain.Record {
	return domain.Record{
		ID:              "rec-1",
		Kind:            domain.KindMessage,
		Platform:        domain.PlatformAndroid,
		ConversationKey: "+15550001111",
		Direction:       domain.DirectionIncoming,
		Text:            text,
		Timestamp:       time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC),
	}
}

func moduleHits(hits []domain.Hit, module domain.ModuleName) []domain.Hit {
	var out []domain.Hit
	for _, h := range hits {
		if h.Module == module {
			out = append(out, h)
		}
	}
	return out
}

func TestMatchModuleDetection(t *testing.T) {
	c := testCatalog(t, DefaultModuleConfigs())

	tests := []struct {
		name       string
		text       string
		module     domain.ModuleName
		expectHits bool
		expectSub  string
	}{
		{
			name:       "hard drug reference",
			text:       "he's got fentanyl again",
			module:     domain.ModuleNarcotics,
			expectHits: true,
			expectSub:  "hard_drugs",
		},
		{
			name:       "gift card payment demand",
			text:       "buy an Amazon card and send the code",
			module:     domain.ModuleFinancialFraud,
			expectHits: true,
			expectSub:  "payment_methods",
		},
		{
			name:       "direct threat",
			text:       "I will HURT YOU if you leave",
			module:     domain.ModuleDomesticViolence,
			expectHits: true,
			expectSub:  "threats",
		},
		{
			name:       "debt bondage language",
			text:       "you still owe me, work off the rest",
			module:     domain.ModuleHumanTrafficking,
			expectHits: true,
			expectSub:  "control_language",
		},
		{
			name:       "attack planning",
			text:       "the attack plan is ready for saturday",
			module:     domain.ModuleExtremism,
			expectHits: true,
			expectSub:  "violence_planning",
		},
		{
			name:       "grooming phrase",
			text:       "remember, this is our secret",
			module:     domain.ModuleChildExploitation,
			expectHits: true,
			expectSub:  "grooming",
		},
		{
			name:       "benign grocery message",
			text:       "picking up milk and bread on the way home",
			module:     domain.ModuleNarcotics,
			expectHits: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := moduleHits(c.Match(textRecord(tt.text)), tt.module)

			if !tt.expectHits {
				assert.Empty(t, hits, "expected no hits")
				return
			}
			assert.NotEmpty(t, hits, "expected at least one hit")

			found := false
			for _, h := range hits {
				if h.Source == tt.expectSub {
					found = true
					assert.Greater(t, h.Weight, 0)
				}
			}
			assert.True(t, found, "expected a %s hit", tt.expectSub)
		})
	}
}

func TestMatchIsCaseInsensitive(t *testing.T) {
	c := testCatalog(t, DefaultModuleConfigs())

	lower := moduleHits(c.Match(textRecord("wire transfer now")), domain.ModuleFinancialFraud)
	upper := moduleHits(c.Match(textRecord("WIRE TRANSFER NOW")), domain.ModuleFinancialFraud)

	assert.Equal(t, len(lower), len(upper), "case must not change hit count")
	assert.NotEmpty(t, lower)
}

func TestMatchCollapsesWhitespaceInPhrases(t *testing.T) {
	c := testCatalog(t, DefaultModuleConfigs())

	hits := moduleHits(c.Match(textRecord("need a wire   \t transfer today")), domain.ModuleFinancialFraud)
	assert.NotEmpty(t, hits, "multi-word phrase must match across collapsed whitespace")
}

func TestMatchLongestPhraseClaimsSpan(t *testing.T) {
	c := testCatalog(t, DefaultModuleConfigs())

	// "trap house" (locations) contains "trap" (transactions); the longer
	// phrase claims the span so the shorter term does not double count.
	hits := moduleHits(c.Match(textRecord("meet at the trap house")), domain.ModuleNarcotics)

	var sawTrapHouse, sawBareTrap bool
	for _, h := range hits {
		switch h.Span {
		case "trap house":
			sawTrapHouse = true
		case "trap":
			sawBareTrap = true
		}
	}
	assert.True(t, sawTrapHouse, "expected trap house hit")
	assert.False(t, sawBareTrap, "bare trap must not double count inside trap house")
}

func TestMatchKeywordCountsOncePerRecord(t *testing.T) {
	c := testCatalog(t, DefaultModuleConfigs())

	hits := moduleHits(c.Match(textRecord("weed weed weed")), domain.ModuleNarcotics)
	assert.Len(t, hits, 1, "repeated keyword counts once per record")
}

func TestMatchImmediateAlertHit(t *testing.T) {
	c := testCatalog(t, DefaultModuleConfigs())

	hits := moduleHits(c.Match(textRecord("i will kill you")), domain.ModuleDomesticViolence)

	var immediate *domain.Hit
	for i := range hits {
		if hits[i].Immediate {
			immediate = &hits[i]
		}
	}
	if assert.NotNil(t, immediate, "expected an immediate-alert hit") {
		assert.Equal(t, "immediate_alert", immediate.Source)
		assert.Zero(t, immediate.Weight, "immediate-alert hits carry no weight")
	}
}

func TestMatchQuantityPattern(t *testing.T) {
	c := testCatalog(t, DefaultModuleConfigs())

	hits := moduleHits(c.Match(textRecord("need 2 oz by friday")), domain.ModuleNarcotics)

	found := false
	for _, h := range hits {
		if h.Source == "quantity" {
			found = true
			assert.Equal(t, domain.HitPattern, h.Kind)
		}
	}
	assert.True(t, found, "expected quantity pattern hit")
}

func TestMatchUnderageReference(t *testing.T) {
	c := testCatalog(t, DefaultModuleConfigs())

	tests := []struct {
		name   string
		text   string
		expect bool
	}{
		{name: "underage", text: "im 14 btw", expect: true},
		{name: "adult", text: "im 34 btw", expect: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := moduleHits(c.Match(textRecord(tt.text)), domain.ModuleChildExploitation)
			found := false
			for _, h := range hits {
				if h.Source == "age_reference" {
					found = true
				}
			}
			assert.Equal(t, tt.expect, found)
		})
	}
}

func TestMatchEmptyTextStillEvaluatesMetadata(t *testing.T) {
	c := testCatalog(t, DefaultModuleConfigs())

	rec := textRecord("")
	rec.Deleted = true
	rec.MediaRefs = []string{"media/img_0042.jpg"}

	hits := moduleHits(c.Match(rec), domain.ModuleHumanTrafficking)

	found := false
	for _, h := range hits {
		if h.Kind == domain.HitMetadata && h.Source == "deleted_media" {
			found = true
		}
	}
	assert.True(t, found, "metadata rules must fire for empty-text records")
}

func TestMatchShortTextSkipsKeywordScan(t *testing.T) {
	c, err := NewCatalog(DefaultModuleConfigs(), domain.DefaultRiskThresholds(), 10)
	if err != nil {
		t.Fatalf("failed to compile catalog: %v", err)
	}

	hits := moduleHits(c.Match(textRecord("weed")), domain.ModuleNarcotics)
	assert.Empty(t, hits, "text below the minimum length must not produce keyword hits")
}

func TestMatchLocationRefsAreNotMedia(t *testing.T) {
	c := testCatalog(t, DefaultModuleConfigs())

	rec := textRecord("")
	rec.Deleted = true
	rec.MediaRefs = []string{"loc:main st corner"}

	hits := moduleHits(c.Match(rec), domain.ModuleHumanTrafficking)
	assert.Empty(t, hits, "location refs alone must not count as media")
}
