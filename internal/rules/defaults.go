package rules

import "github.com/ghost-forensics/ghost/internal/domain"

// DefaultModuleConfigs returns the built-in rule book for all six modules.
// Deployments can override any module through the repository and reload.
func DefaultModuleConfigs() []domain.ModuleConfig {
	return []domain.ModuleConfig{
		narcoticsDefaults(),
		financialFraudDefaults(),
		domesticViolenceDefaults(),
		humanTraffickingDefaults(),
		extremismDefaults(),
		childExploitationDefaults(),
	}
}

func narcoticsDefaults() domain.ModuleConfig {
	return domain.ModuleConfig{
		Name:     domain.ModuleNarcotics,
		Enabled:  true,
		Priority: domain.PriorityHigh,
		Keywords: map[string][]string{
			"street_names": {
				"molly", "mdma", "ecstasy", "rolls", "snow", "white powder",
				"ice", "crystal", "meth", "glass", "crank", "blow", "coke",
				"yayo", "weed", "bud", "herb", "mary jane", "ganja", "chronic",
				"pills", "tabs", "bars", "percs", "oxys", "addies",
			},
			"hard_drugs": {
				"heroin", "fentanyl", "fent", "china white", "black tar",
				"cocaine", "crack", "methamphetamine",
			},
			"transactions": {
				"fronted", "front me", "re-up", "connect", "plug", "dealer",
				"trap", "move weight", "flip", "push", "serve", "bag", "sack",
			},
			"locations": {
				"corner", "block", "trap house", "stash", "drop", "spot",
				"pickup", "delivery",
			},
		},
		Weights: map[string]int{
			"street_names": 2,
			"hard_drugs":   5,
			"transactions": 4,
			"locations":    3,
		},
		Patterns: []domain.PatternConfig{
			{Name: "quantity", Expr: `\b\d+\s*(?:gram|grams|g|oz|ounce|ounces|lb|lbs|pound|pounds|kilo|kilos|key|keys|brick|bricks)\b`, Weight: 3},
			{Name: "pricing", Expr: `\$\d+\s*(?:each|per|for|a pop)\b`, Weight: 2},
			{Name: "large_cash", Expr: `\$\d{3,}`, Weight: 2},
			{Name: "meet_location", Expr: `\b(?:pickup|drop|meet)\s+(?:at|@)\s+\w+`, Weight: 2},
		},
		MetadataRules: []domain.MetadataRule{
			{Name: "late_night_outgoing", Expr: `direction == 'outgoing' && hour >= 0 && hour < 5`, Weight: 1},
		},
		ScoreCeiling: 10,
		Escalation: domain.EscalationPolicy{
			WindowHours:         24,
			FrequencyThreshold:  3,
			SeverityIncrease:    2,
			EscalationThreshold: 12,
		},
	}
}

func financialFraudDefaults() domain.ModuleConfig {
	return domain.ModuleConfig{
		Name:     domain.ModuleFinancialFraud,
		Enabled:  true,
		Priority: domain.PriorityHigh,
		Keywords: map[string][]string{
			"payment_methods": {
				"gift card", "amazon card", "itunes card", "google play",
				"western union", "moneygram", "bitcoin", "crypto",
				"wire transfer", "cashapp", "venmo", "zelle",
			},
			"scam_indicators": {
				"emergency", "urgent", "stranded", "customs", "lawyer fees",
				"guaranteed return", "risk free", "investment opportunity",
				"inheritance", "lottery", "winner",
			},
			"personal_info": {
				"ssn", "social security", "pin number", "password",
				"account number", "routing number", "credit card",
				"debit card",
			},
		},
		Weights: map[string]int{
			"payment_methods": 4,
			"scam_indicators": 2,
			"personal_info":   3,
		},
		AmountThresholds: []domain.AmountBucket{
			{Threshold: 100, Score: 4},
			{Threshold: 1000, Score: 6},
			{Threshold: 10000, Score: 7},
			{Threshold: 50000, Score: 8},
		},
		ScoreCeiling: 10,
		Escalation: domain.EscalationPolicy{
			WindowHours:         24,
			FrequencyThreshold:  3,
			SeverityIncrease:    2,
			EscalationThreshold: 12,
		},
	}
}

func domesticViolenceDefaults() domain.ModuleConfig {
	return domain.ModuleConfig{
		Name:     domain.ModuleDomesticViolence,
		Enabled:  true,
		Priority: domain.PriorityCritical,
		Keywords: map[string][]string{
			"threats": {
				"hurt you", "kill you", "beat you", "destroy you", "end you",
				"make you pay", "regret this", "sorry you'll be",
			},
			"control": {
				"belong to me", "own you", "control you", "can't leave",
				"never let you", "always watching",
			},
			"isolation": {
				"no one cares", "no one will help", "nowhere to go",
				"no friends", "family doesn't want you",
			},
		},
		Weights: map[string]int{
			"threats":   5,
			"control":   4,
			"isolation": 3,
		},
		ImmediateAlert: []string{"kill you", "end your life", "going to kill"},
		NotifyTier:     domain.TierCritical,
		ScoreCeiling:   10,
		Escalation: domain.EscalationPolicy{
			WindowHours:         24,
			FrequencyThreshold:  3,
			SeverityIncrease:    1,
			EscalationThreshold: 10,
		},
	}
}

func humanTraffickingDefaults() domain.ModuleConfig {
	return domain.ModuleConfig{
		Name:     domain.ModuleHumanTrafficking,
		Enabled:  true,
		Priority: domain.PriorityCritical,
		Keywords: map[string][]string{
			"control_language": {
				"owe me", "work off", "until paid", "belong to me",
				"bought you", "my property",
			},
			"movement": {
				"new city", "move you", "relocate", "different state",
				"across country", "border", "passport",
			},
			"exploitation": {
				"work for me", "clients", "johns", "dates booked",
				"appointments", "quota", "earnings", "money you made",
			},
		},
		Weights: map[string]int{
			"control_language": 5,
			"movement":         4,
			"exploitation":     4,
		},
		MetadataRules: []domain.MetadataRule{
			{Name: "deleted_media", Expr: `deleted && has_media`, Weight: 2},
		},
		ScoreCeiling: 10,
		Escalation: domain.EscalationPolicy{
			WindowHours:         24,
			FrequencyThreshold:  3,
			SeverityIncrease:    2,
			EscalationThreshold: 10,
		},
	}
}

func extremismDefaults() domain.ModuleConfig {
	return domain.ModuleConfig{
		Name:     domain.ModuleExtremism,
		Enabled:  true,
		Priority: domain.PriorityCritical,
		Keywords: map[string][]string{
			"violence_planning": {
				"attack plan", "bomb", "explosive", "detonate",
				"target list", "casualties",
			},
			"weapons": {
				"rifle", "ammo", "ammunition", "tactical gear", "body armor",
			},
			"ideology": {
				"manifesto", "race war", "holy war", "martyrdom",
				"day of the rope",
			},
		},
		Weights: map[string]int{
			"violence_planning": 5,
			"weapons":           3,
			"ideology":          2,
		},
		ScoreCeiling: 10,
		Escalation: domain.EscalationPolicy{
			WindowHours:         24,
			FrequencyThreshold:  3,
			SeverityIncrease:    2,
			EscalationThreshold: 10,
		},
	}
}

func childExploitationDefaults() domain.ModuleConfig {
	return domain.ModuleConfig{
		Name:     domain.ModuleChildExploitation,
		Enabled:  true,
		Priority: domain.PriorityCritical,
		Keywords: map[string][]string{
			"grooming": {
				"our secret", "our little secret", "don't tell anyone",
				"special friend", "keep this between us", "delete this chat",
			},
			"age_probing": {
				"how old are you", "home alone", "parents home",
			},
		},
		Weights: map[string]int{
			"grooming":    4,
			"age_probing": 3,
		},
		MetadataRules: []domain.MetadataRule{
			{Name: "deleted_media", Expr: `deleted && has_media`, Weight: 3},
		},
		ImmediateAlert: []string{
			"our little secret", "don't tell your parents",
			"delete these messages",
		},
		NotifyTier:   domain.TierCritical,
		AgeThreshold: 18,
		ScoreCeiling: 10,
		Escalation: domain.EscalationPolicy{
			WindowHours:         24,
			FrequencyThreshold:  2,
			SeverityIncrease:    1,
			EscalationThreshold: 8,
		},
	}
}
