// Package correlate links scored records across conversations through
// shared signals: keywords, contacts, locations, identifiers, platform
// overlap, and time proximity.
package correlate

import (
	"sort"
	"strings"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
	"github.com/ghost-forensics/ghost/internal/identify"
)

type ref struct {
	recordID     string
	conversation string
	timestamp    time.Time
}

type keywordKey struct {
	module  domain.ModuleName
	keyword string
}

type platformKey struct {
	conversation string
	module       domain.ModuleName
}

// Collector accumulates correlation signals for one worker's partition.
// Workers never share a collector; partitions are merged after the scoring
// barrier and links are derived once from the merged signal maps.
type Collector struct {
	window time.Duration

	keywords    map[keywordKey][]ref
	contacts    map[string][]ref
	locations   map[string][]ref
	identifiers map[string][]ref
	timeBuckets map[time.Time][]ref

	// platforms tracks which platforms each (conversation, module) pair
	// produced hits on. Mere presence on two platforms is not a signal;
	// the same module has to fire on both.
	platforms map[platformKey]map[string][]ref
}

// NewCollector creates a collector with the given correlation window.
func NewCollector(windowHours int) *Collector {
	if windowHours <= 0 {
		windowHours = 24
	}
	return &Collector{
		window:      time.Duration(windowHours) * time.Hour,
		keywords:    make(map[keywordKey][]ref),
		contacts:    make(map[string][]ref),
		locations:   make(map[string][]ref),
		identifiers: make(map[string][]ref),
		timeBuckets: make(map[time.Time][]ref),
		platforms:   make(map[platformKey]map[string][]ref),
	}
}

// Observe feeds one record and its scores into the signal maps.
func (c *Collector) Observe(rec *domain.Record, scores []domain.RecordScore, ids []identify.Identifier) {
	r := ref{recordID: rec.ID, conversation: rec.ConversationKey, timestamp: rec.Timestamp}

	for _, key := range rec.ContactKeys() {
		c.contacts[key] = append(c.contacts[key], r)
	}
	for _, key := range rec.LocationKeys() {
		c.locations[key] = append(c.locations[key], r)
	}
	for _, id := range ids {
		key := id.Class + ":" + id.Value
		c.identifiers[key] = append(c.identifiers[key], r)
	}

	scored := false
	for _, s := range scores {
		if s.Score > 0 || s.ImmediateAlert {
			scored = true
			if rec.Platform != "" {
				key := platformKey{conversation: rec.ConversationKey, module: s.Module}
				byPlatform, ok := c.platforms[key]
				if !ok {
					byPlatform = make(map[string][]ref)
					c.platforms[key] = byPlatform
				}
				byPlatform[rec.Platform] = append(byPlatform[rec.Platform], r)
			}
		}
		for _, h := range s.Hits {
			if h.Kind != domain.HitKeyword || h.Span == "" {
				continue
			}
			key := keywordKey{module: s.Module, keyword: h.Span}
			c.keywords[key] = append(c.keywords[key], r)
		}
	}
	if scored {
		bucket := rec.Timestamp.UTC().Truncate(c.window)
		c.timeBuckets[bucket] = append(c.timeBuckets[bucket], r)
	}
}

// Merge folds another collector's signals into this one.
func (c *Collector) Merge(other *Collector) {
	for k, refs := range other.keywords {
		c.keywords[k] = append(c.keywords[k], refs...)
	}
	for k, refs := range other.contacts {
		c.contacts[k] = append(c.contacts[k], refs...)
	}
	for k, refs := range other.locations {
		c.locations[k] = append(c.locations[k], refs...)
	}
	for k, refs := range other.identifiers {
		c.identifiers[k] = append(c.identifiers[k], refs...)
	}
	for k, refs := range other.timeBuckets {
		c.timeBuckets[k] = append(c.timeBuckets[k], refs...)
	}
	for key, byPlatform := range other.platforms {
		dst, ok := c.platforms[key]
		if !ok {
			dst = make(map[string][]ref)
			c.platforms[key] = dst
		}
		for p, refs := range byPlatform {
			dst[p] = append(dst[p], refs...)
		}
	}
}

// Links derives the final link set from the merged signals. Every link is
// symmetric and lists its participants in sorted order; a shared signal
// becomes a link only when it spans at least two conversations, except
// platform overlap which is per (conversation, module). Keyword links additionally
// require the cross-conversation hits to fall within the correlation window
// of each other. The returned slice is in canonical (type, key, module) order
// so identical inputs produce identical output.
func (c *Collector) Links() []domain.CorrelationLink {
	var out []domain.CorrelationLink

	for key, refs := range c.keywords {
		if link, ok := buildLink(domain.LinkKeyword, key.keyword, key.module, windowedRefs(refs, c.window), 2); ok {
			out = append(out, link)
		}
	}
	for key, refs := range c.contacts {
		if link, ok := buildLink(domain.LinkContact, key, "", refs, 2); ok {
			out = append(out, link)
		}
	}
	for key, refs := range c.locations {
		if link, ok := buildLink(domain.LinkLocation, key, "", refs, 2); ok {
			out = append(out, link)
		}
	}
	for key, refs := range c.identifiers {
		if link, ok := buildLink(domain.LinkIdentifier, key, "", refs, 2); ok {
			out = append(out, link)
		}
	}
	for bucket, refs := range c.timeBuckets {
		key := bucket.Format(time.RFC3339)
		if link, ok := buildLink(domain.LinkTime, key, "", refs, 2); ok {
			out = append(out, link)
		}
	}
	for pk, byPlatform := range c.platforms {
		if len(byPlatform) < 2 {
			continue
		}
		names := make([]string, 0, len(byPlatform))
		var refs []ref
		for p, prefs := range byPlatform {
			names = append(names, p)
			refs = append(refs, prefs...)
		}
		sort.Strings(names)
		key := pk.conversation + " on " + strings.Join(names, "+")
		if link, ok := buildLink(domain.LinkCrossPlatform, key, pk.module, refs, 1); ok {
			out = append(out, link)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.Module < b.Module
	})
	return out
}

// windowedRefs keeps the refs that fall within the window of at least one
// ref from a different conversation.
func windowedRefs(refs []ref, window time.Duration) []ref {
	if len(refs) < 2 {
		return nil
	}
	sorted := make([]ref, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].timestamp.Before(sorted[j].timestamp) })

	var kept []ref
	for i, r := range sorted {
		paired := false
		for j := i - 1; j >= 0 && r.timestamp.Sub(sorted[j].timestamp) <= window; j-- {
			if sorted[j].conversation != r.conversation {
				paired = true
				break
			}
		}
		for j := i + 1; !paired && j < len(sorted) && sorted[j].timestamp.Sub(r.timestamp) <= window; j++ {
			if sorted[j].conversation != r.conversation {
				paired = true
			}
		}
		if paired {
			kept = append(kept, r)
		}
	}
	return kept
}

// buildLink deduplicates refs into one link. Returns false when the signal
// does not span enough distinct conversations.
func buildLink(t domain.LinkType, key string, module domain.ModuleName, refs []ref, minConversations int) (domain.CorrelationLink, bool) {
	recordSet := make(map[string]struct{})
	convSet := make(map[string]struct{})
	for _, r := range refs {
		recordSet[r.recordID] = struct{}{}
		convSet[r.conversation] = struct{}{}
	}
	if len(convSet) < minConversations {
		return domain.CorrelationLink{}, false
	}

	records := make([]string, 0, len(recordSet))
	for id := range recordSet {
		records = append(records, id)
	}
	sort.Strings(records)

	convs := make([]string, 0, len(convSet))
	for c := range convSet {
		convs = append(convs, c)
	}
	sort.Strings(convs)

	return domain.CorrelationLink{
		Type:          t,
		Key:           key,
		Module:        module,
		RecordIDs:     records,
		Conversations: convs,
		Strength:      len(records),
	}, true
}
