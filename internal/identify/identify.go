// Package identify extracts durable identifiers (crypto addresses, phone
// numbers, emails, card numbers) from record text. Extracted values feed
// cross-conversation correlation and the case summary's identifier index.
package identify

import (
	"regexp"
	"sort"
	"strings"
)

// Identifier classes.
const (
	ClassBitcoin    = "bitcoin"
	ClassEthereum   = "ethereum"
	ClassMonero     = "monero"
	ClassEmail      = "email"
	ClassPhone      = "phone"
	ClassSSN        = "ssn"
	ClassCreditCard = "credit_card"
	ClassURL        = "url"
	ClassHandle     = "handle"
)

// Identifier is one normalized identifier occurrence.
type Identifier struct {
	Class string
	Value string
}

type class struct {
	name      string
	re        *regexp.Regexp
	normalize func(string) string
}

// Scan order is fixed so repeated runs yield identical occurrence order.
var classes = []class{
	// Legacy and segwit address formats.
	{ClassBitcoin, regexp.MustCompile(`\b(?:bc1[a-z0-9]{39,59}|[13][a-km-zA-HJ-NP-Z1-9]{25,34})\b`), nil},
	{ClassEthereum, regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`), strings.ToLower},
	{ClassMonero, regexp.MustCompile(`\b4[0-9AB][1-9A-HJ-NP-Za-km-z]{93}\b`), nil},
	{ClassEmail, regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`), strings.ToLower},
	{ClassPhone, regexp.MustCompile(`\+?\b(?:1[-.\s]?)?\(?[2-9]\d{2}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`), normalizePhone},
	{ClassSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), nil},
	{ClassCreditCard, regexp.MustCompile(`\b\d{4}[-\s]\d{4}[-\s]\d{4}[-\s]\d{4}\b`), digitsOnly},
	{ClassURL, regexp.MustCompile(`https?://[^\s<>"]+`), trimURL},
	{ClassHandle, regexp.MustCompile(`(?:^|[\s:,(])(@[A-Za-z0-9_][A-Za-z0-9_.]{1,29})`), strings.ToLower},
}

// Scan extracts every identifier from text, deduplicated per (class, value)
// and ordered by scan position within each class.
func Scan(text string) []Identifier {
	if text == "" {
		return nil
	}
	var out []Identifier
	seen := make(map[Identifier]struct{})
	for _, c := range classes {
		for _, m := range c.re.FindAllStringSubmatch(text, -1) {
			v := m[0]
			if len(m) > 1 {
				v = m[1]
			}
			if c.normalize != nil {
				v = c.normalize(v)
			}
			if v == "" {
				continue
			}
			id := Identifier{Class: c.name, Value: v}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// normalizePhone strips formatting down to digits, keeping a leading +.
// Short fragments that survive the regex but cannot be a dialable number
// are dropped.
func normalizePhone(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	v := b.String()
	digits := strings.TrimPrefix(v, "+")
	if len(digits) < 10 {
		return ""
	}
	return v
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// trimURL drops trailing punctuation that sentence context attaches to a
// pasted link.
func trimURL(s string) string {
	return strings.TrimRight(s, ".,;:!?)'\"")
}

// Index accumulates identifiers across records for the case summary.
// Not safe for concurrent use; each worker keeps its own and merges after
// the barrier.
type Index struct {
	values map[string]map[string]struct{}
}

// NewIndex creates an empty identifier index.
func NewIndex() *Index {
	return &Index{values: make(map[string]map[string]struct{})}
}

// Add records identifiers into the index.
func (x *Index) Add(ids []Identifier) {
	for _, id := range ids {
		set, ok := x.values[id.Class]
		if !ok {
			set = make(map[string]struct{})
			x.values[id.Class] = set
		}
		set[id.Value] = struct{}{}
	}
}

// Merge folds another index into this one.
func (x *Index) Merge(other *Index) {
	for cls, set := range other.values {
		dst, ok := x.values[cls]
		if !ok {
			dst = make(map[string]struct{})
			x.values[cls] = dst
		}
		for v := range set {
			dst[v] = struct{}{}
		}
	}
}

// Result returns the accumulated identifiers keyed by class, values sorted.
// Empty classes are omitted; an empty index yields nil.
func (x *Index) Result() map[string][]string {
	if len(x.values) == 0 {
		return nil
	}
	out := make(map[string][]string, len(x.values))
	for cls, set := range x.values {
		vals := make([]string, 0, len(set))
		for v := range set {
			vals = append(vals, v)
		}
		sort.Strings(vals)
		out[cls] = vals
	}
	return out
}
