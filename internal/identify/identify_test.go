package identify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		class string
		value string
	}{
		{
			name:  "bitcoin legacy address",
			text:  "send it to 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa tonight",
			class: ClassBitcoin,
			value: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		},
		{
			name:  "bitcoin segwit address",
			text:  "new wallet bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq ok",
			class: ClassBitcoin,
			value: "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",
		},
		{
			name:  "ethereum address lowercased",
			text:  "eth: 0x52908400098527886E0F7030069857D2E4169EE7",
			class: ClassEthereum,
			value: "0x52908400098527886e0f7030069857d2e4169ee7",
		},
		{
			name:  "email lowercased",
			text:  "reach me at Burner.Account+x@ProtonMail.com later",
			class: ClassEmail,
			value: "burner.account+x@protonmail.com",
		},
		{
			name:  "formatted us phone",
			text:  "call (555) 867-5309 after midnight",
			class: ClassPhone,
			value: "5558675309",
		},
		{
			name:  "international phone keeps plus",
			text:  "whatsapp me +15558675309",
			class: ClassPhone,
			value: "+15558675309",
		},
		{
			name:  "ssn",
			text:  "his social is 219-09-9999",
			class: ClassSSN,
			value: "219-09-9999",
		},
		{
			name:  "credit card collapses separators",
			text:  "use 4111 1111 1111 1111 exp 09/27",
			class: ClassCreditCard,
			value: "4111111111111111",
		},
		{
			name:  "url trailing punctuation trimmed",
			text:  "check https://t.me/joinchat/abc123.",
			class: ClassURL,
			value: "https://t.me/joinchat/abc123",
		},
		{
			name:  "handle lowercased",
			text:  "hit up @Dealer_Mike99 on there",
			class: ClassHandle,
			value: "@dealer_mike99",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := Scan(tt.text)
			require.NotEmpty(t, ids, "expected at least one identifier")
			found := false
			for _, id := range ids {
				if id.Class == tt.class && id.Value == tt.value {
					found = true
				}
			}
			assert.True(t, found, "expected %s %q in %v", tt.class, tt.value, ids)
		})
	}
}

func TestScanNoFalsePositives(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		class string
	}{
		{"email local part is not a handle", "mail dealer@crypted.io now", ClassHandle},
		{"ssn is not a phone", "ssn 219-09-9999", ClassPhone},
		{"plain sentence", "see you at the usual spot tomorrow", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, id := range Scan(tt.text) {
				if tt.class == "" {
					t.Errorf("unexpected identifier %+v", id)
					continue
				}
				assert.NotEqual(t, tt.class, id.Class, "value %q", id.Value)
			}
		})
	}
}

func TestScanDeduplicates(t *testing.T) {
	ids := Scan("text me at 555-867-5309 or 555.867.5309")
	count := 0
	for _, id := range ids {
		if id.Class == ClassPhone {
			count++
			assert.Equal(t, "5558675309", id.Value)
		}
	}
	assert.Equal(t, 1, count, "differently formatted numbers should normalize to one value")
}

func TestScanEmptyText(t *testing.T) {
	assert.Nil(t, Scan(""))
}

func TestIndexMergeAndResult(t *testing.T) {
	a := NewIndex()
	b := NewIndex()

	a.Add(Scan("wallet 0x52908400098527886E0F7030069857D2E4169EE7"))
	b.Add(Scan("call 555-867-5309"))
	b.Add(Scan("or 555-867-5309 again"))

	a.Merge(b)
	res := a.Result()

	require.Len(t, res, 2)
	assert.Equal(t, []string{"0x52908400098527886e0f7030069857d2e4169ee7"}, res[ClassEthereum])
	assert.Equal(t, []string{"5558675309"}, res[ClassPhone])
}

func TestEmptyIndexResult(t *testing.T) {
	assert.Nil(t, NewIndex().Result())
}
