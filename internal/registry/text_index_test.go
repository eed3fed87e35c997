package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerdex/pkg/model"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "lowercases and splits",
			text: "Dedicated GPU Server",
			want: []string{"dedicated", "gpu", "server"},
		},
		{
			name: "splits on punctuation",
			text: "high-performance, nvme/ssd storage",
			want: []string{"high", "performance", "nvme", "ssd", "storage"},
		},
		{
			name: "drops stop words",
			text: "server with GPU for machine learning",
			want: []string{"server", "gpu", "machine", "learning"},
		},
		{
			name: "drops short tokens",
			text: "a vm in eu DC zone",
			want: []string{"zone"},
		},
		{
			name: "deduplicates keeping first position",
			text: "fast storage, fast network",
			want: []string{"fast", "storage", "network"},
		},
		{
			name: "digits survive",
			text: "ddr4 3200 ecc",
			want: []string{"ddr4", "3200", "ecc"},
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
		{
			name: "only noise",
			text: "a of to !!",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.text, DefaultMinTokenLength))
		})
	}
}

func TestTokenizeMinLength(t *testing.T) {
	assert.Equal(t, []string{"eu", "vps"}, tokenize("eu vps", 2))
	assert.Nil(t, tokenize("eu", 3))
	// Rune length, not byte length.
	assert.Equal(t, []string{"käln"}, tokenize("käln", 4))
}

func textOffering(key model.OfferingKey, name, desc string) *model.Offering {
	o := validOffering(key)
	o.OfferName = name
	o.Description = desc
	return o
}

func TestTextIndexCandidates(t *testing.T) {
	ti := newTextIndex(DefaultMinTokenLength)
	alice := testPubkey(1)

	small := model.OfferingID{Provider: alice, Key: "vm-small"}
	large := model.OfferingID{Provider: alice, Key: "vm-large"}
	ti.Index(small, textOffering("vm-small", "Small VPS", "Compact virtual server"))
	ti.Index(large, textOffering("vm-large", "Large VPS", "Roomy virtual server with GPU"))

	tests := []struct {
		name        string
		text        string
		constrained bool
		want        []model.OfferingID
	}{
		{
			name:        "single token",
			text:        "compact",
			constrained: true,
			want:        []model.OfferingID{small},
		},
		{
			name:        "token shared by both",
			text:        "virtual",
			constrained: true,
			want:        []model.OfferingID{small, large},
		},
		{
			name:        "all tokens must match",
			text:        "virtual gpu",
			constrained: true,
			want:        []model.OfferingID{large},
		},
		{
			name:        "case and punctuation insensitive",
			text:        "  GPU, Virtual!  ",
			constrained: true,
			want:        []model.OfferingID{large},
		},
		{
			name:        "unknown token empties the result",
			text:        "virtual quantum",
			constrained: true,
			want:        nil,
		},
		{
			name:        "stop words only imposes no constraint",
			text:        "the and of",
			constrained: false,
		},
		{
			name:        "empty text imposes no constraint",
			text:        "",
			constrained: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, constrained := ti.Candidates(tt.text)
			assert.Equal(t, tt.constrained, constrained)
			if !tt.constrained {
				return
			}
			assert.Len(t, got, len(tt.want))
			for _, id := range tt.want {
				assert.Contains(t, got, id)
			}
		})
	}
}

func TestTextIndexReindexReplacesTokens(t *testing.T) {
	ti := newTextIndex(DefaultMinTokenLength)
	id := model.OfferingID{Provider: testPubkey(1), Key: "vm-1"}

	ti.Index(id, textOffering("vm-1", "Budget VPS", "cheap server"))
	got, _ := ti.Candidates("cheap")
	require.Contains(t, got, id)

	ti.Index(id, textOffering("vm-1", "Budget VPS", "premium server"))
	got, _ = ti.Candidates("cheap")
	assert.Empty(t, got)
	got, _ = ti.Candidates("premium")
	assert.Contains(t, got, id)
}

func TestTextIndexRemove(t *testing.T) {
	ti := newTextIndex(DefaultMinTokenLength)
	id := model.OfferingID{Provider: testPubkey(1), Key: "vm-1"}

	ti.Index(id, textOffering("vm-1", "Budget VPS", "cheap server"))
	require.Positive(t, ti.TokenCount())

	ti.Remove(id)
	assert.Zero(t, ti.TokenCount(), "postings must not leak after removal")
	got, _ := ti.Candidates("cheap")
	assert.Empty(t, got)

	// Removing again is harmless.
	ti.Remove(id)
}

func TestTextIndexHasAllTokens(t *testing.T) {
	ti := newTextIndex(DefaultMinTokenLength)
	id := model.OfferingID{Provider: testPubkey(1), Key: "vm-1"}
	ti.Index(id, textOffering("vm-1", "Budget VPS", "cheap fast server"))

	assert.True(t, ti.HasAllTokens(id, nil))
	assert.True(t, ti.HasAllTokens(id, []string{"cheap", "fast"}))
	assert.False(t, ti.HasAllTokens(id, []string{"cheap", "slow"}))
	assert.False(t, ti.HasAllTokens(model.OfferingID{Provider: testPubkey(2), Key: "x"}, []string{"cheap"}))
}

func TestTextIndexSearchesBeyondNameAndDescription(t *testing.T) {
	ti := newTextIndex(DefaultMinTokenLength)
	id := model.OfferingID{Provider: testPubkey(1), Key: "vm-1"}

	o := validOffering("vm-1")
	o.GPUName = model.Ptr("NVIDIA A100")
	o.Features = []string{"unmetered bandwidth"}
	o.OperatingSystems = []string{"Debian 12"}
	ti.Index(id, o)

	for _, term := range []string{"nvidia", "a100", "unmetered", "debian", "frankfurt"} {
		got, constrained := ti.Candidates(term)
		require.True(t, constrained, term)
		assert.Contains(t, got, id, term)
	}
}
