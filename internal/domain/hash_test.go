package domain

import (
	"testing"
	"time"

	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draftWith(entries ...Entry) PostingDraft {
	return PostingDraft{Entries: entries}
}

func mustParseTime(t *testing.T, value string) time.Time {
	t.Helper()

	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)

	return ts
}

func TestCanonicalizerHashDeterministic(t *testing.T) {
	draft := draftWith(
		entry("a", Debit, "10.00", usd),
		entry("b", Credit, "10.00", usd),
	)

	var canon Canonicalizer

	first, err := canon.Hash(draft)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		h, err := canon.Hash(draft)
		require.NoError(t, err)
		assert.Equal(t, first, h)
	}
}

func TestCanonicalizerHashIgnoresEntryOrder(t *testing.T) {
	var canon Canonicalizer

	forward, err := canon.Hash(draftWith(
		entry("a", Debit, "6.00", usd),
		entry("b", Debit, "4.00", usd),
		entry("c", Credit, "10.00", usd),
	))
	require.NoError(t, err)

	reversed, err := canon.Hash(draftWith(
		entry("c", Credit, "10.00", usd),
		entry("b", Debit, "4.00", usd),
		entry("a", Debit, "6.00", usd),
	))
	require.NoError(t, err)

	assert.Equal(t, forward, reversed)
}

func TestCanonicalizerHashNormalizesAmountRendering(t *testing.T) {
	var canon Canonicalizer

	coarse, err := canon.Hash(draftWith(
		entry("a", Debit, "100.0", usd),
		entry("b", Credit, "100", usd),
	))
	require.NoError(t, err)

	fine, err := canon.Hash(draftWith(
		entry("a", Debit, "100.00", usd),
		entry("b", Credit, "100.00", usd),
	))
	require.NoError(t, err)

	assert.Equal(t, coarse, fine)
}

func TestCanonicalizerHashDistinguishesContent(t *testing.T) {
	var canon Canonicalizer

	base, err := canon.Hash(draftWith(
		entry("a", Debit, "10.00", usd),
		entry("b", Credit, "10.00", usd),
	))
	require.NoError(t, err)

	variants := []PostingDraft{
		draftWith( // different amount
			entry("a", Debit, "10.01", usd),
			entry("b", Credit, "10.01", usd),
		),
		draftWith( // different account
			entry("a", Debit, "10.00", usd),
			entry("c", Credit, "10.00", usd),
		),
		draftWith( // different currency
			entry("a", Debit, "10.00", Currency{Code: "EUR", Scale: 2}),
			entry("b", Credit, "10.00", Currency{Code: "EUR", Scale: 2}),
		),
		draftWith( // sides swapped
			entry("a", Credit, "10.00", usd),
			entry("b", Debit, "10.00", usd),
		),
	}

	for _, variant := range variants {
		h, err := canon.Hash(variant)
		require.NoError(t, err)
		assert.NotEqual(t, base, h)
	}
}

func TestCanonicalizerHashIgnoresEventAt(t *testing.T) {
	var canon Canonicalizer

	entries := []Entry{
		entry("a", Debit, "10.00", usd),
		entry("b", Credit, "10.00", usd),
	}

	plain, err := canon.Hash(PostingDraft{Entries: entries})
	require.NoError(t, err)

	timestamped, err := canon.Hash(PostingDraft{
		Entries: entries,
		EventAt: mustParseTime(t, "2026-03-01T12:00:00Z"),
	})
	require.NoError(t, err)

	assert.Equal(t, plain, timestamped)
}

func TestCanonicalizerMetadata(t *testing.T) {
	entries := []Entry{
		entry("a", Debit, "10.00", usd),
		entry("b", Credit, "10.00", usd),
	}

	bare := PostingDraft{Entries: entries}
	tagged := PostingDraft{Entries: entries, Metadata: map[string]string{"ref": "inv-1001"}}

	t.Run("excluded by default", func(t *testing.T) {
		var canon Canonicalizer

		h1, err := canon.Hash(bare)
		require.NoError(t, err)

		h2, err := canon.Hash(tagged)
		require.NoError(t, err)

		assert.Equal(t, h1, h2)
	})

	t.Run("included on request", func(t *testing.T) {
		canon := Canonicalizer{IncludeMetadata: true}

		h1, err := canon.Hash(bare)
		require.NoError(t, err)

		h2, err := canon.Hash(tagged)
		require.NoError(t, err)

		assert.NotEqual(t, h1, h2)
	})

	t.Run("key order does not matter", func(t *testing.T) {
		canon := Canonicalizer{IncludeMetadata: true}

		// Maps iterate in random order; the canonical form must not.
		for i := 0; i < 10; i++ {
			h1, err := canon.Hash(PostingDraft{Entries: entries, Metadata: map[string]string{
				"ref": "inv-1001", "source": "api", "batch": "42",
			}})
			require.NoError(t, err)

			h2, err := canon.Hash(PostingDraft{Entries: entries, Metadata: map[string]string{
				"batch": "42", "source": "api", "ref": "inv-1001",
			}})
			require.NoError(t, err)

			assert.Equal(t, h1, h2)
		}
	})
}

func TestContentHashIsValidMultihash(t *testing.T) {
	hash, err := Canonicalizer{}.Hash(draftWith(
		entry("a", Debit, "10.00", usd),
		entry("b", Credit, "10.00", usd),
	))
	require.NoError(t, err)

	require.NoError(t, hash.Validate())

	decoded, err := multihash.FromHexString(hash.String())
	require.NoError(t, err)

	info, err := multihash.Decode(decoded)
	require.NoError(t, err)
	assert.Equal(t, uint64(multihash.SHA2_256), info.Code)
	assert.Equal(t, 32, info.Length)
}

func TestContentHashValidate(t *testing.T) {
	tests := []struct {
		name string
		hash ContentHash
	}{
		{name: "empty", hash: ""},
		{name: "not hex", hash: "zz-not-a-hash"},
		{name: "bare digest without prefix", hash: "deadbeef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.hash.Validate()
			require.ErrorIs(t, err, ErrInvalidContentHash)
		})
	}
}
