package domain

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/multiformats/go-multihash"
)

// ContentHash is the deterministic digest of a posting's canonicalized
// economic content, rendered as a hex multihash. The multihash prefix makes
// the identifier self-describing so the digest algorithm can evolve without
// breaking stored hashes.
type ContentHash string

// String returns the hash as a plain string.
func (h ContentHash) String() string {
	return string(h)
}

// Validate checks that the hash parses as a multihash.
func (h ContentHash) Validate() error {
	if _, err := multihash.FromHexString(string(h)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContentHash, err)
	}
	return nil
}

// canonicalVersion is bumped whenever the byte layout below changes.
const canonicalVersion = byte(1)

// Field and record separators for the canonical encoding. Unit/record
// separators cannot appear in account IDs or currency codes produced by
// this system, and metadata values are length-prefixed.
const (
	fieldSep  = byte(0x1f)
	recordSep = byte(0x1e)
)

// Canonicalizer turns a draft into canonical bytes and hashes them.
// IncludeMetadata controls whether posting metadata participates in the
// identity; operational resubmission fields (EventAt) never do, so retries
// stay idempotent.
type Canonicalizer struct {
	IncludeMetadata bool
}

// Hash computes the ContentHash of a draft. Entries are sorted by a total
// order (account, side, amount, currency) so that semantically identical
// postings submitted in different entry order produce the same hash.
func (c Canonicalizer) Hash(draft PostingDraft) (ContentHash, error) {
	buf, err := c.canonicalBytes(draft)
	if err != nil {
		return "", err
	}

	mh, err := multihash.Sum(buf, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidContentHash, err)
	}

	return ContentHash(mh.HexString()), nil
}

func (c Canonicalizer) canonicalBytes(draft PostingDraft) ([]byte, error) {
	entries := make([]Entry, len(draft.Entries))
	copy(entries, draft.Entries)

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		if a.Side != b.Side {
			return a.Side < b.Side
		}
		if cmp := a.Amount.Cmp(b.Amount); cmp != 0 {
			return cmp < 0
		}
		return a.Currency.Code < b.Currency.Code
	})

	var buf bytes.Buffer
	buf.WriteByte(canonicalVersion)

	for _, e := range entries {
		buf.WriteString(e.AccountID)
		buf.WriteByte(fieldSep)
		buf.WriteString(string(e.Side))
		buf.WriteByte(fieldSep)
		// Fixed-scale rendering so 100.0 and 100.00 canonicalize equally.
		buf.WriteString(e.Amount.StringFixed(e.Currency.Scale))
		buf.WriteByte(fieldSep)
		buf.WriteString(e.Currency.Code)
		buf.WriteByte(fieldSep)
		fmt.Fprintf(&buf, "%d", e.Currency.Scale)
		buf.WriteByte(recordSep)
	}

	if c.IncludeMetadata && len(draft.Metadata) > 0 {
		keys := make([]string, 0, len(draft.Metadata))
		for k := range draft.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			v := draft.Metadata[k]
			fmt.Fprintf(&buf, "%d:%s", len(k), k)
			buf.WriteByte(fieldSep)
			fmt.Fprintf(&buf, "%d:%s", len(v), v)
			buf.WriteByte(recordSep)
		}
	}

	return buf.Bytes(), nil
}
