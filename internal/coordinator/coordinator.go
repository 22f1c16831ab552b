// Package coordinator exposes the single-shot "search-or-insert"
// surface this service promises to its callers, and enforces the
// single-writer discipline that keeps the registry and MIH index
// consistent under concurrent access.
//
// One sync.RWMutex covers the whole aggregate: every write path takes
// the full writer lock, including paths where no mutation ends up
// happening, and read-only introspection takes the reader lock.
package coordinator

import (
	"errors"
	"sync"

	"github.com/dolr-ai/videohash-indexer/internal/hashcode"
	"github.com/dolr-ai/videohash-indexer/internal/mih"
	"github.com/dolr-ai/videohash-indexer/internal/registry"
)

// Sentinel errors surfaced to callers.
var (
	ErrInvalidHash         = hashcode.ErrInvalidHash
	ErrDuplicateIdentifier = errors.New("coordinator: video_id already indexed")
	ErrNotFound            = registry.ErrNotFound
)

// MatchDetails describes the entry that satisfied a search.
type MatchDetails struct {
	MatchedVideoID      string
	SimilarityPercentage float64
	IsDuplicate          bool
}

// Verdict is the outcome of SearchOrInsert.
type Verdict struct {
	MatchFound   bool
	MatchDetails *MatchDetails // non-nil iff MatchFound
	HashAdded    bool
}

// Config holds the two tunables fixed at startup.
type Config struct {
	// MaxHammingDistance is r: the search radius for "near-duplicate".
	MaxHammingDistance int
	// DuplicateSimilarity is the similarity percentage at/above which
	// a match is additionally flagged is_duplicate.
	DuplicateSimilarity float64
}

// Coordinator owns the registry and MIH index jointly behind a single
// sync.RWMutex, and implements the atomic search-then-insert contract.
type Coordinator struct {
	mu  sync.RWMutex
	reg *registry.Registry
	idx *mih.Index
	cfg Config
}

// New creates an empty coordinator with the given configuration.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		reg: registry.New(),
		idx: mih.New(),
		cfg: cfg,
	}
}

// SearchOrInsert parses hashString, then — under a single writer lock
// held for the entire operation — searches the index for a neighbour
// within r and either reports it (no insertion) or inserts
// (video_id, hash) atomically.
//
// A read-only pre-check under a reader lock is deliberately not used:
// a concurrent insertion could land a near-match between the check and
// the insert, which would violate the at-most-one-insert-per-match
// contract. The writer lock is held for the full duration of both the
// search and the conditional insert.
func (c *Coordinator) SearchOrInsert(videoID, hashString string) (Verdict, error) {
	code, err := hashcode.Parse(hashString)
	if err != nil {
		return Verdict{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if slot, d, found := c.idx.Search(code, c.cfg.MaxHammingDistance); found {
		matchedID := c.reg.VideoIDAt(slot)
		similarity := hashcode.Similarity(d)
		return Verdict{
			MatchFound: true,
			MatchDetails: &MatchDetails{
				MatchedVideoID:       matchedID,
				SimilarityPercentage: similarity,
				IsDuplicate:          similarity >= c.cfg.DuplicateSimilarity,
			},
			HashAdded: false,
		}, nil
	}

	slot, err := c.reg.Insert(videoID, code)
	if err != nil {
		// No near-match exists, but video_id is already registered:
		// this is a DuplicateIdentifier, not a match.
		return Verdict{}, ErrDuplicateIdentifier
	}
	c.idx.Insert(slot, code)

	return Verdict{MatchFound: false, HashAdded: true}, nil
}

// Delete removes videoID from both the registry and the MIH index,
// preserving invariants R1/R2/I1/I2 (the registry's swap-remove slot
// bookkeeping is mirrored into the index in the same call).
func (c *Coordinator) Delete(videoID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed, moved, movedFrom, err := c.reg.Remove(videoID)
	if err != nil {
		return err
	}
	c.idx.Remove(removed, moved, movedFrom)
	return nil
}

// Len returns the current population. Read-only introspection: takes
// the reader lock only.
func (c *Coordinator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reg.Len()
}
