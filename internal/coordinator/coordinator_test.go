package coordinator

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func defaultConfig() Config {
	return Config{MaxHammingDistance: 10, DuplicateSimilarity: 90.0}
}

func h(s string) string {
	if len(s) != 64 {
		panic("test hash fixture must be 64 characters")
	}
	return s
}

func zeros() string { return strings.Repeat("0", 64) }
func ones() string  { return strings.Repeat("1", 64) }

// Scenario 1: insert then identical query.
func TestScenarioIdenticalQuery(t *testing.T) {
	c := New(defaultConfig())

	v, err := c.SearchOrInsert("v1", zeros())
	if err != nil || v.MatchFound || !v.HashAdded {
		t.Fatalf("initial insert: v=%+v err=%v", v, err)
	}

	v, err = c.SearchOrInsert("v2", zeros())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.MatchFound || v.HashAdded {
		t.Fatalf("expected match_found, hash_added=false; got %+v", v)
	}
	if v.MatchDetails.MatchedVideoID != "v1" {
		t.Errorf("matched id = %q, want v1", v.MatchDetails.MatchedVideoID)
	}
	if v.MatchDetails.SimilarityPercentage != 100.0 {
		t.Errorf("similarity = %v, want 100.0", v.MatchDetails.SimilarityPercentage)
	}
	if !v.MatchDetails.IsDuplicate {
		t.Errorf("expected is_duplicate=true at 100%% similarity")
	}
}

// Scenario 2: insert then far query.
func TestScenarioFarQuery(t *testing.T) {
	c := New(defaultConfig())
	c.SearchOrInsert("v1", zeros())

	v, err := c.SearchOrInsert("v2", ones())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.MatchFound || !v.HashAdded {
		t.Errorf("expected no match, hash_added=true; got %+v", v)
	}
}

// Scenario 3: boundary at threshold r=10.
func TestScenarioBoundary(t *testing.T) {
	c := New(defaultConfig())
	c.SearchOrInsert("v1", zeros())

	at10 := h(strings.Repeat("0", 54) + strings.Repeat("1", 10))
	v, err := c.SearchOrInsert("v2", at10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.MatchFound {
		t.Fatalf("expected match at distance 10 with r=10")
	}
	if got, want := v.MatchDetails.SimilarityPercentage, 100.0*54.0/64.0; got != want {
		t.Errorf("similarity = %v, want %v", got, want)
	}

	at11 := h(strings.Repeat("0", 53) + strings.Repeat("1", 11))
	v, err = c.SearchOrInsert("v3", at11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.MatchFound || !v.HashAdded {
		t.Errorf("expected no match at distance 11 with r=10; got %+v", v)
	}
}

// Scenario 4: delete then re-insert.
func TestScenarioDeleteThenReinsert(t *testing.T) {
	c := New(defaultConfig())
	c.SearchOrInsert("v1", zeros())

	if err := c.Delete("v1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	v, err := c.SearchOrInsert("v2", zeros())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.MatchFound || !v.HashAdded {
		t.Errorf("expected no match after delete; got %+v", v)
	}
}

// Scenario 5: unknown delete.
func TestScenarioDeleteUnknown(t *testing.T) {
	c := New(defaultConfig())
	if err := c.Delete("does_not_exist"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete error = %v, want ErrNotFound", err)
	}
}

// Scenario 6: invalid hash.
func TestScenarioInvalidHash(t *testing.T) {
	c := New(defaultConfig())
	_, err := c.SearchOrInsert("v1", "xyz")
	if !errors.Is(err, ErrInvalidHash) {
		t.Errorf("error = %v, want ErrInvalidHash", err)
	}
	if c.Len() != 0 {
		t.Errorf("invalid hash must not mutate state: Len() = %d", c.Len())
	}
}

// Scenario 7: swap-remove correctness under deletion.
func TestScenarioSwapRemove(t *testing.T) {
	c := New(defaultConfig())
	ha := zeros()
	hb := h(strings.Repeat("0", 32) + strings.Repeat("1", 32))
	hcVal := ones()

	c.SearchOrInsert("a", ha)
	c.SearchOrInsert("b", hb)
	c.SearchOrInsert("c", hcVal)

	if err := c.Delete("a"); err != nil {
		t.Fatalf("Delete(a) failed: %v", err)
	}

	vb, err := c.SearchOrInsert("b2", hb)
	if err != nil || !vb.MatchFound || vb.MatchDetails.MatchedVideoID != "b" {
		t.Errorf("query for hb should match b after swap-remove: v=%+v err=%v", vb, err)
	}

	vc, err := c.SearchOrInsert("c2", hcVal)
	if err != nil || !vc.MatchFound || vc.MatchDetails.MatchedVideoID != "c" {
		t.Errorf("query for hc should match c after swap-remove: v=%+v err=%v", vc, err)
	}
}

// DuplicateIdentifier: an already-present video_id queried with a
// hash that does not near-match its stored hash.
func TestDuplicateIdentifier(t *testing.T) {
	c := New(defaultConfig())
	c.SearchOrInsert("v1", zeros())

	_, err := c.SearchOrInsert("v1", ones())
	if !errors.Is(err, ErrDuplicateIdentifier) {
		t.Errorf("error = %v, want ErrDuplicateIdentifier", err)
	}
}

// Property P6: a MatchFound verdict must leave the population
// unchanged.
func TestNoInsertOnMatch(t *testing.T) {
	c := New(defaultConfig())
	c.SearchOrInsert("v1", zeros())
	before := c.Len()

	v, err := c.SearchOrInsert("v2", zeros())
	if err != nil || !v.MatchFound {
		t.Fatalf("expected a match: v=%+v err=%v", v, err)
	}
	if c.Len() != before {
		t.Errorf("population changed on MatchFound: before=%d after=%d", before, c.Len())
	}
}

// Property P7: of N concurrent SearchOrInsert calls with pairwise-near
// hashes, exactly one reports Inserted.
func TestConcurrentSearchOrInsertExactlyOneInsert(t *testing.T) {
	c := New(defaultConfig())

	const n = 50
	var wg sync.WaitGroup
	results := make([]Verdict, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.SearchOrInsert(hashIDFor(i), zeros())
			results[i] = v
			errs[i] = err
		}(i)
	}
	wg.Wait()

	inserted := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("unexpected error from goroutine %d: %v", i, errs[i])
		}
		if results[i].HashAdded {
			inserted++
		}
	}
	if inserted != 1 {
		t.Errorf("expected exactly one Inserted verdict among %d concurrent calls, got %d", n, inserted)
	}
	if c.Len() != 1 {
		t.Errorf("population after concurrent race = %d, want 1", c.Len())
	}
}

func hashIDFor(i int) string {
	return "video-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}
