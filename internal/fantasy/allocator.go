package fantasy

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// adjectives and nouns form the combinatorial name space. Collisions within a
// single table session are rare (hundreds of combinations, a handful of
// diners) and handled with retries plus a numeric fallback.
var adjectives = []string{
	"Brave", "Clever", "Dashing", "Eager", "Fierce", "Gentle", "Hungry",
	"Jolly", "Keen", "Lucky", "Merry", "Nimble", "Plucky", "Quiet",
	"Rowdy", "Sly", "Swift", "Tidy", "Witty", "Zesty",
}

var nouns = []string{
	"Wolf", "Falcon", "Badger", "Otter", "Lynx", "Heron", "Fox",
	"Raven", "Stag", "Hare", "Bison", "Crane", "Mole", "Owl",
	"Panda", "Seal", "Tiger", "Viper", "Walrus", "Yak",
}

// maxAttempts bounds random draws before falling back to a numeric
// disambiguator.
const maxAttempts = 16

// Allocator generates session-unique pseudonyms for anonymous diners.
type Allocator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewAllocator creates an allocator seeded for reproducible draws in tests.
func NewAllocator(seed int64) *Allocator {
	return &Allocator{rng: rand.New(rand.NewSource(seed))}
}

// Allocate returns a name not present in existing. Keys of existing must be
// normalized with Normalize. The result is a display name such as
// "Brave Wolf" or, when the drawn name is taken, "Brave Wolf 2".
func (a *Allocator) Allocate(existing map[string]struct{}) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var candidate string
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate = adjectives[a.rng.Intn(len(adjectives))] + " " + nouns[a.rng.Intn(len(nouns))]
		if _, taken := existing[Normalize(candidate)]; !taken {
			return candidate
		}
	}

	// Every draw collided; disambiguate the last one numerically.
	for n := 2; ; n++ {
		numbered := fmt.Sprintf("%s %d", candidate, n)
		if _, taken := existing[Normalize(numbered)]; !taken {
			return numbered
		}
	}
}

// Normalize lowercases and trims a name for uniqueness comparison.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
