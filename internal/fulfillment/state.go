package fulfillment

// CacheStatus is the value of the X-Cache response header.
type CacheStatus string

const (
	// CacheHit marks a response served from a stored entry.
	CacheHit CacheStatus = "HIT"
	// CacheRebuilt marks a fresh fetch after a normal miss.
	CacheRebuilt CacheStatus = "REBUILT"
	// CacheMiss marks a fresh fetch the caller forced with cache=false.
	CacheMiss CacheStatus = "MISS"
)

// Outcome names the terminal state a request reached.
type Outcome string

const (
	OutcomeFromCache    Outcome = "returned_from_cache"
	OutcomeFresh        Outcome = "returned_fresh"
	OutcomeNotFound     Outcome = "failed_not_found"
	OutcomeUpstream     Outcome = "failed_upstream_error"
	OutcomeInvalidInput Outcome = "failed_invalid_input"
	OutcomeInternal     Outcome = "failed_internal"
)

// State records what a single request observed on its way through the
// service. It backs request logs and metrics labels.
type State struct {
	Artist        string
	CacheKey      string
	Forced        bool
	CorrelationID string

	Cache    CacheState
	Upstream UpstreamState

	TransactionID string
	Status        CacheStatus
	Outcome       Outcome
}

// CacheState captures cache participation for the request.
type CacheState struct {
	Hit     bool
	Deleted bool
	Stored  bool
	// Errors counts backend failures tolerated in fail-open mode.
	Errors int
}

// UpstreamState summarizes provider calls made on the miss path.
type UpstreamState struct {
	Called   bool
	ArtistID int64
	Tracks   int
}
