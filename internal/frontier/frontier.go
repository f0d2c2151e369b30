package frontier

import (
	"container/heap"
	"net/url"
	"sync"

	"github.com/corvidae/webcrawler/internal/config"
	"github.com/corvidae/webcrawler/pkg/urlutil"
)

/*
Frontier Responsibilities
- Maintain BFS ordering, generalized with an optional caller priority
- Deduplicate URLs
- Track crawl depth
- Prevent infinite traversal
- Knows nothing about:
	- fetching
	- extraction
	- markdown
	- storage

It is a data structure + policy module, not a pipeline executor.
*/

// frontierEntry is one pending CrawlToken sitting in the priority heap.
// Ordering key is (priority desc, depth asc, seq asc): a candidate built
// through NewCrawlAdmissionCandidate always carries priority zero, so the
// heap falls back to strict breadth-first-by-depth, then insertion order,
// exactly like the plain FIFOQueue it generalizes.
type frontierEntry struct {
	token    CrawlToken
	priority int
	depth    int
	seq      int64
}

type entryHeap []*frontierEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	if h[i].depth != h[j].depth {
		return h[i].depth < h[j].depth
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(*frontierEntry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// CrawlFrontier owns crawl ordering and per-URL admission bookkeeping.
// It is the single authority on: has this URL already been seen, is it
// within depth/page limits, and what comes out next. Callers that built a
// CrawlAdmissionCandidate are trusted to have already cleared robots.txt
// and scope checks; the frontier only enforces depth, page-count and
// duplicate-URL admission, then orders what it lets through.
//
// Safe for concurrent use: every method takes the same mutex.
type CrawlFrontier struct {
	mu sync.Mutex

	heapData entryHeap
	seq      int64

	// visited is every URL ever admitted (queued, processed, or failed):
	// the sole dedup gate for Submit.
	visited Set[string]

	// processed and failed partition the subset of visited that has left
	// the heap with a terminal outcome. A key belongs to at most one of
	// the two; failed carries the reason string (fetch error message,
	// "blocked_by_robots", "circuit_open", ...).
	processed Set[string]
	failed    map[string]string

	// depthCounts tracks how many entries are currently pending (submitted,
	// not yet dequeued) at each depth, so CurrentMinDepth/IsDepthExhausted
	// don't need to scan the heap.
	depthCounts map[int]int

	maxDepth int
	maxPages int
}

// Stats is a snapshot of the frontier's three-set bookkeeping.
type Stats struct {
	Queued    int
	Processed int
	Failed    int
	Total     int
}

// NewCrawlFrontier returns an empty, unconfigured frontier. Call Init
// before submitting candidates.
func NewCrawlFrontier() *CrawlFrontier {
	return &CrawlFrontier{
		visited:     NewSet[string](),
		processed:   NewSet[string](),
		failed:      make(map[string]string),
		depthCounts: make(map[int]int),
	}
}

// Init configures the frontier's depth and page-count limits from cfg.
// A zero page limit means unlimited; a zero depth limit admits only
// depth-0 (seed) candidates.
func (f *CrawlFrontier) Init(cfg config.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.maxDepth = cfg.MaxDepth()
	f.maxPages = cfg.MaxPages()
}

// Submit admits candidate into the frontier unless it is a duplicate of a
// previously submitted URL, exceeds the configured depth limit, or would
// push the visited count past the configured page limit. Rejected
// candidates are silently dropped; admission is a courtesy to the caller,
// not an error condition the caller needs to react to.
func (f *CrawlFrontier) Submit(candidate CrawlAdmissionCandidate) {
	f.mu.Lock()
	defer f.mu.Unlock()

	depth := candidate.DiscoveryMetadata().Depth()
	if depth > f.maxDepth {
		return
	}
	if f.maxPages != 0 && f.visited.Size() >= f.maxPages {
		return
	}

	canonical := urlutil.Canonicalize(candidate.TargetURL())
	key := canonical.String()
	if f.visited.Contains(key) {
		return
	}
	f.visited.Add(key)

	f.seq++
	entry := &frontierEntry{
		token:    NewCrawlToken(candidate.TargetURL(), depth),
		priority: candidate.Priority(),
		depth:    depth,
		seq:      f.seq,
	}
	heap.Push(&f.heapData, entry)
	f.depthCounts[depth]++
}

// Dequeue returns the next CrawlToken in priority/breadth-first order, or
// (zero, false) if the frontier has nothing pending.
func (f *CrawlFrontier) Dequeue() (CrawlToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.heapData.Len() == 0 {
		return CrawlToken{}, false
	}

	entry := heap.Pop(&f.heapData).(*frontierEntry)
	f.depthCounts[entry.depth]--
	if f.depthCounts[entry.depth] <= 0 {
		delete(f.depthCounts, entry.depth)
	}
	return entry.token, true
}

// IsDepthExhausted reports whether no URLs remain pending at depth,
// including depths never submitted to and negative depths.
func (f *CrawlFrontier) IsDepthExhausted(depth int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.depthCounts[depth] <= 0
}

// CurrentMinDepth returns the smallest depth with at least one pending
// URL, or -1 if the frontier is empty.
func (f *CrawlFrontier) CurrentMinDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	min := -1
	for depth, count := range f.depthCounts {
		if count <= 0 {
			continue
		}
		if min == -1 || depth < min {
			min = depth
		}
	}
	return min
}

// VisitedCount returns the number of unique URLs ever admitted, regardless
// of how many have since been dequeued.
func (f *CrawlFrontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.visited.Size()
}

// MarkProcessed records target as successfully fetched. target is
// canonicalized the same way Submit keys its dedup set, so callers may
// pass the token's own URL without re-deriving the canonical form.
func (f *CrawlFrontier) MarkProcessed(target url.URL) {
	f.mu.Lock()
	defer f.mu.Unlock()

	canonical := urlutil.Canonicalize(target)
	key := canonical.String()
	f.visited.Add(key)
	delete(f.failed, key)
	f.processed.Add(key)
}

// MarkFailed records target as terminally failed with reason. Unlike
// MarkProcessed, target need not have passed through Submit first: a URL
// rejected by an admission check (robots, circuit breaker) before ever
// reaching the heap is still a distinguished outcome the frontier must
// surface, so MarkFailed registers it as known if it isn't already.
func (f *CrawlFrontier) MarkFailed(target url.URL, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	canonical := urlutil.Canonicalize(target)
	key := canonical.String()
	f.visited.Add(key)
	f.processed.Remove(key)
	f.failed[key] = reason
}

// Stats returns the current queued/processed/failed/total counts. Total
// counts every URL ever admitted or marked, including ones still queued.
func (f *CrawlFrontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Stats{
		Queued:    f.heapData.Len(),
		Processed: f.processed.Size(),
		Failed:    len(f.failed),
		Total:     f.visited.Size(),
	}
}
