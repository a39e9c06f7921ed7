package access

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FloodKind is one of the rate-limited message kinds spec §4.6 names.
type FloodKind int

const (
	FloodChat FloodKind = iota
	FloodPM
	FloodSearch
	FloodMCTo
	FloodCTM
	FloodRCTM
	FloodAny
	FloodAnyExceptKnown
)

// Policy is the per-kind response to exceeding the threshold within the
// window.
type Policy struct {
	Threshold   int
	Window      time.Duration
	WarnAt      int           // send a warning PM once this count is reached (0 disables)
	LockoutCool time.Duration // hub-wide proto-flood-lock cool-off once the hub-wide threshold is exceeded
}

// DefaultPolicies mirrors the example thresholds spec §8 scenario 5 uses
// (10 messages per 5-second window for PM).
var DefaultPolicies = map[FloodKind]Policy{
	FloodChat:           {Threshold: 10, Window: 5 * time.Second, WarnAt: 6, LockoutCool: 30 * time.Second},
	FloodPM:             {Threshold: 10, Window: 5 * time.Second, WarnAt: 6, LockoutCool: 30 * time.Second},
	FloodSearch:         {Threshold: 5, Window: 10 * time.Second, WarnAt: 3, LockoutCool: 60 * time.Second},
	FloodMCTo:           {Threshold: 10, Window: 5 * time.Second, WarnAt: 6, LockoutCool: 30 * time.Second},
	FloodCTM:            {Threshold: 5, Window: 5 * time.Second, WarnAt: 3, LockoutCool: 30 * time.Second},
	FloodRCTM:           {Threshold: 5, Window: 5 * time.Second, WarnAt: 3, LockoutCool: 30 * time.Second},
	FloodAny:            {Threshold: 60, Window: 5 * time.Second, LockoutCool: 15 * time.Second},
	FloodAnyExceptKnown: {Threshold: 60, Window: 5 * time.Second, LockoutCool: 15 * time.Second},
}

// Verdict is the result of a single Allow check.
type Verdict int

const (
	VerdictAllow Verdict = iota
	VerdictWarn
	VerdictBlock // over per-user threshold, or hub is proto-flood-locked for this kind
)

// Guard is the hub's flood/clone engine: one golang.org/x/time/rate
// limiter per (user, kind) plus a hub-wide limiter per kind, with a
// proto-flood "lock" cool-off once the hub-wide limiter is exhausted (spec
// §4.6). golang.org/x/time/rate's token bucket is a direct fit for "counter
// that decays linearly over a configured window" — the pack's only rate
// limiter (pulled in indirectly by the teacher's echo middleware) used here
// for the exact purpose it's built for.
type Guard struct {
	mu       sync.Mutex
	policies map[FloodKind]Policy
	perUser  map[string]map[FloodKind]*rate.Limiter
	hubWide  map[FloodKind]*rate.Limiter
	lockedUntil map[FloodKind]time.Time
	hitCount map[string]map[FloodKind]int // cumulative hits since the last ResetUser, for WarnAt/Threshold staging
}

// NewGuard builds a Guard from the given policy table (pass DefaultPolicies
// for the out-of-the-box thresholds; operator config overrides individual
// entries at load time).
func NewGuard(policies map[FloodKind]Policy) *Guard {
	g := &Guard{
		policies:    policies,
		perUser:     make(map[string]map[FloodKind]*rate.Limiter),
		hubWide:     make(map[FloodKind]*rate.Limiter),
		lockedUntil: make(map[FloodKind]time.Time),
		hitCount:    make(map[string]map[FloodKind]int),
	}
	for kind, pol := range policies {
		g.hubWide[kind] = rate.NewLimiter(ratePerSecond(pol), pol.Threshold*4)
	}
	return g
}

func ratePerSecond(p Policy) rate.Limit {
	if p.Window <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(p.Threshold) / p.Window.Seconds())
}

// Allow registers one event of kind from userKey and returns the resulting
// verdict. now is injected for deterministic tests.
func (g *Guard) Allow(userKey string, kind FloodKind, now time.Time) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	pol, ok := g.policies[kind]
	if !ok {
		return VerdictAllow
	}

	if until, locked := g.lockedUntil[kind]; locked && now.Before(until) {
		return VerdictBlock
	}

	if !g.hubWide[kind].AllowN(now, 1) {
		g.lockedUntil[kind] = now.Add(pol.LockoutCool)
		return VerdictBlock
	}

	perKind, ok := g.perUser[userKey]
	if !ok {
		perKind = make(map[FloodKind]*rate.Limiter)
		g.perUser[userKey] = perKind
	}
	lim, ok := perKind[kind]
	if !ok {
		lim = rate.NewLimiter(ratePerSecond(pol), pol.Threshold)
		perKind[kind] = lim
	}

	userHits, ok := g.hitCount[userKey]
	if !ok {
		userHits = make(map[FloodKind]int)
		g.hitCount[userKey] = userHits
	}
	userHits[kind]++

	if !lim.AllowN(now, 1) {
		return VerdictBlock
	}
	if pol.WarnAt > 0 && userHits[kind] == pol.WarnAt {
		return VerdictWarn
	}
	return VerdictAllow
}

// ResetUser drops all per-user limiter state for userKey (called when a
// user disconnects, so limiter maps don't grow unbounded).
func (g *Guard) ResetUser(userKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.perUser, userKey)
	delete(g.hitCount, userKey)
}

// Locked reports whether the hub is currently proto-flood-locked for kind.
func (g *Guard) Locked(kind FloodKind, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.lockedUntil[kind]
	return ok && now.Before(until)
}
