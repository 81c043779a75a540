// Package registry implements the TrackRegistry: two-pool (trusted /
// opportunistic) admission, MAC-spam abuse mitigation, mutation, and
// inactivity eviction described in spec §4.2.
package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/billglover/dragonsync/internal/geo"
	"github.com/billglover/dragonsync/internal/model"
)

const (
	// macWindow is the sliding window over which distinct uids per MAC are
	// counted (spec §4.2 rule 1, W=30s).
	macWindow = 30 * time.Second
	// macSpamThreshold is the distinct-uid count per MAC that triggers backoff
	// (spec §4.2 rule 1, K=5).
	macSpamThreshold = 5
	// macBackoff is how long a spamming MAC is locked out of new-uid
	// admission (spec §4.2 rule 1, B=60s).
	macBackoff = 60 * time.Second
)

type pool int

const (
	poolTrusted pool = iota
	poolOpportunistic
)

type macEvent struct {
	at  time.Time
	uid string
}

// Registry is the TrackRegistry. All exported methods are safe for
// concurrent use; mutation intervals are kept short with no I/O under lock,
// per spec §5.
type Registry struct {
	mu sync.Mutex

	capTrusted      int
	capOpportunistic int

	trusted       map[string]*model.Track
	opportunistic map[string]*model.Track
	// orderTrusted/orderOpportunistic record FIFO insertion order per pool
	// for eviction-on-full (spec §4.2 rule 3).
	orderTrusted       []string
	orderOpportunistic []string

	macEvents       map[string][]macEvent
	macBackoffUntil map[string]time.Time
}

// New constructs a Registry with the given per-pool capacity (Nt = No = cap,
// spec §3 invariant 3).
func New(capacity int) *Registry {
	return &Registry{
		capTrusted:       capacity,
		capOpportunistic: capacity,
		trusted:          make(map[string]*model.Track),
		opportunistic:    make(map[string]*model.Track),
		macEvents:        make(map[string][]macEvent),
		macBackoffUntil:  make(map[string]time.Time),
	}
}

// Upsert admits or mutates a Track for obs, honoring admission rules. It
// returns the resulting track (nil if the observation was rejected/dropped)
// and whether the uid was newly created.
func (r *Registry) Upsert(obs model.Observation, now time.Time) (*model.Track, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if obs.UID == "" {
		return r.mutateByMACLocked(obs, now), false
	}

	if existing, p := r.findLocked(obs.UID); existing != nil {
		r.mutateLocked(existing, obs, now)
		if obs.EnrichmentSuccessHint && p == poolOpportunistic {
			r.promoteLocked(obs.UID, now)
		}
		return existing, false
	}

	if obs.Identity.MAC != "" && r.macBlockedLocked(obs.Identity.MAC, now) {
		log.Debug().Str("mac", obs.Identity.MAC).Msg("dragonsync: registry: admission rejected, MAC in backoff")
		return nil, false
	}
	if obs.Identity.MAC != "" {
		if blocked := r.recordMACEventLocked(obs.Identity.MAC, obs.UID, now); blocked {
			return nil, false
		}
	}

	// Every new uid is first admitted to the opportunistic pool (spec §4.2
	// rule 2); an EnrichmentSuccessHint then promotes it to trusted at once,
	// otherwise promotion waits for enrichment to succeed.
	if !r.admitLocked(poolOpportunistic) {
		return nil, false
	}

	track := newTrackFromObservation(obs, now)
	track.TrustLevel = model.TrustOpportunistic
	r.opportunistic[obs.UID] = track
	r.orderOpportunistic = append(r.orderOpportunistic, obs.UID)

	if obs.EnrichmentSuccessHint {
		r.promoteLocked(obs.UID, now)
	}

	return track, true
}

// Get returns the track for uid, or nil if absent.
func (r *Registry) Get(uid string) *model.Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, _ := r.findLocked(uid)
	return t.Clone()
}

// PromoteToTrusted moves uid from opportunistic to trusted after successful
// enrichment (spec §3 invariant 2, §4.2 rule 2). It is a no-op if uid is not
// currently opportunistic.
func (r *Registry) PromoteToTrusted(uid string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.promoteLocked(uid, now)
}

func (r *Registry) promoteLocked(uid string, now time.Time) bool {
	track, ok := r.opportunistic[uid]
	if !ok {
		return false
	}
	if !r.admitLocked(poolTrusted) {
		return false
	}
	delete(r.opportunistic, uid)
	r.orderOpportunistic = removeString(r.orderOpportunistic, uid)

	track.TrustLevel = model.TrustTrusted
	r.trusted[uid] = track
	r.orderTrusted = append(r.orderTrusted, uid)
	return true
}

// ApplyEnrichment writes res onto the live track for uid and promotes it to
// trusted, under a single lock so the promoted track and its enrichment data
// land on the same object (spec §3 invariant 2). It is a no-op if uid is not
// currently admitted.
func (r *Registry) ApplyEnrichment(uid string, res model.Enrichment, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	track, _ := r.findLocked(uid)
	if track == nil {
		return false
	}

	track.Enrichment = res
	r.promoteLocked(uid, now)
	return true
}

// Snapshot returns a deep copy of every track currently admitted.
func (r *Registry) Snapshot() []*model.Track {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*model.Track, 0, len(r.trusted)+len(r.opportunistic))
	for _, uid := range r.orderTrusted {
		if t, ok := r.trusted[uid]; ok {
			out = append(out, t.Clone())
		}
	}
	for _, uid := range r.orderOpportunistic {
		if t, ok := r.opportunistic[uid]; ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

// EvictInactive removes every track with now-LastUpdateTime > timeout and
// returns the evicted tracks (for the Dispatcher to emit terminal CoT and
// call Sink.MarkInactive before they are gone, per spec §4.2/§4.3).
func (r *Registry) EvictInactive(now time.Time, timeout time.Duration) []*model.Track {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []*model.Track

	r.orderTrusted, evicted = r.sweepLocked(r.trusted, r.orderTrusted, now, timeout, evicted)
	r.orderOpportunistic, evicted = r.sweepLocked(r.opportunistic, r.orderOpportunistic, now, timeout, evicted)

	return evicted
}

func (r *Registry) sweepLocked(pool map[string]*model.Track, order []string, now time.Time, timeout time.Duration, evicted []*model.Track) ([]string, []*model.Track) {
	kept := order[:0:0]
	for _, uid := range order {
		t, ok := pool[uid]
		if !ok {
			continue
		}
		if now.Sub(t.LastUpdateTime) > timeout {
			evicted = append(evicted, t.Clone())
			delete(pool, uid)
			continue
		}
		kept = append(kept, uid)
	}
	return kept, evicted
}

func (r *Registry) findLocked(uid string) (*model.Track, pool) {
	if t, ok := r.trusted[uid]; ok {
		return t, poolTrusted
	}
	if t, ok := r.opportunistic[uid]; ok {
		return t, poolOpportunistic
	}
	return nil, poolOpportunistic
}

// admitLocked returns true if there is room in the target pool, evicting the
// oldest FIFO member of that pool if it is full (spec §4.2 rule 3).
func (r *Registry) admitLocked(p pool) bool {
	switch p {
	case poolTrusted:
		limit := r.capTrusted
		if len(r.trusted) < limit {
			return true
		}
		if len(r.orderTrusted) == 0 {
			return false
		}
		oldest := r.orderTrusted[0]
		delete(r.trusted, oldest)
		r.orderTrusted = r.orderTrusted[1:]
		return true
	default:
		limit := r.capOpportunistic
		if len(r.opportunistic) < limit {
			return true
		}
		if len(r.orderOpportunistic) == 0 {
			return false
		}
		oldest := r.orderOpportunistic[0]
		delete(r.opportunistic, oldest)
		r.orderOpportunistic = r.orderOpportunistic[1:]
		return true
	}
}

func (r *Registry) mutateByMACLocked(obs model.Observation, now time.Time) *model.Track {
	if obs.Identity.MAC == "" {
		return nil
	}
	var match *model.Track
	count := 0
	for _, t := range r.trusted {
		if t.Identity.MAC == obs.Identity.MAC {
			match = t
			count++
		}
	}
	for _, t := range r.opportunistic {
		if t.Identity.MAC == obs.Identity.MAC {
			match = t
			count++
		}
	}
	if count != 1 {
		return nil
	}
	r.mutateLocked(match, obs, now)
	return match
}

func (r *Registry) mutateLocked(t *model.Track, obs model.Observation, now time.Time) {
	if obs.HasPosition {
		t.PrevPosition = t.Position
		t.HasPrevPosition = true
		t.Position = obs.Position
	}

	t.Kinematics.GroundSpeedMPS = obs.Kinematics.GroundSpeedMPS
	t.Kinematics.VerticalSpeedMPS = obs.Kinematics.VerticalSpeedMPS
	t.Kinematics.OnGround = obs.Kinematics.OnGround

	if obs.Kinematics.HasCourse {
		t.Kinematics.CourseDeg = obs.Kinematics.CourseDeg
		t.Kinematics.HasCourse = true
	} else if t.HasPrevPosition {
		t.Kinematics.CourseDeg = geo.Bearing(t.PrevPosition.Lat, t.PrevPosition.Lon, t.Position.Lat, t.Position.Lon)
		t.Kinematics.HasCourse = true
	}

	t.Identity.MAC = firstNonEmpty(obs.Identity.MAC, t.Identity.MAC)
	t.Identity.Callsign = firstNonEmpty(obs.Identity.Callsign, t.Identity.Callsign)
	t.Identity.AltID = firstNonEmpty(obs.Identity.AltID, t.Identity.AltID)
	t.Identity.Description = firstNonEmpty(obs.Identity.Description, t.Identity.Description)
	if obs.Identity.UATypeCode != 0 {
		t.Identity.UATypeCode = obs.Identity.UATypeCode
	}
	t.Identity.Category = firstNonEmpty(obs.Identity.Category, t.Identity.Category)

	t.Quality = obs.Quality

	if !obs.Auxiliary.PilotPosition.IsZero() {
		t.Auxiliary.PilotPosition = obs.Auxiliary.PilotPosition
	}
	if !obs.Auxiliary.HomePosition.IsZero() {
		t.Auxiliary.HomePosition = obs.Auxiliary.HomePosition
	}
	if obs.Auxiliary.FrequencyHz != 0 {
		t.Auxiliary.FrequencyHz = obs.Auxiliary.FrequencyHz
	}
	if obs.Auxiliary.BandwidthHz != 0 {
		t.Auxiliary.BandwidthHz = obs.Auxiliary.BandwidthHz
	}

	if obs.SeenBy != "" {
		t.SeenBy = obs.SeenBy
	}
	t.Partial = t.Partial || obs.Partial

	t.LastUpdateTime = now
}

func newTrackFromObservation(obs model.Observation, now time.Time) *model.Track {
	return &model.Track{
		Kind:           obs.Kind,
		UID:            obs.UID,
		Position:       obs.Position,
		Kinematics:     obs.Kinematics,
		Identity:       obs.Identity,
		Quality:        obs.Quality,
		Auxiliary:      obs.Auxiliary,
		SeenBy:         obs.SeenBy,
		Partial:        obs.Partial,
		CreatedAt:      now,
		LastUpdateTime: now,
	}
}

// macBlockedLocked reports whether mac is currently in backoff.
func (r *Registry) macBlockedLocked(mac string, now time.Time) bool {
	until, ok := r.macBackoffUntil[mac]
	return ok && now.Before(until)
}

// recordMACEventLocked prunes the sliding window, checks the spam threshold,
// and either admits (recording the event) or rejects+backs off. It returns
// true if the MAC was just placed into backoff and the observation must be
// rejected.
func (r *Registry) recordMACEventLocked(mac, uid string, now time.Time) bool {
	events := r.macEvents[mac]
	cutoff := now.Add(-macWindow)
	kept := events[:0:0]
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if ev.at.After(cutoff) {
			kept = append(kept, ev)
			seen[ev.uid] = struct{}{}
		}
	}

	if len(seen) >= macSpamThreshold {
		r.macBackoffUntil[mac] = now.Add(macBackoff)
		r.macEvents[mac] = kept
		log.Warn().Str("mac", mac).Int("distinct_uids", len(seen)).Msg("dragonsync: registry: MAC-spam guard engaged")
		return true
	}

	kept = append(kept, macEvent{at: now, uid: uid})
	r.macEvents[mac] = kept
	return false
}

func removeString(s []string, v string) []string {
	out := s[:0:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
