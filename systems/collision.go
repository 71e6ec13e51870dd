package systems

import (
	"math"
	"sort"

	"github.com/mlange-42/ark/ecs"

	"farspace/components"
	"farspace/events"
	"farspace/state"
)

// ContactKey packs an unordered entity pair into one 64-bit key with
// consistent min/max ordering, so both callback argument orders map
// to the same contact.
func ContactKey(a, b ecs.Entity) uint64 {
	lo, hi := a.ID(), b.ID()
	if lo > hi {
		lo, hi = hi, lo
	}
	return uint64(lo)<<32 | uint64(hi)
}

// contact tracks one colliding pair. Begin-contact callbacks
// accumulate in the staging map within a frame; the next update tick
// merges them into the active map and applies damage exactly once,
// however many fixture-level callbacks fired.
type contact struct {
	attacker ecs.Entity
	target   ecs.Entity

	refCount  int
	shieldHit bool
	normalX   float64
	normalY   float64

	// noResponse disables the physical contact response for pairs
	// involving self-destructing ordnance.
	noResponse bool
}

// CollisionSystem resolves damage, shield blocks, and removal
// semantics from begin/end contact events.
type CollisionSystem struct {
	bus    *events.Bus
	stream *Stream

	staged map[uint64]*contact
	active map[uint64]*contact

	healthMap *ecs.Map1[components.Health]
	damageMap *ecs.Map1[components.DamageSource]
	shieldMap *ecs.Map1[components.Shield]
	rotMap    *ecs.Map1[components.Rotation]
	ownerMap  *ecs.Map1[components.Owner]
	removeMap *ecs.Map1[components.RemoveOnCollision]

	removals []ecs.Entity

	// Counters for the last update.
	DamageEvents int
	Blocks       int
}

// NewCollisionSystem creates the resolver. stream drives block-chance
// rolls and must be the session-shared deterministic stream.
func NewCollisionSystem(w *ecs.World, bus *events.Bus, stream *Stream) *CollisionSystem {
	s := &CollisionSystem{
		bus:       bus,
		stream:    stream,
		staged:    make(map[uint64]*contact),
		active:    make(map[uint64]*contact),
		healthMap: ecs.NewMap1[components.Health](w),
		damageMap: ecs.NewMap1[components.DamageSource](w),
		shieldMap: ecs.NewMap1[components.Shield](w),
		rotMap:    ecs.NewMap1[components.Rotation](w),
		ownerMap:  ecs.NewMap1[components.Owner](w),
		removeMap: ecs.NewMap1[components.RemoveOnCollision](w),
	}
	events.Subscribe(bus, s.onBegin)
	events.Subscribe(bus, s.onEnd)
	return s
}

func (s *CollisionSystem) onBegin(ev events.CollisionBegin) {
	key := ContactKey(ev.A, ev.B)

	if c, ok := s.active[key]; ok {
		c.refCount++
		return
	}
	if c, ok := s.staged[key]; ok {
		c.refCount++
		if ev.ShieldHit && !c.shieldHit {
			c.shieldHit = true
			c.normalX = ev.NormalX
			c.normalY = ev.NormalY
		}
		return
	}

	attacker, target, ok := s.damageDirection(ev.A, ev.B)
	if !ok {
		// Neither direction can deal damage; not our contact.
		return
	}

	c := &contact{
		attacker: attacker,
		target:   target,
		refCount: 1,
	}
	if ev.ShieldHit {
		c.shieldHit = true
		c.normalX = ev.NormalX
		c.normalY = ev.NormalY
	}
	for _, e := range [2]ecs.Entity{ev.A, ev.B} {
		if s.removeMap.HasAll(e) {
			s.removals = append(s.removals, e)
			c.noResponse = true
		}
	}
	s.staged[key] = c
}

// damageDirection identifies the attacker and target of a pair.
// The lower entity id is tried first so the result never depends on
// callback argument order.
func (s *CollisionSystem) damageDirection(a, b ecs.Entity) (attacker, target ecs.Entity, ok bool) {
	if a.ID() > b.ID() {
		a, b = b, a
	}
	if s.damageMap.HasAll(a) && s.healthMap.HasAll(b) {
		return a, b, true
	}
	if s.damageMap.HasAll(b) && s.healthMap.HasAll(a) {
		return b, a, true
	}
	return ecs.Entity{}, ecs.Entity{}, false
}

func (s *CollisionSystem) onEnd(ev events.CollisionEnd) {
	key := ContactKey(ev.A, ev.B)
	if c, ok := s.staged[key]; ok {
		c.refCount--
		if c.refCount <= 0 {
			delete(s.staged, key)
		}
		return
	}
	if c, ok := s.active[key]; ok {
		c.refCount--
		if c.refCount <= 0 {
			delete(s.active, key)
		}
	}
}

// Forget purges every contact involving an entity, staged or active.
// Destroying an entity mid-contact skips the end callbacks, and entity
// ids recycle, so a leftover pair would shadow future contacts under
// the same key forever.
func (s *CollisionSystem) Forget(e ecs.Entity) {
	id := uint64(e.ID())
	for key := range s.staged {
		if key>>32 == id || key&0xffffffff == id {
			delete(s.staged, key)
		}
	}
	for key := range s.active {
		if key>>32 == id || key&0xffffffff == id {
			delete(s.active, key)
		}
	}
}

// Update merges this frame's staged contacts into the active map and
// applies the one logical damage event per newly colliding pair.
// Merge order is sorted by key so block-chance rolls consume the
// stream identically on every peer.
func (s *CollisionSystem) Update() {
	s.DamageEvents = 0
	s.Blocks = 0

	if len(s.staged) == 0 {
		return
	}
	keys := make([]uint64, 0, len(s.staged))
	for key := range s.staged {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, key := range keys {
		c := s.staged[key]
		delete(s.staged, key)
		s.active[key] = c
		s.resolve(c)
	}
}

func (s *CollisionSystem) resolve(c *contact) {
	if s.tryBlock(c) {
		s.Blocks++
		events.Publish(s.bus, events.ShieldBlocked{Target: c.target, Attacker: c.attacker})
		return
	}
	src := s.damageMap.Get(c.attacker)
	if src == nil {
		return
	}
	s.DamageEvents++
	events.Publish(s.bus, events.DamageReceived{
		Target:     c.target,
		Source:     s.rootOwner(c.attacker),
		Attributes: src.Attributes,
	})
}

// tryBlock checks whether the target's shield negates the hit. It
// requires a shield fixture strike, active shields, a nonzero block
// chance, and the contact normal within the shield's angular
// coverage; the chance itself is a further random roll.
func (s *CollisionSystem) tryBlock(c *contact) bool {
	if !c.shieldHit {
		return false
	}
	shield := s.shieldMap.Get(c.target)
	if shield == nil || !shield.Active || shield.BlockChance <= 0 {
		return false
	}
	rot := s.rotMap.Get(c.target)
	if rot == nil {
		return false
	}
	normalAngle := math.Atan2(c.normalY, c.normalX)
	if math.Abs(normalizeAngle(normalAngle-rot.Heading)) > shield.Coverage {
		return false
	}
	return s.stream.Float64() < shield.BlockChance
}

// rootOwner walks the ownership chain to its end. The chain is
// bounded in practice; the depth cap only guards against cycles.
func (s *CollisionSystem) rootOwner(e ecs.Entity) ecs.Entity {
	for depth := 0; depth < 32; depth++ {
		owner := s.ownerMap.Get(e)
		if owner == nil {
			break
		}
		e = owner.Parent
	}
	return e
}

// TakeRemovals returns the entities marked for deferred removal and
// clears the list. The orchestrator destroys them after the update.
func (s *CollisionSystem) TakeRemovals() []ecs.Entity {
	out := s.removals
	s.removals = nil
	return out
}

// ResponseDisabled reports whether the physical contact response is
// suppressed for a pair.
func (s *CollisionSystem) ResponseDisabled(a, b ecs.Entity) bool {
	key := ContactKey(a, b)
	if c, ok := s.active[key]; ok {
		return c.noResponse
	}
	if c, ok := s.staged[key]; ok {
		return c.noResponse
	}
	return false
}

// ActiveContacts returns the number of persisting contacts.
func (s *CollisionSystem) ActiveContacts() int {
	return len(s.active)
}

// Packetize writes the active contact map in sorted key order. The
// staging map is intra-frame transient and always empty at packet
// boundaries.
func (s *CollisionSystem) Packetize(w *state.Writer) {
	keys := make([]uint64, 0, len(s.active))
	for key := range s.active {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	w.PutInt(len(keys))
	for _, key := range keys {
		c := s.active[key]
		w.PutUint64(key)
		w.PutInt(c.refCount)
		w.PutBool(c.shieldHit)
		w.PutFloat64(c.normalX)
		w.PutFloat64(c.normalY)
		w.PutBool(c.noResponse)
	}
}

// Depacketize restores the active contact map. Restored contacts are
// post-merge; their damage already applied, so the pair handles are
// not needed again.
func (s *CollisionSystem) Depacketize(r *state.Reader) error {
	clear(s.active)
	n := r.Int()
	for i := 0; i < n; i++ {
		key := r.Uint64()
		s.active[key] = &contact{
			refCount:   r.Int(),
			shieldHit:  r.Bool(),
			normalX:    r.Float64(),
			normalY:    r.Float64(),
			noResponse: r.Bool(),
		}
	}
	return r.Err()
}

// normalizeAngle wraps an angle to [-π, π].
func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
