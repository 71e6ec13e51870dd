package systems

import (
	"math"
	"sort"

	"github.com/mlange-42/ark/ecs"

	"farspace/components"
	"farspace/events"
)

// contactSearchPad bounds the radius of the largest body a damage
// source can touch. Bodies larger than this are attractors, which do
// not take contact damage.
const contactSearchPad = 64.0

// ContactSensor detects circle overlaps between damage-capable
// entities and their surroundings, publishing begin and end contact
// events. Only pairs with at least one DamageSource are tracked; the
// rest can never produce damage and would only inflate the pair map.
type ContactSensor struct {
	sourceFilter *ecs.Filter3[components.Position, components.Body, components.DamageSource]

	posMap    *ecs.Map1[components.Position]
	bodyMap   *ecs.Map1[components.Body]
	shieldMap *ecs.Map1[components.Shield]

	index *SpatialIndex
	bus   *events.Bus

	// overlapping pairs from the previous update, by contact key
	touching map[uint64][2]ecs.Entity

	neighbors []ecs.Entity
	seen      map[uint64]struct{}
}

// NewContactSensor creates the sensor.
func NewContactSensor(w *ecs.World, bus *events.Bus, index *SpatialIndex) *ContactSensor {
	return &ContactSensor{
		sourceFilter: ecs.NewFilter3[components.Position, components.Body, components.DamageSource](w),
		posMap:       ecs.NewMap1[components.Position](w),
		bodyMap:      ecs.NewMap1[components.Body](w),
		shieldMap:    ecs.NewMap1[components.Shield](w),
		index:        index,
		bus:          bus,
		touching:     make(map[uint64][2]ecs.Entity),
		seen:         make(map[uint64]struct{}),
	}
}

// Update sweeps all damage sources for overlaps and emits the delta
// against the previous tick as begin/end events.
func (s *ContactSensor) Update(w *ecs.World) {
	clear(s.seen)

	query := s.sourceFilter.Query()
	for query.Next() {
		pos, body, _ := query.Get()
		e := query.Entity()

		s.neighbors = s.index.FindRadius(s.neighbors[:0], pos.X, pos.Y, body.Radius+contactSearchPad, GroupRadar)
		for _, other := range s.neighbors {
			if other == e || !s.bodyMap.HasAll(other) {
				continue
			}
			key := ContactKey(e, other)
			if _, dup := s.seen[key]; dup {
				continue
			}
			oPos := s.posMap.Get(other)
			oBody := s.bodyMap.Get(other)
			dx := oPos.X - pos.X
			dy := oPos.Y - pos.Y
			reach := body.Radius + oBody.Radius
			if dx*dx+dy*dy >= reach*reach {
				continue
			}
			s.seen[key] = struct{}{}
			if _, held := s.touching[key]; held {
				continue
			}
			s.touching[key] = [2]ecs.Entity{e, other}
			s.begin(e, other, dx, dy)
		}
	}

	// Pairs that stopped overlapping end in sorted key order.
	var ended []uint64
	for key := range s.touching {
		if _, still := s.seen[key]; !still {
			ended = append(ended, key)
		}
	}
	sort.Slice(ended, func(i, j int) bool { return ended[i] < ended[j] })
	for _, key := range ended {
		pair := s.touching[key]
		delete(s.touching, key)
		events.Publish(s.bus, events.CollisionEnd{A: pair[0], B: pair[1]})
	}
}

// begin publishes the begin event. When one side carries a shield the
// contact normal points from the shielded body toward the other, the
// direction tryBlock compares against the heading.
func (s *ContactSensor) begin(a, b ecs.Entity, dx, dy float64) {
	ev := events.CollisionBegin{A: a, B: b}

	shielded := ecs.Entity{}
	switch {
	case s.shieldMap.HasAll(a) && s.shieldMap.HasAll(b):
		if a.ID() < b.ID() {
			shielded = a
		} else {
			shielded = b
		}
	case s.shieldMap.HasAll(a):
		shielded = a
	case s.shieldMap.HasAll(b):
		shielded = b
	}
	if shielded != (ecs.Entity{}) {
		nx, ny := dx, dy
		if shielded == b {
			nx, ny = -dx, -dy
		}
		if d := math.Hypot(nx, ny); d > 0 {
			ev.ShieldHit = true
			ev.NormalX = nx / d
			ev.NormalY = ny / d
		}
	}
	events.Publish(s.bus, ev)
}

// Forget drops an entity's pairs without end events, for use when the
// entity is destroyed rather than separated.
func (s *ContactSensor) Forget(e ecs.Entity) {
	for key, pair := range s.touching {
		if pair[0] == e || pair[1] == e {
			delete(s.touching, key)
		}
	}
}
