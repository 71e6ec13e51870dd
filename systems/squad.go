package systems

import (
	"fmt"
	"math"
	"sort"

	"github.com/mlange-42/ark/ecs"

	"farspace/components"
	"farspace/state"
)

// squad is one live group. Member 0 is the leader.
type squad struct {
	id        uint32
	members   []ecs.Entity
	formation FormationType
	spacing   float64
	cache     *FormationCache
}

// SquadEngine groups ships into squads and lays members out in
// formation around the leader. Every entity belongs to exactly one
// squad at all times; ungrouped entities hold an identity squad of
// size one. Squad ids come from a reusable pool so long sessions do
// not leak id space.
type SquadEngine struct {
	memberMap *ecs.Map1[components.SquadMember]
	posMap    *ecs.Map1[components.Position]
	rotMap    *ecs.Map1[components.Rotation]

	squads  map[uint32]*squad
	byEnt   map[ecs.Entity]uint32
	freeIDs []uint32
	nextID  uint32

	// raw member ids held between Depacketize and RebindMembers
	pending map[uint32][]uint32

	spacing float64
}

// NewSquadEngine creates the engine with a default member spacing in
// world units.
func NewSquadEngine(w *ecs.World, spacing float64) *SquadEngine {
	return &SquadEngine{
		memberMap: ecs.NewMap1[components.SquadMember](w),
		posMap:    ecs.NewMap1[components.Position](w),
		rotMap:    ecs.NewMap1[components.Rotation](w),
		squads:    make(map[uint32]*squad),
		byEnt:     make(map[ecs.Entity]uint32),
		nextID:    1,
		spacing:   spacing,
	}
}

func (s *SquadEngine) allocID() uint32 {
	if n := len(s.freeIDs); n > 0 {
		id := s.freeIDs[n-1]
		s.freeIDs = s.freeIDs[:n-1]
		return id
	}
	id := s.nextID
	s.nextID++
	return id
}

func (s *SquadEngine) freeID(id uint32) {
	s.freeIDs = append(s.freeIDs, id)
}

// Register gives an entity its identity squad and returns the squad
// id. Registering an entity that already has a squad is a no-op.
func (s *SquadEngine) Register(e ecs.Entity) uint32 {
	if id, ok := s.byEnt[e]; ok {
		return id
	}
	id := s.allocID()
	sq := &squad{
		id:        id,
		members:   []ecs.Entity{e},
		formation: FormationLine,
		spacing:   s.spacing,
		cache:     NewFormationCache(FormationLine),
	}
	s.squads[id] = sq
	s.byEnt[e] = id
	s.tagMember(e, id)
	return id
}

// AddToSquad moves an entity into an existing squad, leaving its
// previous squad first. The previous squad's id returns to the pool
// if the move empties it.
func (s *SquadEngine) AddToSquad(squadID uint32, e ecs.Entity) error {
	sq, ok := s.squads[squadID]
	if !ok {
		return fmt.Errorf("squad %d: not found", squadID)
	}
	if cur, ok := s.byEnt[e]; ok {
		if cur == squadID {
			return nil
		}
		s.leave(e, cur)
	}
	sq.members = append(sq.members, e)
	s.byEnt[e] = squadID
	s.tagMember(e, squadID)
	return nil
}

// Remove pulls an entity out of its squad into a fresh identity
// squad. Removing the sole member of a squad is a no-op: it is
// already the identity form. Removing the leader promotes the last
// member to slot 0.
func (s *SquadEngine) Remove(e ecs.Entity) {
	id, ok := s.byEnt[e]
	if !ok {
		return
	}
	sq := s.squads[id]
	if len(sq.members) == 1 {
		return
	}
	s.leave(e, id)
	fresh := s.allocID()
	s.squads[fresh] = &squad{
		id:        fresh,
		members:   []ecs.Entity{e},
		formation: FormationLine,
		spacing:   s.spacing,
		cache:     NewFormationCache(FormationLine),
	}
	s.byEnt[e] = fresh
	s.tagMember(e, fresh)
}

// Drop forgets an entity entirely, for use when the entity itself is
// being destroyed.
func (s *SquadEngine) Drop(e ecs.Entity) {
	id, ok := s.byEnt[e]
	if !ok {
		return
	}
	s.leave(e, id)
	delete(s.byEnt, e)
}

// leave swap-removes e from squad id, promoting the last member to
// the leader slot when the leader leaves, and retires the squad when
// it empties.
func (s *SquadEngine) leave(e ecs.Entity, id uint32) {
	sq := s.squads[id]
	for i, m := range sq.members {
		if m != e {
			continue
		}
		last := len(sq.members) - 1
		sq.members[i] = sq.members[last]
		sq.members = sq.members[:last]
		break
	}
	if len(sq.members) == 0 {
		delete(s.squads, id)
		s.freeID(id)
	}
}

func (s *SquadEngine) tagMember(e ecs.Entity, id uint32) {
	if s.memberMap.HasAll(e) {
		s.memberMap.Get(e).SquadID = id
		return
	}
	s.memberMap.Add(e, &components.SquadMember{SquadID: id})
}

// SquadOf returns the squad id an entity belongs to.
func (s *SquadEngine) SquadOf(e ecs.Entity) (uint32, bool) {
	id, ok := s.byEnt[e]
	return id, ok
}

// Leader returns the entity in slot 0 of a squad.
func (s *SquadEngine) Leader(squadID uint32) (ecs.Entity, bool) {
	sq, ok := s.squads[squadID]
	if !ok {
		return ecs.Entity{}, false
	}
	return sq.members[0], true
}

// Size returns the member count of a squad.
func (s *SquadEngine) Size(squadID uint32) int {
	sq, ok := s.squads[squadID]
	if !ok {
		return 0
	}
	return len(sq.members)
}

// SetFormation switches a squad's shape, resetting the offset cache.
func (s *SquadEngine) SetFormation(squadID uint32, ft FormationType) error {
	sq, ok := s.squads[squadID]
	if !ok {
		return fmt.Errorf("squad %d: not found", squadID)
	}
	if sq.formation == ft {
		return nil
	}
	sq.formation = ft
	sq.cache = NewFormationCache(ft)
	return nil
}

// SetSpacing sets the member spacing of one squad in world units.
func (s *SquadEngine) SetSpacing(squadID uint32, spacing float64) error {
	sq, ok := s.squads[squadID]
	if !ok {
		return fmt.Errorf("squad %d: not found", squadID)
	}
	sq.spacing = spacing
	return nil
}

// ComputeFormationOffset returns the world position an entity should
// hold in its squad's formation: the cached unit offset for its
// rank, rotated into the leader's heading, scaled by spacing and
// translated to the leader. The leader's own slot is its position.
func (s *SquadEngine) ComputeFormationOffset(squadID uint32, e ecs.Entity) (float64, float64, error) {
	sq, ok := s.squads[squadID]
	if !ok {
		return 0, 0, fmt.Errorf("squad %d: not found", squadID)
	}
	rank := -1
	for i, m := range sq.members {
		if m == e {
			rank = i
			break
		}
	}
	if rank < 0 {
		return 0, 0, fmt.Errorf("squad %d: entity is not a member", squadID)
	}

	leader := sq.members[0]
	pos := s.posMap.Get(leader)
	heading := 0.0
	if s.rotMap.HasAll(leader) {
		heading = s.rotMap.Get(leader).Heading
	}

	off := sq.cache.At(rank)
	sin, cos := math.Sincos(heading)
	x := pos.X + sq.spacing*(off.X*cos-off.Y*sin)
	y := pos.Y + sq.spacing*(off.X*sin+off.Y*cos)
	return x, y, nil
}

// Packetize writes the squad tables in ascending squad id order,
// members by raw entity id.
func (s *SquadEngine) Packetize(w *state.Writer) {
	ids := make([]uint32, 0, len(s.squads))
	for id := range s.squads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	w.PutUint64(uint64(s.nextID))
	w.PutInt(len(s.freeIDs))
	free := append([]uint32(nil), s.freeIDs...)
	sort.Slice(free, func(i, j int) bool { return free[i] < free[j] })
	for _, id := range free {
		w.PutUint64(uint64(id))
	}
	w.PutInt(len(ids))
	for _, id := range ids {
		sq := s.squads[id]
		w.PutUint64(uint64(id))
		w.PutUint64(uint64(sq.formation))
		w.PutFloat64(sq.spacing)
		w.PutInt(len(sq.members))
		for _, m := range sq.members {
			w.PutUint64(uint64(m.ID()))
		}
	}
}

// Depacketize restores squad structure. Member entity handles are
// re-bound afterwards via RebindMembers, since raw ids do not carry
// generation counts.
func (s *SquadEngine) Depacketize(r *state.Reader) error {
	next := uint32(r.Uint64())
	free := make([]uint32, r.Int())
	for i := range free {
		free[i] = uint32(r.Uint64())
	}
	n := r.Int()
	if err := r.Err(); err != nil {
		return err
	}
	squads := make(map[uint32]*squad, n)
	pending := make(map[uint32][]uint32, n)
	for i := 0; i < n; i++ {
		id := uint32(r.Uint64())
		ft := FormationType(r.Uint64())
		spacing := r.Float64()
		raw := make([]uint32, r.Int())
		for j := range raw {
			raw[j] = uint32(r.Uint64())
		}
		if err := r.Err(); err != nil {
			return err
		}
		squads[id] = &squad{
			id:        id,
			formation: ft,
			spacing:   spacing,
			cache:     NewFormationCache(ft),
		}
		pending[id] = raw
	}
	s.nextID = next
	s.freeIDs = free
	s.squads = squads
	s.byEnt = make(map[ecs.Entity]uint32)
	s.pending = pending
	return r.Err()
}

// RebindMembers resolves the raw member ids captured by Depacketize
// back into live entity handles using the caller's id lookup. Members
// that no longer resolve are dropped; a squad emptied this way
// retires its id. A snapshot restored into a fresh world starts with
// no squads and rebuilds them as cells reactivate.
func (s *SquadEngine) RebindMembers(resolve func(uint32) (ecs.Entity, bool)) {
	ids := make([]uint32, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		sq := s.squads[id]
		sq.members = sq.members[:0]
		for _, rid := range s.pending[id] {
			e, ok := resolve(rid)
			if !ok {
				continue
			}
			sq.members = append(sq.members, e)
			s.byEnt[e] = id
		}
		if len(sq.members) == 0 {
			delete(s.squads, id)
			s.freeID(id)
		}
	}
	s.pending = nil
}
