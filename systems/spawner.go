package systems

import (
	"log/slog"
	"math"

	"github.com/mlange-42/ark/ecs"

	"farspace/components"
	"farspace/config"
	"farspace/events"
	"farspace/state"
)

// Baseline ship stats. Attributes scale with the owning cell's tech
// level at spawn time.
const (
	shipMass   = 10.0
	shipRadius = 4.0
	shipHealth = 100.0
	shipDamage = 10.0

	// launch speed of escorts a station sends against a target
	escortSpeed = 25.0
)

// spawnEntry schedules the remaining ship batches of one active
// cell. Each entry carries its own stream so batch composition does
// not depend on how entries interleave in the queue.
type spawnEntry struct {
	cell    CellID
	batches int
	stream  *Stream
}

// SpawnScheduler populates active cells with ship squads over time
// instead of all at once. Cell activation enqueues a budget of
// batches; every tick at most one entry runs one batch, preferring
// cells that contain an avatar so nearby space fills in first.
// Station entities with a ShipSpawner component additionally fire on
// their own cooldown.
type SpawnScheduler struct {
	worldSeed int64
	cfg       config.SpawningConfig

	bus      *events.Bus
	index    *SpatialIndex
	universe *Universe
	squads   *SquadEngine
	logger   *slog.Logger

	queue []*spawnEntry

	// stations draw from one scheduler-wide stream; firing order is
	// fixed by system order, so the sequence stays replicable.
	stationStream *Stream

	shipMapper  *ecs.Map7[components.Position, components.Velocity, components.Rotation, components.Body, components.Meta, components.Faction, components.Health]
	extraMapper *ecs.Map5[components.Force, components.Gravitation, components.DamageSource, components.ShipControl, components.CellBound]
	posMap      *ecs.Map1[components.Position]
	velMap      *ecs.Map1[components.Velocity]
	controlMap  *ecs.Map1[components.ShipControl]

	spawnerFilter *ecs.Filter3[components.ShipSpawner, components.Position, components.Faction]

	// Spawned counts ships created since the counter was last read.
	Spawned int
}

// NewSpawnScheduler creates the scheduler and subscribes it to cell
// state changes.
func NewSpawnScheduler(w *ecs.World, bus *events.Bus, index *SpatialIndex, universe *Universe, squads *SquadEngine, cfg *config.Config, logger *slog.Logger) *SpawnScheduler {
	s := &SpawnScheduler{
		worldSeed:     cfg.Simulation.WorldSeed,
		cfg:           cfg.Spawning,
		bus:           bus,
		index:         index,
		universe:      universe,
		squads:        squads,
		logger:        logger,
		stationStream: NewWorldStream(cfg.Simulation.WorldSeed).Fork("stations"),
		shipMapper:    ecs.NewMap7[components.Position, components.Velocity, components.Rotation, components.Body, components.Meta, components.Faction, components.Health](w),
		extraMapper:   ecs.NewMap5[components.Force, components.Gravitation, components.DamageSource, components.ShipControl, components.CellBound](w),
		posMap:        ecs.NewMap1[components.Position](w),
		velMap:        ecs.NewMap1[components.Velocity](w),
		controlMap:    ecs.NewMap1[components.ShipControl](w),
		spawnerFilter: ecs.NewFilter3[components.ShipSpawner, components.Position, components.Faction](w),
	}
	events.Subscribe(bus, func(ev events.CellStateChanged) {
		s.onCellStateChanged(ev)
	})
	return s
}

func (s *SpawnScheduler) onCellStateChanged(ev events.CellStateChanged) {
	if ev.Resolution != components.CellCoarse {
		return
	}
	id := CellID(ev.Cell)
	if !ev.Activated {
		s.cancel(id)
		return
	}
	s.queue = append(s.queue, &spawnEntry{
		cell:    id,
		batches: s.cfg.BatchesPerCell,
		stream:  NewStream(s.worldSeed, id).Fork("spawn"),
	})
}

// cancel drops every queued entry for a cell. Ships already spawned
// are cleaned up by cell death, not here.
func (s *SpawnScheduler) cancel(id CellID) {
	kept := s.queue[:0]
	for _, e := range s.queue {
		if e.cell != id {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(s.queue); i++ {
		s.queue[i] = nil
	}
	s.queue = kept
}

// QueueLen returns the number of pending entries.
func (s *SpawnScheduler) QueueLen() int { return len(s.queue) }

// Update runs at most one batch and ticks station spawners. avatars
// are the player positions used for cell preference.
func (s *SpawnScheduler) Update(w *ecs.World, avatars []components.Position) {
	s.runBatch(avatars)
	s.tickStations(w)
}

func (s *SpawnScheduler) runBatch(avatars []components.Position) {
	if len(s.queue) == 0 {
		return
	}
	pick := 0
	for i, e := range s.queue {
		if s.cellHasAvatar(e.cell, avatars) {
			pick = i
			break
		}
	}
	entry := s.queue[pick]
	s.queue = append(s.queue[:pick], s.queue[pick+1:]...)

	s.spawnBatch(entry)
	entry.batches--
	if entry.batches > 0 {
		s.queue = append(s.queue, entry)
	}
}

func (s *SpawnScheduler) cellHasAvatar(id CellID, avatars []components.Position) bool {
	for _, p := range avatars {
		if CellAt(p.X, p.Y) == id {
			return true
		}
	}
	return false
}

// spawnBatch creates one squad of ships inside the entry's cell,
// drawing every variate from the entry's own stream.
func (s *SpawnScheduler) spawnBatch(entry *spawnEntry) {
	info, ok := s.universe.CellInfoFor(entry.cell)
	if !ok {
		return
	}
	minX, minY, maxX, maxY := CellBounds(entry.cell, CellSize)
	heading := entry.stream.Angle()
	baseX := entry.stream.Range(minX, maxX)
	baseY := entry.stream.Range(minY, maxY)

	var squadID uint32
	for i := 0; i < s.cfg.ShipsPerBatch; i++ {
		e := s.spawnShip(entry.cell, info, baseX, baseY, heading)
		if i == 0 {
			squadID = s.squads.Register(e)
			continue
		}
		if err := s.squads.AddToSquad(squadID, e); err != nil {
			s.logger.Error("squad assignment failed", "squad", squadID, "error", err)
			continue
		}
		if x, y, err := s.squads.ComputeFormationOffset(squadID, e); err == nil {
			pos := s.posMap.Get(e)
			pos.X, pos.Y = x, y
			s.index.Move(e, x, y)
		}
	}
}

func (s *SpawnScheduler) spawnShip(cell CellID, info *CellInfo, x, y, heading float64) ecs.Entity {
	attrs := components.Attributes{
		Damage:     shipDamage * float64(info.TechLevel()+1),
		CritChance: 0.05 * float64(info.TechLevel()),
		CritDamage: 2,
	}
	e := s.shipMapper.NewEntity(
		&components.Position{X: x, Y: y},
		&components.Velocity{},
		&components.Rotation{Heading: heading},
		&components.Body{Mass: shipMass, Radius: shipRadius},
		&components.Meta{Kind: components.KindShip},
		&components.Faction{ID: info.Faction().ID},
		&components.Health{Value: shipHealth, Max: shipHealth},
	)
	s.extraMapper.Add(e,
		&components.Force{},
		&components.Gravitation{Kind: components.Attractee, Mass: shipMass},
		&components.DamageSource{Attributes: attrs},
		&components.ShipControl{},
		&components.CellBound{Resolution: components.CellCoarse},
	)
	s.index.Insert(e, x, y, GroupCellDeath)
	s.index.Insert(e, x, y, GroupGravitation)
	s.index.Insert(e, x, y, GroupRadar)
	s.Spawned++
	events.Publish(s.bus, events.ShipSpawned{
		Entity:  e,
		Cell:    events.CellID(cell),
		Faction: info.Faction(),
	})
	return e
}

// tickStations decrements every station spawner cooldown and fires
// the ones that reach zero. Entity creation happens after the query
// closes.
func (s *SpawnScheduler) tickStations(w *ecs.World) {
	type firing struct {
		pos     components.Position
		faction uint8
		cell    CellID
		targets []ecs.Entity
	}
	var due []firing

	query := s.spawnerFilter.Query()
	for query.Next() {
		spawner, pos, faction := query.Get()
		spawner.Cooldown--
		if spawner.Cooldown > 0 {
			continue
		}
		spawner.Cooldown = spawner.Interval
		due = append(due, firing{
			pos:     *pos,
			faction: faction.ID,
			cell:    CellAt(pos.X, pos.Y),
			targets: append([]ecs.Entity(nil), spawner.Targets...),
		})
	}

	for _, f := range due {
		info, ok := s.universe.CellInfoFor(f.cell)
		if !ok {
			continue
		}
		heading := s.stationStream.Angle()
		x := f.pos.X + s.stationStream.Range(-s.cfg.SquadSpacing, s.cfg.SquadSpacing)
		y := f.pos.Y + s.stationStream.Range(-s.cfg.SquadSpacing, s.cfg.SquadSpacing)

		// A station with linked allied stations sends the squad against
		// one of them instead of drifting off at the random heading.
		target, aimed := s.pickTarget(w, f.targets)
		if aimed {
			tp := s.posMap.Get(target)
			heading = math.Atan2(tp.Y-y, tp.X-x)
		}

		var squadID uint32
		for i := 0; i < s.cfg.ShipsPerBatch; i++ {
			e := s.spawnShip(f.cell, info, x, y, heading)
			if aimed {
				s.launch(e, heading)
			}
			if i == 0 {
				squadID = s.squads.Register(e)
				continue
			}
			if err := s.squads.AddToSquad(squadID, e); err != nil {
				s.logger.Error("squad assignment failed", "squad", squadID, "error", err)
			}
		}
	}
}

// pickTarget selects one live target from the station's link list.
// Dead targets are skipped in list order so the draw stays replicable.
func (s *SpawnScheduler) pickTarget(w *ecs.World, targets []ecs.Entity) (ecs.Entity, bool) {
	live := make([]ecs.Entity, 0, len(targets))
	for _, t := range targets {
		if w.Alive(t) {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return ecs.Entity{}, false
	}
	return live[s.stationStream.IntN(len(live))], true
}

// launch sets an escort moving along its heading. Accelerating
// suppresses gravity docking for the transit.
func (s *SpawnScheduler) launch(e ecs.Entity, heading float64) {
	sin, cos := math.Sincos(heading)
	vel := s.velMap.Get(e)
	vel.X = escortSpeed * cos
	vel.Y = escortSpeed * sin
	s.controlMap.Get(e).Accelerating = true
}

// Packetize writes the queue in order plus the station stream state.
func (s *SpawnScheduler) Packetize(w *state.Writer) {
	for _, word := range s.stationStream.State() {
		w.PutUint64(word)
	}
	w.PutInt(len(s.queue))
	for _, e := range s.queue {
		w.PutUint64(uint64(e.cell))
		w.PutInt(e.batches)
		for _, word := range e.stream.State() {
			w.PutUint64(word)
		}
	}
}

// Depacketize restores the queue and stream states.
func (s *SpawnScheduler) Depacketize(r *state.Reader) error {
	var st [4]uint64
	for i := range st {
		st[i] = r.Uint64()
	}
	s.stationStream.SetState(st)
	n := r.Int()
	if err := r.Err(); err != nil {
		return err
	}
	s.queue = s.queue[:0]
	for i := 0; i < n; i++ {
		e := &spawnEntry{
			cell:    CellID(r.Uint64()),
			batches: r.Int(),
			stream:  &Stream{},
		}
		var es [4]uint64
		for j := range es {
			es[j] = r.Uint64()
		}
		e.stream.SetState(es)
		s.queue = append(s.queue, e)
	}
	return r.Err()
}
