package systems

import (
	"log/slog"
	"math"
	"sort"

	"github.com/mlange-42/ark/ecs"
	opensimplex "github.com/ojrac/opensimplex-go"
	"gonum.org/v1/gonum/stat/distuv"

	"farspace/components"
	"farspace/config"
	"farspace/events"
	"farspace/state"
)

// originMoonCounts is the fixed per-planet moon count list of the
// home system at cell (0,0). Every other cell samples its layout.
var originMoonCounts = [7]int{0, 0, 1, 2, 4, 2, 1}

// CellInfo is the persistent metadata of a coarse cell. A non-dirty
// info is discardable and regenerates byte-for-byte from the world
// seed and cell id; a dirty one must be persisted.
type CellInfo struct {
	cell      CellID
	faction   components.Faction
	techLevel uint8
	stations  []ecs.Entity
	dirty     bool
}

// Cell returns the cell this info belongs to.
func (ci *CellInfo) Cell() CellID { return ci.cell }

// Faction returns the owning faction.
func (ci *CellInfo) Faction() components.Faction { return ci.faction }

// TechLevel returns the cell's tech level.
func (ci *CellInfo) TechLevel() uint8 { return ci.techLevel }

// Stations returns the station entities of the cell.
func (ci *CellInfo) Stations() []ecs.Entity { return ci.stations }

// Dirty reports whether the info deviates from its procedural
// baseline.
func (ci *CellInfo) Dirty() bool { return ci.dirty }

// SetFaction overrides the owning faction and marks the info dirty.
func (ci *CellInfo) SetFaction(f components.Faction) {
	ci.faction = f
	ci.dirty = true
}

// SetTechLevel overrides the tech level and marks the info dirty.
func (ci *CellInfo) SetTechLevel(level uint8) {
	ci.techLevel = level
	ci.dirty = true
}

// addStation records a station created by generation. Part of the
// procedural baseline, so it does not dirty the info.
func (ci *CellInfo) addStation(e ecs.Entity) {
	ci.stations = append(ci.stations, e)
}

// clearStations drops the station list. The station entities
// themselves are destroyed by cell-death cleanup.
func (ci *CellInfo) clearStations() {
	ci.stations = nil
}

// CellStore persists dirty cell records between sessions.
type CellStore interface {
	SaveCell(state.CellRecord) error
	LoadCell(cell uint64) (state.CellRecord, bool, error)
}

// Universe procedurally creates solar systems, stations, and
// asteroid fields when cells activate, and retains only the
// deviations from the procedural baseline when they die.
type Universe struct {
	worldSeed     int64
	cfg           config.UniverseConfig
	spawnCfg      config.SpawningConfig
	spawnerFrames int32

	bus    *events.Bus
	index  *SpatialIndex
	grid   *CellGrid
	store  CellStore
	logger *slog.Logger

	infos map[CellID]*CellInfo

	sunMapper      *ecs.Map5[components.Position, components.Body, components.Meta, components.Gravitation, components.CellBound]
	orbitMapper    *ecs.Map6[components.Position, components.Body, components.Meta, components.Orbit, components.Gravitation, components.CellBound]
	stationMapper  *ecs.Map7[components.Position, components.Body, components.Meta, components.Faction, components.Health, components.ShipSpawner, components.CellBound]
	asteroidMapper *ecs.Map4[components.Position, components.Body, components.Meta, components.CellBound]

	spawnerMap *ecs.Map1[components.ShipSpawner]
}

// NewUniverse creates the generator and subscribes it to cell state
// changes. store may be nil for purely in-memory sessions.
func NewUniverse(w *ecs.World, bus *events.Bus, index *SpatialIndex, grid *CellGrid, cfg *config.Config, store CellStore, logger *slog.Logger) *Universe {
	u := &Universe{
		worldSeed:     cfg.Simulation.WorldSeed,
		cfg:           cfg.Universe,
		spawnCfg:      cfg.Spawning,
		spawnerFrames: cfg.Derived.SpawnerFrames,
		bus:           bus,
		index:         index,
		grid:          grid,
		store:         store,
		logger:        logger,
		infos:          make(map[CellID]*CellInfo),
		sunMapper:      ecs.NewMap5[components.Position, components.Body, components.Meta, components.Gravitation, components.CellBound](w),
		orbitMapper:    ecs.NewMap6[components.Position, components.Body, components.Meta, components.Orbit, components.Gravitation, components.CellBound](w),
		stationMapper:  ecs.NewMap7[components.Position, components.Body, components.Meta, components.Faction, components.Health, components.ShipSpawner, components.CellBound](w),
		asteroidMapper: ecs.NewMap4[components.Position, components.Body, components.Meta, components.CellBound](w),
		spawnerMap:     ecs.NewMap1[components.ShipSpawner](w),
	}
	events.Subscribe(bus, func(ev events.CellStateChanged) {
		u.onCellStateChanged(ev)
	})
	return u
}

func (u *Universe) onCellStateChanged(ev events.CellStateChanged) {
	id := CellID(ev.Cell)
	switch {
	case ev.Resolution == components.CellCoarse && ev.Activated:
		u.populateCell(id)
	case ev.Resolution == components.CellCoarse && !ev.Activated:
		u.dropCell(id)
	case ev.Resolution == components.CellFine && ev.Activated:
		u.populateAsteroids(id)
	}
}

// CellInfoFor returns the in-memory info for a cell, if any.
func (u *Universe) CellInfoFor(id CellID) (*CellInfo, bool) {
	info, ok := u.infos[id]
	return info, ok
}

// populateCell generates the solar system of a coarse cell. The
// info stream and the layout stream are forked independently so the
// info sampling cannot perturb the layout sampling order.
func (u *Universe) populateCell(id CellID) {
	base := NewStream(u.worldSeed, id)
	infoStream := base.Fork("info")
	layout := base.Fork("layout")

	info := u.sampleInfo(id, infoStream)
	u.infos[id] = info

	minX, minY, maxX, maxY := CellBounds(id, CellSize)
	centerX := (minX + maxX) / 2
	centerY := (minY + maxY) / 2

	sun := u.sunMapper.NewEntity(
		&components.Position{X: centerX, Y: centerY},
		&components.Body{Mass: u.cfg.SunMass, Radius: 64},
		&components.Meta{Kind: components.KindSun},
		&components.Gravitation{Kind: components.Attractor, Mass: u.cfg.SunMass},
		&components.CellBound{Resolution: components.CellCoarse},
	)
	u.indexBody(sun, centerX, centerY)

	x, y := UnpackCell(id)
	var planetCount int
	var moonCounts []int
	if x == 0 && y == 0 {
		// The home system is a fixed richer template.
		planetCount = len(originMoonCounts)
		moonCounts = originMoonCounts[:]
	} else {
		poisson := distuv.Poisson{Lambda: u.cfg.PlanetCountLambda, Src: layout}
		planetCount = int(poisson.Rand())
		binomial := distuv.Binomial{N: float64(u.cfg.MoonTrials), P: u.cfg.MoonChance, Src: layout}
		moonCounts = make([]int, planetCount)
		for i := range moonCounts {
			moonCounts[i] = int(binomial.Rand())
		}
	}

	maxOrbit := float64(CellSize) / 2 * 0.8
	for i := 0; i < planetCount; i++ {
		orbitRadius := maxOrbit * float64(i+1) / float64(planetCount+1) * layout.Range(0.9, 1.1)
		phase := layout.Angle()
		period := layout.Range(120, 600)
		px := centerX + orbitRadius*math.Cos(phase)
		py := centerY + orbitRadius*math.Sin(phase)

		planet := u.orbitMapper.NewEntity(
			&components.Position{X: px, Y: py},
			&components.Body{Mass: u.cfg.PlanetMass, Radius: 16},
			&components.Meta{Kind: components.KindPlanet},
			&components.Orbit{Center: sun, Radius: orbitRadius, Period: period, Phase: phase},
			&components.Gravitation{Kind: components.Attractor, Mass: u.cfg.PlanetMass},
			&components.CellBound{Resolution: components.CellCoarse},
		)
		u.indexBody(planet, px, py)

		for m := 0; m < moonCounts[i]; m++ {
			moonRadius := layout.Range(24, 96)
			moonPhase := layout.Angle()
			mx := px + moonRadius*math.Cos(moonPhase)
			my := py + moonRadius*math.Sin(moonPhase)
			moon := u.orbitMapper.NewEntity(
				&components.Position{X: mx, Y: my},
				&components.Body{Mass: u.cfg.MoonMass, Radius: 4},
				&components.Meta{Kind: components.KindMoon},
				&components.Orbit{Center: planet, Radius: moonRadius, Period: layout.Range(30, 120), Phase: moonPhase},
				&components.Gravitation{Kind: components.Attractor, Mass: u.cfg.MoonMass},
				&components.CellBound{Resolution: components.CellCoarse},
			)
			u.indexBody(moon, mx, my)
		}

		// Stations favor high-tech cells.
		if layout.Float64() < u.cfg.StationChance*float64(info.techLevel+1) {
			sx := px + layout.Range(20, 40)
			sy := py + layout.Range(20, 40)
			station := u.stationMapper.NewEntity(
				&components.Position{X: sx, Y: sy},
				&components.Body{Mass: 500, Radius: 8},
				&components.Meta{Kind: components.KindStation},
				&info.faction,
				&components.Health{Value: 1000, Max: 1000},
				&components.ShipSpawner{Cooldown: u.spawnerFrames, Interval: u.spawnerFrames},
				&components.CellBound{Resolution: components.CellCoarse},
			)
			u.indexBody(station, sx, sy)
			info.addStation(station)
		}
	}

	u.linkNeighbors(id, info)

	u.logger.Debug("cell populated",
		"cell_x", x, "cell_y", y,
		"planets", planetCount,
		"stations", len(info.stations),
		"faction", info.faction.ID)
}

// sampleInfo reuses a retained dirty info, falls back to the
// persisted record, and only then samples a fresh one from the info
// stream. Loaded records are dirty by definition; they recorded a
// deviation.
func (u *Universe) sampleInfo(id CellID, stream *Stream) *CellInfo {
	if info, ok := u.infos[id]; ok {
		return info
	}
	if u.store != nil {
		rec, ok, err := u.store.LoadCell(uint64(id))
		if err != nil {
			u.logger.Error("load cell record", "cell", uint64(id), "error", err)
		} else if ok {
			return &CellInfo{
				cell:      id,
				faction:   components.Faction{ID: rec.Faction},
				techLevel: rec.TechLevel,
				dirty:     true,
			}
		}
	}
	return &CellInfo{
		cell:      id,
		faction:   components.Faction{ID: uint8(stream.IntN(u.cfg.Factions))},
		techLevel: uint8(stream.IntN(u.cfg.TechLevels)),
	}
}

// dropCell handles coarse-cell death. Non-dirty infos are discarded
// entirely; they regenerate identically later. Dirty infos keep the
// record with the station list cleared and are upserted to the store.
func (u *Universe) dropCell(id CellID) {
	info, ok := u.infos[id]
	if !ok {
		return
	}
	if !info.dirty {
		delete(u.infos, id)
		return
	}
	info.clearStations()
	if u.store != nil {
		err := u.store.SaveCell(state.CellRecord{
			Cell:      uint64(id),
			Faction:   info.faction.ID,
			TechLevel: info.techLevel,
		})
		if err != nil {
			u.logger.Error("persist cell record", "cell", uint64(id), "error", err)
		}
	}
}

// Regenerate rebuilds a coarse cell's content from its retained or
// procedural info. Used after a snapshot restore into a fresh world,
// where the cell sets are live but no activation event will fire.
func (u *Universe) Regenerate(id CellID) {
	u.populateCell(id)
}

// RegenerateAsteroids rebuilds a sub-cell's asteroid fields after a
// snapshot restore.
func (u *Universe) RegenerateAsteroids(id CellID) {
	u.populateAsteroids(id)
}

// populateAsteroids fills a sub-cell with asteroid fields. Fields
// sit on a square sub-grid; asteroids walk an outward Archimedean
// spiral with noise jitter, organic-looking but fully reproducible
// from the seed.
func (u *Universe) populateAsteroids(id CellID) {
	stream := NewStream(u.worldSeed, id).Fork("asteroids")
	noise := opensimplex.New(int64(uint64(u.worldSeed) ^ uint64(id)))

	fieldCount := 1 + stream.IntN(u.cfg.AsteroidFieldsMax)
	side := int(math.Ceil(math.Sqrt(float64(fieldCount))))
	fieldSize := float64(SubCellSize) / float64(side)

	minX, minY, _, _ := CellBounds(id, SubCellSize)
	for f := 0; f < fieldCount; f++ {
		fx := minX + (float64(f%side)+0.5)*fieldSize
		fy := minY + (float64(f/side)+0.5)*fieldSize

		count := u.cfg.AsteroidsPerField/2 + stream.IntN(u.cfg.AsteroidsPerField)
		theta := stream.Angle()
		for a := 0; a < count; a++ {
			theta += u.cfg.SpiralAngleStep
			radius := u.cfg.SpiralRadiusStep * theta
			ax := fx + radius*math.Cos(theta)
			ay := fy + radius*math.Sin(theta)
			ax += u.cfg.AsteroidJitter * noise.Eval2(ax*0.05, ay*0.05)
			ay += u.cfg.AsteroidJitter * noise.Eval2(ay*0.05, -ax*0.05)

			size := 1.5 + (noise.Eval2(ax*0.1, ay*0.1)+1)*1.5
			asteroid := u.asteroidMapper.NewEntity(
				&components.Position{X: ax, Y: ay},
				&components.Body{Mass: size * size, Radius: size},
				&components.Meta{Kind: components.KindAsteroid},
				&components.CellBound{Resolution: components.CellFine},
			)
			u.index.Insert(asteroid, ax, ay, GroupCellDeath)
			u.index.Insert(asteroid, ax, ay, GroupRadar)
		}
	}
}

// linkNeighbors registers spawn targets between this cell's stations
// and the stations of active, allied, non-diagonal neighbors. This is
// what lets station spawners eventually reinforce allies.
func (u *Universe) linkNeighbors(id CellID, info *CellInfo) {
	if len(info.stations) == 0 {
		return
	}
	x, y := UnpackCell(id)
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			// Parity of the summed offsets selects the four
			// Manhattan-adjacent neighbors.
			if (dx+dy)&1 == 0 {
				continue
			}
			neighborID := PackCell(x+dx, y+dy)
			if !u.grid.IsActive(neighborID, components.CellCoarse) {
				continue
			}
			neighbor, ok := u.infos[neighborID]
			if !ok || len(neighbor.stations) == 0 {
				continue
			}
			if !info.faction.AlliedWith(neighbor.faction) {
				continue
			}
			u.linkStations(info.stations, neighbor.stations)
			u.linkStations(neighbor.stations, info.stations)
		}
	}
}

func (u *Universe) linkStations(from, to []ecs.Entity) {
	for _, src := range from {
		spawner := u.spawnerMap.Get(src)
		if spawner == nil {
			continue
		}
		for _, dst := range to {
			if !containsEntity(spawner.Targets, dst) {
				spawner.Targets = append(spawner.Targets, dst)
			}
		}
	}
}

func containsEntity(list []ecs.Entity, e ecs.Entity) bool {
	for _, it := range list {
		if it == e {
			return true
		}
	}
	return false
}

func (u *Universe) indexBody(e ecs.Entity, x, y float64) {
	u.index.Insert(e, x, y, GroupCellDeath)
	u.index.Insert(e, x, y, GroupRadar)
}

// Packetize writes the in-memory cell infos in sorted cell order.
// Station entity ids are transient and regenerate with the cell, so
// only the replicated metadata is written.
func (u *Universe) Packetize(w *state.Writer) {
	cells := make([]CellID, 0, len(u.infos))
	for id := range u.infos {
		cells = append(cells, id)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })
	w.PutInt(len(cells))
	for _, id := range cells {
		info := u.infos[id]
		w.PutUint64(uint64(id))
		w.PutUint64(uint64(info.faction.ID))
		w.PutUint64(uint64(info.techLevel))
		w.PutBool(info.dirty)
	}
}

// Depacketize restores the cell info table. Station lists rebuild on
// the next activation sweep.
func (u *Universe) Depacketize(r *state.Reader) error {
	clear(u.infos)
	n := r.Int()
	for i := 0; i < n; i++ {
		id := CellID(r.Uint64())
		u.infos[id] = &CellInfo{
			cell:      id,
			faction:   components.Faction{ID: uint8(r.Uint64())},
			techLevel: uint8(r.Uint64()),
			dirty:     r.Bool(),
		}
	}
	return r.Err()
}
