// Package game wires the simulation systems together and drives the
// fixed-timestep loop.
package game

import (
	"log/slog"

	"github.com/mlange-42/ark/ecs"

	"farspace/components"
	"farspace/config"
	"farspace/events"
	"farspace/state"
	"farspace/systems"
	"farspace/telemetry"
)

// Avatar ship stats. Player ships are tougher than the scheduler's
// escorts and carry a forward shield arc.
const (
	avatarMass      = 20.0
	avatarRadius    = 6.0
	avatarHealth    = 500.0
	avatarDamage    = 25.0
	avatarShieldArc = 1.2 // radians half-angle
)

// Game holds the complete simulation state.
type Game struct {
	world  *ecs.World
	cfg    *config.Config
	logger *slog.Logger
	bus    *events.Bus

	index      *systems.SpatialIndex
	grid       *systems.CellGrid
	universe   *systems.Universe
	gravity    *systems.GravitationSystem
	physics    *systems.PhysicsSystem
	orbits     *systems.OrbitSystem
	sensor     *systems.ContactSensor
	collisions *systems.CollisionSystem
	squads     *systems.SquadEngine
	spawner    *systems.SpawnScheduler

	store     *state.Store
	collector *telemetry.Collector
	output    *telemetry.OutputManager

	frame int64

	// collisionStream feeds block rolls, damageStream crit rolls.
	// Both fork off the world stream so draws never interleave.
	collisionStream *systems.Stream
	damageStream    *systems.Stream

	avatars  map[ecs.Entity]struct{}
	tracked  map[uint32]ecs.Entity // ships and avatars by raw id
	dead     []ecs.Entity

	avatarMapper *ecs.Map7[components.Position, components.Velocity, components.Rotation, components.Body, components.Meta, components.Faction, components.Health]
	avatarExtras *ecs.Map7[components.Force, components.Gravitation, components.Avatar, components.Shield, components.DamageSource, components.ShipControl, components.CellBound]
	posMap       *ecs.Map1[components.Position]
	velMap       *ecs.Map1[components.Velocity]
	rotMap       *ecs.Map1[components.Rotation]
	healthMap    *ecs.Map1[components.Health]
	metaMap      *ecs.Map1[components.Meta]
	controlMap   *ecs.Map1[components.ShipControl]

	avatarScratch []components.Position
}

// New creates a fully wired simulation. store may be nil for
// in-memory sessions; output may be nil when telemetry is disabled.
func New(cfg *config.Config, store *state.Store, output *telemetry.OutputManager, logger *slog.Logger) *Game {
	w := ecs.NewWorld()
	bus := events.NewBus()
	index := systems.NewSpatialIndex(cfg.Spatial.IndexCellSize)
	grid := systems.NewCellGrid(w, bus, index, cfg.Cells.CheckInterval, cfg.Derived.DeathDelayFrames)

	worldStream := systems.NewWorldStream(cfg.Simulation.WorldSeed)
	collisionStream := worldStream.Fork("collisions")
	damageStream := worldStream.Fork("damage")

	var cellStore systems.CellStore
	if store != nil {
		cellStore = store
	}
	universe := systems.NewUniverse(w, bus, index, grid, cfg, cellStore, logger)
	squads := systems.NewSquadEngine(w, cfg.Spawning.SquadSpacing)

	g := &Game{
		world:           w,
		cfg:             cfg,
		logger:          logger,
		bus:             bus,
		index:           index,
		grid:            grid,
		universe:        universe,
		gravity:         systems.NewGravitationSystem(w, index, cfg.Gravitation, cfg.Debug.Checks),
		physics:         systems.NewPhysicsSystem(w, index),
		orbits:          systems.NewOrbitSystem(w, index),
		sensor:          systems.NewContactSensor(w, bus, index),
		collisions:      systems.NewCollisionSystem(w, bus, collisionStream),
		squads:          squads,
		spawner:         systems.NewSpawnScheduler(w, bus, index, universe, squads, cfg, logger),
		store:           store,
		collector:       telemetry.NewCollector(cfg.Derived.WindowFrames, cfg.Derived.DT),
		output:          output,
		collisionStream: collisionStream,
		damageStream:    damageStream,
		avatars:         make(map[ecs.Entity]struct{}),
		tracked:         make(map[uint32]ecs.Entity),
		avatarMapper:    ecs.NewMap7[components.Position, components.Velocity, components.Rotation, components.Body, components.Meta, components.Faction, components.Health](w),
		avatarExtras:    ecs.NewMap7[components.Force, components.Gravitation, components.Avatar, components.Shield, components.DamageSource, components.ShipControl, components.CellBound](w),
		posMap:          ecs.NewMap1[components.Position](w),
		velMap:          ecs.NewMap1[components.Velocity](w),
		rotMap:          ecs.NewMap1[components.Rotation](w),
		healthMap:       ecs.NewMap1[components.Health](w),
		metaMap:         ecs.NewMap1[components.Meta](w),
		controlMap:      ecs.NewMap1[components.ShipControl](w),
	}
	grid.SetRemover(g.unlink)
	g.subscribe()
	return g
}

// subscribe installs the bookkeeping and telemetry event handlers.
func (g *Game) subscribe() {
	events.Subscribe(g.bus, func(ev events.CellStateChanged) {
		if ev.Activated {
			g.collector.RecordActivation()
		} else {
			g.collector.RecordDeactivation()
		}
	})
	events.Subscribe(g.bus, func(ev events.ShipSpawned) {
		g.tracked[ev.Entity.ID()] = ev.Entity
		g.collector.RecordSpawn()
	})
	events.Subscribe(g.bus, func(ev events.EntityRemoved) {
		g.collector.RecordRemoval()
	})
	events.Subscribe(g.bus, func(ev events.DamageReceived) {
		g.applyDamage(ev)
	})
	events.Subscribe(g.bus, func(ev events.ShieldBlocked) {
		g.collector.RecordBlock()
	})
}

// World exposes the ECS world for tests and tooling.
func (g *Game) World() *ecs.World { return g.world }

// Bus exposes the event bus.
func (g *Game) Bus() *events.Bus { return g.bus }

// Frame returns the current simulation frame.
func (g *Game) Frame() int64 { return g.frame }

// Universe exposes the procedural generator.
func (g *Game) Universe() *systems.Universe { return g.universe }

// Squads exposes the squad engine.
func (g *Game) Squads() *systems.SquadEngine { return g.squads }

// Grid exposes the cell activation grid.
func (g *Game) Grid() *systems.CellGrid { return g.grid }

// SpawnAvatar creates a player ship at a position and registers it
// as an activation source.
func (g *Game) SpawnAvatar(player uint32, x, y float64) ecs.Entity {
	e := g.avatarMapper.NewEntity(
		&components.Position{X: x, Y: y},
		&components.Velocity{},
		&components.Rotation{},
		&components.Body{Mass: avatarMass, Radius: avatarRadius},
		&components.Meta{Kind: components.KindShip},
		&components.Faction{ID: 0},
		&components.Health{Value: avatarHealth, Max: avatarHealth},
	)
	g.avatarExtras.Add(e,
		&components.Force{},
		&components.Gravitation{Kind: components.Attractee, Mass: avatarMass},
		&components.Avatar{Player: player},
		&components.Shield{Active: true, Coverage: avatarShieldArc, BlockChance: 0.5},
		&components.DamageSource{Attributes: components.Attributes{Damage: avatarDamage, CritChance: 0.1, CritDamage: 2}},
		&components.ShipControl{},
		&components.CellBound{Resolution: components.CellCoarse},
	)
	g.index.Insert(e, x, y, systems.GroupGravitation)
	g.index.Insert(e, x, y, systems.GroupRadar)
	g.avatars[e] = struct{}{}
	g.tracked[e.ID()] = e
	g.squads.Register(e)
	g.logger.Info("avatar spawned", "player", player, "x", x, "y", y)
	return e
}

// RemoveAvatar despawns a player ship. Cells it kept alive fall into
// the grace window on the next sweep.
func (g *Game) RemoveAvatar(e ecs.Entity) {
	if _, ok := g.avatars[e]; !ok {
		return
	}
	delete(g.avatars, e)
	g.destroy(e)
}

// SetThrust sets an avatar's acceleration state. Accelerating ships
// never gravity-dock.
func (g *Game) SetThrust(e ecs.Entity, accelerating bool) {
	if g.controlMap.HasAll(e) {
		g.controlMap.Get(e).Accelerating = accelerating
	}
}

// MoveAvatar teleports an avatar, for scripted flight paths.
func (g *Game) MoveAvatar(e ecs.Entity, x, y float64) {
	if !g.posMap.HasAll(e) {
		return
	}
	pos := g.posMap.Get(e)
	pos.X, pos.Y = x, y
	g.index.Move(e, x, y)
}

// applyDamage applies a damage event to the target's health, rolling
// crits on the damage stream.
func (g *Game) applyDamage(ev events.DamageReceived) {
	amount := ev.Attributes.Damage
	if ev.Attributes.CritChance > 0 && g.damageStream.Float64() < ev.Attributes.CritChance {
		amount *= ev.Attributes.CritDamage
	}
	g.collector.RecordDamage(amount)

	if !g.healthMap.HasAll(ev.Target) {
		return
	}
	h := g.healthMap.Get(ev.Target)
	h.Value -= amount
	if h.Value <= 0 {
		g.dead = append(g.dead, ev.Target)
	}
}

// unlink detaches an entity from the index, squads, and contact
// tracking without touching the world. The cell grid removes the
// entity itself during eviction.
func (g *Game) unlink(e ecs.Entity) {
	g.sensor.Forget(e)
	g.collisions.Forget(e)
	g.squads.Drop(e)
	g.index.Remove(e)
	delete(g.tracked, e.ID())
	delete(g.avatars, e)
	g.world.RemoveEntity(e)
}

// destroy removes an entity outside of cell eviction, publishing the
// removal event the grid would otherwise emit.
func (g *Game) destroy(e ecs.Entity) {
	if !g.world.Alive(e) {
		return
	}
	kind := components.KindShip
	if g.metaMap.HasAll(e) {
		kind = g.metaMap.Get(e).Kind
	}
	g.unlink(e)
	events.Publish(g.bus, events.EntityRemoved{Entity: e, Kind: kind})
}

// Close flushes telemetry and releases resources.
func (g *Game) Close() error {
	return g.output.Close()
}
