package game

import (
	"github.com/mlange-42/ark/ecs"

	"farspace/components"
	"farspace/systems"
)

// Tick advances the simulation one fixed timestep. System order is
// part of the replicated contract: every peer must run the same
// sequence or stream draws diverge.
func (g *Game) Tick() {
	g.frame++
	dt := g.cfg.Derived.DT

	avatars := g.avatarPositions()

	// Cell sweep first so activation handlers populate before anything
	// this tick can touch the new content.
	g.grid.Update(g.frame, avatars)

	g.spawner.Update(g.world, avatars)
	g.gravity.Update(g.world)
	g.physics.Update(g.world, dt)
	g.orbits.Update(g.world, dt)

	g.sensor.Update(g.world)
	g.collisions.Update()

	for _, e := range g.collisions.TakeRemovals() {
		g.destroy(e)
	}
	g.flushDead()

	g.collector.RecordDockings(g.gravity.DockCount)
	g.flushTelemetry()
}

// Run advances the simulation by n ticks.
func (g *Game) Run(n int) {
	for i := 0; i < n; i++ {
		g.Tick()
	}
}

func (g *Game) avatarPositions() []components.Position {
	g.avatarScratch = g.avatarScratch[:0]
	for e := range g.avatars {
		if g.posMap.HasAll(e) {
			g.avatarScratch = append(g.avatarScratch, *g.posMap.Get(e))
		}
	}
	return g.avatarScratch
}

// flushDead removes entities whose health ran out this tick. destroy
// skips entities already gone, so dying to two sources in one frame
// is harmless.
func (g *Game) flushDead() {
	if len(g.dead) == 0 {
		return
	}
	for _, e := range g.dead {
		g.destroy(e)
	}
	g.dead = g.dead[:0]
}

func (g *Game) flushTelemetry() {
	if !g.collector.ShouldFlush(g.frame) {
		return
	}
	stats := g.collector.Flush(
		g.frame,
		g.grid.LivingCount(components.CellCoarse),
		g.grid.LivingCount(components.CellFine),
		len(g.tracked),
	)
	if err := g.output.WriteWindow(stats); err != nil {
		g.logger.Error("telemetry write failed", "error", err)
	}
	g.logger.Debug("window flushed",
		"frame", g.frame,
		"cells", stats.ActiveCoarseCells,
		"entities", stats.Entities,
		"spawned", stats.ShipsSpawned,
		"damage", stats.DamageEvents)
}

// Radar returns the entities within radius of a position, appending
// into dst. Results come back in ascending entity id order.
func (g *Game) Radar(dst []ecs.Entity, x, y, radius float64) []ecs.Entity {
	return g.index.FindRadius(dst, x, y, radius, systems.GroupRadar)
}
