package systems

import (
	"fmt"
	"math"

	"github.com/mlange-42/ark/ecs"

	"farspace/components"
	"farspace/config"
)

// GravitationSystem accumulates attraction forces between attractor
// and attractee pairs found via the spatial index.
//
// The system is intentionally unparallelized: floating-point addition
// order affects the result, and multiple attractors can influence one
// attractee in the same tick, so the work runs sequentially in a
// fixed entity order to stay bit-identical across networked peers.
type GravitationSystem struct {
	cfg    config.GravitationConfig
	index  *SpatialIndex
	checks bool

	attractorFilter ecs.Filter2[components.Position, components.Gravitation]

	posMap     *ecs.Map1[components.Position]
	velMap     *ecs.Map1[components.Velocity]
	forceMap   *ecs.Map1[components.Force]
	gravMap    *ecs.Map1[components.Gravitation]
	controlMap *ecs.Map1[components.ShipControl]

	neighbors []ecs.Entity

	// DockCount is the number of dockings in the last update.
	DockCount int
}

// NewGravitationSystem creates the solver.
func NewGravitationSystem(w *ecs.World, index *SpatialIndex, cfg config.GravitationConfig, checks bool) *GravitationSystem {
	return &GravitationSystem{
		cfg:             cfg,
		index:           index,
		checks:          checks,
		attractorFilter: *ecs.NewFilter2[components.Position, components.Gravitation](w),
		posMap:          ecs.NewMap1[components.Position](w),
		velMap:          ecs.NewMap1[components.Velocity](w),
		forceMap:        ecs.NewMap1[components.Force](w),
		gravMap:         ecs.NewMap1[components.Gravitation](w),
		controlMap:      ecs.NewMap1[components.ShipControl](w),
	}
}

// Update runs one tick of force accumulation.
func (s *GravitationSystem) Update(w *ecs.World) {
	s.DockCount = 0

	query := s.attractorFilter.Query()
	for query.Next() {
		attractor := query.Entity()
		pos, grav := query.Get()
		if grav.Kind&components.Attractor == 0 {
			continue
		}
		s.attract(attractor, pos, grav)
	}
}

func (s *GravitationSystem) attract(attractor ecs.Entity, pos *components.Position, grav *components.Gravitation) {
	s.neighbors = s.index.FindRadius(s.neighbors[:0], pos.X, pos.Y, s.cfg.SearchRadius, GroupGravitation)

	for _, other := range s.neighbors {
		if other == attractor {
			continue
		}
		otherGrav := s.gravMap.Get(other)
		if s.checks && (otherGrav == nil || otherGrav.Kind&components.Attractee == 0) {
			panic(fmt.Sprintf("entity %d indexed under gravitation group without attractee flag", other.ID()))
		}
		if otherGrav == nil {
			continue
		}

		otherPos := s.posMap.Get(other)
		otherVel := s.velMap.Get(other)
		if otherPos == nil || otherVel == nil {
			continue
		}

		dx := pos.X - otherPos.X
		dy := pos.Y - otherPos.Y
		distSq := dx*dx + dy*dy

		if distSq > s.cfg.NearDistanceSq {
			s.applyForce(other, otherGrav, grav, dx, dy, distSq, distSq)
			continue
		}

		// Near the core. Dock slow, close, coasting bodies instead of
		// integrating them through the singularity.
		velSq := otherVel.X*otherVel.X + otherVel.Y*otherVel.Y
		accelerating := false
		if ctrl := s.controlMap.Get(other); ctrl != nil {
			accelerating = ctrl.Accelerating
		}
		if !accelerating && velSq < s.cfg.DockVelocitySq && distSq < s.cfg.DockDistanceSq {
			otherPos.X = pos.X
			otherPos.Y = pos.Y
			otherVel.X = 0
			otherVel.Y = 0
			s.index.Move(other, otherPos.X, otherPos.Y)
			s.DockCount++
			continue
		}

		// Cap the force at its value on the near threshold so the
		// inverse square law cannot blow up at distance zero.
		s.applyForce(other, otherGrav, grav, dx, dy, distSq, s.cfg.NearDistanceSq)
	}
}

// applyForce accumulates an inverse-square force on other, directed
// toward the attractor. forceDistSq may be capped; distSq is the real
// squared distance used for direction.
func (s *GravitationSystem) applyForce(other ecs.Entity, otherGrav, grav *components.Gravitation, dx, dy, distSq, forceDistSq float64) {
	if distSq <= s.cfg.EpsilonSq {
		// Near-coincident positions; normalizing would produce NaN.
		return
	}
	force := s.forceMap.Get(other)
	if force == nil {
		return
	}
	magnitude := s.cfg.G * grav.Mass * otherGrav.Mass / forceDistSq
	dist := math.Sqrt(distSq)
	force.X += magnitude * dx / dist
	force.Y += magnitude * dy / dist
}
