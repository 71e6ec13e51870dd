package systems

import (
	"math"

	"github.com/mlange-42/ark/ecs"

	"farspace/components"
)

// PhysicsSystem integrates accumulated forces into velocities and
// velocities into positions, then clears the force accumulators.
// Gravity is applied as a force scaled by the tick rate here, which
// decouples its strength from the frame rate.
type PhysicsSystem struct {
	index  *SpatialIndex
	filter ecs.Filter4[components.Position, components.Velocity, components.Force, components.Body]
}

// NewPhysicsSystem creates the integrator.
func NewPhysicsSystem(w *ecs.World, index *SpatialIndex) *PhysicsSystem {
	return &PhysicsSystem{
		index:  index,
		filter: *ecs.NewFilter4[components.Position, components.Velocity, components.Force, components.Body](w),
	}
}

// Update advances one tick of dt seconds.
func (s *PhysicsSystem) Update(w *ecs.World, dt float64) {
	query := s.filter.Query()
	for query.Next() {
		entity := query.Entity()
		pos, vel, force, body := query.Get()

		if body.Mass > 0 {
			vel.X += force.X / body.Mass * dt
			vel.Y += force.Y / body.Mass * dt
		}
		force.X = 0
		force.Y = 0

		if vel.X != 0 || vel.Y != 0 {
			pos.X += vel.X * dt
			pos.Y += vel.Y * dt
			s.index.Move(entity, pos.X, pos.Y)
		}
	}
}

// OrbitSystem advances orbiting bodies along their sampled elements.
// Orbits are kinematic; they ignore forces entirely.
type OrbitSystem struct {
	index  *SpatialIndex
	filter ecs.Filter2[components.Position, components.Orbit]
	posMap *ecs.Map1[components.Position]
}

// NewOrbitSystem creates the ephemeris stepper.
func NewOrbitSystem(w *ecs.World, index *SpatialIndex) *OrbitSystem {
	return &OrbitSystem{
		index:  index,
		filter: *ecs.NewFilter2[components.Position, components.Orbit](w),
		posMap: ecs.NewMap1[components.Position](w),
	}
}

// Update advances every orbit by dt seconds.
func (s *OrbitSystem) Update(w *ecs.World, dt float64) {
	query := s.filter.Query()
	for query.Next() {
		entity := query.Entity()
		pos, orbit := query.Get()

		center := s.posMap.Get(orbit.Center)
		if center == nil || orbit.Period <= 0 {
			continue
		}
		orbit.Phase += 2 * math.Pi * dt / orbit.Period
		if orbit.Phase > 2*math.Pi {
			orbit.Phase -= 2 * math.Pi
		}
		pos.X = center.X + orbit.Radius*math.Cos(orbit.Phase)
		pos.Y = center.Y + orbit.Radius*math.Sin(orbit.Phase)
		s.index.Move(entity, pos.X, pos.Y)
	}
}
