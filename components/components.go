// Package components defines ECS components for the simulation.
package components

import "github.com/mlange-42/ark/ecs"

// Kind classifies an entity for queries and telemetry.
type Kind uint8

const (
	KindShip Kind = iota
	KindSun
	KindPlanet
	KindMoon
	KindStation
	KindAsteroid
	KindProjectile
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindShip:
		return "ship"
	case KindSun:
		return "sun"
	case KindPlanet:
		return "planet"
	case KindMoon:
		return "moon"
	case KindStation:
		return "station"
	case KindAsteroid:
		return "asteroid"
	case KindProjectile:
		return "projectile"
	}
	return "unknown"
}

// Position is an entity's world position.
type Position struct {
	X, Y float64
}

// Velocity is an entity's velocity in world units per second.
type Velocity struct {
	X, Y float64
}

// Rotation holds an entity's heading in radians.
type Rotation struct {
	Heading float64
}

// Force accumulates forces for one tick. Integration clears it.
type Force struct {
	X, Y float64
}

// Body holds the physical properties used by gravitation and contacts.
type Body struct {
	Mass   float64
	Radius float64
}

// Meta tags an entity with its kind.
type Meta struct {
	Kind Kind
}

// Avatar marks a player-controlled entity. Avatars drive cell activation.
type Avatar struct {
	Player uint32
}

// Faction identifies the owning faction of an entity.
type Faction struct {
	ID uint8
}

// AlliedWith reports whether two factions cooperate.
func (f Faction) AlliedWith(other Faction) bool {
	return f.ID == other.ID
}

// GravitationKind flags an entity's role in the gravitation system.
type GravitationKind uint8

const (
	// Attractor pulls attractees toward itself.
	Attractor GravitationKind = 1 << iota
	// Attractee is affected by nearby attractors.
	Attractee
)

// Gravitation tags an entity as attractor and/or attractee.
// Only attractees are inserted into the spatial index under the
// gravitation group.
type Gravitation struct {
	Kind GravitationKind
	Mass float64
}

// CellResolution selects the grid resolution an entity is bound to.
type CellResolution uint8

const (
	// CellCoarse is the coarse cell grid (solar system content).
	CellCoarse CellResolution = 1 << iota
	// CellFine is the sub-cell grid (asteroid fields).
	CellFine
)

// CellBound marks an entity for removal when its cell finally dies.
type CellBound struct {
	Resolution CellResolution
}

// Health holds hit points. Entities without Health ignore damage.
type Health struct {
	Value, Max float64
}

// Shield holds shield state for block checks. Coverage is the
// half-angle in radians, symmetric around the entity's heading.
type Shield struct {
	Active      bool
	Coverage    float64
	BlockChance float64
}

// Attributes is the attacker attribute set carried on damage events.
// Numeric damage application is left to a downstream system.
type Attributes struct {
	Damage     float64
	CritChance float64
	CritDamage float64
}

// DamageSource marks an entity as able to deal collision damage.
type DamageSource struct {
	Attributes Attributes
}

// RemoveOnCollision marks self-destructing ordnance. The entity is
// removed after its first contact and deals no knockback.
type RemoveOnCollision struct{}

// Owner points at the entity that created this one. Damage events
// carry the root of the chain, not the immediate owner.
type Owner struct {
	Parent ecs.Entity
}

// ShipControl holds the steering state the simulation inspects.
// Accelerating suppresses gravity docking.
type ShipControl struct {
	Accelerating bool
}

// Orbit holds the orbital elements sampled at generation time.
// Center is the body being orbited.
type Orbit struct {
	Center ecs.Entity
	Radius float64
	Period float64
	Phase  float64
}

// ShipSpawner periodically sends newly spawned escorts against its
// targets. Cooldown counts down every tick and resets to Interval.
type ShipSpawner struct {
	Cooldown int32
	Interval int32
	Targets  []ecs.Entity
}

// SquadMember records which squad an entity belongs to. Every
// squad-tagged entity belongs to exactly one squad at all times.
type SquadMember struct {
	SquadID uint32
}
