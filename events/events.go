package events

import (
	"github.com/mlange-42/ark/ecs"

	"farspace/components"
)

// CellID mirrors systems.CellID without importing it; the bus sits
// below the systems package.
type CellID = uint64

// CellStateChanged fires when a grid cell activates or finally dies.
type CellStateChanged struct {
	Cell       CellID
	Resolution components.CellResolution
	Activated  bool
}

// CollisionBegin reports a new fixture-level contact between two
// entities. ShieldHit marks a shield fixture; the normal is only
// meaningful in that case.
type CollisionBegin struct {
	A, B             ecs.Entity
	ShieldHit        bool
	NormalX, NormalY float64
}

// CollisionEnd reports a fixture-level contact ending.
type CollisionEnd struct {
	A, B ecs.Entity
}

// DamageReceived fires once per colliding pair per frame when a hit
// is not blocked. Numeric damage application happens downstream.
type DamageReceived struct {
	Target     ecs.Entity
	Source     ecs.Entity // root of the attacker's ownership chain
	Attributes components.Attributes
}

// ShieldBlocked fires when a shield fully negates a collision hit.
type ShieldBlocked struct {
	Target   ecs.Entity
	Attacker ecs.Entity
}

// EntityRemoved fires after the simulation removes an entity.
type EntityRemoved struct {
	Entity ecs.Entity
	Kind   components.Kind
}

// ShipSpawned fires for every ship created by the spawn scheduler.
type ShipSpawned struct {
	Entity  ecs.Entity
	Cell    CellID
	Faction components.Faction
}
