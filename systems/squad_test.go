package systems

import (
	"math"
	"testing"

	"github.com/mlange-42/ark/ecs"

	"farspace/components"
)

func newSquadWorld(t *testing.T) (*ecs.World, *SquadEngine, *ecs.Map2[components.Position, components.Rotation]) {
	t.Helper()
	w := ecs.NewWorld()
	engine := NewSquadEngine(w, 10)
	mapper := ecs.NewMap2[components.Position, components.Rotation](w)
	return w, engine, mapper
}

func spawnMember(mapper *ecs.Map2[components.Position, components.Rotation], x, y, heading float64) ecs.Entity {
	return mapper.NewEntity(&components.Position{X: x, Y: y}, &components.Rotation{Heading: heading})
}

func TestRegisterIdentitySquad(t *testing.T) {
	_, engine, mapper := newSquadWorld(t)
	e := spawnMember(mapper, 0, 0, 0)

	id := engine.Register(e)
	if id == 0 {
		t.Fatal("squad id 0 allocated")
	}
	if engine.Size(id) != 1 {
		t.Errorf("identity squad size = %d", engine.Size(id))
	}
	if leader, _ := engine.Leader(id); leader != e {
		t.Error("identity squad leader is not the entity itself")
	}
	if again := engine.Register(e); again != id {
		t.Errorf("re-register allocated a new squad: %d then %d", id, again)
	}
}

func TestAddLeavesPreviousSquad(t *testing.T) {
	_, engine, mapper := newSquadWorld(t)
	a := spawnMember(mapper, 0, 0, 0)
	b := spawnMember(mapper, 0, 0, 0)

	squadA := engine.Register(a)
	squadB := engine.Register(b)

	if err := engine.AddToSquad(squadA, b); err != nil {
		t.Fatalf("AddToSquad: %v", err)
	}
	if engine.Size(squadA) != 2 {
		t.Errorf("squad size = %d, want 2", engine.Size(squadA))
	}
	if engine.Size(squadB) != 0 {
		t.Errorf("emptied squad still has %d members", engine.Size(squadB))
	}
	if got, _ := engine.SquadOf(b); got != squadA {
		t.Errorf("member maps to squad %d, want %d", got, squadA)
	}
}

func TestSquadIDReuse(t *testing.T) {
	_, engine, mapper := newSquadWorld(t)
	a := spawnMember(mapper, 0, 0, 0)
	b := spawnMember(mapper, 0, 0, 0)
	c := spawnMember(mapper, 0, 0, 0)

	squadA := engine.Register(a)
	squadB := engine.Register(b)
	if err := engine.AddToSquad(squadA, b); err != nil {
		t.Fatalf("AddToSquad: %v", err)
	}

	// b's identity squad died; its id should come back from the pool.
	if got := engine.Register(c); got != squadB {
		t.Errorf("recycled id = %d, want %d", got, squadB)
	}
}

func TestRemoveSoleMemberNoop(t *testing.T) {
	_, engine, mapper := newSquadWorld(t)
	e := spawnMember(mapper, 0, 0, 0)
	id := engine.Register(e)

	engine.Remove(e)
	if got, _ := engine.SquadOf(e); got != id {
		t.Errorf("sole member moved from squad %d to %d", id, got)
	}
	if engine.Size(id) != 1 {
		t.Errorf("squad size = %d after no-op remove", engine.Size(id))
	}
}

func TestRemoveLeaderPromotesLast(t *testing.T) {
	_, engine, mapper := newSquadWorld(t)
	a := spawnMember(mapper, 0, 0, 0)
	b := spawnMember(mapper, 0, 0, 0)
	c := spawnMember(mapper, 0, 0, 0)

	id := engine.Register(a)
	engine.AddToSquad(id, b)
	engine.AddToSquad(id, c)

	engine.Remove(a)
	if leader, _ := engine.Leader(id); leader != c {
		t.Error("last member was not promoted to leader")
	}
	if engine.Size(id) != 2 {
		t.Errorf("squad size = %d, want 2", engine.Size(id))
	}
	// The removed leader falls back to an identity squad.
	newID, ok := engine.SquadOf(a)
	if !ok || newID == id {
		t.Errorf("removed leader in squad %d (ok=%v)", newID, ok)
	}
	if engine.Size(newID) != 1 {
		t.Errorf("identity squad size = %d", engine.Size(newID))
	}
}

func TestComputeFormationOffsetNonMember(t *testing.T) {
	_, engine, mapper := newSquadWorld(t)
	a := spawnMember(mapper, 0, 0, 0)
	b := spawnMember(mapper, 0, 0, 0)
	id := engine.Register(a)
	engine.Register(b)

	if _, _, err := engine.ComputeFormationOffset(id, b); err == nil {
		t.Error("no error for a non-member")
	}
	if _, _, err := engine.ComputeFormationOffset(9999, a); err == nil {
		t.Error("no error for an unknown squad")
	}
}

func TestComputeFormationOffsetTransform(t *testing.T) {
	_, engine, mapper := newSquadWorld(t)
	leader := spawnMember(mapper, 100, 50, math.Pi/2)
	wing := spawnMember(mapper, 0, 0, 0)

	id := engine.Register(leader)
	engine.AddToSquad(id, wing)
	engine.SetSpacing(id, 10)

	// Line slot 1 is one unit to the leader's right; with the leader
	// heading +Y, right is -X in world space.
	x, y, err := engine.ComputeFormationOffset(id, wing)
	if err != nil {
		t.Fatalf("ComputeFormationOffset: %v", err)
	}
	if math.Abs(x-90) > 1e-9 || math.Abs(y-50) > 1e-9 {
		t.Errorf("slot = (%v, %v), want (90, 50)", x, y)
	}

	// The leader's slot is its own position.
	x, y, err = engine.ComputeFormationOffset(id, leader)
	if err != nil {
		t.Fatalf("ComputeFormationOffset(leader): %v", err)
	}
	if x != 100 || y != 50 {
		t.Errorf("leader slot = (%v, %v)", x, y)
	}
}
