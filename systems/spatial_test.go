package systems

import (
	"testing"

	"github.com/mlange-42/ark/ecs"

	"farspace/components"
)

func spawnAt(mapper *ecs.Map1[components.Position], x, y float64) ecs.Entity {
	return mapper.NewEntity(&components.Position{X: x, Y: y})
}

func TestFindRadius(t *testing.T) {
	w := ecs.NewWorld()
	mapper := ecs.NewMap1[components.Position](w)
	idx := NewSpatialIndex(64)

	near := spawnAt(mapper, 10, 0)
	edge := spawnAt(mapper, 0, 100)
	far := spawnAt(mapper, 500, 500)
	idx.Insert(near, 10, 0, GroupRadar)
	idx.Insert(edge, 0, 100, GroupRadar)
	idx.Insert(far, 500, 500, GroupRadar)

	got := idx.FindRadius(nil, 0, 0, 100, GroupRadar)
	if len(got) != 2 {
		t.Fatalf("found %d entities, want 2", len(got))
	}
	for _, e := range got {
		if e == far {
			t.Error("entity outside the radius returned")
		}
	}
}

func TestFindRadiusSorted(t *testing.T) {
	w := ecs.NewWorld()
	mapper := ecs.NewMap1[components.Position](w)
	idx := NewSpatialIndex(16)

	// Spread across many buckets so map order could leak.
	for i := 0; i < 50; i++ {
		x := float64(i%10) * 20
		y := float64(i/10) * 20
		idx.Insert(spawnAt(mapper, x, y), x, y, GroupRadar)
	}

	got := idx.FindRadius(nil, 90, 50, 300, GroupRadar)
	if len(got) != 50 {
		t.Fatalf("found %d entities, want 50", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].ID() >= got[i].ID() {
			t.Fatalf("results not sorted at %d: %d >= %d", i, got[i-1].ID(), got[i].ID())
		}
	}
}

func TestFindBoundsHalfOpen(t *testing.T) {
	w := ecs.NewWorld()
	mapper := ecs.NewMap1[components.Position](w)
	idx := NewSpatialIndex(32)

	inside := spawnAt(mapper, 0, 0)
	onMax := spawnAt(mapper, 64, 0)
	idx.Insert(inside, 0, 0, GroupCellDeath)
	idx.Insert(onMax, 64, 0, GroupCellDeath)

	got := idx.FindBounds(nil, 0, 0, 64, 64, GroupCellDeath)
	if len(got) != 1 || got[0] != inside {
		t.Errorf("FindBounds = %v, want only the interior entity", got)
	}
}

func TestMoveUpdatesAllGroups(t *testing.T) {
	w := ecs.NewWorld()
	mapper := ecs.NewMap1[components.Position](w)
	idx := NewSpatialIndex(64)

	e := spawnAt(mapper, 0, 0)
	idx.Insert(e, 0, 0, GroupRadar)
	idx.Insert(e, 0, 0, GroupGravitation)

	idx.Move(e, 1000, 1000)

	if got := idx.FindRadius(nil, 0, 0, 50, GroupRadar); len(got) != 0 {
		t.Error("entity still found at the old position")
	}
	for _, g := range []Group{GroupRadar, GroupGravitation} {
		if got := idx.FindRadius(nil, 1000, 1000, 50, g); len(got) != 1 {
			t.Errorf("group %d: entity not found at the new position", g)
		}
	}
}

func TestRemoveClearsAllGroups(t *testing.T) {
	w := ecs.NewWorld()
	mapper := ecs.NewMap1[components.Position](w)
	idx := NewSpatialIndex(64)

	e := spawnAt(mapper, 5, 5)
	idx.Insert(e, 5, 5, GroupRadar)
	idx.Insert(e, 5, 5, GroupGravitation)
	idx.Insert(e, 5, 5, GroupCellDeath)

	idx.Remove(e)
	for g := Group(0); g < numGroups; g++ {
		if idx.Contains(e, g) {
			t.Errorf("group %d still contains the removed entity", g)
		}
		if got := idx.FindRadius(nil, 5, 5, 50, g); len(got) != 0 {
			t.Errorf("group %d still returns the removed entity", g)
		}
	}

	// Removing again must not panic or corrupt state.
	idx.Remove(e)
}

func TestReinsertReplacesSlot(t *testing.T) {
	w := ecs.NewWorld()
	mapper := ecs.NewMap1[components.Position](w)
	idx := NewSpatialIndex(64)

	e := spawnAt(mapper, 0, 0)
	idx.Insert(e, 0, 0, GroupRadar)
	idx.Insert(e, 200, 200, GroupRadar)

	if got := idx.FindRadius(nil, 0, 0, 10, GroupRadar); len(got) != 0 {
		t.Error("stale slot survived re-insert")
	}
	if got := idx.FindRadius(nil, 200, 200, 10, GroupRadar); len(got) != 1 {
		t.Error("entity missing at the re-inserted position")
	}
}

func TestGroupIsolation(t *testing.T) {
	w := ecs.NewWorld()
	mapper := ecs.NewMap1[components.Position](w)
	idx := NewSpatialIndex(64)

	e := spawnAt(mapper, 0, 0)
	idx.Insert(e, 0, 0, GroupGravitation)

	if got := idx.FindRadius(nil, 0, 0, 10, GroupRadar); len(got) != 0 {
		t.Error("gravitation entity visible to radar queries")
	}
}
