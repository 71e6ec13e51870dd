package game

import (
	"log/slog"
	"path/filepath"
	"testing"

	"farspace/components"
	"farspace/config"
	"farspace/state"
	"farspace/systems"
)

func testGame(t *testing.T, seed int64, store *state.Store) *Game {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	cfg.Simulation.WorldSeed = seed
	return New(cfg, store, nil, slog.New(slog.DiscardHandler))
}

func TestAvatarActivatesCells(t *testing.T) {
	g := testGame(t, 42, nil)
	g.SpawnAvatar(1, 100, 100)
	g.Run(10) // past the first activation sweep

	if g.Grid().LivingCount(components.CellCoarse) != 9 {
		t.Errorf("living coarse cells = %d, want the 3×3 neighborhood",
			g.Grid().LivingCount(components.CellCoarse))
	}
	if _, ok := g.Universe().CellInfoFor(0); !ok {
		t.Error("home cell not populated")
	}
}

func TestTwinSimulationsStayConsistent(t *testing.T) {
	a := testGame(t, 123, nil)
	b := testGame(t, 123, nil)
	avA := a.SpawnAvatar(1, 0, 0)
	avB := b.SpawnAvatar(1, 0, 0)

	for tick := 0; tick < 300; tick++ {
		x := float64(tick) * 3
		a.MoveAvatar(avA, x, 0)
		b.MoveAvatar(avB, x, 0)
		a.Tick()
		b.Tick()
	}

	ha, err := a.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	hb, err := b.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if ha != hb {
		t.Errorf("twin simulations diverged: %x != %x", ha, hb)
	}
}

func TestSeedsDiverge(t *testing.T) {
	a := testGame(t, 1, nil)
	b := testGame(t, 2, nil)
	avA := a.SpawnAvatar(1, 0, 0)
	avB := b.SpawnAvatar(1, 0, 0)

	// Away from the fixed home system so sampled content differs.
	a.MoveAvatar(avA, 5*systems.CellSize, 0)
	b.MoveAvatar(avB, 5*systems.CellSize, 0)
	a.Run(20)
	b.Run(20)

	ha, _ := a.Hash()
	hb, _ := b.Hash()
	if ha == hb {
		t.Error("different seeds produced identical state")
	}
}

func TestSpawnSchedulerRunsUnderTick(t *testing.T) {
	g := testGame(t, 42, nil)
	g.SpawnAvatar(1, 100, 100)
	g.Run(30)

	// One batch per tick after the first sweep, minus the avatar.
	if len(g.tracked) <= 1 {
		t.Error("no ships spawned under the tick loop")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, err := state.OpenStore(filepath.Join(t.TempDir(), "session.db"), 42)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	g := testGame(t, 42, store)
	g.SpawnAvatar(1, 100, 100)
	g.Run(50)

	if err := g.SaveSnapshot(); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	frame := g.Frame()

	g2 := testGame(t, 42, store)
	ok, err := g2.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if !ok {
		t.Fatal("snapshot missing")
	}
	if g2.Frame() != frame {
		t.Errorf("restored frame = %d, want %d", g2.Frame(), frame)
	}
	for _, res := range []components.CellResolution{components.CellCoarse, components.CellFine} {
		if g.Grid().LivingCount(res) != g2.Grid().LivingCount(res) {
			t.Errorf("living cells differ at resolution %d", res)
		}
	}
	// Content of living cells regenerates during the restore.
	if _, ok := g2.Universe().CellInfoFor(0); !ok {
		t.Error("home cell info not restored")
	}
}

func TestLoadSnapshotEmptyStore(t *testing.T) {
	store, err := state.OpenStore(filepath.Join(t.TempDir(), "session.db"), 42)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	g := testGame(t, 42, store)
	ok, err := g.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if ok {
		t.Error("empty store reported a snapshot")
	}
}

func TestRemoveAvatarLetsCellsDie(t *testing.T) {
	g := testGame(t, 42, nil)
	av := g.SpawnAvatar(1, 100, 100)
	g.Run(10)
	if g.Grid().LivingCount(components.CellCoarse) == 0 {
		t.Fatal("no cells activated")
	}

	g.RemoveAvatar(av)
	// Past the grace window plus a sweep.
	g.Run(int(g.cfg.Derived.DeathDelayFrames) + 2*int(g.cfg.Cells.CheckInterval))

	if g.Grid().LivingCount(components.CellCoarse) != 0 {
		t.Errorf("cells alive with no avatars: %d", g.Grid().LivingCount(components.CellCoarse))
	}
}
