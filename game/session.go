package game

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"farspace/components"
	"farspace/state"
)

// Packetize writes the replicated core state: the frame counter, the
// shared stream states, and every system table in a fixed order.
// Presentation-side data never enters the packet.
func (g *Game) Packetize(w *state.Writer) {
	w.PutInt64(g.frame)
	for _, word := range g.collisionStream.State() {
		w.PutUint64(word)
	}
	for _, word := range g.damageStream.State() {
		w.PutUint64(word)
	}
	g.grid.Packetize(w)
	g.universe.Packetize(w)
	g.collisions.Packetize(w)
	g.spawner.Packetize(w)
	g.squads.Packetize(w)
}

// Depacketize restores the core state written by Packetize. Squad
// member handles are rebound against the live entity table.
func (g *Game) Depacketize(r *state.Reader) error {
	g.frame = r.Int64()
	var cs, ds [4]uint64
	for i := range cs {
		cs[i] = r.Uint64()
	}
	for i := range ds {
		ds[i] = r.Uint64()
	}
	if err := r.Err(); err != nil {
		return err
	}
	g.collisionStream.SetState(cs)
	g.damageStream.SetState(ds)

	if err := g.grid.Depacketize(r); err != nil {
		return fmt.Errorf("restore cell grid: %w", err)
	}
	if err := g.universe.Depacketize(r); err != nil {
		return fmt.Errorf("restore universe: %w", err)
	}
	if err := g.collisions.Depacketize(r); err != nil {
		return fmt.Errorf("restore collisions: %w", err)
	}
	if err := g.spawner.Depacketize(r); err != nil {
		return fmt.Errorf("restore spawn queue: %w", err)
	}
	if err := g.squads.Depacketize(r); err != nil {
		return fmt.Errorf("restore squads: %w", err)
	}
	g.squads.RebindMembers(g.resolveEntity)
	if err := r.Err(); err != nil {
		return err
	}

	// A fresh world holds no entities for the restored cell sets, and
	// no activation event will fire for cells already living. Rebuild
	// their content from the restored infos.
	for _, id := range g.grid.LivingCells(components.CellCoarse) {
		g.universe.Regenerate(id)
	}
	for _, id := range g.grid.LivingCells(components.CellFine) {
		g.universe.RegenerateAsteroids(id)
	}
	return nil
}

func (g *Game) resolveEntity(id uint32) (ecs.Entity, bool) {
	e, ok := g.tracked[id]
	return e, ok
}

// Hash returns the consistency digest of the core state. Two
// replicas that processed the same inputs report the same sum.
func (g *Game) Hash() (uint64, error) {
	h := state.NewHasher()
	h.Put(g)
	if err := h.Err(); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// SaveSnapshot persists the current core state to the session store.
func (g *Game) SaveSnapshot() error {
	if g.store == nil {
		return fmt.Errorf("save snapshot: no session store")
	}
	data, err := state.Marshal(g)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := g.store.SaveSnapshot(g.frame, data); err != nil {
		return err
	}
	g.logger.Info("snapshot saved", "frame", g.frame, "bytes", len(data))
	return nil
}

// LoadSnapshot restores the newest snapshot from the session store.
// Returns false without error when the store holds none.
func (g *Game) LoadSnapshot() (bool, error) {
	if g.store == nil {
		return false, fmt.Errorf("load snapshot: no session store")
	}
	frame, data, err := g.store.LoadLatestSnapshot()
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := state.Unmarshal(g, data); err != nil {
		return false, fmt.Errorf("load snapshot at frame %d: %w", frame, err)
	}
	g.logger.Info("snapshot restored", "frame", g.frame)
	return true, nil
}
