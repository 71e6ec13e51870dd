package systems

import (
	"sort"

	"github.com/mlange-42/ark/ecs"

	"farspace/components"
	"farspace/events"
	"farspace/state"
)

// resolution slots for the two grids.
const (
	slotCoarse = 0
	slotFine   = 1
)

func resSlot(r components.CellResolution) int {
	if r == components.CellFine {
		return slotFine
	}
	return slotCoarse
}

func slotRes(slot int) components.CellResolution {
	if slot == slotFine {
		return components.CellFine
	}
	return components.CellCoarse
}

func slotSize(slot int) float64 {
	if slot == slotFine {
		return SubCellSize
	}
	return CellSize
}

// CellGrid tracks which cells of the infinite world are active.
// A cell activates when a sweep finds any avatar's 3×3 neighborhood
// covering it,
// and is finally destroyed only after a grace window with no
// reactivation, so a player straddling a boundary doesn't churn
// content. Both grid resolutions have independent living and
// pending-death sets.
type CellGrid struct {
	bus   *events.Bus
	index *SpatialIndex

	checkInterval int64
	deathDelay    int64

	living  [2]map[CellID]struct{}
	pending [2]map[CellID]int64 // cell -> frame it became unrequired

	boundMap *ecs.Map1[components.CellBound]
	metaMap  *ecs.Map1[components.Meta]

	// remove destroys an entity during cell death; installed by the
	// orchestrator so squad tables and indexes stay consistent.
	remove func(ecs.Entity)

	// scratch buffers reused across sweeps
	required [2]map[CellID]struct{}
	found    []ecs.Entity
}

// NewCellGrid creates the grid. checkInterval is in frames,
// deathDelay is the grace window in frames.
func NewCellGrid(w *ecs.World, bus *events.Bus, index *SpatialIndex, checkInterval, deathDelay int64) *CellGrid {
	g := &CellGrid{
		bus:           bus,
		index:         index,
		checkInterval: checkInterval,
		deathDelay:    deathDelay,
		boundMap:      ecs.NewMap1[components.CellBound](w),
		metaMap:       ecs.NewMap1[components.Meta](w),
		remove:        func(ecs.Entity) {},
	}
	for slot := range g.living {
		g.living[slot] = make(map[CellID]struct{})
		g.pending[slot] = make(map[CellID]int64)
		g.required[slot] = make(map[CellID]struct{})
	}
	return g
}

// SetRemover installs the entity destruction hook used on cell death.
func (g *CellGrid) SetRemover(remove func(ecs.Entity)) {
	g.remove = remove
}

// IsActive reports whether a cell is living or still inside its
// pending-death grace window.
func (g *CellGrid) IsActive(id CellID, r components.CellResolution) bool {
	slot := resSlot(r)
	if _, ok := g.living[slot][id]; ok {
		return true
	}
	_, ok := g.pending[slot][id]
	return ok
}

// LivingCount returns the number of living cells at a resolution.
func (g *CellGrid) LivingCount(r components.CellResolution) int {
	return len(g.living[resSlot(r)])
}

// LivingCells returns the living cells at a resolution in ascending
// id order.
func (g *CellGrid) LivingCells(r components.CellResolution) []CellID {
	return sortedCells(g.living[resSlot(r)])
}

// Update runs one activation sweep. Sweeps only happen every
// checkInterval frames to bound cost; other frames return
// immediately. Activation events fire before this sweep's evictions,
// so content created by activation handlers is never destroyed in
// the tick it was created.
func (g *CellGrid) Update(frame int64, avatars []components.Position) {
	if frame%g.checkInterval != 0 {
		return
	}

	for slot := range g.required {
		clear(g.required[slot])
	}
	for _, pos := range avatars {
		neighborhoodInto(g.required[slotCoarse], pos.X, pos.Y, CellSize)
		neighborhoodInto(g.required[slotFine], pos.X, pos.Y, SubCellSize)
	}

	for slot := range g.living {
		g.sweepSlot(slot, frame)
	}
}

// neighborhoodInto unions the 3×3 cell neighborhood of a position
// into dst.
func neighborhoodInto(dst map[CellID]struct{}, x, y, size float64) {
	cx := cellCoord(x, size)
	cy := cellCoord(y, size)
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			dst[PackCell(cx+dx, cy+dy)] = struct{}{}
		}
	}
}

func (g *CellGrid) sweepSlot(slot int, frame int64) {
	required := g.required[slot]
	living := g.living[slot]
	pending := g.pending[slot]

	// Newly required cells. Sorted so event order matches on every
	// peer regardless of map traversal.
	var activated []CellID
	for id := range required {
		if _, ok := living[id]; ok {
			continue
		}
		if _, ok := pending[id]; ok {
			// Reactivated inside the grace window: un-pend without a
			// second activation notice.
			delete(pending, id)
			living[id] = struct{}{}
			continue
		}
		living[id] = struct{}{}
		activated = append(activated, id)
	}
	sort.Slice(activated, func(i, j int) bool { return activated[i] < activated[j] })
	for _, id := range activated {
		events.Publish(g.bus, events.CellStateChanged{
			Cell:       events.CellID(id),
			Resolution: slotRes(slot),
			Activated:  true,
		})
	}

	// Living cells no longer required start their grace window.
	var unrequired []CellID
	for id := range living {
		if _, ok := required[id]; !ok {
			unrequired = append(unrequired, id)
		}
	}
	sort.Slice(unrequired, func(i, j int) bool { return unrequired[i] < unrequired[j] })
	for _, id := range unrequired {
		delete(living, id)
		pending[id] = frame
	}

	// Pending cells past the grace window are evicted.
	var expired []CellID
	for id, stamp := range pending {
		if frame-stamp > g.deathDelay {
			expired = append(expired, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	for _, id := range expired {
		delete(pending, id)
		g.evict(id, slot)
	}
}

// evict removes every cell-bound entity of the matching resolution
// inside the cell's bounds, then announces the cell's death.
func (g *CellGrid) evict(id CellID, slot int) {
	minX, minY, maxX, maxY := CellBounds(id, slotSize(slot))
	g.found = g.index.FindBounds(g.found[:0], minX, minY, maxX, maxY, GroupCellDeath)
	res := slotRes(slot)
	for _, e := range g.found {
		bound := g.boundMap.Get(e)
		if bound == nil || bound.Resolution&res == 0 {
			continue
		}
		kind := components.KindShip
		if meta := g.metaMap.Get(e); meta != nil {
			kind = meta.Kind
		}
		g.remove(e)
		events.Publish(g.bus, events.EntityRemoved{Entity: e, Kind: kind})
	}
	events.Publish(g.bus, events.CellStateChanged{
		Cell:       events.CellID(id),
		Resolution: res,
		Activated:  false,
	})
}

// Packetize writes both resolution's living and pending sets in
// sorted key order.
func (g *CellGrid) Packetize(w *state.Writer) {
	for slot := range g.living {
		living := sortedCells(g.living[slot])
		w.PutInt(len(living))
		for _, id := range living {
			w.PutUint64(uint64(id))
		}

		pending := make([]CellID, 0, len(g.pending[slot]))
		for id := range g.pending[slot] {
			pending = append(pending, id)
		}
		sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })
		w.PutInt(len(pending))
		for _, id := range pending {
			w.PutUint64(uint64(id))
			w.PutInt64(g.pending[slot][id])
		}
	}
}

// Depacketize restores both set pairs.
func (g *CellGrid) Depacketize(r *state.Reader) error {
	for slot := range g.living {
		clear(g.living[slot])
		n := r.Int()
		for i := 0; i < n; i++ {
			g.living[slot][CellID(r.Uint64())] = struct{}{}
		}

		clear(g.pending[slot])
		n = r.Int()
		for i := 0; i < n; i++ {
			id := CellID(r.Uint64())
			g.pending[slot][id] = r.Int64()
		}
	}
	return r.Err()
}

func sortedCells(set map[CellID]struct{}) []CellID {
	out := make([]CellID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
