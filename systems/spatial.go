package systems

import (
	"sort"

	"github.com/mlange-42/ark/ecs"
)

// Group tags a spatial index population. Queries only see entities
// inserted under the same group.
type Group uint8

const (
	// GroupGravitation indexes attractees for the gravitation solver.
	GroupGravitation Group = iota
	// GroupCellDeath indexes cell-bound entities for cell cleanup.
	GroupCellDeath
	// GroupRadar indexes everything visible to vicinity queries.
	GroupRadar

	numGroups
)

type spatialEntry struct {
	entity ecs.Entity
	x, y   float64
}

type spatialSlot struct {
	group  Group
	bucket CellID
	x, y   float64
}

// SpatialIndex is a hash-grid range-query index over entity
// positions. The world is unbounded, so buckets live in maps rather
// than a flat array. An entity may be indexed under several groups;
// Remove clears it from all of them. Query results are returned
// sorted by entity id so iteration order never depends on map
// traversal.
type SpatialIndex struct {
	cellSize float64
	buckets  [numGroups]map[CellID][]spatialEntry
	slots    map[ecs.Entity][]spatialSlot
}

// NewSpatialIndex creates an index with the given bucket edge length.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	idx := &SpatialIndex{
		cellSize: cellSize,
		slots:    make(map[ecs.Entity][]spatialSlot),
	}
	for g := range idx.buckets {
		idx.buckets[g] = make(map[CellID][]spatialEntry)
	}
	return idx
}

func (idx *SpatialIndex) bucketFor(x, y float64) CellID {
	return PackCell(cellCoord(x, idx.cellSize), cellCoord(y, idx.cellSize))
}

// Insert adds an entity under a group. Re-inserting under the same
// group replaces the previous slot.
func (idx *SpatialIndex) Insert(e ecs.Entity, x, y float64, group Group) {
	idx.removeGroup(e, group)
	b := idx.bucketFor(x, y)
	idx.buckets[group][b] = append(idx.buckets[group][b], spatialEntry{entity: e, x: x, y: y})
	idx.slots[e] = append(idx.slots[e], spatialSlot{group: group, bucket: b, x: x, y: y})
}

// Move updates an entity's indexed position in every group.
func (idx *SpatialIndex) Move(e ecs.Entity, x, y float64) {
	slots, ok := idx.slots[e]
	if !ok {
		return
	}
	groups := make([]Group, len(slots))
	for i, slot := range slots {
		groups[i] = slot.group
	}
	idx.Remove(e)
	for _, g := range groups {
		idx.Insert(e, x, y, g)
	}
}

// Remove drops an entity from every group. Removing an unknown
// entity is a no-op.
func (idx *SpatialIndex) Remove(e ecs.Entity) {
	slots, ok := idx.slots[e]
	if !ok {
		return
	}
	for _, slot := range slots {
		idx.dropFromBucket(e, slot)
	}
	delete(idx.slots, e)
}

func (idx *SpatialIndex) removeGroup(e ecs.Entity, group Group) {
	slots, ok := idx.slots[e]
	if !ok {
		return
	}
	for i, slot := range slots {
		if slot.group == group {
			idx.dropFromBucket(e, slot)
			slots[i] = slots[len(slots)-1]
			slots = slots[:len(slots)-1]
			break
		}
	}
	if len(slots) == 0 {
		delete(idx.slots, e)
	} else {
		idx.slots[e] = slots
	}
}

func (idx *SpatialIndex) dropFromBucket(e ecs.Entity, slot spatialSlot) {
	bucket := idx.buckets[slot.group][slot.bucket]
	for i := range bucket {
		if bucket[i].entity == e {
			bucket[i] = bucket[len(bucket)-1]
			bucket = bucket[:len(bucket)-1]
			break
		}
	}
	if len(bucket) == 0 {
		delete(idx.buckets[slot.group], slot.bucket)
	} else {
		idx.buckets[slot.group][slot.bucket] = bucket
	}
}

// Contains reports whether the entity is indexed under the group.
func (idx *SpatialIndex) Contains(e ecs.Entity, group Group) bool {
	for _, slot := range idx.slots[e] {
		if slot.group == group {
			return true
		}
	}
	return false
}

// FindRadius appends all entities of a group within radius of (x, y)
// to dst and returns the updated slice, sorted by entity id. Reuse
// dst across calls to avoid allocations.
func (idx *SpatialIndex) FindRadius(dst []ecs.Entity, x, y, radius float64, group Group) []ecs.Entity {
	minCX := cellCoord(x-radius, idx.cellSize)
	maxCX := cellCoord(x+radius, idx.cellSize)
	minCY := cellCoord(y-radius, idx.cellSize)
	maxCY := cellCoord(y+radius, idx.cellSize)
	radiusSq := radius * radius

	start := len(dst)
	for cx := minCX; cx <= maxCX; cx++ {
		for cy := minCY; cy <= maxCY; cy++ {
			for _, entry := range idx.buckets[group][PackCell(cx, cy)] {
				dx := entry.x - x
				dy := entry.y - y
				if dx*dx+dy*dy <= radiusSq {
					dst = append(dst, entry.entity)
				}
			}
		}
	}
	found := dst[start:]
	sort.Slice(found, func(i, j int) bool { return found[i].ID() < found[j].ID() })
	return dst
}

// FindBounds appends all entities of a group inside the rectangle
// [minX, maxX) × [minY, maxY) to dst, sorted by entity id.
func (idx *SpatialIndex) FindBounds(dst []ecs.Entity, minX, minY, maxX, maxY float64, group Group) []ecs.Entity {
	minCX := cellCoord(minX, idx.cellSize)
	maxCX := cellCoord(maxX, idx.cellSize)
	minCY := cellCoord(minY, idx.cellSize)
	maxCY := cellCoord(maxY, idx.cellSize)

	start := len(dst)
	for cx := minCX; cx <= maxCX; cx++ {
		for cy := minCY; cy <= maxCY; cy++ {
			for _, entry := range idx.buckets[group][PackCell(cx, cy)] {
				if entry.x >= minX && entry.x < maxX && entry.y >= minY && entry.y < maxY {
					dst = append(dst, entry.entity)
				}
			}
		}
	}
	found := dst[start:]
	sort.Slice(found, func(i, j int) bool { return found[i].ID() < found[j].ID() })
	return dst
}
