// Package systems provides the simulation systems of the core.
package systems

import "math"

// Grid resolutions in world units.
const (
	// CellSizeShift is the coarse cell size as a power of two.
	CellSizeShift = 11
	// SubCellSizeShift is the fine sub-cell size as a power of two.
	SubCellSizeShift = 8

	// CellSize is the edge length of a coarse cell.
	CellSize = 1 << CellSizeShift
	// SubCellSize is the edge length of a fine sub-cell.
	SubCellSize = 1 << SubCellSizeShift
)

// CellID packs the two signed 32-bit grid coordinates of a cell.
// Packing is bijective over the full coordinate range.
type CellID uint64

// PackCell combines two grid coordinates into a single id.
func PackCell(x, y int32) CellID {
	return CellID(uint64(uint32(x))<<32 | uint64(uint32(y)))
}

// UnpackCell recovers the grid coordinates from an id.
func UnpackCell(id CellID) (x, y int32) {
	return int32(uint32(id >> 32)), int32(uint32(id))
}

// cellCoord floor-divides a world coordinate into a grid coordinate.
func cellCoord(p float64, size float64) int32 {
	return int32(math.Floor(p / size))
}

// CellAt returns the coarse cell containing a world position.
func CellAt(x, y float64) CellID {
	return PackCell(cellCoord(x, CellSize), cellCoord(y, CellSize))
}

// SubCellAt returns the fine sub-cell containing a world position.
func SubCellAt(x, y float64) CellID {
	return PackCell(cellCoord(x, SubCellSize), cellCoord(y, SubCellSize))
}

// CellBounds returns the world-space bounds (min inclusive, max
// exclusive) of a cell at the given edge length.
func CellBounds(id CellID, size float64) (minX, minY, maxX, maxY float64) {
	x, y := UnpackCell(id)
	minX = float64(x) * size
	minY = float64(y) * size
	return minX, minY, minX + size, minY + size
}
