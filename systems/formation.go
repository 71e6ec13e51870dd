package systems

// FormationType identifies the shape of a squad formation.
type FormationType uint8

const (
	FormationLine FormationType = iota
	FormationColumn
	FormationVee
	FormationWedge
	FormationFilledWedge
	FormationBlock
	FormationSierpinski

	// NumFormations is the number of formation variants.
	NumFormations
)

// String returns a short name for the formation.
func (ft FormationType) String() string {
	switch ft {
	case FormationLine:
		return "line"
	case FormationColumn:
		return "column"
	case FormationVee:
		return "vee"
	case FormationWedge:
		return "wedge"
	case FormationFilledWedge:
		return "filled-wedge"
	case FormationBlock:
		return "block"
	case FormationSierpinski:
		return "sierpinski"
	}
	return "unknown"
}

// Offset is a unit-space formation slot, X forward and Y to the
// right of the leader's heading. Spacing and rotation are applied by
// the squad engine.
type Offset struct {
	X, Y float64
}

// A formation generator is a pure infinite sequence of unit offsets
// indexed by member rank. Every generator emits the zero vector
// first; the leader has no self-offset.
type generator func() Offset

// newGenerator returns a fresh sequence for a formation type.
func newGenerator(ft FormationType) generator {
	switch ft {
	case FormationLine:
		return lineGenerator()
	case FormationColumn:
		return columnGenerator()
	case FormationVee:
		return veeGenerator(1)
	case FormationWedge:
		return veeGenerator(2)
	case FormationFilledWedge:
		return filledWedgeGenerator()
	case FormationBlock:
		return blockGenerator()
	case FormationSierpinski:
		return sierpinskiGenerator()
	}
	return lineGenerator()
}

// lineGenerator spreads members sideways, alternating right and left.
func lineGenerator() generator {
	i := 0
	return func() Offset {
		defer func() { i++ }()
		if i == 0 {
			return Offset{}
		}
		side := float64((i + 1) / 2)
		if i%2 == 0 {
			side = -side
		}
		return Offset{X: 0, Y: side}
	}
}

// columnGenerator places members single file behind the leader.
func columnGenerator() generator {
	i := 0
	return func() Offset {
		defer func() { i++ }()
		return Offset{X: -float64(i), Y: 0}
	}
}

// veeGenerator trails members behind and outward, alternating sides.
// spread widens the lateral step relative to the depth step; 1 gives
// the vee, 2 the open wedge.
func veeGenerator(spread float64) generator {
	i := 0
	return func() Offset {
		defer func() { i++ }()
		if i == 0 {
			return Offset{}
		}
		k := float64((i + 1) / 2)
		side := k * spread
		if i%2 == 0 {
			side = -side
		}
		return Offset{X: -k, Y: side}
	}
}

// filledWedgeGenerator packs members into closed triangular rows:
// row r holds r+1 members centered behind the leader.
func filledWedgeGenerator() generator {
	row, col := 0, 0
	return func() Offset {
		off := Offset{X: -float64(row), Y: float64(col) - float64(row)/2}
		col++
		if col > row {
			row++
			col = 0
		}
		return off
	}
}

// blockGenerator grows a compact rectangle by alternating column and
// row extensions: shell s first adds the two side columns at lateral
// ±s, then the back row at depth s.
func blockGenerator() generator {
	type cell struct{ depth, lat int }
	var queue []cell
	shell := 0
	return func() Offset {
		if len(queue) == 0 {
			if shell == 0 {
				shell++
				return Offset{}
			}
			for depth := 0; depth < shell; depth++ {
				queue = append(queue, cell{depth, shell}, cell{depth, -shell})
			}
			for lat := -shell; lat <= shell; lat++ {
				queue = append(queue, cell{shell, lat})
			}
			shell++
		}
		c := queue[0]
		queue = queue[1:]
		return Offset{X: -float64(c.depth), Y: float64(c.lat)}
	}
}

// sierpinskiGenerator filters the filled wedge down to the slots
// whose binomial coefficient is odd: a slot at row r, column c
// survives when c AND (r-c) has no common bits. Number theory, not
// randomness.
func sierpinskiGenerator() generator {
	row, col := 0, 0
	return func() Offset {
		for {
			r, c := row, col
			col++
			if col > row {
				row++
				col = 0
			}
			if c&(r-c) == 0 {
				return Offset{X: -float64(r), Y: float64(c) - float64(r)/2}
			}
		}
	}
}

// FormationCache memoizes the offset sequence of one squad's
// formation, expanding the underlying generator on demand so
// repeated lookups are O(1).
type FormationCache struct {
	next    generator
	offsets []Offset
}

// NewFormationCache creates a cache over a fresh generator.
func NewFormationCache(ft FormationType) *FormationCache {
	return &FormationCache{next: newGenerator(ft)}
}

// At returns the unit offset for a member rank.
func (c *FormationCache) At(i int) Offset {
	for len(c.offsets) <= i {
		c.offsets = append(c.offsets, c.next())
	}
	return c.offsets[i]
}
