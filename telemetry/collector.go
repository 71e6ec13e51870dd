package telemetry

// Collector accumulates events within time windows and produces
// WindowStats.
type Collector struct {
	windowFrames int64
	dt           float64

	windowStartFrame int64

	// Event counters for the current window
	activations   int
	deactivations int
	spawned       int
	removed       int
	damageEvents  int
	blocks        int
	damageTotal   float64
	dockings      int
}

// NewCollector creates a collector. windowFrames is the window length
// in simulation frames; dt is seconds per frame.
func NewCollector(windowFrames int64, dt float64) *Collector {
	if windowFrames < 1 {
		windowFrames = 1
	}
	return &Collector{windowFrames: windowFrames, dt: dt}
}

// RecordActivation records a cell activation.
func (c *Collector) RecordActivation() {
	c.activations++
}

// RecordDeactivation records a cell deactivation.
func (c *Collector) RecordDeactivation() {
	c.deactivations++
}

// RecordSpawn records a spawned ship.
func (c *Collector) RecordSpawn() {
	c.spawned++
}

// RecordRemoval records a removed entity.
func (c *Collector) RecordRemoval() {
	c.removed++
}

// RecordDamage records a damage event with its base amount.
func (c *Collector) RecordDamage(amount float64) {
	c.damageEvents++
	c.damageTotal += amount
}

// RecordBlock records a shield block.
func (c *Collector) RecordBlock() {
	c.blocks++
}

// RecordDockings adds the docking count of one tick.
func (c *Collector) RecordDockings(n int) {
	c.dockings += n
}

// ShouldFlush returns true when the current window is full.
func (c *Collector) ShouldFlush(frame int64) bool {
	return frame-c.windowStartFrame >= c.windowFrames
}

// Flush produces a WindowStats and resets counters for the next
// window. The caller supplies the occupancy snapshot.
func (c *Collector) Flush(frame int64, coarseCells, fineCells, entities int) WindowStats {
	var blockRate float64
	if attempts := c.damageEvents + c.blocks; attempts > 0 {
		blockRate = float64(c.blocks) / float64(attempts)
	}

	stats := WindowStats{
		WindowStartFrame:  c.windowStartFrame,
		WindowEndFrame:    frame,
		SimTimeSec:        float64(frame) * c.dt,
		ActiveCoarseCells: coarseCells,
		ActiveFineCells:   fineCells,
		Entities:          entities,
		CellActivations:   c.activations,
		CellDeactivations: c.deactivations,
		ShipsSpawned:      c.spawned,
		EntitiesRemoved:   c.removed,
		DamageEvents:      c.damageEvents,
		ShieldBlocks:      c.blocks,
		DamageTotal:       c.damageTotal,
		BlockRate:         blockRate,
		Dockings:          c.dockings,
	}

	c.windowStartFrame = frame
	c.activations = 0
	c.deactivations = 0
	c.spawned = 0
	c.removed = 0
	c.damageEvents = 0
	c.blocks = 0
	c.damageTotal = 0
	c.dockings = 0

	return stats
}

// WindowFrames returns the window length in frames.
func (c *Collector) WindowFrames() int64 {
	return c.windowFrames
}
