// Package telemetry aggregates simulation events into time windows
// and writes them to CSV for offline analysis.
package telemetry

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartFrame int64   `csv:"-"`
	WindowEndFrame   int64   `csv:"window_end"`
	SimTimeSec       float64 `csv:"sim_time"`

	// Grid occupancy at window end
	ActiveCoarseCells int `csv:"active_coarse_cells"`
	ActiveFineCells   int `csv:"active_fine_cells"`
	Entities          int `csv:"entities"`

	// Events during window
	CellActivations   int `csv:"cell_activations"`
	CellDeactivations int `csv:"cell_deactivations"`
	ShipsSpawned      int `csv:"ships_spawned"`
	EntitiesRemoved   int `csv:"entities_removed"`

	// Combat
	DamageEvents int     `csv:"damage_events"`
	ShieldBlocks int     `csv:"shield_blocks"`
	DamageTotal  float64 `csv:"damage_total"`
	BlockRate    float64 `csv:"block_rate"`

	// Gravitation
	Dockings int `csv:"dockings"`
}
