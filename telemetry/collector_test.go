package telemetry

import (
	"math"
	"testing"
)

func TestFlushAggregatesWindow(t *testing.T) {
	c := NewCollector(100, 0.05)

	c.RecordActivation()
	c.RecordActivation()
	c.RecordDeactivation()
	c.RecordSpawn()
	c.RecordDamage(10)
	c.RecordDamage(30)
	c.RecordBlock()
	c.RecordDockings(3)

	stats := c.Flush(100, 9, 18, 42)

	if stats.CellActivations != 2 || stats.CellDeactivations != 1 {
		t.Errorf("cell counters = %d/%d", stats.CellActivations, stats.CellDeactivations)
	}
	if stats.ShipsSpawned != 1 {
		t.Errorf("spawned = %d", stats.ShipsSpawned)
	}
	if stats.DamageEvents != 2 || stats.DamageTotal != 40 {
		t.Errorf("damage = %d events, %v total", stats.DamageEvents, stats.DamageTotal)
	}
	if stats.Dockings != 3 {
		t.Errorf("dockings = %d", stats.Dockings)
	}
	if stats.ActiveCoarseCells != 9 || stats.ActiveFineCells != 18 || stats.Entities != 42 {
		t.Errorf("occupancy = %d/%d/%d", stats.ActiveCoarseCells, stats.ActiveFineCells, stats.Entities)
	}
	if math.Abs(stats.SimTimeSec-5.0) > 1e-9 {
		t.Errorf("sim time = %v, want 5", stats.SimTimeSec)
	}
}

func TestBlockRate(t *testing.T) {
	c := NewCollector(10, 0.05)
	c.RecordDamage(5)
	c.RecordDamage(5)
	c.RecordDamage(5)
	c.RecordBlock()

	stats := c.Flush(10, 0, 0, 0)
	if math.Abs(stats.BlockRate-0.25) > 1e-9 {
		t.Errorf("block rate = %v, want 0.25", stats.BlockRate)
	}
}

func TestFlushResetsCounters(t *testing.T) {
	c := NewCollector(10, 0.05)
	c.RecordSpawn()
	c.RecordDamage(10)
	c.Flush(10, 0, 0, 0)

	stats := c.Flush(20, 0, 0, 0)
	if stats.ShipsSpawned != 0 || stats.DamageEvents != 0 || stats.DamageTotal != 0 {
		t.Errorf("counters survived a flush: %+v", stats)
	}
	if stats.WindowStartFrame != 10 || stats.WindowEndFrame != 20 {
		t.Errorf("window = [%d, %d]", stats.WindowStartFrame, stats.WindowEndFrame)
	}
}

func TestShouldFlush(t *testing.T) {
	c := NewCollector(100, 0.05)
	if c.ShouldFlush(99) {
		t.Error("flushed early")
	}
	if !c.ShouldFlush(100) {
		t.Error("did not flush on the boundary")
	}
	c.Flush(100, 0, 0, 0)
	if c.ShouldFlush(150) {
		t.Error("flushed mid-window after reset")
	}
	if !c.ShouldFlush(200) {
		t.Error("did not flush the second window")
	}
}

func TestMinimumWindow(t *testing.T) {
	c := NewCollector(0, 0.05)
	if c.WindowFrames() != 1 {
		t.Errorf("window frames = %d, want clamp to 1", c.WindowFrames())
	}
}
