package main

import "testing"

func TestSpatialGridInsertAndQuery(t *testing.T) {
	grid := NewSpatialGrid(ArenaWidth, ArenaHeight)
	grid.Clear()

	ref := EntityRef{Kind: 's', Idx: 0}
	grid.Insert(100, 100, ref)

	// Query around (100,100) should find it
	results := grid.Query(100, 100, 50)
	found := false
	for _, r := range results {
		if r.Kind == 's' && r.Idx == 0 {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected to find entity at (100,100)")
	}

	// Query far away should not find it
	results = grid.Query(700, 500, 50)
	for _, r := range results {
		if r.Kind == 's' && r.Idx == 0 {
			t.Error("should not find entity at (700,500)")
		}
	}
}

func TestSpatialGridClear(t *testing.T) {
	grid := NewSpatialGrid(ArenaWidth, ArenaHeight)

	grid.Insert(500, 500, EntityRef{Kind: 'd', Idx: 0})
	grid.Clear()

	results := grid.Query(500, 500, 100)
	if len(results) != 0 {
		t.Errorf("expected 0 results after clear, got %d", len(results))
	}
}

func TestSpatialGridInsertCircle(t *testing.T) {
	grid := NewSpatialGrid(ArenaWidth, ArenaHeight)

	// Insert a large entity spanning multiple cells
	grid.InsertCircle(160, 160, 40, EntityRef{Kind: 's', Idx: 0})

	// Query at the edge of its bounding box should find it
	results := grid.Query(120, 120, 5)
	found := false
	for _, r := range results {
		if r.Kind == 's' && r.Idx == 0 {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected to find circle entity near its edge")
	}
}

func TestSpatialGridBoundaryClamp(t *testing.T) {
	grid := NewSpatialGrid(ArenaWidth, ArenaHeight)

	// Negative coords should clamp to 0
	grid.Insert(-10, -10, EntityRef{Kind: 's', Idx: 0})
	results := grid.Query(0, 0, 50)
	found := false
	for _, r := range results {
		if r.Kind == 's' && r.Idx == 0 {
			found = true
		}
	}
	if !found {
		t.Error("expected to find entity inserted at negative coords")
	}

	// Beyond arena edge should clamp to max
	grid.Insert(ArenaWidth+500, ArenaHeight+500, EntityRef{Kind: 's', Idx: 1})
	results = grid.Query(ArenaWidth, ArenaHeight, 50)
	found = false
	for _, r := range results {
		if r.Kind == 's' && r.Idx == 1 {
			found = true
		}
	}
	if !found {
		t.Error("expected to find entity inserted beyond arena edge")
	}
}
