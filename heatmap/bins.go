package heatmap

import (
	"math"

	"hotspot/api/models"
)

const (
	pointGrid = 10 // px, click and move
	bandGrid  = 50 // px, scroll depth

	// scrollBandWidth marks a scroll record as a full-width band.
	scrollBandWidth = 1920
)

// quantize snaps v to the nearest multiple of step. Ties go to the even
// multiple, so 15 -> 20 and 25 -> 20.
func quantize(v, step int) int {
	return int(math.RoundToEven(float64(v)/float64(step))) * step
}

type cell struct{ x, y int }

// bins counts hits per cell and remembers the order cells first appeared.
type bins struct {
	counts map[cell]int
	order  []cell
	max    int
}

func newBins() *bins {
	return &bins{counts: make(map[cell]int)}
}

func (b *bins) add(c cell) {
	n, seen := b.counts[c]
	if !seen {
		b.order = append(b.order, c)
	}
	n++
	b.counts[c] = n
	if n > b.max {
		b.max = n
	}
}

// addEvent bins one event's coordinates. Events without usable coordinates
// are ignored.
func (b *bins) addEvent(kind models.HeatmapKind, e *models.Event) {
	switch kind {
	case models.HeatmapClick, models.HeatmapMove:
		x, okX := e.IntField("x")
		y, okY := e.IntField("y")
		if !okX || !okY {
			return
		}
		b.add(cell{x: quantize(x, pointGrid), y: quantize(y, pointGrid)})
	case models.HeatmapScroll:
		y, ok := e.IntField("y")
		if !ok {
			return
		}
		b.add(cell{x: 0, y: quantize(y, bandGrid)})
	}
}

func (b *bins) points(kind models.HeatmapKind) []models.HeatmapPoint {
	out := make([]models.HeatmapPoint, 0, len(b.order))
	for _, c := range b.order {
		p := models.HeatmapPoint{X: c.x, Y: c.y, Value: b.counts[c]}
		if kind == models.HeatmapScroll {
			w := scrollBandWidth
			p.Width = &w
		}
		out = append(out, p)
	}
	return out
}
