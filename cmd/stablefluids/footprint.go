package main

type gridOffset struct {
	dx int
	dy int
}

var markerFootprint = precomputeRing(pointerMarkerRadius)

// precomputeRing returns the offsets on the outline of a disc of the given
// radius.
func precomputeRing(radius int) []gridOffset {
	footprint := make([]gridOffset, 0, 8*radius)
	outer := radius * radius
	inner := (radius - 1) * (radius - 1)
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			d := x*x + y*y
			if d <= outer && d > inner {
				footprint = append(footprint, gridOffset{dx: x, dy: y})
			}
		}
	}
	return footprint
}
