package tiling

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
)

// Vec3 is a plain 3D point, independent of citymodel.Vertex so this
// package has no dependency on the domain model — it tessellates whatever
// ring coordinates a caller hands it.
type Vec3 [3]float64

// Triangle is three vertex indices into the ring slice a caller supplies
// to Triangulate (exterior ring followed by holes, concatenated in the
// order Triangulate documents).
type Triangle [3]int

// Triangulate ear-cuts a polygon (an exterior ring plus zero or more
// holes, each a closed loop of 3D points) into triangles. It first
// projects every ring onto the 2D plane whose normal axis has the
// largest absolute component of the polygon's best-fit normal (the
// largest-projected-area axis), per the tile writer's "best-fit plane"
// rule, bridges holes into the exterior ring by nearest-vertex
// connection, then ear-clips the resulting simple polygon in 2D.
// Triangle indices reference positions in the concatenated
// exterior+holes point list Triangulate returns alongside the triangles.
func Triangulate(exterior []Vec3, holes [][]Vec3) ([]Vec3, []Triangle, error) {
	if len(exterior) < 3 {
		return nil, nil, fmt.Errorf("tiling: exterior ring has fewer than 3 points")
	}

	points, ring2D := bridgeHoles(exterior, holes)
	axis := dominantAxis(points)
	proj := project(points, axis)

	tris, err := earClip(proj, ring2D)
	if err != nil {
		return nil, nil, err
	}
	return points, tris, nil
}

// bridgeHoles flattens exterior+holes into one point list and one ring of
// indices into it, connecting each hole to the exterior (or a
// already-bridged ring) via the pair of vertices with the smallest
// Euclidean distance between the two loops — the standard technique for
// reducing a polygon-with-holes to a single simple polygon ear-clipping
// can consume directly.
func bridgeHoles(exterior []Vec3, holes [][]Vec3) ([]Vec3, []int) {
	points := append([]Vec3(nil), exterior...)
	ring := make([]int, len(exterior))
	for i := range ring {
		ring[i] = i
	}

	for _, hole := range holes {
		if len(hole) < 3 {
			continue
		}
		holeStart := len(points)
		points = append(points, hole...)
		holeRing := make([]int, len(hole))
		for i := range holeRing {
			holeRing[i] = holeStart + i
		}
		ring = bridge(points, ring, holeRing)
	}
	return points, ring
}

// bridge splices holeRing into ring at the nearest pair of vertices,
// duplicating the bridge endpoints as ear-clipping over a polygon with a
// degenerate zero-width channel requires.
func bridge(points []Vec3, ring, holeRing []int) []int {
	bestI, bestJ := 0, 0
	bestDist := math.Inf(1)
	for i, pi := range ring {
		for j, pj := range holeRing {
			d := dist(points[pi], points[pj])
			if d < bestDist {
				bestDist, bestI, bestJ = d, i, j
			}
		}
	}

	out := make([]int, 0, len(ring)+len(holeRing)+2)
	out = append(out, ring[:bestI+1]...)
	out = append(out, holeRing[bestJ:]...)
	out = append(out, holeRing[:bestJ+1]...)
	out = append(out, ring[bestI:]...)
	return out
}

func dist(a, b Vec3) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// dominantAxis returns 0/1/2 for the X/Y/Z axis to drop when projecting to
// 2D: the one whose removal keeps the largest projected area, found via
// Newell's method for the polygon's normal.
func dominantAxis(points []Vec3) int {
	var nx, ny, nz float64
	for i := range points {
		a := points[i]
		b := points[(i+1)%len(points)]
		nx += (a[1] - b[1]) * (a[2] + b[2])
		ny += (a[2] - b[2]) * (a[0] + b[0])
		nz += (a[0] - b[0]) * (a[1] + b[1])
	}
	ax, ay, az := math.Abs(nx), math.Abs(ny), math.Abs(nz)
	switch {
	case ax >= ay && ax >= az:
		return 0
	case ay >= ax && ay >= az:
		return 1
	default:
		return 2
	}
}

type vec2 struct{ x, y float64 }

func project(points []Vec3, dropAxis int) []vec2 {
	out := make([]vec2, len(points))
	for i, p := range points {
		switch dropAxis {
		case 0:
			out[i] = vec2{p[1], p[2]}
		case 1:
			out[i] = vec2{p[0], p[2]}
		default:
			out[i] = vec2{p[0], p[1]}
		}
	}
	return out
}

// earClip triangulates the simple polygon described by ring (indices into
// proj) using the standard O(n^2) ear-clipping algorithm.
func earClip(proj []vec2, ring []int) ([]Triangle, error) {
	remaining := append([]int(nil), ring...)
	var tris []Triangle

	ccw := signedArea(proj, ring) > 0

	guard := 0
	for len(remaining) > 3 {
		guard++
		if guard > len(ring)*len(ring)+16 {
			return nil, fmt.Errorf("tiling: ear-clip did not converge on a %d-point ring", len(ring))
		}
		earFound := false
		for i := range remaining {
			i0 := remaining[(i-1+len(remaining))%len(remaining)]
			i1 := remaining[i]
			i2 := remaining[(i+1)%len(remaining)]
			if !isEar(proj, remaining, i0, i1, i2, ccw) {
				continue
			}
			tris = append(tris, Triangle{i0, i1, i2})
			remaining = append(remaining[:i], remaining[i+1:]...)
			earFound = true
			break
		}
		if !earFound {
			return nil, fmt.Errorf("tiling: no ear found on a %d-point ring (self-intersecting or degenerate polygon)", len(remaining))
		}
	}
	if len(remaining) == 3 {
		tris = append(tris, Triangle{remaining[0], remaining[1], remaining[2]})
	}
	return tris, nil
}

// signedArea returns twice the polygon's signed area (shoelace formula,
// positive for counter-clockwise winding), used to pick which cross-product
// sign means "convex" for this ring regardless of its source winding order.
func signedArea(proj []vec2, ring []int) float64 {
	var sum float64
	for i, idx := range ring {
		next := ring[(i+1)%len(ring)]
		sum += proj[idx].x*proj[next].y - proj[next].x*proj[idx].y
	}
	return sum
}

func isEar(proj []vec2, ring []int, i0, i1, i2 int, ccw bool) bool {
	a, b, c := proj[i0], proj[i1], proj[i2]
	turn := cross(a, b, c)
	if ccw && turn <= 0 {
		return false // reflex vertex, not convex
	}
	if !ccw && turn >= 0 {
		return false
	}
	for _, idx := range ring {
		if idx == i0 || idx == i1 || idx == i2 {
			continue
		}
		if pointInTriangle(proj[idx], a, b, c) {
			return false
		}
	}
	return true
}

func cross(a, b, c vec2) float64 {
	return (b.x-a.x)*(c.y-a.y) - (b.y-a.y)*(c.x-a.x)
}

func pointInTriangle(p, a, b, c vec2) bool {
	d1 := cross(p, a, b)
	d2 := cross(p, b, c)
	d3 := cross(p, c, a)
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}

// TriangulateOrWarn is the tile-writer entry point: a failed ear-cut on
// one polygon is logged and the polygon dropped, not the whole tile.
func TriangulateOrWarn(exterior []Vec3, holes [][]Vec3, surfaceID string) ([]Vec3, []Triangle, bool) {
	points, tris, err := Triangulate(exterior, holes)
	if err != nil {
		log.Warnf("tiling: dropping polygon %q: %v", surfaceID, err)
		return nil, nil, false
	}
	return points, tris, true
}
