package service

import (
	"math"
	"sort"

	"github.com/TIANLI0/MatteKit/model"
)

// 面部轮廓的关键点路径（468/478 点人脸网格的下标）
var (
	faceOvalPath = []int{
		10, 338, 297, 332, 284, 251, 389, 356, 454, 323, 361, 288, 397, 365, 379, 378, 400, 377,
		152, 148, 176, 149, 150, 136, 172, 58, 132, 93, 234, 127, 162, 21, 54, 103, 67, 109, 10,
	}
	lipsPaths = [][]int{
		{61, 146, 91, 181, 84, 17, 314, 405, 321, 375, 291},
		{61, 185, 40, 39, 37, 0, 267, 269, 270, 409, 291},
		{78, 95, 88, 178, 87, 14, 317, 402, 318, 324, 308},
		{78, 191, 80, 81, 82, 13, 312, 311, 310, 415, 308},
	}
	leftEyePaths = [][]int{
		{263, 249, 390, 373, 374, 380, 381, 382, 362},
		{263, 466, 388, 387, 386, 385, 384, 398, 362},
	}
	leftEyebrowPaths = [][]int{
		{276, 283, 282, 295, 285},
		{300, 293, 334, 296, 336},
	}
	rightEyePaths = [][]int{
		{33, 7, 163, 144, 145, 153, 154, 155, 133},
		{33, 246, 161, 160, 159, 158, 157, 173, 133},
	}
	rightEyebrowPaths = [][]int{
		{46, 53, 52, 65, 55},
		{70, 63, 105, 66, 107},
	}
)

// contourTopologies 返回各轮廓的连线
func contourTopologies() map[string][]model.Connection {
	return map[string][]model.Connection{
		model.TopologyFaceOval:     pathConnections(faceOvalPath),
		model.TopologyLips:         pathConnections(lipsPaths...),
		model.TopologyLeftEye:      pathConnections(leftEyePaths...),
		model.TopologyLeftEyebrow:  pathConnections(leftEyebrowPaths...),
		model.TopologyRightEye:     pathConnections(rightEyePaths...),
		model.TopologyRightEyebrow: pathConnections(rightEyebrowPaths...),
	}
}

func pathConnections(paths ...[]int) []model.Connection {
	var conns []model.Connection
	for _, p := range paths {
		for i := 1; i < len(p); i++ {
			conns = append(conns, model.Connection{From: p[i-1], To: p[i]})
		}
	}
	return conns
}

type triangle struct {
	v      [3]int
	cx, cy float64
	r2     float64
}

type edgeKey struct{ a, b int }

func newEdgeKey(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// tesselation 对关键点做 Delaunay 三角剖分（Bowyer-Watson），返回去重后的边，按下标排序
func tesselation(points []model.Landmark) []model.Connection {
	n := len(points)
	if n < 3 {
		return nil
	}

	xs := make([]float64, n, n+3)
	ys := make([]float64, n, n+3)
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i, p := range points {
		xs[i], ys[i] = p.X, p.Y
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	// 包含所有点的超级三角形
	d := math.Max(maxX-minX, maxY-minY)
	if d == 0 {
		d = 1
	}
	midX, midY := (minX+maxX)/2, (minY+maxY)/2
	xs = append(xs, midX-20*d, midX, midX+20*d)
	ys = append(ys, midY-d, midY+20*d, midY-d)

	tris := []triangle{makeTriangle(xs, ys, n, n+1, n+2)}
	for i := 0; i < n; i++ {
		px, py := xs[i], ys[i]

		boundary := make(map[edgeKey]int)
		kept := tris[:0:0]
		for _, t := range tris {
			dx, dy := px-t.cx, py-t.cy
			if dx*dx+dy*dy <= t.r2 {
				for j := 0; j < 3; j++ {
					boundary[newEdgeKey(t.v[j], t.v[(j+1)%3])]++
				}
				continue
			}
			kept = append(kept, t)
		}

		for e, count := range boundary {
			if count == 1 {
				kept = append(kept, makeTriangle(xs, ys, e.a, e.b, i))
			}
		}
		tris = kept
	}

	seen := make(map[edgeKey]struct{})
	for _, t := range tris {
		if t.v[0] >= n || t.v[1] >= n || t.v[2] >= n {
			continue
		}
		for j := 0; j < 3; j++ {
			seen[newEdgeKey(t.v[j], t.v[(j+1)%3])] = struct{}{}
		}
	}

	conns := make([]model.Connection, 0, len(seen))
	for e := range seen {
		conns = append(conns, model.Connection{From: e.a, To: e.b})
	}
	sort.Slice(conns, func(i, j int) bool {
		if conns[i].From != conns[j].From {
			return conns[i].From < conns[j].From
		}
		return conns[i].To < conns[j].To
	})
	return conns
}

func makeTriangle(xs, ys []float64, a, b, c int) triangle {
	ax, ay := xs[a], ys[a]
	bx, by := xs[b], ys[b]
	cx, cy := xs[c], ys[c]

	det := 2 * (ax*(by-cy) + bx*(cy-ay) + cx*(ay-by))
	t := triangle{v: [3]int{a, b, c}}
	if math.Abs(det) < 1e-12 {
		// 退化三角形，下一个点插入时必然被移除
		t.r2 = math.Inf(1)
		return t
	}

	a2 := ax*ax + ay*ay
	b2 := bx*bx + by*by
	c2 := cx*cx + cy*cy
	t.cx = (a2*(by-cy) + b2*(cy-ay) + c2*(ay-by)) / det
	t.cy = (a2*(cx-bx) + b2*(ax-cx) + c2*(bx-ax)) / det
	t.r2 = (ax-t.cx)*(ax-t.cx) + (ay-t.cy)*(ay-t.cy)
	return t
}
