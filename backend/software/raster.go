package software

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/meshfilter/mesh"
)

// screenVertex is a projected vertex: pixel coordinates plus the
// perspective-encoded depth value.
type screenVertex struct {
	x, y  float32
	depth float32
}

// DrawMesh transforms geom by pose, inflates each vertex along its
// normal by the padding polynomial, and rasterizes the front-facing
// triangles into the model depth and label buffers.
//
// The perspective depth value d = (z-near)*far / (z*(far-near)) is
// affine in 1/z, which interpolates linearly in screen space, so plain
// barycentric interpolation of per-vertex depth is exact.
func (b *Backend) DrawMesh(geom *mesh.Mesh, label uint32, pose mgl32.Mat4) {
	if !b.initialized || geom == nil || len(geom.Triangles) == 0 {
		return
	}

	rot := mesh.RotationOf(pose)
	pad := b.padding

	// Transform into the camera frame and apply padding inflation.
	view := make([]mgl32.Vec3, len(geom.Vertices))
	for i, v := range geom.Vertices {
		p := pose.Mul4x1(v.Vec4(1)).Vec3()
		if geom.HasNormals() {
			z := p.Z()
			amount := pad[0]*z*z + pad[1]*z + pad[2]
			p = p.Add(rot.Mul3x1(geom.Normals[i]).Mul(amount))
		}
		view[i] = p
	}

	for _, t := range geom.Triangles {
		a, bb, c := view[t[0]], view[t[1]], view[t[2]]

		// Back-face culling: the camera sits at the origin looking
		// along +z, so a front face has its outward normal pointing
		// back toward the origin.
		face := bb.Sub(a).Cross(c.Sub(a))
		centroid := a.Add(bb).Add(c).Mul(1.0 / 3.0)
		if face.Dot(centroid) >= 0 {
			continue
		}

		// Clip against the near plane so geometry partially closer
		// than the near clip still occludes for its visible portion.
		poly, n := clipNear(a, bb, c, b.cam.Near)
		if n < 3 {
			continue
		}
		p0 := b.project(poly[0])
		for i := 1; i+1 < n; i++ {
			b.rasterize(p0, b.project(poly[i]), b.project(poly[i+1]), label)
		}
	}
}

// clipNear clips a camera-frame triangle against the z = near plane,
// keeping the portion with z >= near. One plane can add at most one
// vertex, so the result has at most four; n = 0 means the triangle
// lies entirely in front of the plane.
func clipNear(a, b, c mgl32.Vec3, near float32) (poly [4]mgl32.Vec3, n int) {
	in := [3]mgl32.Vec3{a, b, c}
	for i := 0; i < 3; i++ {
		cur, next := in[i], in[(i+1)%3]
		curIn, nextIn := cur.Z() >= near, next.Z() >= near
		if curIn {
			poly[n] = cur
			n++
		}
		if curIn != nextIn {
			t := (near - cur.Z()) / (next.Z() - cur.Z())
			poly[n] = cur.Add(next.Sub(cur).Mul(t))
			n++
		}
	}
	return poly, n
}

// project maps a camera-frame point to a screen vertex.
func (b *Backend) project(p mgl32.Vec3) screenVertex {
	z := p.Z()
	return screenVertex{
		x:     b.cam.Fx*p.X()/z + b.cam.Cx,
		y:     b.cam.Fy*p.Y()/z + b.cam.Cy,
		depth: (z - b.cam.Near) * b.cam.Far / (z * (b.cam.Far - b.cam.Near)),
	}
}

// edge is the signed double area of the triangle (a, b, p). Its sign
// tells which side of edge a->b the point p lies on.
func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

// rasterize fills one screen triangle with a LESS depth test, writing
// the label wherever the triangle wins.
func (b *Backend) rasterize(v0, v1, v2 screenVertex, label uint32) {
	area := edge(v0.x, v0.y, v1.x, v1.y, v2.x, v2.y)
	if area == 0 {
		return
	}
	if area < 0 {
		// Normalize orientation so the inside test can assume
		// non-negative barycentric weights.
		v1, v2 = v2, v1
		area = -area
	}

	minX := clampInt(int(min3(v0.x, v1.x, v2.x)), 0, b.cam.Width-1)
	maxX := clampInt(int(max3(v0.x, v1.x, v2.x))+1, 0, b.cam.Width-1)
	minY := clampInt(int(min3(v0.y, v1.y, v2.y)), 0, b.cam.Height-1)
	maxY := clampInt(int(max3(v0.y, v1.y, v2.y))+1, 0, b.cam.Height-1)

	inv := 1 / area
	for y := minY; y <= maxY; y++ {
		py := float32(y) + 0.5
		row := y * b.cam.Width
		for x := minX; x <= maxX; x++ {
			px := float32(x) + 0.5
			w0 := edge(v1.x, v1.y, v2.x, v2.y, px, py)
			w1 := edge(v2.x, v2.y, v0.x, v0.y, px, py)
			w2 := edge(v0.x, v0.y, v1.x, v1.y, px, py)
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			d := (w0*v0.depth + w1*v1.depth + w2*v2.depth) * inv
			if d < 0 || d >= 1 {
				continue
			}
			idx := row + x
			if d < b.modelDepth[idx] {
				b.modelDepth[idx] = d
				b.modelLabel[idx] = label
			}
		}
	}
}

func min3(a, b, c float32) float32 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func max3(a, b, c float32) float32 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
