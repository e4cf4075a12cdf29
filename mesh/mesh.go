// Package mesh provides the triangle mesh type rendered by the mesh
// filter. Geometry is expressed with go-gl/mathgl vectors in the frame
// reported by the transform callback.
package mesh

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Errors returned by mesh validation.
var (
	// ErrEmpty is returned for meshes without triangles.
	ErrEmpty = errors.New("mesh: no triangles")

	// ErrIndexOutOfRange is returned when a triangle references a
	// vertex that does not exist.
	ErrIndexOutOfRange = errors.New("mesh: triangle index out of range")
)

// Mesh is an indexed triangle mesh.
//
// Normals are per-vertex and used by the render pass to inflate the
// silhouette by the padding amount; if absent they are computed from
// the triangle geometry when the mesh is registered. Triangles are
// wound counter-clockwise when viewed from outside, so that face
// normals point outward.
//
// A Mesh must not be modified after it has been registered with a
// filter: the registered geometry is treated as immutable.
type Mesh struct {
	Vertices  []mgl32.Vec3
	Normals   []mgl32.Vec3
	Triangles [][3]uint32
}

// Validate checks that the mesh has triangles and that every triangle
// index references an existing vertex.
func (m *Mesh) Validate() error {
	if len(m.Triangles) == 0 {
		return ErrEmpty
	}
	n := uint32(len(m.Vertices))
	for ti, t := range m.Triangles {
		for _, idx := range t {
			if idx >= n {
				return fmt.Errorf("%w: triangle %d references vertex %d of %d", ErrIndexOutOfRange, ti, idx, n)
			}
		}
	}
	return nil
}

// HasNormals reports whether the mesh carries one normal per vertex.
func (m *Mesh) HasNormals() bool {
	return len(m.Normals) == len(m.Vertices) && len(m.Vertices) > 0
}

// EnsureNormals computes per-vertex normals if the mesh does not
// already carry them. It is idempotent.
func (m *Mesh) EnsureNormals() {
	if !m.HasNormals() {
		m.ComputeNormals()
	}
}

// ComputeNormals recomputes per-vertex normals as the normalized,
// area-weighted average of the adjacent face normals. The cross
// product of the edge vectors is proportional to the triangle area, so
// summing the unnormalized face normals weights large faces more.
func (m *Mesh) ComputeNormals() {
	normals := make([]mgl32.Vec3, len(m.Vertices))
	for _, t := range m.Triangles {
		a, b, c := m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
		face := b.Sub(a).Cross(c.Sub(a))
		for _, idx := range t {
			normals[idx] = normals[idx].Add(face)
		}
	}
	for i, n := range normals {
		if n.Len() > 0 {
			normals[i] = n.Normalize()
		}
	}
	m.Normals = normals
}

// NewBox creates an axis-aligned box spanning min to max, wound
// counter-clockwise when viewed from outside. The shared corner
// vertices receive averaged (diagonal) normals, which is what the
// padding inflation wants: displacing a corner along its diagonal
// grows the box uniformly.
func NewBox(min, max mgl32.Vec3) *Mesh {
	v := []mgl32.Vec3{
		{min.X(), min.Y(), min.Z()},
		{max.X(), min.Y(), min.Z()},
		{max.X(), max.Y(), min.Z()},
		{min.X(), max.Y(), min.Z()},
		{min.X(), min.Y(), max.Z()},
		{max.X(), min.Y(), max.Z()},
		{max.X(), max.Y(), max.Z()},
		{min.X(), max.Y(), max.Z()},
	}
	m := &Mesh{
		Vertices: v,
		Triangles: [][3]uint32{
			// -z face (viewed from -z: CCW)
			{0, 2, 1}, {0, 3, 2},
			// +z face
			{4, 5, 6}, {4, 6, 7},
			// -y face
			{0, 1, 5}, {0, 5, 4},
			// +y face
			{2, 3, 7}, {2, 7, 6},
			// -x face
			{0, 4, 7}, {0, 7, 3},
			// +x face
			{1, 2, 6}, {1, 6, 5},
		},
	}
	m.ComputeNormals()
	return m
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Vertices:  make([]mgl32.Vec3, len(m.Vertices)),
		Normals:   make([]mgl32.Vec3, len(m.Normals)),
		Triangles: make([][3]uint32, len(m.Triangles)),
	}
	copy(out.Vertices, m.Vertices)
	copy(out.Normals, m.Normals)
	copy(out.Triangles, m.Triangles)
	return out
}

// Transformed returns a copy of the mesh with vertices transformed by
// pose and normals rotated by its upper-left 3x3. Poses are assumed
// rigid, so the rotation transforms normals correctly without an
// inverse transpose.
func (m *Mesh) Transformed(pose mgl32.Mat4) *Mesh {
	rot := RotationOf(pose)
	out := &Mesh{
		Vertices:  make([]mgl32.Vec3, len(m.Vertices)),
		Normals:   make([]mgl32.Vec3, len(m.Normals)),
		Triangles: m.Triangles,
	}
	for i, v := range m.Vertices {
		out.Vertices[i] = pose.Mul4x1(v.Vec4(1)).Vec3()
	}
	for i, n := range m.Normals {
		out.Normals[i] = rot.Mul3x1(n)
	}
	return out
}

// RotationOf extracts the upper-left 3x3 rotation of a column-major
// 4x4 pose.
func RotationOf(m mgl32.Mat4) mgl32.Mat3 {
	return mgl32.Mat3{
		m[0], m[1], m[2],
		m[4], m[5], m[6],
		m[8], m[9], m[10],
	}
}
