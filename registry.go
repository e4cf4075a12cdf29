package meshfilter

import (
	"github.com/gogpu/meshfilter/mesh"
)

// registeredMesh is one entry in the mesh registry: the geometry
// (normals guaranteed present) under its assigned handle.
type registeredMesh struct {
	geom *mesh.Mesh
}

// AddMesh registers a copy of geom for filtering and returns its
// handle. The handle is the lowest value not currently in use, so
// handles freed by RemoveMesh are reissued before new ones.
//
// Missing vertex normals are computed from the triangle topology;
// normals are required for padding inflation. The caller keeps
// ownership of geom and may modify it afterwards.
//
// AddMesh blocks until the registration job has run on the worker.
func (f *MeshFilter) AddMesh(geom *mesh.Mesh) (MeshHandle, error) {
	if geom == nil {
		return 0, ErrNilMesh
	}
	if err := geom.Validate(); err != nil {
		return 0, err
	}

	// Copy before touching the queue: EnsureNormals must not mutate the
	// caller's mesh, and the registry must never alias caller memory.
	cp := geom.Clone()
	cp.EnsureNormals()

	f.handleMu.Lock()
	defer f.handleMu.Unlock()

	// Lowest free handle at or above the low-water mark. handleMu keeps
	// the scan consistent: mesh jobs from other callers cannot run their
	// map mutation between the scan and our own job below.
	h := f.minHandle
	for {
		if _, ok := f.meshes[h]; !ok {
			break
		}
		h++
	}

	_, err := submit(f, func() struct{} {
		f.meshes[h] = &registeredMesh{geom: cp}
		return struct{}{}
	})
	if err != nil {
		return 0, err
	}
	f.minHandle = h + 1
	return h, nil
}

// RemoveMesh unregisters the mesh behind handle and frees the handle
// for reuse. Removing an unknown handle returns ErrUnknownHandle.
//
// RemoveMesh blocks until the removal job has run, so a subsequent
// filter pass never renders the removed mesh.
func (f *MeshFilter) RemoveMesh(handle MeshHandle) error {
	f.handleMu.Lock()
	defer f.handleMu.Unlock()

	if _, ok := f.meshes[handle]; !ok {
		return ErrUnknownHandle
	}
	_, err := submit(f, func() struct{} {
		delete(f.meshes, handle)
		return struct{}{}
	})
	if err != nil {
		return err
	}
	if handle < f.minHandle {
		f.minHandle = handle
	}
	return nil
}

// MeshCount returns the number of registered meshes.
func (f *MeshFilter) MeshCount() int {
	f.handleMu.Lock()
	defer f.handleMu.Unlock()
	return len(f.meshes)
}
