// Package meshfilter removes known geometry from depth sensor frames.
//
// Robots that carry a depth camera see themselves: arms, grippers and
// attached payloads show up in every frame and would otherwise be
// treated as obstacles. meshfilter renders the registered meshes at
// their current poses into a depth image matching the sensor's
// projection, compares it against the real frame pixel by pixel, and
// masks out every sample the model explains — including the sensor
// shadow the geometry casts.
//
// # Usage
//
//	params, err := sensor.NewParameters(640, 480, 0.4, 5.0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	f, err := meshfilter.New(params, lookupPose)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//
//	handle, err := f.AddMesh(mesh.NewBox(min, max))
//	...
//	if err := f.Filter(frame, sensor.EncodingFloat32); err != nil {
//	    log.Fatal(err)
//	}
//	depth := make([]float32, 640*480)
//	if err := f.FilteredDepth(depth); err != nil {
//	    log.Fatal(err)
//	}
//
// # Labels
//
// Alongside the filtered depth, each pixel receives a label: 0 for
// background pixels the model does not explain, 1 for pixels in the
// model's sensor shadow, and the mesh handle (2 and up) for pixels the
// mesh itself covers.
//
// # Backends
//
// Rendering and classification run on a pluggable backend. The
// pure-Go software backend is always available; importing
// backend/wgpu registers a GPU compute backend that is preferred when
// a device can be acquired. See the backend package.
//
// # Concurrency
//
// All MeshFilter methods are safe for concurrent use. Operations are
// serialized through a job queue onto one worker goroutine that owns
// the rendering backend exclusively.
package meshfilter
