// Package frameq is a deferred, double-buffered GPU command pipeline.
//
// Application logic records rendering work (create/update/delete GPU
// resources, submit draw calls) from any goroutine at any time during a
// simulation tick. A single dedicated goroutine later replays that work,
// in order, against a real graphics device. Recording never blocks on GPU
// work: every mutator returns as soon as the pool mutation and command
// append complete.
//
// # Architecture
//
// Producers call [VideoSystem] mutators, which allocate generation-tagged
// handles from internal pools and push commands (plus bulk payload bytes)
// into the front frame of a double buffer. Once per tick the host brackets
// its producer code with [VideoSystem.OnPreUpdate] and
// [VideoSystem.OnPostUpdate]; the latter flips the pair and hands the
// now-stable back frame, holding everything the tick recorded, to the
// [Device] for ordered dispatch.
//
//	vs, err := frameq.New(frameq.Config{
//	    Window: win,
//	    Device: dev, // e.g. backend.OpenDefault() or headless.New()
//	})
//	...
//	surf, _ := vs.CreateSurface(frameq.DefaultSurfaceParams())
//	// each tick, from the loop driver goroutine:
//	vs.OnPreUpdate()
//	// ... producer goroutines record work ...
//	err = vs.OnPostUpdate()
//
// Meshes and textures can additionally be created from an asynchronous
// content source; concurrent requests for the same content share one
// in-flight load and resolve to the same handle.
//
// By default frameq produces no log output; call [SetLogger] to enable it.
package frameq
