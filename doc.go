// Package foundatio provides the coordination layer for distributed
// background work items. Work items are dequeued from a queue, resolved to
// a registered handler by their type discriminator, executed under a
// cooperative distributed lock, and reported over a message bus.
//
// Foundatio is a library, not a service. Import it, pick a queue, a message
// bus and a lock backend, and register handlers as ordinary Go functions.
//
// # Quick Start
//
//	eng, err := engine.Build(foundatio.DefaultConfig(),
//	    engine.WithQueue(memqueue.New[workitem.Data]()),
//	    engine.WithBus(membus.New()),
//	)
//	engine.Register(eng, workitem.NewDefinition("resize-image", resize))
//	_, err = engine.Enqueue(ctx, eng, "resize-image", ResizeImage{ID: 42})
//
// # Architecture
//
// The core is four pieces: the work item processor (package worker), the
// renewable lock handle (package lock), the debounced maintenance scheduler
// (package maintenance) and the continuous runner (package jobs). Queues,
// buses and lock backends are consumed through narrow interfaces; the
// queue, messaging and lock subpackages ship adapters for memory, Redis,
// PostgreSQL, MongoDB and Kubernetes.
//
// All identifiers use TypeID: type-prefixed, K-sortable, UUIDv7-based.
package foundatio
