// Package engine wires the work item subsystems together and provides the
// application-level API for registering, enqueuing and running work.
//
// Engine sits above every subsystem package: the root foundatio package
// holds configuration and sentinel errors, so it cannot import the worker,
// cron or middleware packages back.
//
// # Building an Engine
//
//	eng, err := engine.Build(foundatio.NewConfig(
//	    foundatio.WithConcurrency(8),
//	    foundatio.WithQueueName("thumbnails"),
//	),
//	    engine.WithQueue(redisQueue),
//	    engine.WithBus(redisBus),
//	    engine.WithLockProvider(locker),
//	    engine.WithMiddleware(myMiddleware),
//	)
//
// Without WithQueue, WithBus or WithLockProvider the engine creates
// in-memory implementations sized by the Config and closes them on Stop.
//
// # Registering Work
//
//	engine.Register(eng, workitem.NewDefinition("resize-image", resize,
//	    workitem.WithAutoRenewLock(),
//	).WithLock(eng.Locks(), func(p ResizeImage) string { return "image:" + p.ID }))
//
//	engine.RegisterCron(eng, cron.Definition[Report]{
//	    Name:     "daily-report",
//	    Schedule: "0 9 * * *",
//	    Type:     "generate-report",
//	})
//
// # Enqueuing Work
//
//	workItemID, err := engine.Enqueue(ctx, eng, "resize-image",
//	    ResizeImage{ID: "img_1", Width: 200},
//	    engine.WithProgressReports(),
//	)
//
// Enqueue captures the tenant scope from ctx. The Scope middleware restores
// it around the handler.
//
// # Lifecycle
//
// Start launches the cron scheduler and the worker pool. Stop halts both,
// waits up to Config.ShutdownTimeout for in-flight work items, emits the
// shutdown hook and closes engine-owned backends. RunUntilEmpty drains the
// queue on the calling goroutine without starting the pool.
package engine
