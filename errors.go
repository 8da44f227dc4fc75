package foundatio

import "errors"

var (
	// Argument errors.
	ErrInvalidArgument = errors.New("foundatio: invalid argument")

	// Queue errors.
	ErrQueueClosed   = errors.New("foundatio: queue closed")
	ErrEntryResolved = errors.New("foundatio: queue entry already completed or abandoned")
	ErrEntryNotFound = errors.New("foundatio: queue entry not found")

	// Registry errors.
	ErrTypeNotRegistered = errors.New("foundatio: work item type not registered")
	ErrHandlerNotFound   = errors.New("foundatio: work item handler not registered")

	// Lock errors.
	ErrLockNotHeld = errors.New("foundatio: lock not held")

	// Scheduler errors.
	ErrSchedulerClosed = errors.New("foundatio: scheduler closed")
	ErrDuplicateCron   = errors.New("foundatio: duplicate cron entry")
)
