package redis

import (
	"paycore/internal/events"
	"paycore/internal/lock"
)

// Ensure concrete types implement interfaces.
var (
	_ lock.Locker      = (*LockStore)(nil)
	_ events.Publisher = (*StreamPublisher)(nil)
)
