package diskmanager

import "errors"

// LockFileName is the name of the lock file kept in a store directory.
const LockFileName = "LOCK"

// ErrLocked is returned when another process holds the directory lock.
var ErrLocked = errors.New("diskmanager: directory is locked by another process")
