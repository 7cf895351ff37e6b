//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package diskmanager

// LockDir is a no-op on platforms without flock.
func LockDir(string) (func() error, error) {
	return func() error { return nil }, nil
}
