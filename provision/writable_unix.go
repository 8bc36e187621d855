//go:build unix

package provision

import "golang.org/x/sys/unix"

// checkWritable asks the kernel with the real uid/gid, the same check a write would face.
func checkWritable(path string) error {
	return unix.Access(path, unix.W_OK|unix.X_OK)
}
