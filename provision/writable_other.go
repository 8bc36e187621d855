//go:build !unix

package provision

import "os"

// checkWritable probes by creating and removing a temp file.
func checkWritable(path string) error {
	probe, errCreate := os.CreateTemp(path, ".provision-probe-*")
	if errCreate != nil {
		return errCreate
	}
	probe.Close()
	return os.Remove(probe.Name())
}
