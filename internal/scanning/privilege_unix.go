//go:build !windows

package scanning

import "os"

// HasElevatedPrivilege reports whether the process runs as root, which nmap
// needs for SYN scans and OS fingerprinting.
func HasElevatedPrivilege() bool {
	return os.Geteuid() == 0
}
