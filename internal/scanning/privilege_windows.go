//go:build windows

package scanning

// HasElevatedPrivilege always reports false on Windows, so connect scans are used.
func HasElevatedPrivilege() bool {
	return false
}
