//go:build !windows

package pcsc

// ControlCode maps a reader function number to the IOCTL expected by pcsc-lite.
func ControlCode(function uint16) uint32 {
	return 0x42000000 + uint32(function)
}
