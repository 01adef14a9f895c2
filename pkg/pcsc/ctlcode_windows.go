//go:build windows

package pcsc

// ControlCode maps a reader function number to the IOCTL expected by WinSCard
// (CTL_CODE(FILE_DEVICE_SMARTCARD, function, METHOD_BUFFERED, FILE_ANY_ACCESS)).
func ControlCode(function uint16) uint32 {
	return 0x00310000 | uint32(function)<<2
}
