package codec

import (
	"encoding/binary"
	"unsafe"
)

// nativeOrder is the host's byte order, used for Local encoding. Linux on
// the architectures this daemon targets (x86_64, arm64) is little-endian,
// but we detect it rather than assume, matching the original's reliance
// on the platform's raw struct layout.
var nativeOrder binary.ByteOrder = detectNativeOrder()

func detectNativeOrder() binary.ByteOrder {
	var i uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&i))
	if b[0] == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}
