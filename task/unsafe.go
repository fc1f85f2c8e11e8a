package task

import "unsafe"

// ptrOf and ptrFromUintptr isolate the pointer<->uintptr round trip used to
// stash a *Task inside an SQE/CQE's 64-bit user_data field. Kept in their
// own tiny file so `go vet`'s unsafeptr checks have a single, obviously
// correct place to look, matching the teacher's own
// //go:noinline pointerFromMmap pattern for the same reason.
func ptrOf(t *Task) unsafe.Pointer {
	return unsafe.Pointer(t)
}

//go:noinline
func ptrFromUintptr(addr uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&addr))
}
