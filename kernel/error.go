// Package kernel holds the types shared by every other kernel package: the
// sentinel error type and the raw memory helpers needed before the heap
// allocator is usable.
package kernel

// Error describes a kernel error. All kernel errors are defined as global
// variables that are pointers to the Error structure. This requirement
// stems from the fact that the Go allocator is not available to us this
// early, so we cannot use errors.New.
type Error struct {
	// Module names the subsystem where the error occurred.
	Module string

	// Message is the human-readable error text.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
