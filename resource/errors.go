package resource

import "errors"

var (
	// ErrUnsupportedFileType names a file type this package's resource
	// model cannot represent as a seekable byte stream (spec.md §7 kind 4).
	// File.Open does not inspect the type of the file it opens, so it
	// never returns this error.
	ErrUnsupportedFileType = errors.New("resource: unsupported file type")

	// ErrTimedOut is delivered by Timeout when the racing timer wins
	// against the target sender (spec.md §7 kind 5, §5's timeout(d)).
	ErrTimedOut = errors.New("resource: operation timed out")

	// ErrResolveFailed is delivered by Resolver.First when the lookup
	// succeeds but yields no IPv4 address; lookup errors themselves are
	// delivered unchanged.
	ErrResolveFailed = errors.New("resource: no address resolved")
)
