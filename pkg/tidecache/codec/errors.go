package codec

import "errors"

// ErrSerialization and ErrDeserialization are the two data-integrity
// error categories a caller can see during a
// cold read should drop the offending index entry and its file.
var (
	ErrSerialization   = errors.New("serialization error")
	ErrDeserialization = errors.New("deserialization error")
)
