package entry

import "errors"

// ErrInvalidKey is returned (wrapped) by ValidateKey on a malformed key.
var ErrInvalidKey = errors.New("invalid key")
