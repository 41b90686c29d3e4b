package lamp

import "errors"

// Validation rejections. The operation that returns one of these left the
// lamp state untouched.
var (
	ErrPresetLimit  = errors.New("preset limit reached")
	ErrLastPreset   = errors.New("cannot delete the only preset")
	ErrPresetIndex  = errors.New("preset number out of range")
	ErrGroup        = errors.New("group must be 1-8")
	ErrInvalidValue = errors.New("invalid value")
	ErrUnknownField = errors.New("unknown field")
	ErrNetworkKey   = errors.New("network key must be 1-32 characters")
	ErrReadOnly     = errors.New("entity is read-only")
)
