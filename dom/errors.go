package dom

import "errors"

var (
	ErrHierarchy        = errors.New("hierarchy request error")
	ErrNotFound         = errors.New("not found")
	ErrInvalidCharacter = errors.New("invalid character")
	ErrInvalidState     = errors.New("invalid state")
)
