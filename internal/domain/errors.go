package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrInvalidInfoHash = errors.New("invalid info hash")
