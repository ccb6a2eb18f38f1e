package config

import "errors"

// Sentinel errors. Every one of them is raised before any network I/O.
var (
	ErrNetworkNotFound = errors.New("dcip: network not found")
	ErrInvalidProfile  = errors.New("dcip: invalid network profile")
	ErrInvalidConfig   = errors.New("dcip: invalid configuration")

	ErrMissingSecret = errors.New("dcip: secret file not found")
	ErrEmptySecret   = errors.New("dcip: secret file is empty")
	ErrInvalidSecret = errors.New("dcip: secret is malformed")
)
