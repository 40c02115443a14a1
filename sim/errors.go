package sim

import "github.com/pkg/errors"

var (
	// ErrInvalidActionIndex is returned for a discrete action outside [0, numAngles)
	ErrInvalidActionIndex = errors.New("invalid action index")
	// ErrInvalidModeUsage is returned by ManualStep on a non-interactive env
	ErrInvalidModeUsage = errors.New("manual mode must be enabled")
	// ErrActionMismatch is returned when the action variant differs from the env mode
	ErrActionMismatch = errors.New("action does not match env mode")
	// ErrNotReset is returned when stepping before the first Reset
	ErrNotReset = errors.New("env must be reset before stepping")
	// ErrInvalidConfig is returned by New for unusable settings
	ErrInvalidConfig = errors.New("invalid env config")
)
