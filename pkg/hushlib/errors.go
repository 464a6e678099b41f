package hushlib

import "errors"

var (
	// ErrPermissionDenied is returned by a RingerPort when the platform
	// refuses the operation. It is never retried automatically; the engine
	// records its bookkeeping and surfaces a permission-required signal.
	ErrPermissionDenied = errors.New("ringer operation denied: permission required")

	ErrProfileNotFound = errors.New("profile you are trying to use is not found")
	ErrProfileExists   = errors.New("profile with this name already exists")

	// ErrScheduleFailed is returned when the timer or geofence provider
	// rejects a schedule/register call. Profile activation fails visibly
	// rather than leaving the profile silently unarmed.
	ErrScheduleFailed = errors.New("could not arm trigger schedule")

	ErrInvalidProfile = errors.New("profile configuration is invalid")
)
