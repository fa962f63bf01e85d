package domain

import "errors"

// Precondition failures: reported to the user, no session is created.
var (
	ErrNoAudioTrack = errors.New("microphone access failed: stream has no audio track")
	ErrNoVideoTrack = errors.New("camera access failed: stream has no video track")
	ErrInvalidCall  = errors.New("invalid call: no offer received")
)

// Device and permission errors from media acquisition.
var (
	ErrPermissionDenied = errors.New("media permission denied")
	ErrDeviceNotFound   = errors.New("media device not found")
)

// Fatal connectivity and remote termination.
var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrCallRejected     = errors.New("call rejected")
)

var (
	ErrBusy           = errors.New("busy")
	ErrNoActiveCall   = errors.New("no active call")
	ErrCallInProgress = errors.New("call already in progress")
	ErrInvalidKind    = errors.New("invalid call kind")
)
