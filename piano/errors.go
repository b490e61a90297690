package piano

import "errors"

var (
	// ErrInvalidSampleRate is returned when a component is initialized with
	// a sample rate <= 0.
	ErrInvalidSampleRate = errors.New("piano: sample rate must be > 0")
	// ErrInvalidVoiceCount is returned when max_voices is < 1.
	ErrInvalidVoiceCount = errors.New("piano: max voices must be >= 1")
)
