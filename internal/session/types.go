// Package session owns one running packaging+delivery pipeline per named
// stream: segment planning, container writing, optional encryption, LL-HLS
// orchestration or static playlist generation, and push delivery, each
// running as its own actor.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/nullshard/hlspackager/internal/llhls"
	"github.com/nullshard/hlspackager/internal/push"
	"github.com/nullshard/hlspackager/pkg/hlstypes"
)

// ErrSessionExists is returned by Start when a session with the given name
// is already running.
var ErrSessionExists = errors.New("session already exists")

// ErrSessionNotFound is returned by Stop/Status when no session with the
// given name is known to the supervisor.
var ErrSessionNotFound = errors.New("session not found")

// Mode selects whether a session drives a live LL-HLS manager or builds a
// single static playlist once packaging completes.
type Mode int

const (
	ModeVOD Mode = iota
	ModeLive
)

func (m Mode) String() string {
	if m == ModeLive {
		return "live"
	}
	return "vod"
}

// State is a session's lifecycle state.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TrackOracle is the external MP4 sample-table collaborator this package
// consumes as an interface, per the system's scope boundary: box parsing and
// sample-offset bookkeeping live outside the packaging core.
type TrackOracle interface {
	// Tracks returns the available tracks (typically one video, one audio).
	Tracks() []hlstypes.TrackInfo
	// SamplesFor returns every sample of the given track in decode order.
	SamplesFor(trackID uint32) []hlstypes.Sample
	// ReadSample returns the raw sample bytes described by s.
	ReadSample(s hlstypes.Sample) ([]byte, error)
}

// EncryptionSpec configures the segment encryptor for a session.
type EncryptionSpec struct {
	Method hlstypes.EncryptionMethod
	Key    []byte
	KeyURI string
	// VideoPID/AudioPID are required for SAMPLE-AES over MPEG-TS.
	VideoPID uint16
	AudioPID uint16
}

// Config describes one session to start.
type Config struct {
	Name string
	Mode Mode

	Oracle       TrackOracle
	VideoTrackID uint32
	AudioTrackID uint32

	SegmentTargetDuration float64
	ContainerFormat       hlstypes.ContainerFormat

	Encryption EncryptionSpec

	// LLHLS is only consulted when Mode == ModeLive.
	LLHLS llhls.Config

	// Destinations are already-constructed, already-configured pushers; the
	// supervisor's caller is responsible for wiring push.HTTPPusher /
	// push.RTMPPusher / push.SRTPusher per internal/config's PushConfig.
	Destinations         map[string]push.Pusher
	AggregationPolicy    push.FanOutPolicy
	PrimaryDestinationID string
}

func (c *Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("session name must not be empty")
	}
	if c.Oracle == nil {
		return fmt.Errorf("session %q: oracle must not be nil", c.Name)
	}
	if c.SegmentTargetDuration <= 0 {
		return fmt.Errorf("session %q: segment target duration must be positive", c.Name)
	}
	return nil
}

// Status is a point-in-time snapshot of a session's progress.
type Status struct {
	ID               string
	Name             string
	Mode             string
	State            string
	StartedAt        time.Time
	FinishedAt        *time.Time
	SegmentsProduced int
	BytesProduced    uint64
	Err              string
	PushStats        map[string]push.Stats
	PlaylistText     string
}
