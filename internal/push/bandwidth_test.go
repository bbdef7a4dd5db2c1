package push

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBandwidthMonitor_AlertsOnlyOnTransitions(t *testing.T) {
	var transitions []AlertState
	m := NewBandwidthMonitor(BandwidthMonitorConfig{
		WindowDuration:    time.Minute,
		RequiredBps:       1_000_000,
		AlertThreshold:    0.9,
		CriticalThreshold: 0.5,
		MinimumSamples:    2,
	}, func(s AlertState) { transitions = append(transitions, s) })

	// Below minimum_samples: no alert even though bandwidth would be Critical.
	m.RecordPush(1000, time.Second)
	require.Empty(t, transitions)
	require.Equal(t, Sufficient, m.State())

	// Second sample crosses minimum_samples with low bandwidth -> Critical.
	m.RecordPush(1000, time.Second)
	require.Equal(t, []AlertState{Critical}, transitions)
	require.Equal(t, Critical, m.State())

	// Still critical: no duplicate alert.
	m.RecordPush(1000, time.Second)
	require.Equal(t, []AlertState{Critical}, transitions)

	// Plenty of bandwidth now -> Recovered once, then settles to Sufficient.
	m.RecordPush(100_000_000, time.Second)
	require.Equal(t, []AlertState{Critical, Recovered}, transitions)
	require.Equal(t, Sufficient, m.State())

	// Staying sufficient: no further alert.
	m.RecordPush(100_000_000, time.Second)
	require.Equal(t, []AlertState{Critical, Recovered}, transitions)
}

func TestBandwidthMonitor_ZeroDurationSampleContributesBytesNotDuration(t *testing.T) {
	cfg := BandwidthMonitorConfig{WindowDuration: time.Minute, RequiredBps: 1, AlertThreshold: 1, MinimumSamples: 1}

	withDuration := NewBandwidthMonitor(cfg, nil)
	withDuration.RecordPush(1000, time.Second)
	withDuration.RecordPush(5000, time.Second)

	zeroDuration := NewBandwidthMonitor(cfg, nil)
	zeroDuration.RecordPush(1000, time.Second)
	zeroDuration.RecordPush(5000, 0)

	require.InDelta(t, 24000.0, withDuration.EstimatedBps(), 0.001)
	require.InDelta(t, 48000.0, zeroDuration.EstimatedBps(), 0.001)
}

func TestBandwidthMonitor_EvictsOldSamples(t *testing.T) {
	m := NewBandwidthMonitor(BandwidthMonitorConfig{
		WindowDuration: 10 * time.Millisecond,
		RequiredBps:    1,
		AlertThreshold: 1,
		MinimumSamples: 1,
	}, nil)

	m.RecordPush(1000, time.Second)
	require.Equal(t, 1, m.SampleCount())

	time.Sleep(20 * time.Millisecond)
	m.RecordPush(1000, time.Second)
	require.Equal(t, 1, m.SampleCount(), "the first sample should have been evicted once outside the window")
}
