package phiterm

import "time"

// PulseDuration is the length of one Kai pulse.
const PulseDuration = 5236 * time.Millisecond

var kaiGenesis = time.UnixMilli(1715323541888) // 2024-05-10T06:45:41.888Z

// PulseAt returns the Kai pulse at t. Instants before genesis are negative.
func PulseAt(t time.Time) int64 {
	ms := t.UnixMilli() - kaiGenesis.UnixMilli()
	p := ms / PulseDuration.Milliseconds()
	if ms < 0 && ms%PulseDuration.Milliseconds() != 0 {
		p-- // floor
	}
	return p
}

// PulseTime returns the instant pulse p starts.
func PulseTime(p int64) time.Time {
	return kaiGenesis.Add(time.Duration(p) * PulseDuration)
}
