package relay

import "time"

// Config bundles the relay coordinator's tunables (spec §4.8).
type Config struct {
	LocalPort uint16

	// MaxRelayClients is the relay-client list cap; spec §4.8 fixes this
	// at 3, but tests override it.
	MaxRelayClients int

	// FillInterval is the client-side relay-client list fill timer;
	// spec §4.8 fixes this at 30s.
	FillInterval time.Duration

	// CandidateSampleSeed seeds the murmur3-based deterministic
	// candidate sampling (candidate_pool.go).
	CandidateSampleSeed uint32

	DialTimeout time.Duration
}

func (c Config) maxRelayClients() int {
	if c.MaxRelayClients > 0 {
		return c.MaxRelayClients
	}
	return 3
}

func (c Config) fillInterval() time.Duration {
	if c.FillInterval > 0 {
		return c.FillInterval
	}
	return 30 * time.Second
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return 10 * time.Second
}
