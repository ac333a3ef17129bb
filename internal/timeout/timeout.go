// Package timeout derives per-task deadlines from the platform baseline and
// the size of the question being asked.
package timeout

import "time"

type Config struct {
	// Default is the baseline timeout for platforms without an override.
	Default time.Duration

	// Baselines overrides the default per platform, e.g. for known-slow ones.
	Baselines map[string]time.Duration

	// LengthThreshold is the question length (in characters) above which the
	// timeout starts scaling.
	LengthThreshold int

	// PerBlock is added for every LengthThreshold characters beyond the
	// threshold.
	PerBlock time.Duration

	// Max caps the computed timeout to bound worst-case batch latency.
	Max time.Duration
}

func DefaultConfig() Config {
	return Config{
		Default:         15 * time.Second,
		LengthThreshold: 200,
		PerBlock:        time.Second,
		Max:             90 * time.Second,
	}
}

type Calculator struct {
	config Config
}

func NewCalculator(config Config) *Calculator {
	defaults := DefaultConfig()
	if config.Default <= 0 {
		config.Default = defaults.Default
	}
	if config.LengthThreshold <= 0 {
		config.LengthThreshold = defaults.LengthThreshold
	}
	if config.PerBlock <= 0 {
		config.PerBlock = defaults.PerBlock
	}
	if config.Max <= 0 {
		config.Max = defaults.Max
	}

	return &Calculator{config: config}
}

// For returns the timeout for one task: the platform baseline plus PerBlock
// for each full LengthThreshold characters the question runs over the
// threshold, capped at Max.
func (c *Calculator) For(question, platform string) time.Duration {
	d := c.config.Default
	if baseline, ok := c.config.Baselines[platform]; ok && baseline > 0 {
		d = baseline
	}

	if over := len(question) - c.config.LengthThreshold; over > 0 {
		d += time.Duration(over/c.config.LengthThreshold) * c.config.PerBlock
	}

	if d > c.config.Max {
		d = c.config.Max
	}

	return d
}
