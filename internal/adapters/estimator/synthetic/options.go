package synthetic

import "time"

type config struct {
	noise    float64
	biasX    float64
	biasY    float64
	decay    float64
	dropRate float64
	interval time.Duration
	seed     uint64
	seeded   bool
	beginErr error
}

// Option configures the simulated estimator.
type Option func(*config)

// WithNoise sets the standard deviation of the per-axis noise in pixels.
func WithNoise(sigma float64) Option {
	return func(c *config) {
		if sigma >= 0 {
			c.noise = sigma
		}
	}
}

// WithBias sets the untrained systematic offset.
func WithBias(x, y float64) Option {
	return func(c *config) {
		c.biasX, c.biasY = x, y
	}
}

// WithDecay sets the fraction of bias left after each training point.
func WithDecay(f float64) Option {
	return func(c *config) {
		if f >= 0 && f <= 1 {
			c.decay = f
		}
	}
}

// WithDropRate sets the probability that an estimate is nil.
func WithDropRate(p float64) Option {
	return func(c *config) {
		if p >= 0 && p <= 1 {
			c.dropRate = p
		}
	}
}

// WithInterval sets the emission period. Zero means estimates are only
// produced by Emit.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.interval = d
		}
	}
}

// WithSeed makes the noise reproducible.
func WithSeed(seed uint64) Option {
	return func(c *config) {
		c.seed = seed
		c.seeded = true
	}
}

// WithBeginError makes Begin fail, simulating a missing camera.
func WithBeginError(err error) Option {
	return func(c *config) {
		c.beginErr = err
	}
}
