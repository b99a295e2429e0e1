package dispatch

// Config defines the deployment-tunable dispatch settings. The widening
// schedule and timeouts are policy, never hard-coded at call sites.
type Config struct {
	// InitialRadiusKM is the first candidate-search radius around the
	// restaurant.
	InitialRadiusKM float64 `json:"initial_radius_km"`
	// MaxRadiusKM caps the widening schedule.
	MaxRadiusKM float64 `json:"max_radius_km"`
	// WidenIntervalSeconds is how long an offer waits for a taker before
	// the radius doubles.
	WidenIntervalSeconds int `json:"widen_interval_seconds"`
	// OfferTimeoutSeconds bounds the whole offer; on expiry the order is
	// flagged for operator attention.
	OfferTimeoutSeconds int `json:"offer_timeout_seconds"`
	// BroadcastMaxRetries bounds notifier retries per candidate.
	BroadcastMaxRetries int `json:"broadcast_max_retries"`
	// BroadcastBackoffMS is the base backoff between notifier retries.
	BroadcastBackoffMS int `json:"broadcast_backoff_ms"`
	// DefaultETAMinutes is the delivery estimate quoted on offers for
	// ungrouped orders, counted from order creation. Merged bundles carry
	// their own estimate.
	DefaultETAMinutes int `json:"default_eta_minutes"`
}

func (c *Config) SetDefaults() {
	if c.InitialRadiusKM <= 0 {
		c.InitialRadiusKM = 3
	}
	if c.MaxRadiusKM <= 0 {
		c.MaxRadiusKM = 24
	}
	if c.WidenIntervalSeconds <= 0 {
		c.WidenIntervalSeconds = 30
	}
	if c.OfferTimeoutSeconds <= 0 {
		c.OfferTimeoutSeconds = 180
	}
	if c.BroadcastMaxRetries <= 0 {
		c.BroadcastMaxRetries = 3
	}
	if c.BroadcastBackoffMS <= 0 {
		c.BroadcastBackoffMS = 100
	}
	if c.DefaultETAMinutes <= 0 {
		c.DefaultETAMinutes = 45
	}
}
