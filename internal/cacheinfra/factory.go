package cacheinfra

// NewStore builds the backend selected by cfg.Backend. The redis backend is
// wrapped in a circuit breaker when cfg.Breaker is enabled.
func NewStore(cfg Config, opts ...StoreOption) (KVStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendRedis:
		var store KVStore = NewRedisStore(NewRedisClient(cfg.Redis), cfg.Redis.ScanCount, opts...)
		if cfg.Breaker != nil && cfg.Breaker.Enabled {
			store = NewBreakerStore(store, *cfg.Breaker, opts...)
		}
		return store, nil
	default:
		store, err := NewSturdycStore(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
