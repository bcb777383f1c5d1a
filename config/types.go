package config

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0"`
}

// FeedConfig contains live telemetry feed configuration
type FeedConfig struct {
	LiveURLs       []string          `yaml:"liveURLs" validate:"required,min=1,dive,url"`
	ScheduleURL    string            `yaml:"scheduleURL" validate:"omitempty,url"`
	DistancesCSV   string            `yaml:"distancesCSV"`
	Headers        map[string]string `yaml:"headers"`
	PollIntervalMS int               `yaml:"pollIntervalMS" validate:"gte=0"`
	TimeoutMS      int               `yaml:"timeoutMS" validate:"gte=0"`
}

// StorageConfig selects and configures the persistence backend
type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"omitempty,oneof=memory sqlite postgres"`
	Directory   string `yaml:"directory"`
	PostgresDSN string `yaml:"postgresDSN"`
}

// EngineConfig overrides reconciliation thresholds. Zero values fall
// back to the engine defaults.
type EngineConfig struct {
	UnrealisticDelayMin   int     `yaml:"unrealisticDelayMin" validate:"gte=0"`
	UntrustedETAMin       int     `yaml:"untrustedETAMin" validate:"gte=0"`
	FeedETAPastSlackMin   int     `yaml:"feedETAPastSlackMin" validate:"gte=0"`
	MidnightWrapMin       int     `yaml:"midnightWrapMin" validate:"gte=0"`
	ETACacheTTLMin        int     `yaml:"etaCacheTTLMin" validate:"gte=0"`
	CacheMinLeadMin       int     `yaml:"cacheMinLeadMin" validate:"gte=0"`
	StaleCompletedAgeMin  int     `yaml:"staleCompletedAgeMin" validate:"gte=0"`
	RecentDateWindow      int     `yaml:"recentDateWindow" validate:"gte=0"`
	DedupDateWindow       int     `yaml:"dedupDateWindow" validate:"gte=0"`
	DedupInstancesPerDate int     `yaml:"dedupInstancesPerDate" validate:"gte=0"`
	TrackRoutingFactor    float64 `yaml:"trackRoutingFactor" validate:"gte=0"`
	DecelerationFraction  float64 `yaml:"decelerationFraction" validate:"gte=0,lte=1"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server  ServerConfig  `yaml:"server" validate:"required"`
	Feed    FeedConfig    `yaml:"feed" validate:"required"`
	Storage StorageConfig `yaml:"storage"`
	Engine  EngineConfig  `yaml:"engine"`
}
