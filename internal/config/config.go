package config

import "github.com/kelseyhightower/envconfig"

type ServerConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// DB pool
	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME" default:""`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME" default:""`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD" default:""`

	// WhatsApp gateway
	GatewayBaseURL   string `envconfig:"WAGATE_BASE_URL" required:"true"`
	GatewayAPIKey    string `envconfig:"WAGATE_API_KEY"`
	GatewaySessionID string `envconfig:"WAGATE_SESSION_ID" default:"default"`
	// How often the channel ready flag is refreshed from the gateway.
	GatewayPollInterval string `envconfig:"WAGATE_POLL_INTERVAL" default:"15s"`

	// Dispatcher pacing. Jitter emulates human sending cadence; the limiter
	// caps aggregate sends across concurrent campaigns.
	DispatchDelayMin    string  `envconfig:"DISPATCH_DELAY_MIN" default:"3s"`
	DispatchDelayMax    string  `envconfig:"DISPATCH_DELAY_MAX" default:"8s"`
	DispatchSendTimeout string  `envconfig:"DISPATCH_SEND_TIMEOUT" default:"30s"`
	GatewayRPS          float64 `envconfig:"WAGATE_RPS" default:"1"`
	GatewayBurst        int     `envconfig:"WAGATE_BURST" default:"1"`

	// Scheduler
	SchedulerInterval string `envconfig:"SCHEDULER_INTERVAL" default:"60s"`

	// Optional event forwarding to SQS (analytics). Disabled when queue URL is empty.
	AWSRegion          string `envconfig:"AWS_REGION"`
	EventsQueueURL     string `envconfig:"EVENTS_QUEUE_URL"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
}

type MockGatewayConfig struct {
	Port        string  `envconfig:"PORT" default:"8081"`
	LogFormat   string  `envconfig:"LOG_FORMAT" default:"json"`
	SuccessRate float64 `envconfig:"MOCK_SUCCESS_RATE" default:"0.95"`
	DelayMs     int     `envconfig:"MOCK_DELAY_MS" default:"0"`
	StartReady  bool    `envconfig:"MOCK_START_READY" default:"true"`
}

func LoadServer() ServerConfig {
	var cfg ServerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadMockGateway() MockGatewayConfig {
	var cfg MockGatewayConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
