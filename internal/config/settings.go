package config

import (
	"time"
)

// Compile time variables are set by -ldflags.
var (
	ServiceVersion string
	CommitSHA      string
)

const (
	BrokerRabbitMQ = "rabbitmq"
	BrokerMemory   = "memory"
)

const (
	// MalformedDrop acknowledges and skips unparsable deliveries and keeps consuming.
	MalformedDrop = "drop"
	// MalformedFail ends the consumer task, tearing down its siblings.
	MalformedFail = "fail"
)

const (
	MetricsExporterOTLP       = "otlp"
	MetricsExporterPrometheus = "prometheus"
)

type (
	ServiceConfig struct {
		AppConfig     AppConfig           `json:"app_config"`
		Logging       LoggingConfig       `json:"logging"`
		Telemetry     Telemetry           `json:"telemetry"`
		SecretStorage SecretStorageConfig `json:"secret_storage"`
		Queue         QueueConfig         `json:"queue"`
		Harness       HarnessConfig       `json:"harness"`
		Backoff       BackoffConfig       `json:"backoff"`
	}

	AppConfig struct {
		ServiceName    string `envconfig:"APP_SERVICE_NAME" default:"svc-pubsub-harness" json:"service_name"`
		ServiceVersion string `envconfig:"APP_SERVICE_VERSION" default:"0.0.0" json:"service_version"`
		CommitSHA      string `envconfig:"APP_COMMIT_SHA" default:"unknown" json:"commit_sha"`
		Env            string `envconfig:"APP_ENVIRONMENT" default:"unknown" json:"env"`
	}

	LoggingConfig struct {
		Level  string `envconfig:"LOGGING_LEVEL" default:"info" json:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
		Format string `envconfig:"LOGGING_FORMAT" default:"json" json:"format" validate:"oneof=json console"`
	}

	Telemetry struct {
		ExporterType string `envconfig:"OTEL_EXPORTER" default:"grpc" json:"exporter_type" validate:"oneof=grpc stdout"`

		OtelGRPCHost       string `envconfig:"OTEL_HOST" json:"otel_grpc_host"`
		OtelGRPCPort       string `envconfig:"OTEL_PORT" default:"4317" json:"otel_grpc_port"`
		OtelProductCluster string `envconfig:"OTEL_PRODUCT_CLUSTER" json:"otel_product_cluster"`

		Metrics Metrics `json:"metrics"`
		Traces  Traces  `json:"traces"`
	}

	Metrics struct {
		Enabled  bool   `envconfig:"METRICS_ENABLED" default:"false" json:"enabled"`
		Exporter string `envconfig:"METRICS_EXPORTER" default:"otlp" json:"exporter" validate:"oneof=otlp prometheus"`

		PushGatewayURL string        `envconfig:"METRICS_PUSHGATEWAY_URL" default:"http://pushgateway:9091" json:"pushgateway_url"`
		PushInterval   time.Duration `envconfig:"METRICS_PUSH_INTERVAL" default:"15s" json:"push_interval"`
	}

	Traces struct {
		Enabled      bool    `envconfig:"TRACES_ENABLED" default:"false" json:"enabled"`
		SamplerRatio float64 `envconfig:"TRACES_SAMPLER_RATIO" default:"1" json:"sampler_ratio" validate:"gte=0,lte=1"`
	}

	SecretStorageConfig struct {
		Enabled       bool          `envconfig:"VAULT_ENABLED" default:"false" json:"enabled"`
		Address       string        `envconfig:"VAULT_ADDRESS" default:"http://vault:8200" json:"address"`
		Token         string        `envconfig:"VAULT_TOKEN" default:"" json:"-"`
		RoleID        string        `envconfig:"VAULT_ROLE_ID" default:"" json:"role_id,omitempty"`
		SecretID      string        `envconfig:"VAULT_SECRET_ID" default:"" json:"-"`
		AuthMethod    string        `envconfig:"VAULT_AUTH_METHOD" default:"token" json:"auth_method"`
		MountPath     string        `envconfig:"VAULT_MOUNT_PATH" default:"svc-pubsub-harness" json:"mount_path"`
		Namespace     string        `envconfig:"VAULT_NAMESPACE" default:"" json:"namespace,omitempty"`
		Timeout       time.Duration `envconfig:"VAULT_TIMEOUT" default:"30s" json:"timeout"`
		MaxRetries    int           `envconfig:"VAULT_MAX_RETRIES" default:"3" json:"max_retries"`
		TLSSkipVerify bool          `envconfig:"VAULT_TLS_SKIP_VERIFY" default:"false" json:"tls_skip_verify"`
	}

	QueueConfig struct {
		Broker         string        `envconfig:"QUEUE_BROKER" default:"rabbitmq" json:"broker" validate:"oneof=rabbitmq memory"`
		Scheme         string        `envconfig:"RABBITMQ_SCHEME" default:"amqp" json:"scheme" validate:"oneof=amqp amqps"`
		Host           string        `envconfig:"RABBITMQ_HOST" default:"localhost" json:"host"`
		Port           int           `envconfig:"RABBITMQ_PORT" default:"5672" json:"port"`
		Username       string        `envconfig:"RABBITMQ_USERNAME" default:"guest" json:"username"`
		Password       string        `envconfig:"RABBITMQ_PASSWORD" default:"guest" json:"-"`
		VirtualHost    string        `envconfig:"RABBITMQ_VIRTUAL_HOST" default:"/" json:"virtual_host"`
		QueueName      string        `envconfig:"RABBITMQ_QUEUE_NAME" default:"person_queue" json:"queue_name" validate:"required"`
		AutoDelete     bool          `envconfig:"RABBITMQ_AUTO_DELETE" default:"true" json:"auto_delete"`
		ConnectTimeout time.Duration `envconfig:"RABBITMQ_CONNECT_TIMEOUT" default:"10s" json:"connect_timeout"`
		Heartbeat      time.Duration `envconfig:"RABBITMQ_HEARTBEAT" default:"10s" json:"heartbeat"`
		PrefetchCount  int           `envconfig:"RABBITMQ_PREFETCH_COUNT" default:"1" json:"prefetch_count" validate:"gte=0"`
		PublishTimeout time.Duration `envconfig:"RABBITMQ_PUBLISH_TIMEOUT" default:"3s" json:"publish_timeout"`
		// MemoryMaxLength bounds the in-memory broker's queues; the oldest ready message is dropped first.
		MemoryMaxLength int `envconfig:"QUEUE_MEMORY_MAX_LENGTH" default:"10000" json:"memory_max_length" validate:"gte=1"`
	}

	HarnessConfig struct {
		VMName          string        `envconfig:"HARNESS_VM_NAME" default:"VM 1" json:"vm_name"`
		Consumers       int           `envconfig:"HARNESS_CONSUMERS" default:"5" json:"consumers" validate:"gte=0"`
		PublishRate     float64       `envconfig:"HARNESS_PUBLISH_RATE" default:"100" json:"publish_rate" validate:"gte=0.001,lte=1000000"`
		ConsumeRate     float64       `envconfig:"HARNESS_CONSUME_RATE" default:"20" json:"consume_rate" validate:"gte=0.001,lte=1000000"`
		ShutdownTimeout time.Duration `envconfig:"HARNESS_SHUTDOWN_TIMEOUT" default:"10s" json:"shutdown_timeout" validate:"gt=0"`
		MalformedPolicy string        `envconfig:"HARNESS_MALFORMED_POLICY" default:"drop" json:"malformed_policy" validate:"oneof=drop fail"`
		Seed            uint64        `envconfig:"HARNESS_SEED" default:"0" json:"seed"`
	}

	BackoffConfig struct {
		// ConnectRetries is how many times a failed connect sequence is retried.
		// Zero makes connection failures immediately fatal.
		ConnectRetries int `envconfig:"BACKOFF_CONNECT_RETRIES" default:"0" json:"connect_retries" validate:"gte=0"`
		// BaseDelay is the amount of time to backoff after the first failure.
		BaseDelay time.Duration `envconfig:"BACKOFF_BASE_DELAY" default:"1s" json:"base_delay"`
		// Multiplier is the factor with which to multiply backoffs after a
		// failed retry. Should ideally be greater than 1.
		Multiplier float64 `envconfig:"BACKOFF_MULTIPLIER" default:"1.6" json:"multiplier"`
		// Jitter is the factor with which backoffs are randomized.
		Jitter float64 `envconfig:"BACKOFF_JITTER" default:"0.2" json:"jitter"`
		// MaxDelay is the upper bound of backoff delay.
		MaxDelay time.Duration `envconfig:"BACKOFF_MAX_DELAY" default:"10s" json:"max_delay"`
	}
)
