package config

import (
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/quantbay/optexec/pkg/broker/fixgw"
	"github.com/quantbay/optexec/pkg/broker/xts"
	postgres_wrapper "github.com/quantbay/optexec/pkg/infra/postgres"
	redis_wrapper "github.com/quantbay/optexec/pkg/infra/redis"
	"github.com/quantbay/optexec/pkg/kafka"
	"github.com/quantbay/optexec/pkg/pricefeed"
)

type EngineConfig struct {
	Venue       string `yaml:"venue"`
	Product     string `yaml:"product"`
	OrderType   string `yaml:"order_type"`
	MarketStart string `yaml:"market_start"`
	MarketEnd   string `yaml:"market_end"`
	MasterPath  string `yaml:"master_path"`
	MarginURL   string `yaml:"margin_url"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	EventsTopic  string   `yaml:"events_topic"`
	JournalTopic string   `yaml:"journal_topic"`
	GroupID      string   `yaml:"group_id"`
}

func (k *KafkaConfig) Producer() kafka.ProducerConfig {
	return kafka.ProducerConfig{Brokers: k.Brokers}
}

func (k *KafkaConfig) Consumer() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{Brokers: k.Brokers, GroupID: k.GroupID, Topic: k.JournalTopic}
}

type AppConfig struct {
	ServiceName string `yaml:"service_name"`
	EngineID    string `yaml:"engine_id"`
	LogDev      bool   `yaml:"log_dev"`

	Engine    *EngineConfig                    `yaml:"engine"`
	Feed      *pricefeed.WSConfig              `yaml:"feed"`
	XTS       *xts.Config                      `yaml:"xts"`
	Fix       *fixgw.Config                    `yaml:"fix"`
	Redis     *redis_wrapper.RedisConfig       `yaml:"redis"`
	Kafka     *KafkaConfig                     `yaml:"kafka"`
	JournalDB *postgres_wrapper.PostgresConfig `yaml:"journal_db"`
}

// Load reads config from file and expands environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	sugar := zap.S().With("func", "config.Load", "filePath", filePath)
	sugar.Debug("Load config...")

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(configBytes, cfg); err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}

	zap.S().Debugf("config: %+v", cfg)
	return cfg, nil
}
