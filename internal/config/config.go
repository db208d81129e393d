package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Momo     MomoConfig     `mapstructure:"momo"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	DepositConfirmed string `mapstructure:"deposit_confirmed"`
	SettlementResult string `mapstructure:"settlement_result"`
}

// MomoConfig 外部放款网关（MoMo Disbursement API）配置
type MomoConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	SubscriptionKey   string `mapstructure:"subscription_key"`
	APIUser           string `mapstructure:"api_user"`
	APIKey            string `mapstructure:"api_key"`
	TargetEnvironment string `mapstructure:"target_environment"`
	Currency          string `mapstructure:"currency"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

type BusinessConfig struct {
	ReconcileAfterMinutes int `mapstructure:"reconcile_after_minutes"` // 结算单卡在已提交状态多久后触发对账
	MaxRetryCount         int `mapstructure:"max_retry_count"`
	HistoryPageSize       int `mapstructure:"history_page_size"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
