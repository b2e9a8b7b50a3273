package conf

import (
	"fmt"
	"os"
	"time"

	"bracketflow/pkg/secret"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// 配置加载（API密钥、交易参数等）

type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

type Binance struct {
	ApiKey    string `yaml:"apiKey"`
	SecretKey string `yaml:"secretKey"`
	BaseURL   string `yaml:"baseURL"`
	Testnet   bool   `yaml:"testnet"`
	// 不连接交易所，使用进程内模拟撮合
	Simulated        bool    `yaml:"simulated"`
	SimulatedBalance float64 `yaml:"simulated-balance" validate:"gte=0"`

	RecvWindow  int64         `yaml:"recv-window" validate:"gte=0"`
	CallTimeout time.Duration `yaml:"call-timeout"`
	// 每秒允许的请求数
	RateLimit float64 `yaml:"rate-limit" validate:"gte=0"`
	// 止损止盈单是否带 reduceOnly
	ReduceOnlyProtective bool `yaml:"reduce-only-protective"`
}

type TradeConfig struct {
	PollInterval   time.Duration `yaml:"poll-interval"`
	BracketTimeout time.Duration `yaml:"bracket-timeout"`
	Cooldown       time.Duration `yaml:"cooldown"`
	NotionalUSD    float64       `yaml:"notional-usd" validate:"gt=0"`
	MinBalance     float64       `yaml:"min-balance" validate:"gte=0"`
	QuoteAsset     string        `yaml:"quote-asset" validate:"required"`
	// 交易所未给出精度时的默认数量精度
	DefaultPrecision int32   `yaml:"default-precision" validate:"gte=0,lte=16"`
	AbsoluteMinQty   float64 `yaml:"absolute-min-qty" validate:"gt=0"`
}

type Db struct {
	DbName   string `yaml:"dbname"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file-name"`
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAge     int    `yaml:"max-age"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console"`
}

// RedisConfig is used to configure redis
type RedisConfig struct {
	Addr         string `yaml:"address"`
	Password     string `yaml:"password"`
	Db           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool-size"`
	MinIdleConns int    `yaml:"min-idle-conns"`
	IdleTimeout  int    `yaml:"idle-timeout"`
}

type KafkaConfig struct {
	Broker string `yaml:"broker"`
	// 原始信号消息主题，为空则不启动消费
	SignalTopic string `yaml:"signal-topic"`
	GroupID     string `yaml:"group-id"`
}

type ReportConfig struct {
	JSONFile     string `yaml:"json-file"`
	RedisList    string `yaml:"redis-list"`
	RedisChannel string `yaml:"redis-channel"`
	RedisKeep    int64  `yaml:"redis-keep"`
	KafkaTopic   string `yaml:"kafka-topic"`
	// websocket 最大连接数
	MaxStreamClients int `yaml:"max-stream-clients"`
}

type EmailConfig struct {
	Host       string   `yaml:"smtp_host"`
	Port       int      `yaml:"smtp_port"`
	Username   string   `yaml:"smtp_user"`
	Password   string   `yaml:"smtp_password"`
	Sender     string   `yaml:"smtp_sender"`
	Recipients []string `yaml:"recipients"`
}

type Apns struct {
	Topic   string `yaml:"topic"`
	KeyID   string `yaml:"key_id"`
	TeamID  string `yaml:"team_id"`
	KeyFile string `yaml:"key_file"`
	IsProd  bool   `yaml:"is_prod"`
	// 接收告警的设备
	DeviceTokens []string `yaml:"device_tokens"`
}

type AlertConfig struct {
	Email EmailConfig `yaml:"email"`
	Apns  Apns        `yaml:"apns"`
}

type Config struct {
	AppName      string `yaml:"app_name"`
	Listen       string `yaml:"listen"`
	Mode         string `yaml:"mode"`
	Language     string `yaml:"language"`
	MaxPingCount int    `yaml:"max-ping-count"`

	Webhook WebhookConfig `yaml:"webhook"`
	Binance Binance       `yaml:"binance"`
	Trade   TradeConfig   `yaml:"trade"`
	Db      `yaml:"database"`
	Log     LogConfig    `yaml:"log"`
	Redis   RedisConfig  `yaml:"redis"`
	Kafka   KafkaConfig  `yaml:"kafka"`
	Report  ReportConfig `yaml:"report"`
	Alert   AlertConfig  `yaml:"alert"`
}

var AppConfig Config

const defaultPrecision int32 = 3

func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Read config file error %w", err)
	}
	// 0 位精度(整张合约)是合法配置，只能在解析前预置默认值
	cfg := Config{Trade: TradeConfig{DefaultPrecision: defaultPrecision}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("Unmarshal config yaml error: %w", err)
	}
	cfg.Defaults()
	cfg.ApplyEnv()
	if err := cfg.OpenSecrets(os.Getenv(MasterKeyEnv)); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Defaults 填充未配置的项
func (c *Config) Defaults() {
	if c.AppName == "" {
		c.AppName = "bracketflow"
	}
	if c.Listen == "" {
		c.Listen = ":12180"
	}
	if c.MaxPingCount == 0 {
		c.MaxPingCount = 10
	}
	if c.Language == "" {
		c.Language = "zh"
	}

	t := &c.Trade
	if t.PollInterval == 0 {
		t.PollInterval = time.Minute
	}
	if t.BracketTimeout == 0 {
		t.BracketTimeout = 2 * time.Minute
	}
	if t.Cooldown == 0 {
		t.Cooldown = 30 * time.Second
	}
	if t.NotionalUSD == 0 {
		t.NotionalUSD = 10
	}
	if t.MinBalance == 0 {
		t.MinBalance = 0.5
	}
	if t.QuoteAsset == "" {
		t.QuoteAsset = "USDT"
	}
	if t.AbsoluteMinQty == 0 {
		t.AbsoluteMinQty = 0.000001
	}

	b := &c.Binance
	if b.RecvWindow == 0 {
		b.RecvWindow = 60000
	}
	if b.CallTimeout == 0 {
		b.CallTimeout = 10 * time.Second
	}
	if b.RateLimit == 0 {
		b.RateLimit = 10
	}
	if b.SimulatedBalance == 0 {
		b.SimulatedBalance = 1000
	}

	if c.Report.RedisKeep == 0 {
		c.Report.RedisKeep = 500
	}
	if c.Report.MaxStreamClients == 0 {
		c.Report.MaxStreamClients = 100
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = c.AppName
	}
}

// ApplyEnv 环境变量覆盖配置文件，部署时密钥只走环境变量
func (c *Config) ApplyEnv() {
	setString(&c.Binance.ApiKey, "BINANCE_API_KEY")
	setString(&c.Binance.SecretKey, "BINANCE_SECRET_KEY")
	setString(&c.Binance.BaseURL, "BINANCE_BASE_URL")
	if v, ok := os.LookupEnv("BINANCE_TESTNET"); ok {
		c.Binance.Testnet = cast.ToBool(v)
	}
	if v, ok := os.LookupEnv("BINANCE_SIMULATED"); ok {
		c.Binance.Simulated = cast.ToBool(v)
	}

	// 数据库账号需要成组覆盖
	if os.Getenv("DB_USER") != "" && os.Getenv("DB_HOST") != "" {
		c.Db.Username = os.Getenv("DB_USER")
		c.Db.Password = os.Getenv("DB_PASSWORD")
		c.Db.Host = os.Getenv("DB_HOST")
		setString(&c.Db.Port, "DB_PORT")
		setString(&c.Db.DbName, "DB_NAME")
	}

	host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")
	if host != "" && port != "" {
		c.Redis.Addr = fmt.Sprintf("%s:%s", host, port)
	}
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	if v, ok := os.LookupEnv("REDIS_DB"); ok {
		c.Redis.Db = cast.ToInt(v)
	}

	setString(&c.Kafka.Broker, "KAFKA_BROKER")
	setString(&c.Webhook.Secret, "WEBHOOK_SECRET")

	if v, ok := os.LookupEnv("TRADE_NOTIONAL_USD"); ok {
		c.Trade.NotionalUSD = cast.ToFloat64(v)
	}
	if v, ok := os.LookupEnv("TRADE_POLL_INTERVAL"); ok {
		c.Trade.PollInterval = cast.ToDuration(v)
	}
}

// MasterKeyEnv 解开 enc: 前缀配置项的主密钥
const MasterKeyEnv = "BRACKETFLOW_MASTER_KEY"

// OpenSecrets 解密配置里的加密项
func (c *Config) OpenSecrets(masterKey string) error {
	fields := map[string]*string{
		"binance.apiKey":    &c.Binance.ApiKey,
		"binance.secretKey": &c.Binance.SecretKey,
		"webhook.secret":    &c.Webhook.Secret,
		"database.password": &c.Db.Password,
		"redis.password":    &c.Redis.Password,
	}
	for name, v := range fields {
		plain, err := secret.Open(*v, masterKey)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*v = plain
	}
	return nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !c.Binance.Simulated && (c.Binance.ApiKey == "" || c.Binance.SecretKey == "") {
		return fmt.Errorf("invalid config: binance apiKey/secretKey required unless simulated")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
