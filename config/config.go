// Package config 提供了统一的配置加载与管理能力: TOML 文件、APP_ 前缀环境变量覆盖、
// 结构体校验与基于 fsnotify 的热更新.
package config

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/wyfcoding/quant/logging"
	"github.com/wyfcoding/quant/xerrors"
)

// ErrInvalidConfig 配置文件无法读取、解码或未通过校验.
var ErrInvalidConfig = xerrors.New(xerrors.ErrInvalidArg, 400301, "invalid configuration", "", nil)

// Config 全局顶级配置结构.
type Config struct {
	Version   string          `mapstructure:"version"   toml:"version"`
	Server    ServerConfig    `mapstructure:"server"    toml:"server"`
	Log       LogConfig       `mapstructure:"log"       toml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   toml:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"   toml:"tracing"`
	Cache     BigCacheConfig  `mapstructure:"cache"     toml:"cache"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake" toml:"snowflake"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" toml:"ratelimit"`
	Engine    EngineConfig    `mapstructure:"engine"    toml:"engine"`
}

// ServerConfig 定义服务器运行时的基础网络与环境参数.
type ServerConfig struct {
	Name        string `mapstructure:"name"        toml:"name"        validate:"required"`
	Environment string `mapstructure:"environment" toml:"environment" validate:"oneof=dev test prod"`
	HTTP        struct {
		Addr              string        `mapstructure:"addr"                toml:"addr"`
		ReadTimeout       time.Duration `mapstructure:"read_timeout"        toml:"read_timeout"`
		ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" toml:"read_header_timeout"`
		WriteTimeout      time.Duration `mapstructure:"write_timeout"       toml:"write_timeout"`
		IdleTimeout       time.Duration `mapstructure:"idle_timeout"        toml:"idle_timeout"`
		MaxBodyBytes      int64         `mapstructure:"max_body_bytes"      toml:"max_body_bytes"`
		Port              int           `mapstructure:"port"                toml:"port"                validate:"required,min=1,max=65535"`
	} `mapstructure:"http" toml:"http"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level         string        `mapstructure:"level"          toml:"level"          validate:"omitempty,oneof=debug info warn error"`
	File          string        `mapstructure:"file"           toml:"file"`           // 日志文件路径。
	Console       bool          `mapstructure:"console"        toml:"console"`        // 写文件时是否同时输出到 stdout。
	MaxSize       int           `mapstructure:"max_size"       toml:"max_size"`       // 单个文件最大大小 (MB)。
	MaxBackups    int           `mapstructure:"max_backups"    toml:"max_backups"`    // 最大备份数。
	MaxAge        int           `mapstructure:"max_age"        toml:"max_age"`        // 最大保留天数。
	Compress      bool          `mapstructure:"compress"       toml:"compress"`       // 是否启用压缩。
	SlowThreshold time.Duration `mapstructure:"slow_threshold" toml:"slow_threshold"` // HTTP 慢请求阈值。
}

// SnowflakeConfig 雪花算法分布式 ID 生成器参数.
type SnowflakeConfig struct {
	StartTime string `mapstructure:"start_time" toml:"start_time"`
	Type      string `mapstructure:"type"       toml:"type"       validate:"omitempty,oneof=snowflake sonyflake"`
	MachineID int64  `mapstructure:"machine_id" toml:"machine_id" validate:"min=0,max=1023"`
}

// TracingConfig 分布式链路追踪（OpenTelemetry）配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio" validate:"min=0,max=1"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// RateLimitConfig 定义令牌桶限流参数.
type RateLimitConfig struct {
	Rate    int  `mapstructure:"rate"    toml:"rate"    validate:"min=0"`
	Burst   int  `mapstructure:"burst"   toml:"burst"   validate:"min=0"`
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
}

// BigCacheConfig 定价结果本地缓存参数，LifeWindow 为 0 时关闭缓存.
type BigCacheConfig struct {
	LifeWindow       time.Duration `mapstructure:"life_window"         toml:"life_window"`
	CleanWindow      time.Duration `mapstructure:"clean_window"        toml:"clean_window"`
	Shards           int           `mapstructure:"shards"              toml:"shards"`
	MaxEntrySize     int           `mapstructure:"max_entry_size"      toml:"max_entry_size"`
	HardMaxCacheSize int           `mapstructure:"hard_max_cache_size" toml:"hard_max_cache_size"`
	Verbose          bool          `mapstructure:"verbose"             toml:"verbose"`
}

// EngineConfig 有限差分引擎的默认离散参数. Theta 与 Mu 为 0 时使用格式的预设值.
type EngineConfig struct {
	Scheme            string        `mapstructure:"scheme"             toml:"scheme"             validate:"omitempty,oneof=douglas craigsneyd modifiedcraigsneyd hundsdorfer modifiedhundsdorfer expliciteuler"`
	Theta             float64       `mapstructure:"theta"              toml:"theta"              validate:"min=0,max=1"`
	Mu                float64       `mapstructure:"mu"                 toml:"mu"                 validate:"min=0,max=1"`
	TimeSteps         int           `mapstructure:"time_steps"         toml:"time_steps"         validate:"min=1"`
	DampingSteps      int           `mapstructure:"damping_steps"      toml:"damping_steps"      validate:"min=0"`
	XGrid             int           `mapstructure:"x_grid"             toml:"x_grid"             validate:"min=3"`
	VGrid             int           `mapstructure:"v_grid"             toml:"v_grid"             validate:"min=3"`
	RGrid             int           `mapstructure:"r_grid"             toml:"r_grid"             validate:"min=3"`
	BasketGrid        int           `mapstructure:"basket_grid"        toml:"basket_grid"        validate:"min=3"`
	VarianceTransform string        `mapstructure:"variance_transform" toml:"variance_transform" validate:"omitempty,oneof=plain log"`
	Workers           int           `mapstructure:"workers"            toml:"workers"            validate:"min=0"`
	Timeout           time.Duration `mapstructure:"timeout"            toml:"timeout"`
}

// DefaultEngineConfig 与 engine.DefaultConfig 一致的默认值.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Scheme:            "hundsdorfer",
		TimeSteps:         100,
		XGrid:             200,
		VGrid:             100,
		RGrid:             31,
		BasketGrid:        50,
		VarianceTransform: "plain",
		Workers:           4,
		Timeout:           30 * time.Second,
	}
}

// Default 各节的默认值，Load 只覆盖文件与环境变量中出现的字段.
func Default() *Config {
	c := &Config{Engine: DefaultEngineConfig()}
	c.Server.Name = "fdm-pricer"
	c.Server.Environment = "dev"
	c.Server.HTTP.Port = 8080
	c.Server.HTTP.ReadHeaderTimeout = 5 * time.Second
	c.Server.HTTP.MaxBodyBytes = 1 << 20
	c.Log.Level = "info"
	c.Metrics.Path = "/metrics"
	c.Metrics.Enabled = true
	c.Tracing.SamplerRatio = 1
	c.Cache.LifeWindow = 10 * time.Minute
	c.Cache.CleanWindow = time.Minute
	c.Cache.Shards = 64
	c.Cache.MaxEntrySize = 512
	c.Cache.HardMaxCacheSize = 64
	c.Snowflake.Type = "snowflake"
	c.Snowflake.MachineID = 1
	return c
}

// reloadDebounce 编辑器保存文件常触发多次写事件，等待其落定后再读取.
const reloadDebounce = 500 * time.Millisecond

var (
	mu       sync.Mutex
	hooks    []func(*Config)
	validate = validator.New()
)

// RegisterReloadHook 注册热更新回调，仅在新配置通过校验后调用.
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	mu.Lock()
	hooks = append(hooks, hook)
	mu.Unlock()
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load 在 conf 现有值之上叠加 path 与 APP_ 前缀环境变量 (如 APP_ENGINE_X_GRID)，
// 校验通过后写回 conf 并监听文件变更. 失败时 conf 不变.
func Load(path string, conf *Config) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return xerrors.DeriveCause(ErrInvalidConfig, err, "read %s", path)
	}
	next, err := decode(v, *conf)
	if err != nil {
		return err
	}
	*conf = next

	v.OnConfigChange(func(ev fsnotify.Event) {
		time.Sleep(reloadDebounce)
		reload(v, conf, ev.Name)
	})
	v.WatchConfig()
	return nil
}

// decode 解码到 base 的副本并校验.
func decode(v *viper.Viper, base Config) (Config, error) {
	if err := v.Unmarshal(&base); err != nil {
		return Config{}, xerrors.DeriveCause(ErrInvalidConfig, err, "decode")
	}
	if err := validate.Struct(&base); err != nil {
		return Config{}, xerrors.DeriveCause(ErrInvalidConfig, err, "validate")
	}
	return base, nil
}

func reload(v *viper.Viper, conf *Config, file string) {
	if err := v.ReadInConfig(); err != nil {
		slog.Error("config reload: read failed, keeping current config", "file", file, "error", err)
		return
	}
	mu.Lock()
	defer mu.Unlock()
	next, err := decode(v, *conf)
	if err != nil {
		slog.Error("config reload rejected, keeping current config", "file", file, "error", err)
		return
	}
	*conf = next
	logging.SetLevel(next.Log.Level)
	slog.Info("config reloaded", "file", file, "hooks", len(hooks))
	for _, hook := range hooks {
		hook(&next)
	}
}

// PrintWithMask 以 JSON 打印配置，键名含敏感词的值替换为 ******.
func PrintWithMask(conf any) {
	raw, err := json.Marshal(conf)
	if err != nil {
		slog.Error("print config: marshal failed", "error", err)
		return
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		slog.Error("print config: decode failed", "error", err)
		return
	}
	mask(tree)
	out, err := json.Marshal(tree)
	if err != nil {
		slog.Error("print config: marshal masked failed", "error", err)
		return
	}
	slog.Info("effective configuration", "config", string(out))
}

var sensitiveKeys = []string{"password", "secret", "dsn", "key", "token"}

func sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func mask(tree map[string]any) {
	for k, val := range tree {
		switch x := val.(type) {
		case map[string]any:
			mask(x)
		case []any:
			for _, item := range x {
				if m, ok := item.(map[string]any); ok {
					mask(m)
				}
			}
		default:
			if sensitive(k) {
				tree[k] = "******"
			}
		}
	}
}
