package config

import (
	"fmt"
	"time"
)

// ValidationConfig 战斗结果合理性阈值，均可通过环境变量调整
type ValidationConfig struct {
	// OverkillTolerance 单怪伤害允许超出血量的比例
	OverkillTolerance float64 `env:"OVERKILL_TOLERANCE" envDefault:"0.25"`
	// DamageFloorRatio 总伤害下限 = 怪物总血量 * ratio
	DamageFloorRatio float64 `env:"DAMAGE_FLOOR_RATIO" envDefault:"0.9"`
	// DamageCeilingRatio 总伤害上限 = 怪物总血量 * ratio
	DamageCeilingRatio float64 `env:"DAMAGE_CEILING_RATIO" envDefault:"3.0"`
	MinBattleMs        int64   `env:"MIN_BATTLE_MS" envDefault:"5000"`
	MinMsPerMob        int64   `env:"MIN_MS_PER_MOB" envDefault:"1500"`
	// MaxBattleBaseMs 为 0 时不限制最长时长
	MaxBattleBaseMs int64 `env:"MAX_BATTLE_BASE_MS" envDefault:"300000"`
	MaxMsPerMob     int64 `env:"MAX_MS_PER_MOB" envDefault:"120000"`
	// ClockSkewMs 战斗时长与会话存活时长比较时的容差
	ClockSkewMs int64 `env:"CLOCK_SKEW_MS" envDefault:"5000"`
}

// DefaultValidationConfig 与 envDefault 一致的默认阈值
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		OverkillTolerance:  0.25,
		DamageFloorRatio:   0.9,
		DamageCeilingRatio: 3.0,
		MinBattleMs:        5000,
		MinMsPerMob:        1500,
		MaxBattleBaseMs:    300000,
		MaxMsPerMob:        120000,
		ClockSkewMs:        5000,
	}
}

// Validate 检查阈值是否自洽
func (c ValidationConfig) Validate() error {
	switch {
	case c.OverkillTolerance < 0:
		return fmt.Errorf("BATTLE_OVERKILL_TOLERANCE 不能为负数")
	case c.DamageFloorRatio < 0 || c.DamageCeilingRatio < c.DamageFloorRatio:
		return fmt.Errorf("伤害区间无效: floor=%v ceiling=%v", c.DamageFloorRatio, c.DamageCeilingRatio)
	case c.MinBattleMs < 0 || c.MinMsPerMob < 0 || c.MaxBattleBaseMs < 0 || c.MaxMsPerMob < 0 || c.ClockSkewMs < 0:
		return fmt.Errorf("战斗时长阈值不能为负数")
	}
	return nil
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	PoolSize int    `env:"POOL_SIZE" envDefault:"20"`
}

// Addr host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SessionConfig 战斗会话配置
type SessionConfig struct {
	// Backend redis | memory
	Backend   string        `env:"BACKEND" envDefault:"redis"`
	TTL       time.Duration `env:"TTL" envDefault:"600s"`
	Retention time.Duration `env:"RETENTION" envDefault:"10m"`
	KeyPrefix string        `env:"KEY_PREFIX" envDefault:"battle:session:"`
}

// GameConfig 游戏服务配置
type GameConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort    string `env:"GAME_HTTP_PORT" envDefault:"8072"`

	// CharacterStore postgres | sqlite
	CharacterStore string `env:"CHARACTER_STORE" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"game.db"`
	DBMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`

	// 非生产环境下为本地联调预置一个角色
	DevSeedUserID      string `env:"DEV_SEED_USER_ID"`
	DevSeedCharacterID string `env:"DEV_SEED_CHARACTER_ID"`

	Redis      RedisConfig      `envPrefix:"REDIS_"`
	Session    SessionConfig    `envPrefix:"BATTLE_SESSION_"`
	Validation ValidationConfig `envPrefix:"BATTLE_"`

	SettleTimeout time.Duration `env:"BATTLE_SETTLE_TIMEOUT" envDefault:"10s"`

	// 每秒请求数 (全局) 与每分钟完成提交数 (按 IP)
	RateLimitPerSecond     float64 `env:"RATE_LIMIT_PER_SECOND" envDefault:"100"`
	CompletionLimitPerMin  int     `env:"COMPLETION_LIMIT_PER_MINUTE" envDefault:"30"`
	PoolStatsCronSpec      string  `env:"POOL_STATS_CRON" envDefault:"*/30 * * * * *"`
	SessionPurgeCronSpec   string  `env:"SESSION_PURGE_CRON" envDefault:"0 * * * * *"`
	NatsEventSubjectPrefix string  `env:"BATTLE_EVENT_SUBJECT_PREFIX" envDefault:"game.battle"`

	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`
}

// LoadGameConfig 从环境变量加载并校验配置
func LoadGameConfig() (*GameConfig, error) {
	var cfg GameConfig
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *GameConfig) Validate() error {
	switch c.CharacterStore {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("CHARACTER_STORE=postgres 时必须设置 DATABASE_URL")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("CHARACTER_STORE=sqlite 时必须设置 SQLITE_PATH")
		}
	default:
		return fmt.Errorf("未知的 CHARACTER_STORE: %q", c.CharacterStore)
	}

	switch c.Session.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("未知的 BATTLE_SESSION_BACKEND: %q", c.Session.Backend)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("BATTLE_SESSION_TTL 必须大于 0")
	}
	if c.Session.Retention < 0 {
		return fmt.Errorf("BATTLE_SESSION_RETENTION 不能为负数")
	}
	if (c.DevSeedUserID == "") != (c.DevSeedCharacterID == "") {
		return fmt.Errorf("DEV_SEED_USER_ID 与 DEV_SEED_CHARACTER_ID 必须同时设置")
	}
	if c.SettleTimeout <= 0 {
		return fmt.Errorf("BATTLE_SETTLE_TIMEOUT 必须大于 0")
	}
	return c.Validation.Validate()
}

// LogFields 供启动日志输出的配置摘要（已脱敏）
func (c *GameConfig) LogFields() map[string]any {
	return SanitizeConfigForLog(map[string]any{
		"environment":            c.Environment,
		"http_port":              c.HTTPPort,
		"character_store":        c.CharacterStore,
		"database_url":           c.DatabaseURL,
		"sqlite_path":            c.SQLitePath,
		"redis_addr":             c.Redis.Addr(),
		"redis_password":         c.Redis.Password,
		"session_backend":        c.Session.Backend,
		"session_ttl":            c.Session.TTL.String(),
		"session_retention":      c.Session.Retention.String(),
		"settle_timeout":         c.SettleTimeout.String(),
		"completion_limit_per_m": c.CompletionLimitPerMin,
	})
}
