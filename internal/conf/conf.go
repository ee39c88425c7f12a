package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration 包装 time.Duration，支持 toml 中 "30s" 这类字符串写法
type Duration time.Duration

// Duration 返回底层 time.Duration
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Bootstrap 全局配置
type Bootstrap struct {
	BuildVersion string `toml:"-"`
	Debug        bool   `toml:"debug"`

	Server   Server   `toml:"server"`
	Data     Data     `toml:"data"`
	Store    Store    `toml:"store"`
	Deletion Deletion `toml:"deletion"`
	Notify   Notify   `toml:"notify"`
}

type Server struct {
	HTTP HTTP `toml:"http"`
}

type HTTP struct {
	Port      int    `toml:"port"`
	JwtSecret string `toml:"jwt_secret"`
}

type Data struct {
	Database Database `toml:"database"`
}

type Database struct {
	// Dsn 前缀决定方言: postgres / mysql，其余按 sqlite 文件处理
	Dsn             string   `toml:"dsn"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
	SlowThreshold   Duration `toml:"slow_threshold"`
}

// Store 媒体对象存储配置
type Store struct {
	Dir           string   `toml:"dir"`
	MaxFileSize   int64    `toml:"max_file_size"`
	PublicURLBase string   `toml:"public_url_base"`
	UploadExpiry  Duration `toml:"upload_expiry"`
	// OrphanGrace 媒体对象引用清零后保留的宽限期，超过后回收字节
	OrphanGrace Duration `toml:"orphan_grace"`
}

// Deletion 删除工作流配置
type Deletion struct {
	// BatchSize 单批处理的最大分段数，限制单事务持锁时长
	BatchSize int      `toml:"batch_size"`
	Interval  Duration `toml:"interval"`
}

// Notify 事件通知配置
type Notify struct {
	PollInterval Duration `toml:"poll_interval"`
	Timeout      Duration `toml:"timeout"`
	MaxAttempts  int      `toml:"max_attempts"`
	RetryBase    Duration `toml:"retry_base"`
	// RetainDays 已派发事件的保留天数，0 表示不清理
	RetainDays int `toml:"retain_days"`
}

// SetupConfig 读取 toml 配置文件，文件不存在时写出默认配置
func SetupConfig(path string) (*Bootstrap, error) {
	bc := defaultBootstrap()
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := writeDefault(path, bc); err != nil {
			return nil, err
		}
		return bc, nil
	}
	if err := toml.Unmarshal(b, bc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return bc, nil
}

func defaultBootstrap() *Bootstrap {
	return &Bootstrap{
		Server: Server{
			HTTP: HTTP{Port: 8080},
		},
		Data: Data{
			Database: Database{
				Dsn:             "tams.db",
				MaxIdleConns:    10,
				MaxOpenConns:    100,
				ConnMaxLifetime: Duration(6 * time.Hour),
				SlowThreshold:   Duration(200 * time.Millisecond),
			},
		},
		Store: Store{
			Dir:          "media",
			MaxFileSize:  4 << 30,
			UploadExpiry: Duration(time.Hour),
			OrphanGrace:  Duration(24 * time.Hour),
		},
		Deletion: Deletion{
			BatchSize: 100,
			Interval:  Duration(5 * time.Second),
		},
		Notify: Notify{
			PollInterval: Duration(2 * time.Second),
			Timeout:      Duration(30 * time.Second),
			MaxAttempts:  5,
			RetryBase:    Duration(time.Second),
			RetainDays:   30,
		},
	}
}

func writeDefault(path string, bc *Bootstrap) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := toml.Marshal(bc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
