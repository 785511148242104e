// Package idgen 进程内唯一 ID，用作请求 ID 与定价运行号.
// 雪花 (bwmarrin/snowflake) 与 Sonyflake 两种算法按配置选择.
package idgen

import (
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sony/sonyflake"

	"github.com/wyfcoding/quant/config"
	"github.com/wyfcoding/quant/xerrors"
)

var (
	ErrUnsupportedType  = xerrors.New(xerrors.ErrInvalidArg, 400201, "unsupported id generator", "supported: snowflake, sonyflake", nil)
	ErrParseTime        = xerrors.New(xerrors.ErrInvalidArg, 400202, "invalid id generator epoch", "expected YYYY-MM-DD", nil)
	ErrInvalidMachineID = xerrors.New(xerrors.ErrInvalidArg, 400203, "invalid machine id", "", nil)
)

// sonyflakeEpoch 未配置 start_time 时 Sonyflake 的纪元.
var sonyflakeEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Generator ID 生成器，返回值非负.
type Generator interface {
	Generate() int64
}

type snowflakeGen struct{ node *snowflake.Node }

func (g snowflakeGen) Generate() int64 { return g.node.Generate().Int64() }

// newSnowflake 设置 start_time 会改写 snowflake 包级 Epoch.
func newSnowflake(cfg config.SnowflakeConfig) (Generator, error) {
	if cfg.MachineID < 0 || cfg.MachineID > 1023 {
		return nil, xerrors.Derive(ErrInvalidMachineID, "snowflake machine id must be in [0, 1023], got %d", cfg.MachineID)
	}
	if cfg.StartTime != "" {
		epoch, err := parseEpoch(cfg.StartTime)
		if err != nil {
			return nil, err
		}
		snowflake.Epoch = epoch.UnixMilli()
	}
	node, err := snowflake.NewNode(cfg.MachineID)
	if err != nil {
		return nil, xerrors.WrapInternal(err, "create snowflake node")
	}
	return snowflakeGen{node: node}, nil
}

type sonyflakeGen struct{ sf *sonyflake.Sonyflake }

// Generate 时钟回拨时等待后重试，三次仍失败返回 0.
func (g sonyflakeGen) Generate() int64 {
	for attempt := 1; attempt <= 3; attempt++ {
		id, err := g.sf.NextID()
		if err == nil {
			return int64(id & math.MaxInt64)
		}
		slog.Warn("sonyflake id unavailable", "attempt", attempt, "error", err)
		time.Sleep(10 * time.Millisecond)
	}
	return 0
}

func newSonyflake(cfg config.SnowflakeConfig) (Generator, error) {
	if cfg.MachineID < 0 || cfg.MachineID > 65535 {
		return nil, xerrors.Derive(ErrInvalidMachineID, "sonyflake machine id must be in [0, 65535], got %d", cfg.MachineID)
	}
	epoch := sonyflakeEpoch
	if cfg.StartTime != "" {
		var err error
		if epoch, err = parseEpoch(cfg.StartTime); err != nil {
			return nil, err
		}
	}
	machine := uint16(cfg.MachineID)
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: epoch,
		MachineID: func() (uint16, error) { return machine, nil },
	})
	if err != nil {
		return nil, xerrors.WrapInternal(err, "create sonyflake")
	}
	return sonyflakeGen{sf: sf}, nil
}

func parseEpoch(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, xerrors.Derive(ErrParseTime, "%q: %v", s, err)
	}
	return t, nil
}

// NewGenerator 按 cfg.Type 构造生成器，空类型为雪花算法.
func NewGenerator(cfg config.SnowflakeConfig) (Generator, error) {
	var (
		g   Generator
		err error
	)
	switch cfg.Type {
	case "", "snowflake":
		g, err = newSnowflake(cfg)
	case "sonyflake":
		g, err = newSonyflake(cfg)
	default:
		return nil, xerrors.Derive(ErrUnsupportedType, "%q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	slog.Debug("id generator ready", "type", cfg.Type, "machine_id", cfg.MachineID)
	return g, nil
}

var (
	mu  sync.RWMutex
	gen Generator
)

// Init 替换进程级生成器. 失败时保留原有生成器.
func Init(cfg config.SnowflakeConfig) error {
	g, err := NewGenerator(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	gen = g
	mu.Unlock()
	return nil
}

func current() Generator {
	mu.RLock()
	g := gen
	mu.RUnlock()
	if g != nil {
		return g
	}
	mu.Lock()
	defer mu.Unlock()
	if gen == nil {
		g, err := newSnowflake(config.SnowflakeConfig{MachineID: 1})
		if err != nil {
			panic(err)
		}
		gen = g
	}
	return gen
}

// GenIDString 十进制 ID，用作请求 ID.
func GenIDString() string {
	return strconv.FormatInt(current().Generate(), 10)
}

// GenRunID 定价运行号 "run-<id>".
func GenRunID() string {
	return "run-" + GenIDString()
}
