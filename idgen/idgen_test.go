package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/quant/config"
)

func TestSnowflakeUniqueAcrossGoroutines(t *testing.T) {
	g, err := NewGenerator(config.SnowflakeConfig{Type: "snowflake", MachineID: 3})
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, perWorker)
			for i := range ids {
				ids[i] = g.Generate()
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestSonyflakeMonotonic(t *testing.T) {
	g, err := NewGenerator(config.SnowflakeConfig{Type: "sonyflake", MachineID: 7, StartTime: "2024-01-01"})
	require.NoError(t, err)
	a, b := g.Generate(), g.Generate()
	assert.Positive(t, a)
	assert.Greater(t, b, a)
}

func TestNewGeneratorRejectsBadConfig(t *testing.T) {
	_, err := NewGenerator(config.SnowflakeConfig{Type: "uuid"})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = NewGenerator(config.SnowflakeConfig{Type: "sonyflake", MachineID: 70000})
	assert.ErrorIs(t, err, ErrInvalidMachineID)

	_, err = NewGenerator(config.SnowflakeConfig{Type: "sonyflake", StartTime: "01/02/2024"})
	assert.ErrorIs(t, err, ErrParseTime)

	_, err = NewGenerator(config.SnowflakeConfig{MachineID: 2048})
	assert.ErrorIs(t, err, ErrInvalidMachineID)
}

func TestInitKeepsPreviousOnError(t *testing.T) {
	require.NoError(t, Init(config.SnowflakeConfig{MachineID: 5}))
	assert.Error(t, Init(config.SnowflakeConfig{Type: "uuid"}))
	assert.NotEmpty(t, GenIDString())
}

func TestGenRunID(t *testing.T) {
	id := GenRunID()
	assert.True(t, strings.HasPrefix(id, "run-"))
	assert.NotEqual(t, id, GenRunID())
}
