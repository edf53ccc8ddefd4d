package follower

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/0xkanth/rangeindexer/pkg/indexing"
)

// Follower.Run exercises the real RangeDecorator against a live Postgres
// pool (coverage queries and the LEAST/GREATEST upsert), so it is not
// exercised here. These cover the pure arbitration helpers.

func TestSafeHead(t *testing.T) {
	assert.Equal(t, uint64(2400), safeHead(2500, 100))
	assert.Equal(t, uint64(0), safeHead(50, 100))
	assert.Equal(t, uint64(0), safeHead(100, 100))
}

func TestMinFromBlock(t *testing.T) {
	strategies := []indexing.Config{
		{FromBlock: 500},
		{FromBlock: 100},
		{FromBlock: 900},
	}
	assert.Equal(t, uint64(100), minFromBlock(strategies))
}

func TestMinFromBlock_Empty(t *testing.T) {
	assert.Equal(t, uint64(0), minFromBlock(nil))
}

func TestMaxUint64(t *testing.T) {
	assert.Equal(t, uint64(10), maxUint64(10, 3))
	assert.Equal(t, uint64(10), maxUint64(3, 10))
}
