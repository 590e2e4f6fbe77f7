package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolOptionsDefaults(t *testing.T) {
	got := PoolOptions{}.withDefaults()
	assert.Equal(t, PoolOptions{
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 2 * time.Hour,
		MaxConnIdleTime: 5 * time.Minute,
	}, got)
}

func TestPoolOptionsClampMinToMax(t *testing.T) {
	got := PoolOptions{MaxConns: 3, MinConns: 10}.withDefaults()
	assert.Equal(t, int32(3), got.MaxConns)
	assert.Equal(t, int32(3), got.MinConns)

	got = PoolOptions{MaxConns: 50, MinConns: 10}.withDefaults()
	assert.Equal(t, int32(10), got.MinConns)
}
