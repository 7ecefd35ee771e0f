package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitRedis_Fail(t *testing.T) {
	t.Run("Unreachable", func(t *testing.T) {
		client, err := InitRedis("localhost:1", "", 0)
		assert.Error(t, err)
		assert.Nil(t, client)
	})

	t.Run("Not Configured", func(t *testing.T) {
		client, err := InitRedis("", "", 0)
		assert.Error(t, err)
		assert.Nil(t, client)
	})

	t.Run("Bad URL", func(t *testing.T) {
		client, err := InitRedis("redis://:bad:port/x", "", 0)
		assert.Error(t, err)
		assert.Nil(t, client)
	})
}
