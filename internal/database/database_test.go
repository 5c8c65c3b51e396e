package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnect_InvalidDriver(t *testing.T) {
	_, err := Connect(Config{
		Driver:           "bogus",
		ConnectionString: "whatever",
	})
	assert.Error(t, err)
}
