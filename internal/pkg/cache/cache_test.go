package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/Abdullah2434/backend/internal/pkg/config"
)

func TestNewClientAndHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Cache{Host: mr.Host(), Port: mr.Port()}

	client := NewClient(context.Background(), cfg)
	defer client.Close()

	assert.NoError(t, Healthy(context.Background(), client))

	mr.Close()
	assert.Error(t, Healthy(context.Background(), client))
}
