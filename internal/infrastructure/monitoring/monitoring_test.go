package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"castline/internal/core/domain"
	"castline/internal/infrastructure/repositories/memory"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample returns the summed value of every series of the named family.
func sample(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
		return total
	}
	return 0
}

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.RecordChatMessage(domain.MessageUser)
	c.RecordChatMessage(domain.MessageReply)
	c.RecordModeration("ban", "success")
	c.RecordLifecycle("publish", "accepted")
	c.RecordBusPublish("new-message", nil)
	c.RecordBusPublish("new-message", errors.New("down"))
	c.RecordDroppedSample()
	c.GatewayConnected()
	c.GatewayConnected()
	c.GatewayDisconnected()

	assert.Equal(t, 2.0, sample(t, reg, "castline_chat_messages_total"))
	assert.Equal(t, 1.0, sample(t, reg, "castline_moderation_actions_total"))
	assert.Equal(t, 1.0, sample(t, reg, "castline_lifecycle_callbacks_total"))
	assert.Equal(t, 2.0, sample(t, reg, "castline_bus_publish_total"))
	assert.Equal(t, 1.0, sample(t, reg, "castline_media_samples_dropped_total"))
	assert.Equal(t, 1.0, sample(t, reg, "castline_gateway_connections"))

	c.SetLive(true)
	c.SetViewers(12)
	assert.Equal(t, 1.0, sample(t, reg, "castline_stream_live"))
	assert.Equal(t, 12.0, sample(t, reg, "castline_stream_viewers"))

	c.SetLive(false)
	assert.Equal(t, 0.0, sample(t, reg, "castline_stream_live"))
	assert.Equal(t, 0.0, sample(t, reg, "castline_stream_viewers"))
}

func TestHealthChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	h := NewHealthChecker()
	h.AddRedisCheck(client, time.Second)
	h.AddStreamCheck(memory.NewMemoryStreamRepository(), time.Second)

	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, map[string]string{"redis": StatusHealthy, "stream_repository": StatusHealthy}, status.Checks)
	assert.True(t, h.IsReady(context.Background()))

	mr.Close()
	status = h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.NotEqual(t, StatusHealthy, status.Checks["redis"])
	assert.Equal(t, StatusHealthy, status.Checks["stream_repository"])
}

func TestHealthChecker_Timeout(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 10*time.Millisecond)

	assert.False(t, h.IsReady(context.Background()))
}
