package coordination

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	testRedisURL string
	redContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	flag.Parse()

	// Skip container setup if running in short mode
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	redContainer, err = rediscontainer.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := redContainer.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	defer func() {
		if err := redContainer.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
		}
	}()
	os.Exit(m.Run())
}

func TestIsActive(t *testing.T) {
	now := time.Now()

	fresh := InstanceInfo{InstanceID: "a", Timestamp: now.Unix() - 10}
	assert.True(t, isActive(fresh, now))

	stale := InstanceInfo{InstanceID: "b", Timestamp: now.Unix() - 70}
	assert.False(t, isActive(stale, now))

	boundary := InstanceInfo{InstanceID: "c", Timestamp: now.Unix() - 60}
	assert.False(t, isActive(boundary, now))
}

func TestInstanceRegistry_RegisterAndGetActive(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	redisClient := setupTestRedis(t)

	registry := NewInstanceRegistry(redisClient, "test-instance-1", 1*time.Second, "v1.0.0")

	registry.register(ctx)

	active, err := registry.GetActiveInstances(ctx)
	require.NoError(t, err)
	assert.Contains(t, active, "test-instance-1")

	infos, err := registry.GetInstanceInfo(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
	assert.Equal(t, "test-instance-1", infos[0].InstanceID)
	assert.Equal(t, "v1.0.0", infos[0].Version)
}

func TestInstanceRegistry_HeartbeatExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	redisClient := setupTestRedis(t)

	registry := NewInstanceRegistry(redisClient, "test-instance-2", 1*time.Second, "v1.0.0")

	// Register with an old timestamp, simulating an expired heartbeat
	value := InstanceInfo{
		InstanceID: "test-instance-2",
		Timestamp:  time.Now().Unix() - 70,
		Version:    "v1.0.0",
	}
	data, _ := json.Marshal(value)
	redisClient.HSet(ctx, instancesKey, "test-instance-2", data)

	active, err := registry.GetActiveInstances(ctx)
	require.NoError(t, err)
	assert.NotContains(t, active, "test-instance-2")
}

func TestInstanceRegistry_MultipleInstances(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	redisClient := setupTestRedis(t)

	registry1 := NewInstanceRegistry(redisClient, "instance-1", 1*time.Second, "v1.0.0")
	registry2 := NewInstanceRegistry(redisClient, "instance-2", 1*time.Second, "v1.0.0")
	registry3 := NewInstanceRegistry(redisClient, "instance-3", 1*time.Second, "v1.1.0")

	registry1.register(ctx)
	registry2.register(ctx)
	registry3.register(ctx)

	active, err := registry1.GetActiveInstances(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 3)
	assert.Contains(t, active, "instance-1")
	assert.Contains(t, active, "instance-2")
	assert.Contains(t, active, "instance-3")
}

func TestInstanceRegistry_Unregister(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	redisClient := setupTestRedis(t)

	registry := NewInstanceRegistry(redisClient, "test-instance-4", 1*time.Second, "v1.0.0")

	registry.register(ctx)

	active, err := registry.GetActiveInstances(ctx)
	require.NoError(t, err)
	assert.Contains(t, active, "test-instance-4")

	registry.unregister()

	active, err = registry.GetActiveInstances(ctx)
	require.NoError(t, err)
	assert.NotContains(t, active, "test-instance-4")
}

func TestInstanceRegistry_IgnoresMalformedEntries(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	redisClient := setupTestRedis(t)

	registry := NewInstanceRegistry(redisClient, "test-instance-5", 1*time.Second, "v1.0.0")

	registry.register(ctx)
	redisClient.HSet(ctx, instancesKey, "garbage", "not json")

	active, err := registry.GetActiveInstances(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"test-instance-5"}, active)
}

// setupTestRedis creates a Redis client for testing.
// Tests using this must check testing.Short() and skip if true.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test")
	}

	opts, err := redis.ParseURL(testRedisURL)
	require.NoError(t, err)

	client := redis.NewClient(opts)

	// Flush all keys before each test
	ctx := context.Background()
	err = client.FlushAll(ctx).Err()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}
