package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	valkeymock "github.com/valkey-io/valkey-go/mock"
	"go.uber.org/mock/gomock"
)

func TestKey(t *testing.T) {
	assert.Equal(t, Key("fever in cow", false), Key("fever in cow", false))
	assert.NotEqual(t, Key("fever in cow", false), Key("fever in cow", true))
	assert.NotEqual(t, Key("fever in cow", false), Key("fever in dog", false))
	assert.Regexp(t, "^vetai:cache:[0-9a-f]{64}$", Key("anything", false))
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		mock := clock.NewMock()
		c, stop := newMemoryCacheWithClock(time.Hour, 10, mock)
		defer stop()

		assert.NoError(t, c.Put(ctx, "prompt", false, "answer"))
		text, ok, err := c.Get(ctx, "prompt", false)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "answer", text)

		_, ok, _ = c.Get(ctx, "prompt", true)
		assert.False(t, ok)
	})

	t.Run("expired entries are absent", func(t *testing.T) {
		mock := clock.NewMock()
		c, stop := newMemoryCacheWithClock(time.Hour, 10, mock)
		defer stop()

		assert.NoError(t, c.Put(ctx, "prompt", false, "answer"))
		mock.Add(59 * time.Minute)
		_, ok, _ := c.Get(ctx, "prompt", false)
		assert.True(t, ok)

		mock.Add(time.Minute)
		_, ok, _ = c.Get(ctx, "prompt", false)
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("full cache evicts oldest", func(t *testing.T) {
		mock := clock.NewMock()
		c, stop := newMemoryCacheWithClock(time.Hour, 2, mock)
		defer stop()

		assert.NoError(t, c.Put(ctx, "first", false, "1"))
		mock.Add(time.Second)
		assert.NoError(t, c.Put(ctx, "second", false, "2"))
		mock.Add(time.Second)
		assert.NoError(t, c.Put(ctx, "third", false, "3"))

		assert.Equal(t, 2, c.Len())
		_, ok, _ := c.Get(ctx, "first", false)
		assert.False(t, ok)
		_, ok, _ = c.Get(ctx, "third", false)
		assert.True(t, ok)
	})

	t.Run("overwrite refreshes entry", func(t *testing.T) {
		mock := clock.NewMock()
		c, stop := newMemoryCacheWithClock(time.Hour, 2, mock)
		defer stop()

		assert.NoError(t, c.Put(ctx, "first", false, "1"))
		mock.Add(time.Second)
		assert.NoError(t, c.Put(ctx, "second", false, "2"))
		mock.Add(time.Second)
		assert.NoError(t, c.Put(ctx, "first", false, "1b"))
		assert.Equal(t, 2, c.Len())

		// "second" is now the oldest.
		assert.NoError(t, c.Put(ctx, "third", false, "3"))
		text, ok, _ := c.Get(ctx, "first", false)
		assert.True(t, ok)
		assert.Equal(t, "1b", text)
		_, ok, _ = c.Get(ctx, "second", false)
		assert.False(t, ok)
	})

	t.Run("cleanup drops expired entries", func(t *testing.T) {
		mock := clock.NewMock()
		c, stop := newMemoryCacheWithClock(time.Minute, 10, mock)
		defer stop()

		assert.NoError(t, c.Put(ctx, "old", false, "1"))
		mock.Add(2 * time.Minute)
		assert.NoError(t, c.Put(ctx, "new", false, "2"))
		c.cleanup()
		assert.Equal(t, 1, c.Len())
	})
}

func TestValkeyCache(t *testing.T) {
	t.Run("get hit", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockClient := valkeymock.NewClient(ctrl)
		c := NewValkeyCache(mockClient, time.Hour)
		ctx := context.Background()

		mockClient.EXPECT().
			Do(ctx, valkeymock.Match("GET", Key("prompt", false))).
			Return(valkeymock.Result(valkeymock.ValkeyBlobString("answer")))

		text, ok, err := c.Get(ctx, "prompt", false)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "answer", text)
	})

	t.Run("get miss", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockClient := valkeymock.NewClient(ctrl)
		c := NewValkeyCache(mockClient, time.Hour)
		ctx := context.Background()

		mockClient.EXPECT().
			Do(ctx, valkeymock.Match("GET", Key("prompt", true))).
			Return(valkeymock.Result(valkeymock.ValkeyNil()))

		_, ok, err := c.Get(ctx, "prompt", true)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("get error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockClient := valkeymock.NewClient(ctrl)
		c := NewValkeyCache(mockClient, time.Hour)
		ctx := context.Background()

		mockClient.EXPECT().
			Do(ctx, valkeymock.Match("GET", Key("prompt", false))).
			Return(valkeymock.ErrorResult(fmt.Errorf("valkey error")))

		_, ok, err := c.Get(ctx, "prompt", false)
		assert.Error(t, err)
		assert.False(t, ok)
	})

	t.Run("put", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockClient := valkeymock.NewClient(ctrl)
		c := NewValkeyCache(mockClient, time.Hour)
		ctx := context.Background()

		mockClient.EXPECT().
			Do(ctx, valkeymock.Match("SET", Key("prompt", false), "answer", "EX", "3600")).
			Return(valkeymock.Result(valkeymock.ValkeyString("OK")))

		assert.NoError(t, c.Put(ctx, "prompt", false, "answer"))
	})
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}
	assert.NoError(t, c.Put(ctx, "prompt", false, "answer"))
	_, ok, err := c.Get(ctx, "prompt", false)
	assert.NoError(t, err)
	assert.False(t, ok)
}
