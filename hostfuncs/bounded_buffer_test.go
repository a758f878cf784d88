package hostfuncs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedBuffer_Write(t *testing.T) {
	t.Run("writes within limit", func(t *testing.T) {
		buf := NewBoundedBuffer(100)
		n, err := buf.Write([]byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "hello", buf.String())
		assert.False(t, buf.Truncated())
	})

	t.Run("truncates at limit", func(t *testing.T) {
		buf := NewBoundedBuffer(10)
		n, err := buf.Write([]byte("hello world"))
		require.NoError(t, err)
		// Full length reported to satisfy io.Writer
		assert.Equal(t, 11, n)
		assert.Equal(t, "hello worl", buf.String())
		assert.True(t, buf.Truncated())
	})

	t.Run("multiple writes truncate", func(t *testing.T) {
		buf := NewBoundedBuffer(10)
		_, _ = buf.Write([]byte("12345"))
		_, _ = buf.Write([]byte("67890"))
		n, err := buf.Write([]byte("XXXXX"))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "1234567890", buf.String())
		assert.True(t, buf.Truncated())
	})

	t.Run("partial write at boundary", func(t *testing.T) {
		buf := NewBoundedBuffer(8)
		_, _ = buf.Write([]byte("12345"))
		n, err := buf.Write([]byte("67890"))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "12345678", buf.String())
		assert.True(t, buf.Truncated())
	})
}

func TestBoundedBuffer_Reset(t *testing.T) {
	buf := NewBoundedBuffer(4)
	_, _ = buf.Write([]byte("abcdef"))
	require.True(t, buf.Truncated())

	buf.Reset()
	assert.Equal(t, 0, buf.Len())
	assert.False(t, buf.Truncated())
}

func TestBoundedBuffer_BytesIsCopy(t *testing.T) {
	buf := NewBoundedBuffer(16)
	_, _ = buf.Write([]byte("abc"))
	b := buf.Bytes()
	b[0] = 'z'
	assert.Equal(t, "abc", buf.String())
}

func TestBoundedBuffer_ConcurrentWrites(t *testing.T) {
	buf := NewBoundedBuffer(1000)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = buf.Write([]byte("x"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, buf.Len())
}
