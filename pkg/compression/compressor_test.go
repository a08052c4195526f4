package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = bytes.Repeat([]byte("1|alpha|2024-01-02\n2|beta|2024-01-03\n"), 64)

func TestRoundTripAllAlgorithms(t *testing.T) {
	for _, algo := range Algorithms() {
		for _, level := range []Level{Fastest, Default, Better, Best} {
			t.Run(string(algo)+"/"+level.String(), func(t *testing.T) {
				c, err := NewCompressor(&Config{Algorithm: algo, Level: level})
				require.NoError(t, err)
				assert.Equal(t, algo, c.Algorithm())
				assert.Equal(t, level, c.Level())

				compressed, err := c.Compress(sample)
				require.NoError(t, err)
				if algo != None {
					assert.Less(t, len(compressed), len(sample))
				}

				out, err := c.Decompress(compressed)
				require.NoError(t, err)
				assert.Equal(t, sample, out)
			})
		}
	}
}

func TestEmptyInput(t *testing.T) {
	for _, algo := range Algorithms() {
		t.Run(string(algo), func(t *testing.T) {
			c, err := NewCompressor(&Config{Algorithm: algo})
			require.NoError(t, err)
			compressed, err := c.Compress(nil)
			require.NoError(t, err)
			out, err := c.Decompress(compressed)
			require.NoError(t, err)
			assert.Empty(t, out)
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, Zstd, a)

	a, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, Zstd, a)

	_, err = ParseAlgorithm("brotli")
	assert.Error(t, err)

	_, err = NewCompressor(&Config{Algorithm: "brotli"})
	assert.Error(t, err)
}

func TestAlgorithmIDs(t *testing.T) {
	seen := map[byte]bool{}
	for _, a := range Algorithms() {
		id, err := a.ID()
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true

		back, err := AlgorithmFromID(id)
		require.NoError(t, err)
		assert.Equal(t, a, back)
	}
	_, err := AlgorithmFromID(200)
	assert.Error(t, err)
	_, err = Algorithm("brotli").ID()
	assert.Error(t, err)
}

func TestCorruptInput(t *testing.T) {
	garbage := []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	for _, algo := range []Algorithm{Gzip, Snappy, Zstd, S2, LZ4} {
		t.Run(string(algo), func(t *testing.T) {
			c, err := NewCompressor(&Config{Algorithm: algo})
			require.NoError(t, err)
			_, err = c.Decompress(garbage)
			assert.Error(t, err)
		})
	}
}

func TestDecodedSizeLimit(t *testing.T) {
	for _, algo := range []Algorithm{Gzip, Deflate, LZ4} {
		t.Run(string(algo), func(t *testing.T) {
			c, err := NewCompressor(&Config{Algorithm: algo, MaxDecodedSize: 16})
			require.NoError(t, err)
			compressed, err := c.Compress(sample)
			require.NoError(t, err)
			_, err = c.Decompress(compressed)
			assert.Error(t, err)
		})
	}
}

func TestPoolBatch(t *testing.T) {
	pool, err := NewCompressorPool(&Config{Algorithm: LZ4, Level: Fastest})
	require.NoError(t, err)
	assert.Equal(t, LZ4, pool.Algorithm())

	blocks := make([][]byte, 17)
	for i := range blocks {
		blocks[i] = bytes.Repeat([]byte{byte('a' + i)}, 100+i)
	}

	for _, workers := range []int{0, 1, 4, 64} {
		compressed, err := pool.CompressBatch(blocks, workers)
		require.NoError(t, err)
		require.Len(t, compressed, len(blocks))

		raw, err := pool.DecompressBatch(compressed, workers)
		require.NoError(t, err)
		assert.Equal(t, blocks, raw)
	}

	empty, err := pool.CompressBatch(nil, 4)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPoolBatchError(t *testing.T) {
	pool, err := NewCompressorPool(&Config{Algorithm: Snappy})
	require.NoError(t, err)

	blocks := [][]byte{snappyOf(t, "ok"), {0xff, 0xff, 0xff}, snappyOf(t, "ok too")}
	for _, workers := range []int{1, 3} {
		_, err := pool.DecompressBatch(blocks, workers)
		assert.Error(t, err)
	}

	_, err = NewCompressorPool(&Config{Algorithm: "nope"})
	assert.Error(t, err)
}

func snappyOf(t *testing.T, s string) []byte {
	t.Helper()
	c, err := NewCompressor(&Config{Algorithm: Snappy})
	require.NoError(t, err)
	out, err := c.Compress([]byte(s))
	require.NoError(t, err)
	return out
}
