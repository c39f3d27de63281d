package bytesize

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("PlainNumbers", func(t *testing.T) {
		size, err := Parse("1024")
		require.NoError(t, err)
		assert.Equal(t, ByteSize(1024), size)
	})

	t.Run("BinaryUnits", func(t *testing.T) {
		cases := map[string]ByteSize{
			"1Ki":   KiB,
			"64Mi":  64 * MiB,
			"64MiB": 64 * MiB,
			"2Gi":   2 * GiB,
			"1TiB":  TiB,
		}
		for in, want := range cases {
			size, err := Parse(in)
			require.NoError(t, err, in)
			assert.Equal(t, want, size, in)
		}
	})

	t.Run("DecimalUnits", func(t *testing.T) {
		cases := map[string]ByteSize{
			"1K":    KB,
			"100MB": 100 * MB,
			"1G":    GB,
			"2TB":   2 * TB,
		}
		for in, want := range cases {
			size, err := Parse(in)
			require.NoError(t, err, in)
			assert.Equal(t, want, size, in)
		}
	})

	t.Run("Fractional", func(t *testing.T) {
		size, err := Parse("1.5Gi")
		require.NoError(t, err)
		assert.Equal(t, ByteSize(float64(1.5)*float64(GiB)), size)
	})

	t.Run("Whitespace", func(t *testing.T) {
		size, err := Parse("  64 Mi ")
		require.NoError(t, err)
		assert.Equal(t, 64*MiB, size)
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		size, err := Parse("64mi")
		require.NoError(t, err)
		assert.Equal(t, 64*MiB, size)
	})

	t.Run("Errors", func(t *testing.T) {
		for _, in := range []string{"", "Mi", "64Xi", "six4Mi", "-1Mi"} {
			_, err := Parse(in)
			assert.Error(t, err, in)
		}
	})
}

func TestString(t *testing.T) {
	assert.Equal(t, "512B", ByteSize(512).String())
	assert.Equal(t, "1.00KiB", KiB.String())
	assert.Equal(t, "64.00MiB", (64 * MiB).String())
	assert.Equal(t, "1.50GiB", ByteSize(float64(1.5)*float64(GiB)).String())
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("128Mi")))
	assert.Equal(t, 128*MiB, b)

	assert.Error(t, b.UnmarshalText([]byte("bogus")))
}

func TestDecodeHook(t *testing.T) {
	hook := DecodeHook()

	t.Run("String", func(t *testing.T) {
		out, err := hook(stringType(), byteSizeType(), "64Mi")
		require.NoError(t, err)
		assert.Equal(t, 64*MiB, out)
	})

	t.Run("Int", func(t *testing.T) {
		out, err := hook(intType(), byteSizeType(), 4096)
		require.NoError(t, err)
		assert.Equal(t, ByteSize(4096), out)
	})

	t.Run("PassThroughOtherTargets", func(t *testing.T) {
		out, err := hook(stringType(), stringType(), "unchanged")
		require.NoError(t, err)
		assert.Equal(t, "unchanged", out)
	})
}

func stringType() reflect.Type   { return reflect.TypeOf("") }
func intType() reflect.Type      { return reflect.TypeOf(0) }
func byteSizeType() reflect.Type { return reflect.TypeOf(ByteSize(0)) }
