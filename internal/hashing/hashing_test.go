package hashing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDigester struct{ calls int }

func (f *failingDigester) Digest(context.Context, []byte) ([]byte, error) {
	f.calls++
	return nil, errors.New("subtle crypto unavailable")
}

func TestHashPrimaryPath(t *testing.T) {
	h := Default()
	ctx := context.Background()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"empty string", "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"abc", "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Hash(ctx, tt.in))
		})
	}
}

func TestHashNormalization(t *testing.T) {
	h := Default()
	ctx := context.Background()

	t.Run("nil hashes like JSON empty string", func(t *testing.T) {
		assert.Equal(t, h.Hash(ctx, `""`), h.Hash(ctx, nil))
	})

	t.Run("zero number hashes like JSON empty string", func(t *testing.T) {
		assert.Equal(t, h.Hash(ctx, `""`), h.Hash(ctx, 0))
	})

	t.Run("structured values hash through JSON", func(t *testing.T) {
		v := map[string]any{"vendor": "Intel", "max": 16384}
		assert.Equal(t, h.Hash(ctx, `{"max":16384,"vendor":"Intel"}`), h.Hash(ctx, v))
	})

	t.Run("deterministic", func(t *testing.T) {
		in := []string{"Arial", "Verdana"}
		assert.Equal(t, h.Hash(ctx, in), h.Hash(ctx, in))
	})
}

func TestLegacy(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "811c9dc501000193"},
		{"a", "e40c292c010001f4"},
		{"foobar", "bf9cf96801000a3d"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Legacy(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, 16)
		})
	}
}

func TestLegacyUsesUTF16CodeUnits(t *testing.T) {
	// The robot emoji is a surrogate pair, so it contributes two code units.
	assert.NotEqual(t, Legacy("\U0001F916"), Legacy("�"))
	assert.Len(t, Legacy("BrowserFP \U0001F916\U0001F3AF"), 16)
}

func TestHashFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("nil digester uses legacy path", func(t *testing.T) {
		h := New(nil)
		assert.Equal(t, "bf9cf96801000a3d", h.Hash(ctx, "foobar"))
	})

	t.Run("failing digester uses legacy path", func(t *testing.T) {
		d := &failingDigester{}
		h := New(d)
		assert.Equal(t, "bf9cf96801000a3d", h.Hash(ctx, "foobar"))
		require.Equal(t, 1, d.calls)
	})

	t.Run("paths are not cross compatible", func(t *testing.T) {
		assert.NotEqual(t, New(nil).Hash(ctx, "foobar"), Default().Hash(ctx, "foobar"))
	})

	t.Run("nil hasher still hashes", func(t *testing.T) {
		var h *Hasher
		assert.Equal(t, Legacy("x"), h.Hash(ctx, "x"))
	})
}
