package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/ndts/format"
)

func testPayload() []byte {
	// Repetitive delta-encoded-looking payload, compressible by all codecs.
	payload := make([]byte, 0, 4096)
	for i := 0; i < 512; i++ {
		payload = append(payload, 0x01, 0x00, 0x02, byte(i%7), 0x00, 0x00, 0x00, 0x00)
	}

	return payload
}

func TestCodecs_RoundTrip(t *testing.T) {
	payload := testPayload()

	for _, ct := range []format.CompressionType{
		format.CompressionNone,
		format.CompressionZstd,
		format.CompressionS2,
		format.CompressionLZ4,
	} {
		t.Run(ct.String(), func(t *testing.T) {
			codec, err := GetCodec(ct)
			require.NoError(t, err)

			compressed, err := codec.Compress(payload)
			require.NoError(t, err)

			decompressed, err := codec.Decompress(compressed)
			require.NoError(t, err)
			require.True(t, bytes.Equal(payload, decompressed))

			if ct != format.CompressionNone {
				require.Less(t, len(compressed), len(payload))
			}
		})
	}
}

func TestGetCodec_Unknown(t *testing.T) {
	_, err := GetCodec(format.CompressionType(0xFF))
	require.Error(t, err)
}

func TestZstd_EmptyInput(t *testing.T) {
	codec := NewZstdCompressor()
	out, err := codec.Decompress(nil)
	require.NoError(t, err)
	require.Empty(t, out)
}
