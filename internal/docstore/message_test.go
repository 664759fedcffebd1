package docstore

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessageFormat(t *testing.T) {
	sig := bytes.Repeat([]byte{0xAB}, 100)
	msg := BuildMessage("Neuanlage Blatt 42", "Erstanlage durch Amtsgericht", "SHA256", "deadbeef", sig)

	lines := strings.Split(msg, "\n")
	assert.Equal(t, "Neuanlage Blatt 42", lines[0])
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "Erstanlage durch Amtsgericht", lines[2])
	assert.Equal(t, "Hash:         SHA256", lines[3])
	assert.Equal(t, "Key-ID:       deadbeef", lines[4])
	assert.Equal(t, "", lines[5])
	assert.Equal(t, "-----BEGIN SIGNATURE-----", lines[6])
	assert.Contains(t, msg, "-----END SIGNATURE-----")

	// Base64 body wraps at 64 columns.
	for _, l := range lines[7:] {
		if l == "-----END SIGNATURE-----" {
			break
		}
		assert.LessOrEqual(t, len(l), 64)
	}
}

func TestBuildMessageWithoutDescription(t *testing.T) {
	msg := BuildMessage("Titel", "", "SHA512", "cafe", []byte{1})
	assert.True(t, strings.HasPrefix(msg, "Titel\n\nHash:         SHA512\n"))
}

func TestExtractSignatureRoundTrip(t *testing.T) {
	sig := bytes.Repeat([]byte{0x5A, 0x01, 0xFF}, 77)
	msg := BuildMessage("t", "d", "SHA256", "fp", sig)

	got := ExtractSignature(msg)
	require.NotNil(t, got)
	assert.Equal(t, sig, got)
}

func TestExtractSignatureMissingBlock(t *testing.T) {
	assert.Nil(t, ExtractSignature("just a plain commit message\n"))
}
