package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailblast/config"
)

func setTestEncryptionKey(t *testing.T) {
	t.Helper()
	prev := config.AppConfig.EncryptionKey
	config.AppConfig.EncryptionKey = "0123456789abcdef0123456789abcdef"
	t.Cleanup(func() { config.AppConfig.EncryptionKey = prev })
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	setTestEncryptionKey(t)

	ciphertext, err := Encrypt("s3cret-smtp-password")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-smtp-password", ciphertext)

	plaintext, err := Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-smtp-password", plaintext)
}

func TestEncryptEmptyStringPassesThrough(t *testing.T) {
	setTestEncryptionKey(t)

	ciphertext, err := Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", ciphertext)

	plaintext, err := Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", plaintext)
}

func TestEncryptUniqueIVs(t *testing.T) {
	setTestEncryptionKey(t)

	a, err := Encrypt("same input")
	require.NoError(t, err)
	b, err := Encrypt("same input")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	setTestEncryptionKey(t)

	_, err := Decrypt("not base64 at all!!!")
	assert.Error(t, err)

	_, err = Decrypt("dG9vc2hvcnQ=")
	assert.Error(t, err)
}
