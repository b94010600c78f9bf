package middleware

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailblast/config"
)

func newTestRedisStorage(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	srv := miniredis.RunT(t)
	st := NewRedisStorage(config.RedisConfig{Address: srv.Addr()})
	t.Cleanup(func() { st.Close() })
	return st, srv
}

func TestRedisStorageRoundtrip(t *testing.T) {
	st, _ := newTestRedisStorage(t)

	require.NoError(t, st.Set("verify:1.2.3.4:/api/v1/verify/email", []byte{0x01}, time.Minute))

	val, err := st.Get("verify:1.2.3.4:/api/v1/verify/email")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, val)
}

func TestRedisStorageMissingKeyIsNotAnError(t *testing.T) {
	st, _ := newTestRedisStorage(t)

	val, err := st.Get("verify:nobody")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestRedisStorageExpiration(t *testing.T) {
	st, srv := newTestRedisStorage(t)

	require.NoError(t, st.Set("verify:ttl", []byte("x"), time.Minute))
	srv.FastForward(2 * time.Minute)

	val, err := st.Get("verify:ttl")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestRedisStorageDeleteAndReset(t *testing.T) {
	st, _ := newTestRedisStorage(t)

	require.NoError(t, st.Set("a", []byte("1"), 0))
	require.NoError(t, st.Set("b", []byte("2"), 0))

	require.NoError(t, st.Delete("a"))
	val, err := st.Get("a")
	require.NoError(t, err)
	assert.Nil(t, val)

	require.NoError(t, st.Reset())
	val, err = st.Get("b")
	require.NoError(t, err)
	assert.Nil(t, val)
}
