package services

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "wavesight/internal/errors"
)

func TestUploadStore_PutAndGet(t *testing.T) {
	store := NewUploadStore(1024, time.Hour, slog.Default())

	up, err := store.Put(KindInventory, "inv.xlsx", []byte("payload"))
	require.NoError(t, err)
	assert.NotEmpty(t, up.ID)
	assert.Equal(t, KindInventory, up.Kind)

	got, err := store.Get(up.ID, KindInventory)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got.Data)
	assert.Equal(t, "inv.xlsx", got.Filename)
}

func TestUploadStore_SizeCap(t *testing.T) {
	store := NewUploadStore(4, time.Hour, slog.Default())

	_, err := store.Put(KindConveyor, "big.xlsx", []byte("too large"))
	require.Error(t, err)

	var apiErr *apierrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "PAYLOAD_TOO_LARGE", apiErr.ErrorCode)
}

func TestUploadStore_UnknownID(t *testing.T) {
	store := NewUploadStore(1024, time.Hour, slog.Default())

	_, err := store.Get("no-such-id", KindInventory)
	require.Error(t, err)

	var apiErr *apierrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "UPLOAD_NOT_FOUND", apiErr.ErrorCode)
}

func TestUploadStore_KindMismatch(t *testing.T) {
	store := NewUploadStore(1024, time.Hour, slog.Default())

	up, err := store.Put(KindOutbound, "sbl.xlsx", []byte("x"))
	require.NoError(t, err)

	_, err = store.Get(up.ID, KindInventory)
	require.Error(t, err)

	var apiErr *apierrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "VALIDATION_FAILED", apiErr.ErrorCode)
}

func TestUploadStore_TTLExpiry(t *testing.T) {
	store := NewUploadStore(1024, time.Minute, slog.Default())
	current := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	up, err := store.Put(KindInventory, "inv.xlsx", []byte("x"))
	require.NoError(t, err)

	_, err = store.Get(up.ID, KindInventory)
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = store.Get(up.ID, KindInventory)
	require.Error(t, err)

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 0, store.Len())
}

func TestValidKind(t *testing.T) {
	assert.True(t, ValidKind("inventory"))
	assert.True(t, ValidKind("conveyor"))
	assert.True(t, ValidKind("outbound"))
	assert.False(t, ValidKind("demand"))
	assert.False(t, ValidKind(""))
}
