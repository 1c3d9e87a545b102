package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	values map[string]string
	err    error
}

func (m *memStore) GetSetting(_ context.Context, name string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *memStore) SetSetting(_ context.Context, name, value string) error {
	if m.err != nil {
		return m.err
	}
	m.values[name] = value
	return nil
}

func TestLoadDefaults(t *testing.T) {
	r, err := Load(context.Background(), &memStore{values: map[string]string{}}, 1024, 50)
	require.NoError(t, err)

	assert.Equal(t, int64(1024), r.MaxAttachmentSize())
	assert.Equal(t, 50, r.MaxCacheEntries())
}

func TestLoadStored(t *testing.T) {
	store := &memStore{values: map[string]string{
		maxAttachmentSizeKey: "10",
		maxCacheEntriesKey:   "20",
	}}

	r, err := Load(context.Background(), store, 1024, 50)
	require.NoError(t, err)

	assert.Equal(t, int64(10), r.MaxAttachmentSize())
	assert.Equal(t, 20, r.MaxCacheEntries())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(context.Background(), &memStore{err: errors.New("db is down")}, 1, 1)
	assert.ErrorContains(t, err, "db is down")

	_, err = Load(context.Background(), &memStore{values: map[string]string{maxAttachmentSizeKey: "lots"}}, 1, 1)
	assert.ErrorContains(t, err, "parsing max_attachment_size")
}

func TestSetPersists(t *testing.T) {
	store := &memStore{values: map[string]string{}}
	r, err := Load(context.Background(), store, 1, 1)
	require.NoError(t, err)

	require.NoError(t, r.SetMaxAttachmentSize(context.Background(), 8<<20))
	require.NoError(t, r.SetMaxCacheEntries(context.Background(), 300))

	assert.Equal(t, int64(8<<20), r.MaxAttachmentSize())
	assert.Equal(t, "8388608", store.values[maxAttachmentSizeKey])
	assert.Equal(t, 300, r.MaxCacheEntries())
	assert.Equal(t, "300", store.values[maxCacheEntriesKey])

	assert.Error(t, r.SetMaxAttachmentSize(context.Background(), -1))
	assert.Error(t, r.SetMaxCacheEntries(context.Background(), -1))
	assert.Equal(t, int64(8<<20), r.MaxAttachmentSize())
}

func TestSetKeepsOldValueOnStoreError(t *testing.T) {
	store := &memStore{values: map[string]string{}}
	r, err := Load(context.Background(), store, 5, 5)
	require.NoError(t, err)

	store.err = errors.New("read only")
	assert.Error(t, r.SetMaxAttachmentSize(context.Background(), 10))
	assert.Equal(t, int64(5), r.MaxAttachmentSize())
}
