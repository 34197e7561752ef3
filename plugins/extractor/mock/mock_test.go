package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"calaisner/pkg/contract"
)

func TestMockDefaultEntityFromTitle(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	raw, err := c.Extract(context.Background(), "Acme Corp - makes anvils")
	require.NoError(t, err)
	require.True(t, gjson.Valid(raw.Text))
	require.Equal(t, "English", gjson.Get(raw.Text, "doc.meta.language").String())
	require.Equal(t, "Organization", gjson.Get(raw.Text, "mock-entity-0._type").String())
	require.Equal(t, "Acme Corp", gjson.Get(raw.Text, "mock-entity-0.name").String())
}

func TestMockConfiguredEntities(t *testing.T) {
	c, err := New([]byte(`{"entities":[{"type":"Person","name":"Ada"},{"type":"City","name":"London"}]}`))
	require.NoError(t, err)
	raw, err := c.Extract(context.Background(), "whatever")
	require.NoError(t, err)
	require.Equal(t, "Ada", gjson.Get(raw.Text, "mock-entity-0.name").String())
	require.Equal(t, "City", gjson.Get(raw.Text, "mock-entity-1._type").String())
}

func TestMockErrors(t *testing.T) {
	_, err := New([]byte(`{"entities":1}`))
	require.Error(t, err)

	c, err := New(nil)
	require.NoError(t, err)
	_, err = c.Extract(context.Background(), "")
	require.ErrorIs(t, err, contract.ErrInvalidArgument)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Extract(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
}
