package cmd

import (
	"io"
	"log/slog"
	"testing"

	"github.com/cmsflow/approvals/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewPersistence(t *testing.T) {
	t.Parallel()

	p, err := NewPersistence(t.Context(), discardLogger(), "file://"+t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &file.Persistence{}, p)

	_, ok := SQLDB(p)
	assert.False(t, ok)

	_, err = NewPersistence(t.Context(), discardLogger(), "mysql://localhost/db")
	require.Error(t, err)

	_, err = NewPersistence(t.Context(), discardLogger(), "/tmp/data")
	require.Error(t, err)

	_, err = NewPersistence(t.Context(), discardLogger(), "file://")
	require.Error(t, err)
}

func TestNewEventBus(t *testing.T) {
	t.Parallel()

	bus, err := NewEventBus("none", nil, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, bus)

	bus, err = NewEventBus("gochannel", nil, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, bus)
	require.NoError(t, bus.Close())

	_, err = NewEventBus("kafka", nil, discardLogger())
	require.Error(t, err)

	_, err = NewEventBus("rabbitmq", nil, discardLogger())
	require.Error(t, err)
}

func TestNewUserDirectory(t *testing.T) {
	t.Parallel()

	directory, closeFn, err := NewUserDirectory(t.Context(), "static:u1=Alice,u2=Bob", nil, "", discardLogger())
	require.NoError(t, err)
	require.NoError(t, closeFn())

	name, err := directory.ResolveUserName(t.Context(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)

	_, _, err = NewUserDirectory(t.Context(), "sql", nil, "", discardLogger())
	require.ErrorIs(t, err, ErrUserTableUnavailable)

	_, _, err = NewUserDirectory(t.Context(), "ldap", nil, "", discardLogger())
	require.Error(t, err)

	_, _, err = NewUserDirectory(t.Context(), "static:broken", nil, "", discardLogger())
	require.Error(t, err)
}
