package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"ember/app"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.toml")
	require.NoError(t, dump(path))

	w, err := app.LoadWorkload(path)
	require.NoError(t, err)
	assert.Equal(t, app.DefaultWorkload(), w)

	var out bytes.Buffer
	require.NoError(t, check(&out, path))
	assert.Contains(t, out.String(), "model full, quantum 4, checks true")
	assert.Contains(t, out.String(), "sensor     sensor    30    100    0")
	assert.Contains(t, out.String(), "hello      sandbox    8    500    -")
}
