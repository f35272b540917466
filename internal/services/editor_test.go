package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppLauncher_Args(t *testing.T) {
	assert.Equal(t, []string{"-a", "Adobe Photoshop 2024", "/in/a.jpg"},
		NewAppLauncher("", "Adobe Photoshop 2024").Args("/in/a.jpg"))
	assert.Equal(t, []string{"-a", "Preview", "/in/a.jpg"},
		NewAppLauncher("/usr/bin/open", "Preview").Args("/in/a.jpg"))
	assert.Equal(t, []string{"/in/a.jpg"}, NewAppLauncher("open", "").Args("/in/a.jpg"))
	assert.Equal(t, []string{"/in/a.jpg"}, NewAppLauncher("xdg-open", "gimp").Args("/in/a.jpg"))
}

func TestAppLauncher_Open(t *testing.T) {
	var gotName string
	var gotArgs []string
	l := NewAppLauncher("open", "Photoshop")
	l.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return nil, nil
	}

	require.NoError(t, l.Open(context.Background(), "/in/a.jpg"))
	assert.Equal(t, "open", gotName)
	assert.Equal(t, []string{"-a", "Photoshop", "/in/a.jpg"}, gotArgs)

	l.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Unable to find application named 'Photoshop'\n"), errors.New("exit status 1")
	}
	err := l.Open(context.Background(), "/in/a.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unable to find application")
}
