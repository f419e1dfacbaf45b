package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"photo.jpg":            "photo.jpg",
		"../../etc/passwd":     "passwd",
		`C:\Users\me\cake.png`: "cake.png",
		"my party pic!.heic":   "my_party_pic_.heic",
		"...":                  "file",
		"":                     "file",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeName(in), in)
	}
	assert.Len(t, SafeName(strings.Repeat("a", 300)+".jpg"), 100)
}

func TestLocalPut(t *testing.T) {
	root := t.TempDir()
	l, err := NewLocal(root)
	require.NoError(t, err)

	id, err := l.Put(context.Background(), Object{
		EventCode:   "WEDDING",
		TableNumber: 4,
		Name:        "cake.jpg",
		ContentType: "image/jpeg",
		Body:        strings.NewReader("jpeg bytes"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "WEDDING/table-4/"), id)
	assert.True(t, strings.HasSuffix(id, "-cake.jpg"), id)

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(id)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
}

func TestLocalPutCancelled(t *testing.T) {
	root := t.TempDir()
	l, err := NewLocal(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Put(ctx, Object{EventCode: "EV", Name: "a.jpg", Body: strings.NewReader("x")})
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "EV", "unassigned"))
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file removed")
}
