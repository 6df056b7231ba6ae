package models

import (
	"path/filepath"
	"testing"

	"facerec/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifierUpload(t *testing.T) {
	conn, err := db.Open("", filepath.Join(t.TempDir(), "facerec.db"))
	require.NoError(t, err)
	require.NoError(t, Init(conn))

	uploads := []ClassifierUpload{
		{Size: 10, Sha512: "aaa", Labels: 2, Status: UploadLoaded},
		{Size: 3, Sha512: "bbb", Status: UploadFailed, Error: "not an onnx model"},
		{Size: 12, Sha512: "ccc", Labels: 3, Status: UploadLoaded},
	}
	for i := range uploads {
		require.NoError(t, uploads[i].Create(conn))
		assert.NotZero(t, uploads[i].ID)
		assert.NotZero(t, uploads[i].CreatedAt)
	}

	recent, err := RecentUploads(conn, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "ccc", recent[0].Sha512)
	assert.Equal(t, "bbb", recent[1].Sha512)
	assert.Equal(t, "not an onnx model", recent[1].Error)
}

func TestOpenNotConfigured(t *testing.T) {
	_, err := db.Open("", "")
	assert.ErrorIs(t, err, db.ErrNotConfigured)
}
