package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tswimming/swimschool-api/pkg/config"
)

func TestImageHostUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "slip.png", header.Filename)
		assert.Equal(t, "secret-key", r.URL.Query().Get("key"))
		w.Write([]byte(`{"success":true,"data":{"url":"https://img.example/slip.png"}}`))
	}))
	defer server.Close()

	client := NewImageHostClient(config.ImageHostConfig{UploadURL: server.URL, APIKey: "secret-key"})

	url, err := client.Upload(context.Background(), "slip.png", strings.NewReader("image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/slip.png", url)
}

func TestImageHostUploadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"error":{"message":"invalid image"}}`))
	}))
	defer server.Close()

	client := NewImageHostClient(config.ImageHostConfig{UploadURL: server.URL})

	_, err := client.Upload(context.Background(), "slip.png", strings.NewReader("junk"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid image")
}

func TestImageHostUploadUnreachable(t *testing.T) {
	client := NewImageHostClient(config.ImageHostConfig{UploadURL: "http://127.0.0.1:1"})

	_, err := client.Upload(context.Background(), "slip.png", strings.NewReader("junk"))
	assert.Error(t, err)
}
