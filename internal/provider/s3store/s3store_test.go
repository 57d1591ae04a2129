package s3store

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/switchboard-labs/switchboard/internal/config"
	"go.uber.org/zap"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(config.S3Config{}, zap.NewNop())
	assert.Error(t, err)

	_, err = New(config.S3Config{Bucket: "media"}, zap.NewNop())
	assert.Error(t, err)
}

func TestObjectURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.S3Config
		want string
	}{
		{
			name: "public url wins",
			cfg:  config.S3Config{Bucket: "media", Region: "us-east-1", PublicURL: "https://cdn.example.com/", AccessKey: "a", SecretKey: "b"},
			want: "https://cdn.example.com/media/voice/x.mp3",
		},
		{
			name: "custom endpoint",
			cfg:  config.S3Config{Bucket: "media", Region: "us-east-1", Endpoint: "http://minio:9000", AccessKey: "a", SecretKey: "b"},
			want: "http://minio:9000/media/voice/x.mp3",
		},
		{
			name: "dotted bucket uses path style",
			cfg:  config.S3Config{Bucket: "media.example", Region: "eu-west-1", AccessKey: "a", SecretKey: "b"},
			want: "https://s3.eu-west-1.amazonaws.com/media.example/voice/x.mp3",
		},
		{
			name: "virtual host",
			cfg:  config.S3Config{Bucket: "media", Region: "eu-west-1", AccessKey: "a", SecretKey: "b"},
			want: "https://media.s3.eu-west-1.amazonaws.com/voice/x.mp3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg, zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.objectURL("voice/x.mp3"))
		})
	}
}

func TestUpload(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath, gotType, gotBody = r.URL.Path, r.Header.Get("Content-Type"), body
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := New(config.S3Config{
		Bucket:    "media",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
	}, zap.NewNop())
	require.NoError(t, err)

	url, err := s.Upload(context.Background(), "voice/agt_1/msg.mp3", []byte("ID3audio"), "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/media/voice/agt_1/msg.mp3", url)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/media/voice/agt_1/msg.mp3", gotPath)
	assert.Equal(t, "audio/mpeg", gotType)
	assert.Contains(t, string(gotBody), "ID3audio")
}
