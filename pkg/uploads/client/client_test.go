package client_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/catalog-uploads/pkg/uploads"
	"github.com/tendant/catalog-uploads/pkg/uploads/api"
	"github.com/tendant/catalog-uploads/pkg/uploads/auth"
	"github.com/tendant/catalog-uploads/pkg/uploads/client"
	"github.com/tendant/catalog-uploads/pkg/uploads/devstore"
	"github.com/tendant/catalog-uploads/pkg/uploads/sigv4"
	memorystorage "github.com/tendant/catalog-uploads/pkg/uploads/storage/memory"
)

var gifBytes = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!")

func setupServer(t *testing.T) (*httptest.Server, *memorystorage.Backend) {
	t.Helper()

	router := chi.NewRouter()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	creds := sigv4.Credentials{AccessKeyID: "AKIDCLIENT", SecretKey: "client-secret"}
	backend := memorystorage.New()
	svc, err := uploads.New(
		uploads.WithBlobStore(backend),
		uploads.WithSigner(sigv4.New(sigv4.WithCredentials(creds))),
		uploads.WithEndpoint(srv.URL+"/_store", "imagenes"),
	)
	require.NoError(t, err)

	authorizer := auth.Static{Capability: uploads.Capability{IsAdmin: true, SubjectID: "cli"}}
	router.Mount("/api", api.NewHandler(svc, authorizer, nil).Routes())
	router.Mount("/_store", devstore.NewHandlers(backend, "imagenes",
		sigv4.NewVerifier(sigv4.StaticCredentials{creds.AccessKeyID: creds.SecretKey})).Routes())

	return srv, backend
}

func TestUploadImage(t *testing.T) {
	srv, backend := setupServer(t)

	var progress atomic.Int64
	c := client.New(srv.URL, client.WithToken("ignored"), client.WithProgress(func(n int64) {
		progress.Store(n)
	}))

	grant, err := c.UploadImage(context.Background(), "logo.gif", "image/gif", bytes.NewReader(gifBytes), int64(len(gifBytes)))
	require.NoError(t, err)

	assert.Equal(t, "image/gif", grant.ContentType)
	assert.Equal(t, int64(len(gifBytes)), progress.Load())
	assert.Equal(t, 1, backend.Len())

	meta, err := backend.GetObjectMeta(context.Background(), grant.BlobName)
	require.NoError(t, err)
	assert.Equal(t, "image/gif", meta.ContentType)

	rg, err := c.ReadGrant(context.Background(), grant.BlobName)
	require.NoError(t, err)

	resp, err := http.Get(rg.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, gifBytes, data)
}

func TestUploadImageRejectedContent(t *testing.T) {
	srv, backend := setupServer(t)
	c := client.New(srv.URL)

	body := []byte("<html>not an image</html>")
	_, err := c.UploadImage(context.Background(), "logo.gif", "image/gif", bytes.NewReader(body), int64(len(body)))
	require.Error(t, err)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "badSignatureBytes", apiErr.Reason)
	assert.Zero(t, backend.Len())
}

func TestAuthorizeError(t *testing.T) {
	srv, _ := setupServer(t)
	c := client.New(srv.URL)

	_, err := c.Authorize(context.Background(), "script.exe", "image/png", 10)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "validation", apiErr.Code)
	assert.Equal(t, "badType", apiErr.Reason)
}

func TestUploadRetries(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		wantAttempts int32
		wantErr      bool
	}{
		{name: "success first try", statuses: []int{http.StatusOK}, wantAttempts: 1},
		{name: "retries 5xx", statuses: []int{http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusOK}, wantAttempts: 3},
		{name: "no retry on 4xx", statuses: []int{http.StatusForbidden, http.StatusOK}, wantAttempts: 1, wantErr: true},
		{name: "gives up", statuses: []int{500, 500, 500, 500}, wantAttempts: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := attempts.Add(1)
				body, _ := io.ReadAll(r.Body)
				assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
				assert.Equal(t, "payload", string(body), "body is rewound between attempts")
				w.WriteHeader(tt.statuses[n-1])
			}))
			defer srv.Close()

			c := client.New(srv.URL, client.WithRetry(3, time.Millisecond))
			err := c.Upload(context.Background(), srv.URL+"/b/k.png", "image/png", bytes.NewReader([]byte("payload")), 7)

			assert.Equal(t, tt.wantAttempts, attempts.Load())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, client.ErrUploadRejected))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestUploadHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := client.New(srv.URL, client.WithRetry(5, time.Hour), client.WithProgress(func(int64) {}))

	done := make(chan error, 1)
	go func() {
		done <- c.Upload(ctx, srv.URL, "image/png", bytes.NewReader([]byte("x")), 1)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not stop after cancel")
	}
}
