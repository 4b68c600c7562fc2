package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/catalog-uploads/pkg/uploads"
	"github.com/tendant/catalog-uploads/pkg/uploads/auth"
	"github.com/tendant/catalog-uploads/pkg/uploads/devstore"
	"github.com/tendant/catalog-uploads/pkg/uploads/sigv4"
	memorystorage "github.com/tendant/catalog-uploads/pkg/uploads/storage/memory"
)

var (
	pngBytes  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R', 0, 0}
	jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F', 0, 1, 1, 0, 0, 1}
)

type testEnv struct {
	server  *httptest.Server
	backend *memorystorage.Backend
}

// setupAPITest serves the API under /api and a dev store under /_store on one test server.
func setupAPITest(t *testing.T, authorizer auth.Authorizer) *testEnv {
	t.Helper()

	router := chi.NewRouter()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	creds := sigv4.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY"}
	signer := sigv4.New(sigv4.WithCredentials(creds))
	verifier := sigv4.NewVerifier(sigv4.StaticCredentials{creds.AccessKeyID: creds.SecretKey})

	backend := memorystorage.New()
	svc, err := uploads.New(
		uploads.WithBlobStore(backend),
		uploads.WithSigner(signer),
		uploads.WithEndpoint(srv.URL+"/_store", "imagenes"),
		uploads.WithPrefix("products"),
		uploads.WithMaxUploadBytes(1024),
	)
	require.NoError(t, err)

	router.Mount("/api", NewHandler(svc, authorizer, nil).Routes())
	router.Mount("/_store", devstore.NewHandlers(backend, "imagenes", verifier).Routes())

	return &testEnv{server: srv, backend: backend}
}

func (e *testEnv) post(t *testing.T, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (e *testEnv) authorize(t *testing.T, req AuthorizeRequest) AuthorizeResponse {
	t.Helper()

	resp, body := e.post(t, "/api/admin/blob", "", req)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out AuthorizeResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func put(t *testing.T, uploadURL, contentType string, data []byte) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPut, uploadURL, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func admin() auth.Authorizer {
	return auth.Static{Capability: uploads.Capability{IsAdmin: true, SubjectID: "admin-1"}}
}

func decodeError(t *testing.T, body []byte) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func TestHealth(t *testing.T) {
	env := setupAPITest(t, admin())

	resp, err := http.Get(env.server.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out OKResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.OK)
}

func TestAuthorizeEndpoint(t *testing.T) {
	env := setupAPITest(t, admin())

	out := env.authorize(t, AuthorizeRequest{Filename: "Silla Roja.JPG", ContentType: "image/jpeg", Size: 512})

	assert.True(t, strings.HasPrefix(out.BlobName, "products/"), out.BlobName)
	assert.True(t, strings.HasSuffix(out.BlobName, "-silla-roja.jpg"), out.BlobName)
	assert.Equal(t, "image/jpeg", out.ContentType)
	assert.Equal(t, env.server.URL+"/_store/imagenes/"+out.BlobName, out.PublicURL)
	assert.Contains(t, out.UploadURL, "X-Amz-Signature=")
	assert.Contains(t, out.UploadURL, "X-Amz-Expires=600")
	assert.WithinDuration(t, time.Now().Add(8*time.Minute), out.ExpiresAt, time.Minute)
}

func TestAuthorizeEndpointErrors(t *testing.T) {
	env := setupAPITest(t, admin())

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantError  string
		wantReason string
	}{
		{
			name:       "missing filename",
			body:       AuthorizeRequest{ContentType: "image/png", Size: 10},
			wantStatus: http.StatusBadRequest,
			wantError:  "filename required",
		},
		{
			name:       "executable with image type",
			body:       AuthorizeRequest{Filename: "photo.exe", ContentType: "image/png", Size: 10},
			wantStatus: http.StatusBadRequest,
			wantError:  "file type not allowed",
			wantReason: "badType",
		},
		{
			name:       "extension and claim disagree",
			body:       AuthorizeRequest{Filename: "photo.png", ContentType: "application/octet-stream", Size: 10},
			wantStatus: http.StatusBadRequest,
			wantError:  "file type does not match extension",
			wantReason: "badType",
		},
		{
			name:       "too large",
			body:       AuthorizeRequest{Filename: "photo.png", ContentType: "image/png", Size: 1025},
			wantStatus: http.StatusBadRequest,
			wantError:  "file too large (max 1024 bytes)",
		},
		{
			name:       "zero size",
			body:       AuthorizeRequest{Filename: "photo.png", ContentType: "image/png"},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid file size",
		},
		{
			name:       "malformed json",
			body:       `{"filename": `,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "empty body",
			body:       "",
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.post(t, "/api/admin/blob", "", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			out := decodeError(t, body)
			assert.Equal(t, tt.wantError, out.Error)
			assert.Equal(t, tt.wantReason, out.Reason)
		})
	}
	assert.Zero(t, env.backend.Len())
}

func TestUploadAndVerify(t *testing.T) {
	env := setupAPITest(t, admin())

	grant := env.authorize(t, AuthorizeRequest{Filename: "mate.png", ContentType: "image/png", Size: int64(len(pngBytes))})

	resp := put(t, grant.UploadURL, grant.ContentType, pngBytes)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.post(t, "/api/admin/blob/verify", "", BlobRequest{BlobName: grant.BlobName})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, 1, env.backend.Len())

	resp, body = env.post(t, "/api/admin/blob/read-grant", "", BlobRequest{BlobName: grant.BlobName})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var rg ReadGrantResponse
	require.NoError(t, json.Unmarshal(body, &rg))

	get, err := http.Get(rg.URL)
	require.NoError(t, err)
	defer get.Body.Close()
	data, err := io.ReadAll(get.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "image/png", get.Header.Get("Content-Type"))
}

func TestUploadWithWrongContentTypeIsRefusedByStore(t *testing.T) {
	env := setupAPITest(t, admin())

	grant := env.authorize(t, AuthorizeRequest{Filename: "mate.png", ContentType: "image/png", Size: int64(len(pngBytes))})

	resp := put(t, grant.UploadURL, "image/jpeg", pngBytes)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, env.backend.Len())

	resp, body := env.post(t, "/api/admin/blob/verify", "", BlobRequest{BlobName: grant.BlobName})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "notFound", decodeError(t, body).Reason)
}

func TestVerifyPurgesForgedUpload(t *testing.T) {
	env := setupAPITest(t, admin())

	// The grant is for a jpeg, and the client honours the header but sends PNG bytes.
	grant := env.authorize(t, AuthorizeRequest{Filename: "foto.jpg", ContentType: "image/jpeg", Size: int64(len(pngBytes))})
	resp := put(t, grant.UploadURL, grant.ContentType, pngBytes)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.post(t, "/api/admin/blob/verify", "", BlobRequest{BlobName: grant.BlobName})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decodeError(t, body)
	assert.Equal(t, "integrity", out.Code)
	assert.Equal(t, "badSignatureBytes", out.Reason)
	assert.Zero(t, env.backend.Len())

	resp, body = env.post(t, "/api/admin/blob/verify", "", BlobRequest{BlobName: grant.BlobName})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "notFound", decodeError(t, body).Reason)
}

func TestVerifyEndpointErrors(t *testing.T) {
	env := setupAPITest(t, admin())

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantError  string
	}{
		{name: "empty blob", body: BlobRequest{}, wantStatus: http.StatusBadRequest, wantError: "blob required"},
		{name: "other prefix", body: BlobRequest{BlobName: "other-tenant/123-x.png"}, wantStatus: http.StatusBadRequest, wantError: "invalid blob"},
		{name: "traversal", body: BlobRequest{BlobName: "products/../secrets.png"}, wantStatus: http.StatusBadRequest, wantError: "invalid blob"},
		{name: "missing object", body: BlobRequest{BlobName: "products/1-x.png"}, wantStatus: http.StatusNotFound, wantError: "blob not found"},
		{name: "malformed json", body: `[`, wantStatus: http.StatusBadRequest, wantError: "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.post(t, "/api/admin/blob/verify", "", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantError, decodeError(t, body).Error)
		})
	}
}

func TestAuthentication(t *testing.T) {
	const secret = "test-secret"
	env := setupAPITest(t, auth.NewJWTAuthorizer(secret, []string{"Dueno@Tienda.com"}))

	token := func(email string, role string) string {
		claims := auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Email:       email,
			AppMetadata: auth.Metadata{Role: role},
		}
		s, err := auth.GenerateToken(claims, []byte(secret))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name       string
		token      string
		wantStatus int
		wantError  string
	}{
		{name: "missing token", wantStatus: http.StatusUnauthorized, wantError: "missing token"},
		{name: "garbage token", token: "not-a-jwt", wantStatus: http.StatusUnauthorized, wantError: "invalid token"},
		{name: "non admin", token: token("cliente@tienda.com", ""), wantStatus: http.StatusForbidden, wantError: "forbidden"},
		{name: "admin by role", token: token("cliente@tienda.com", auth.RoleAdmin), wantStatus: http.StatusOK},
		{name: "admin by email", token: token("dueno@tienda.com", ""), wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.post(t, "/api/admin/blob", tt.token,
				AuthorizeRequest{Filename: "a.png", ContentType: "image/png", Size: 10})
			assert.Equal(t, tt.wantStatus, resp.StatusCode, string(body))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decodeError(t, body).Error)
			}
		})
	}

	t.Run("health needs no token", func(t *testing.T) {
		resp, err := http.Get(env.server.URL + "/api/health")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestAuthenticationNotConfigured(t *testing.T) {
	env := setupAPITest(t, auth.NewJWTAuthorizer("", nil))

	resp, body := env.post(t, "/api/admin/blob/verify", "token", BlobRequest{BlobName: "products/1-a.png"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "auth_not_configured", decodeError(t, body).Code)
}

func TestRouteWithoutStorageConfiguration(t *testing.T) {
	svc, err := uploads.New(uploads.WithBlobStore(memorystorage.New()))
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Mount("/api", NewHandler(svc, admin(), nil).Routes())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/blob",
		strings.NewReader(`{"filename":"a.png","contentType":"image/png","size":10}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	out := decodeError(t, w.Body.Bytes())
	assert.Equal(t, "upload storage not configured", out.Error)
	assert.Equal(t, "configuration", out.Code)
	assert.NotContains(t, w.Body.String(), "AKID")
}
