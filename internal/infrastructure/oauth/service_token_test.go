package oauth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authEcho(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Header.Get("Authorization"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, client *http.Client, url string) string {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestStaticToken(t *testing.T) {
	api := authEcho(t)
	client := NewServiceClient(context.Background(), ServiceCredentials{StaticToken: "svc-token"}, time.Second)

	assert.Equal(t, "Bearer svc-token", get(t, client, api.URL))
	assert.Equal(t, time.Second, client.Timeout)
}

func TestClientCredentials(t *testing.T) {
	var form url.Values
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"cc-token","token_type":"bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()
	api := authEcho(t)

	client := NewServiceClient(context.Background(), ServiceCredentials{
		ClientID:     "booking-engine",
		ClientSecret: "secret",
		TokenURL:     tokenSrv.URL,
		Scopes:       []string{"vehicles.write"},
	}, time.Second)

	assert.Equal(t, "Bearer cc-token", get(t, client, api.URL))
	assert.Equal(t, "client_credentials", form.Get("grant_type"))
	assert.Equal(t, "vehicles.write", form.Get("scope"))
}

func TestNoCredentials(t *testing.T) {
	api := authEcho(t)
	creds := ServiceCredentials{ClientID: "only-id"}

	assert.Nil(t, creds.TokenSource(context.Background()))
	client := NewServiceClient(context.Background(), creds, time.Second)
	assert.Empty(t, get(t, client, api.URL))
}
