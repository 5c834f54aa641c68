package reachability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func TestWebProbeEmptyURLPasses(t *testing.T) {
	assert.True(t, webProbe(nil, http.DefaultClient, ""))
}

func TestWebProbeSucceedsOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ok := webProbe(context.Background(), srv.Client(), srv.URL)
	assert.True(t, ok)
}

func TestWebProbeFailsOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ok := webProbe(context.Background(), srv.Client(), srv.URL)
	assert.False(t, ok)
}

func TestRunIncomingCheckSuccessDecodesEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "9000", r.URL.Query().Get("port"))
		body := []byte{0x01, byte(meshnet.AddrV4), 203, 0, 113, 9, 0x28, 0x23}
		w.Write(body)
	}))
	defer srv.Close()

	res, err := runIncomingCheck(context.Background(), srv.Client(), srv.URL, 9000)
	require.NoError(t, err)
	assert.True(t, res.ok)
	assert.Equal(t, meshnet.AddrV4, res.endpoint.Family())
}

func TestRunIncomingCheckFailureByte(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0x00})
	}))
	defer srv.Close()

	res, err := runIncomingCheck(context.Background(), srv.Client(), srv.URL, 9000)
	require.NoError(t, err)
	assert.False(t, res.ok)
}
