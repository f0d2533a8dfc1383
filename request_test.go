package relay_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/silenteer-oss/relay"
)

func TestRequestBuilderBodyJSON(t *testing.T) {
	r, err := relay.NewReqBuilder().Post("/images").BodyJSON(map[string]string{"name": "cirros"}).Build()

	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "application/json", r.Headers.Get("Content-Type"))
	body, err := r.ReadBody()
	require.NoError(t, err)
	assert.Equal(t, `{"name":"cirros"}`, string(body))
}

func TestRequestBuilderBodyJSONError(t *testing.T) {
	r, err := relay.NewReqBuilder().Post("/images").BodyJSON(map[string]interface{}{"ch": make(chan int)}).Build()

	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestNewRequestRestoresLengthHeaders(t *testing.T) {
	hr, err := http.NewRequest(http.MethodPost, "/images", nil)
	require.NoError(t, err)
	hr.ContentLength = 4

	r := relay.NewRequest(hr)

	assert.Equal(t, "4", r.Headers.Get("Content-Length"))
	assert.Empty(t, hr.Header.Get("Content-Length"), "the wrapped request is not modified")
}
