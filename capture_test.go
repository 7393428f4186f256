package httptap

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureRequestNoBody(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com/path", nil)
	require.NoError(t, err)

	out, rec := captureRequest(req, Config{LogRequestBody: true})

	assert.Same(t, req, out)
	assert.Equal(t, http.MethodGet, rec.Method)
	assert.Equal(t, "http://example.com/path", rec.URL.String())
	assert.False(t, rec.HasBody)
	assert.Zero(t, rec.BodySize)
	assert.Nil(t, rec.Body)
	assert.Nil(t, rec.BodyText)
}

func TestCaptureRequestDisabledLeavesBodyUntouched(t *testing.T) {
	src := &countingReadCloser{r: strings.NewReader(`{"key":"value"}`)}
	req, err := http.NewRequest(http.MethodPost, "http://example.com", nil)
	require.NoError(t, err)
	req.Body = src
	req.ContentLength = 15

	out, rec := captureRequest(req, Config{LogRequestBody: false})

	assert.Same(t, req, out)
	assert.True(t, rec.HasBody)
	assert.Equal(t, int64(15), rec.BodySize)
	assert.Nil(t, rec.Body)
	assert.Nil(t, rec.BodyText)
	assert.Zero(t, src.reads, "capture must not read the body when logging is off")
	assert.Zero(t, src.closes)
}

func TestCaptureRequestUnknownSizeReportsMinusOne(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://example.com", nil)
	require.NoError(t, err)
	req.Body = io.NopCloser(strings.NewReader("opaque"))

	_, rec := captureRequest(req, Config{})

	assert.True(t, rec.HasBody)
	assert.Equal(t, int64(-1), rec.BodySize)
}

func TestCaptureRequestEnabled(t *testing.T) {
	testCases := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "json body is captured and decoded",
			run: func(t *testing.T) {
				req, err := http.NewRequest(
					http.MethodPost, "http://example.com", strings.NewReader(`{"a": 1}`))
				require.NoError(t, err)
				req.Header.Set("Content-Type", "application/json")

				out, rec := captureRequest(req, Config{LogRequestBody: true})

				assert.True(t, rec.HasBody)
				assert.Equal(t, int64(8), rec.BodySize)
				assert.Equal(t, []byte(`{"a": 1}`), rec.Body)
				require.NotNil(t, rec.BodyText)
				assert.Equal(t, `{"a": 1}`, *rec.BodyText)
				assert.Empty(t, rec.RPCMethod)

				// The dispatched request carries the exact same bytes
				sent, err := io.ReadAll(out.Body)
				require.NoError(t, err)
				assert.Equal(t, []byte(`{"a": 1}`), sent)
				assert.Equal(t, int64(8), out.ContentLength)
			},
		},
		{
			name: "binary body is captured but not decoded",
			run: func(t *testing.T) {
				payload := []byte{0x89, 0x50, 0x4e, 0x47}
				req, err := http.NewRequest(
					http.MethodPost, "http://example.com", strings.NewReader(string(payload)))
				require.NoError(t, err)
				req.Header.Set("Content-Type", "image/png")

				_, rec := captureRequest(req, Config{LogRequestBody: true})

				assert.Equal(t, int64(4), rec.BodySize)
				assert.Equal(t, payload, rec.Body)
				assert.Nil(t, rec.BodyText)
			},
		},
		{
			name: "jsonrpc body is annotated",
			run: func(t *testing.T) {
				req, err := http.NewRequest(
					http.MethodPost, "http://example.com",
					strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"eth_blockNumber","params":[]}`))
				require.NoError(t, err)
				req.Header.Set("Content-Type", "application/json")

				_, rec := captureRequest(req, Config{LogRequestBody: true})

				assert.Equal(t, "eth_blockNumber", rec.RPCMethod)
			},
		},
		{
			name: "replay works repeatedly through GetBody",
			run: func(t *testing.T) {
				req, err := http.NewRequest(
					http.MethodPut, "http://example.com", strings.NewReader("replay me"))
				require.NoError(t, err)

				out, _ := captureRequest(req, Config{LogRequestBody: true})
				require.NotNil(t, out.GetBody)

				for j := 0; j < 3; j++ {
					body, err := out.GetBody()
					require.NoError(t, err)
					data, err := io.ReadAll(body)
					require.NoError(t, err)
					assert.Equal(t, "replay me", string(data))
					require.NoError(t, body.Close())
				}
			},
		},
		{
			name: "unknown length gains captured length",
			run: func(t *testing.T) {
				req, err := http.NewRequest(http.MethodPost, "http://example.com", nil)
				require.NoError(t, err)
				req.Body = io.NopCloser(strings.NewReader("sized now"))

				out, rec := captureRequest(req, Config{LogRequestBody: true})

				assert.Equal(t, int64(9), rec.BodySize)
				assert.Equal(t, int64(9), out.ContentLength)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.run(t)
		})
	}
}

func TestCaptureRequestReadErrorDegrades(t *testing.T) {
	readErr := errors.New("disk ate the body")
	req, err := http.NewRequest(http.MethodPost, "http://example.com", nil)
	require.NoError(t, err)
	req.Body = &failingReadCloser{err: readErr}
	req.ContentLength = 42

	out, rec := captureRequest(req, Config{LogRequestBody: true})

	// The record degrades to the declared size, with no captured bytes
	assert.True(t, rec.HasBody)
	assert.Equal(t, int64(42), rec.BodySize)
	assert.Nil(t, rec.Body)
	assert.Nil(t, rec.BodyText)

	// The rebuilt body replays the failure to the transport
	_, err = io.ReadAll(out.Body)
	assert.ErrorIs(t, err, readErr)
}
