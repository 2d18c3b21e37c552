package envdata

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsight/fieldsight-go/internal/conf"
	"github.com/fieldsight/fieldsight-go/internal/errors"
	"github.com/fieldsight/fieldsight-go/internal/geo"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	settings := &conf.Settings{}
	settings.Environmental.Endpoint = "https://raster.example.com"
	settings.Environmental.APIKey = "test-key"
	settings.Environmental.Timeout = 5 * time.Second

	client := New(settings)
	require.NotNil(t, client)

	httpmock.ActivateNonDefault(client.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestSampleMean(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, "https://raster.example.com/raster/mean",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer test-key", req.Header.Get("Authorization"))
			assert.Equal(t, "ndvi", req.URL.Query().Get("descriptor"))
			assert.Equal(t, "36.5", req.URL.Query().Get("lon"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"mean_value": 0.82,
				"image_name": "ndvi-2025-06",
				"band_name":  "b1",
				"sampled_at": "2025-06-01T12:00:00Z",
			})
		})

	sample, err := client.SampleMean(context.Background(), geo.Point{Lon: 36.5, Lat: 1.0}, "ndvi")
	require.NoError(t, err)
	assert.Equal(t, 0.82, sample.MeanValue)
	assert.Equal(t, "ndvi-2025-06", sample.ImageName)
	assert.Equal(t, "b1", sample.BandName)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), sample.SampledTime)
}

func TestSampleMeanServerError(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, "https://raster.example.com/raster/mean",
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

	_, err := client.SampleMean(context.Background(), geo.Point{Lon: 36.5, Lat: 1.0}, "ndvi")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNetwork))
}

func TestNewDisabledWithoutEndpoint(t *testing.T) {
	t.Parallel()

	assert.Nil(t, New(&conf.Settings{}))
}
