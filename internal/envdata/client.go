// Package envdata talks to the remote raster service used by environmental
// analyzers: it samples a named raster layer at a point and reports the mean
// value around it.
package envdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fieldsight/fieldsight-go/internal/analyzer"
	"github.com/fieldsight/fieldsight-go/internal/conf"
	"github.com/fieldsight/fieldsight-go/internal/errors"
	"github.com/fieldsight/fieldsight-go/internal/geo"
	"github.com/fieldsight/fieldsight-go/internal/logging"
)

var logger *slog.Logger = logging.ForService("envdata")

// Client queries the raster sampling endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// New builds a client from settings. Returns nil when no endpoint is
// configured, which disables environmental analyzers.
func New(settings *conf.Settings) *Client {
	if settings.Environmental.Endpoint == "" {
		return nil
	}
	timeout := settings.Environmental.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   settings.Environmental.Endpoint,
		apiKey:     settings.Environmental.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sampleResponse struct {
	MeanValue float64   `json:"mean_value"`
	ImageName string    `json:"image_name"`
	BandName  string    `json:"band_name"`
	SampledAt time.Time `json:"sampled_at"`
}

// SampleMean asks the service for the mean raster value of the named layer
// at the point.
func (c *Client) SampleMean(ctx context.Context, p geo.Point, descriptor string) (analyzer.SampleInfo, error) {
	endpoint, err := url.Parse(c.endpoint + "/raster/mean")
	if err != nil {
		return analyzer.SampleInfo{}, fmt.Errorf("parsing raster endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("descriptor", descriptor)
	q.Set("lon", strconv.FormatFloat(p.Lon, 'f', -1, 64))
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', -1, 64))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), http.NoBody)
	if err != nil {
		return analyzer.SampleInfo{}, fmt.Errorf("building raster request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return analyzer.SampleInfo{}, errors.New(err).
			Component("envdata").
			Category(errors.CategoryNetwork).
			Context("descriptor", descriptor).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return analyzer.SampleInfo{}, errors.Newf("raster service returned %s", resp.Status).
			Component("envdata").
			Category(errors.CategoryNetwork).
			Context("descriptor", descriptor).
			Build()
	}

	var body sampleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return analyzer.SampleInfo{}, fmt.Errorf("decoding raster response: %w", err)
	}

	logger.Debug("raster sample retrieved",
		"descriptor", descriptor, "mean_value", body.MeanValue, "image", body.ImageName)

	return analyzer.SampleInfo{
		MeanValue:   body.MeanValue,
		ImageName:   body.ImageName,
		BandName:    body.BandName,
		SampledTime: body.SampledAt,
	}, nil
}
