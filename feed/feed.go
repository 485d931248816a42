// Package feed implements the client for the upstream hazard feed, an
// api.weather.gov shaped HTTP API serving GeoJSON feature collections.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/pkg/errors"
)

const (
	activeAlertsPath = "alerts/active"
	zonesPath        = "zones"
)

// ZoneRef is one entry of the feed's zone index.
type ZoneRef struct {
	ID    string `json:"@id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	State string `json:"state"`
}

type featureCollection struct {
	Features []json.RawMessage `json:"features"`
}

type zoneIndex struct {
	Features []struct {
		Properties ZoneRef `json:"properties"`
	} `json:"features"`
}

// Client talks to the feed. All calls carry explicit timeouts and retry
// transient failures with exponential backoff; client errors give up right
// away.
type Client struct {
	baseURL   *url.URL
	client    *http.Client
	userAgent string
}

func NewClient(baseURL, userAgent string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "error processing feed URL (%q)", baseURL)
	}

	// Custom HTTP client with sane defaults. The upstream API can be slow
	// under load, so we're going to be forgiving.
	const (
		dialTimeout      = 5 * time.Second
		handshakeTimeout = 5 * time.Second
		timeout          = 30 * time.Second
	)
	return &Client{
		baseURL:   u,
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: dialTimeout}).DialContext,
				TLSHandshakeTimeout: handshakeTimeout,
			},
		},
	}, nil
}

// ZoneURLPrefix is the prefix the feed uses when alerts reference zones by
// URL instead of by bare identifier.
func (c *Client) ZoneURLPrefix() string {
	u := *c.baseURL
	u.Path = ""
	return u.String() + "/" + zonesPath + "/"
}

// ActiveAlerts returns the raw features of the active alert collection.
func (c *Client) ActiveAlerts(ctx context.Context) ([]json.RawMessage, error) {
	body, err := c.get(ctx, activeAlertsPath)
	if err != nil {
		return nil, err
	}
	var fc featureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, errors.Wrap(err, "decoding alert collection")
	}
	return fc.Features, nil
}

// Zones returns the feed's zone index.
func (c *Client) Zones(ctx context.Context) ([]ZoneRef, error) {
	body, err := c.get(ctx, zonesPath)
	if err != nil {
		return nil, err
	}
	var idx zoneIndex
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, errors.Wrap(err, "decoding zone index")
	}
	refs := make([]ZoneRef, 0, len(idx.Features))
	for _, f := range idx.Features {
		refs = append(refs, f.Properties)
	}
	return refs, nil
}

// Zone returns the full GeoJSON document of a single zone.
func (c *Client) Zone(ctx context.Context, zoneID string) ([]byte, error) {
	return c.get(ctx, zonesPath+"/"+zoneID)
}

// get delivers the HTTP request with exponential backoff. We retry on
// timeouts and server errors; client errors are permanent.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, errors.Wrap(err, "parsing the URL string")
	}
	dest := c.baseURL.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dest.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req.Header.Add("Accept", "application/geo+json")
	req.Header.Add("User-Agent", c.userAgent)

	var backoffStrategy = backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          1.5,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Clock:               backoff.SystemClock,
	}, ctx)

	var body []byte
	err = backoff.Retry(
		func() error {
			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			switch {
			// Give up right away on client errors.
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				return backoff.Permanent(
					fmt.Errorf("%s (client error)", http.StatusText(resp.StatusCode)),
				)
			// Retry on server errors.
			case resp.StatusCode >= 500:
				return fmt.Errorf("%s (server error)", http.StatusText(resp.StatusCode))
			}
			body, err = ioutil.ReadAll(resp.Body)
			return err
		},
		backoffStrategy,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", dest.String())
	}
	return body, nil
}
