// Package bcdata talks to the BC Data Catalogue: it resolves catalogue
// packages to database object names and orders layer extracts from the
// distribution service.
package bcdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/bcfishobs/internal/domain"
	"github.com/jonboulle/clockwork"
)

// ErrOrderTimeout is returned when an order archive is not ready within the poll timeout.
var ErrOrderTimeout = errors.New("timed out waiting for order")

// formatFileGDB is the distribution service code for an Esri file geodatabase.
const formatFileGDB = "3"

// Client implements catalogue lookups and distribution orders.
type Client struct {
	httpClient   *http.Client
	catalogueURL string
	orderURL     string
	downloadURL  string // fmt template taking the order id
	pollInterval time.Duration
	pollTimeout  time.Duration
	clock        clockwork.Clock
	logger       *slog.Logger
}

// Options configures endpoints and polling.
type Options struct {
	CatalogueURL string
	OrderURL     string
	DownloadURL  string
	PollInterval time.Duration
	PollTimeout  time.Duration
	Timeout      time.Duration
}

// NewClient creates a catalogue client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: opts.Timeout},
		catalogueURL: opts.CatalogueURL,
		orderURL:     opts.OrderURL,
		downloadURL:  opts.DownloadURL,
		pollInterval: opts.PollInterval,
		pollTimeout:  opts.PollTimeout,
		clock:        clockwork.NewRealClock(),
		logger:       logger,
	}
}

// ObjectName looks up the database object name of a catalogue package.
func (c *Client) ObjectName(ctx context.Context, pkg string) (domain.ObjectName, error) {
	u := fmt.Sprintf("%s/package_show?%s", c.catalogueURL, url.Values{"id": {pkg}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.ObjectName{}, fmt.Errorf("create request: %w", err)
	}

	var resp packageResponse
	if err := c.doJSON(req, &resp); err != nil {
		return domain.ObjectName{}, fmt.Errorf("package_show %s: %w", pkg, err)
	}
	if !resp.Success {
		return domain.ObjectName{}, fmt.Errorf("package_show %s: catalogue reported failure", pkg)
	}

	name := resp.Result.ObjectName
	if name == "" {
		for _, r := range resp.Result.Resources {
			if r.ObjectName != "" {
				name = r.ObjectName
				break
			}
		}
	}
	if name == "" {
		return domain.ObjectName{}, fmt.Errorf("package_show %s: no object name in package", pkg)
	}
	return domain.ParseObjectName(name)
}

// CreateOrder places a distribution order for the whole layer and returns the order id.
// The distribution service emails the address when the order is complete.
func (c *Client) CreateOrder(ctx context.Context, email string, obj domain.ObjectName) (string, error) {
	body, err := json.Marshal(orderRequest{
		EmailAddress:        email,
		AOIType:             "0",
		ClippingMethodType:  "0",
		CRSType:             "0",
		FormatType:          formatFileGDB,
		UseAOIBounds:        "0",
		OrderingApplication: "BCDC",
		FeatureItems: []featureItem{
			{FeatureItem: obj.Upper(), FilterType: "No Filter"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.orderURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp orderResponse
	if err := c.doJSON(req, &resp); err != nil {
		return "", fmt.Errorf("create order for %s: %w", obj.Upper(), err)
	}
	if resp.Status != "SUCCESS" {
		return "", fmt.Errorf("create order for %s: status %q", obj.Upper(), resp.Status)
	}

	id := string(resp.Value)
	if unq, err := strconv.Unquote(id); err == nil {
		id = unq
	}
	if id == "" || id == "null" {
		return "", fmt.Errorf("create order for %s: empty order id", obj.Upper())
	}
	c.logger.Info("order created", "object", obj.Upper(), "order_id", id)
	return id, nil
}

// WaitForOrder polls until the archive for orderID can be downloaded and
// returns its URL.
func (c *Client) WaitForOrder(ctx context.Context, orderID string) (string, error) {
	archiveURL := fmt.Sprintf(c.downloadURL, orderID)
	deadline := c.clock.After(c.pollTimeout)

	for {
		ready, err := c.archiveReady(ctx, archiveURL)
		if err != nil {
			return "", err
		}
		if ready {
			return archiveURL, nil
		}
		c.logger.Debug("order not ready", "order_id", orderID, "retry_in", c.pollInterval)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline:
			return "", fmt.Errorf("%w %s after %s", ErrOrderTimeout, orderID, c.pollTimeout)
		case <-c.clock.After(c.pollInterval):
		}
	}
}

func (c *Client) archiveReady(ctx context.Context, archiveURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, archiveURL, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("check order archive: %w", err)
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("check order archive: status %d", resp.StatusCode)
	}
}

func (c *Client) doJSON(req *http.Request, v any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("bcdata API error: status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Catalogue API types.

type packageResponse struct {
	Success bool `json:"success"`
	Result  struct {
		ObjectName string `json:"object_name"`
		Resources  []struct {
			ObjectName string `json:"object_name"`
		} `json:"resources"`
	} `json:"result"`
}

// Distribution service types.

type orderRequest struct {
	EmailAddress        string        `json:"emailAddress"`
	AOIType             string        `json:"aoiType"`
	ClippingMethodType  string        `json:"clippingMethodType"`
	CRSType             string        `json:"crsType"`
	FormatType          string        `json:"formatType"`
	UseAOIBounds        string        `json:"useAOIBounds"`
	OrderingApplication string        `json:"orderingApplication"`
	FeatureItems        []featureItem `json:"featureItems"`
}

type featureItem struct {
	FeatureItem string `json:"featureItem"`
	FilterValue string `json:"filterValue"`
	FilterType  string `json:"filterType"`
}

type orderResponse struct {
	Status string          `json:"Status"`
	Value  json.RawMessage `json:"Value"` // numeric or string order id
}
