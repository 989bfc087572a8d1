package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"streambridge/internal/domain"
)

// Asset is the transcoding service's view of one submitted media source.
type Asset struct {
	ID          string      `json:"id"`
	PlaybackID  string      `json:"playbackId"`
	PlaybackURL string      `json:"playbackUrl"`
	DownloadURL string      `json:"downloadUrl"`
	Status      AssetStatus `json:"status"`
}

type AssetStatus struct {
	Phase        string  `json:"phase"`
	Progress     float64 `json:"progress"`
	ErrorMessage string  `json:"errorMessage"`
}

// UploadTarget is the result of a request-upload call: a URL to PUT bytes to
// plus the asset stub polling will use.
type UploadTarget struct {
	URL   string `json:"url"`
	Asset Asset  `json:"asset"`
}

type ClientConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// Client talks to the external transcoding service over its REST contract:
// create-job-from-URL, request-upload, get-job, and a raw PUT for bytes.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *logrus.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpc:   cfg.HTTPClient,
		logger:  cfg.Logger,
	}
}

// CreateAssetFromURL creates a job directly from a source URL.
func (c *Client) CreateAssetFromURL(ctx context.Context, name, sourceURL string, staticCopy bool) (*Asset, error) {
	body := map[string]any{
		"name": name,
		"url":  sourceURL,
	}
	if staticCopy {
		body["staticMp4"] = true
	}

	var asset Asset
	if err := c.postJSON(ctx, "/asset/upload/url", body, &asset); err != nil {
		return nil, fmt.Errorf("create asset from url: %w", err)
	}
	if asset.ID == "" {
		return nil, fmt.Errorf("create asset from url: missing asset id in response")
	}
	c.logger.WithField("asset_id", asset.ID).Infof("created transcode asset for %s", name)
	return &asset, nil
}

// RequestUpload asks the service for an upload target for locally-held bytes.
func (c *Client) RequestUpload(ctx context.Context, name string) (*UploadTarget, error) {
	var target UploadTarget
	if err := c.postJSON(ctx, "/asset/request-upload", map[string]any{"name": name}, &target); err != nil {
		return nil, fmt.Errorf("request upload: %w", err)
	}
	if target.URL == "" {
		return nil, fmt.Errorf("request upload: missing upload URL in response")
	}
	return &target, nil
}

// GetAsset fetches current job status for one asset.
func (c *Client) GetAsset(ctx context.Context, id string) (*Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/asset/"+id, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get asset: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get asset: read response: %w", err)
	}
	asset, err := decodeAsset(raw)
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// Some deployments wrap the payload in an envelope, others return it
	// bare. Accept both.
	if asset, ok := out.(*Asset); ok {
		decoded, err := decodeAsset(raw)
		if err != nil {
			return err
		}
		*asset = *decoded
		return nil
	}
	return json.Unmarshal(raw, out)
}

func decodeAsset(raw []byte) (*Asset, error) {
	var envelope struct {
		Asset *Asset `json:"asset"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Asset != nil && envelope.Asset.ID != "" {
		return envelope.Asset, nil
	}
	var asset Asset
	if err := json.Unmarshal(raw, &asset); err != nil {
		return nil, fmt.Errorf("decode asset: %w", err)
	}
	return &asset, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (a *Asset) toJob() domain.TranscodeJob {
	return domain.TranscodeJob{
		AssetID:     a.ID,
		PlaybackID:  a.PlaybackID,
		Phase:       domain.JobPhase(a.Status.Phase),
		Progress:    a.Status.Progress,
		PlaybackURL: a.PlaybackURL,
		DownloadURL: a.DownloadURL,
		ErrorDetail: a.Status.ErrorMessage,
	}
}
