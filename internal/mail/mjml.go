package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MJMLClient renders MJML markup to final HTML through the hosted
// render API.
type MJMLClient struct {
	url       string
	appID     string
	secretKey string
	client    *http.Client
}

func NewMJMLClient(url, appID, secretKey string) *MJMLClient {
	return &MJMLClient{
		url:       url,
		appID:     appID,
		secretKey: secretKey,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type renderRequest struct {
	MJML string `json:"mjml"`
}

type renderResponse struct {
	HTML string `json:"html"`
}

func (c *MJMLClient) Render(ctx context.Context, mjml string) (string, error) {
	if mjml == "" {
		return "", fmt.Errorf("mjml content is required")
	}

	reqBody, err := json.Marshal(renderRequest{MJML: mjml})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	creds := base64.StdEncoding.EncodeToString([]byte(c.appID + ":" + c.secretKey))
	req.Header.Set("Authorization", "Basic "+creds)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mjml render: unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var rr renderResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if rr.HTML == "" {
		return "", fmt.Errorf("missing html in render response body=%q", string(body))
	}
	return rr.HTML, nil
}
