package ipfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/griothouse/storymarket/internal/adapter"
)

// AddResult is the response of the IPFS add endpoint
type AddResult struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Client pins content on an IPFS node and resolves gateway URLs
//
//go:generate mockgen -source=client.go -destination=../mocks/ipfs.go -package=mocks -mock_names=Client=MockIPFSClient
type Client interface {
	// Add pins a blob on the node and returns its CID
	Add(ctx context.Context, name string, blob []byte) (string, error)

	// AddJSON pins a JSON document on the node and returns its CID
	AddJSON(ctx context.Context, name string, value interface{}) (string, error)

	// GatewayURL returns the public gateway URL for a CID
	GatewayURL(cid string) string
}

type client struct {
	nodeURL    string
	gatewayURL string
	http       adapter.HTTPClient
	json       adapter.JSON
}

// NewClient creates an IPFS client against a node's HTTP API
func NewClient(nodeURL, gatewayURL string, httpClient adapter.HTTPClient, jsonAdapter adapter.JSON) Client {
	return &client{
		nodeURL:    strings.TrimSuffix(nodeURL, "/"),
		gatewayURL: strings.TrimSuffix(gatewayURL, "/"),
		http:       httpClient,
		json:       jsonAdapter,
	}
}

// Add pins a blob on the node and returns its CID
func (c *client) Add(ctx context.Context, name string, blob []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(blob)); err != nil {
		return "", fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	url := c.nodeURL + "/api/v0/add?cid-version=1&pin=true"
	respBody, err := c.http.Post(ctx, url, writer.FormDataContentType(), &body)
	if err != nil {
		return "", fmt.Errorf("failed to add content to ipfs: %w", err)
	}

	var result AddResult
	if err := c.json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode ipfs add response: %w", err)
	}
	if result.Hash == "" {
		return "", fmt.Errorf("ipfs add returned empty hash")
	}

	return result.Hash, nil
}

// AddJSON pins a JSON document on the node and returns its CID
func (c *client) AddJSON(ctx context.Context, name string, value interface{}) (string, error) {
	data, err := c.json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}
	return c.Add(ctx, name, data)
}

// GatewayURL returns the public gateway URL for a CID
func (c *client) GatewayURL(cid string) string {
	return fmt.Sprintf("%s/ipfs/%s", c.gatewayURL, cid)
}
