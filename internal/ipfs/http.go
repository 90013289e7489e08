package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dhappy/git-remote-igis/internal/igiserr"
)

// HTTPClient is an HTTP client for the Kubo (IPFS) daemon RPC API, the
// reference implementation of Client.
type HTTPClient struct {
	apiURL string
	client *http.Client
}

// NewHTTPClient creates a client for the Kubo API at the given base URL,
// e.g. "http://127.0.0.1:5001/api/v0".
func NewHTTPClient(apiURL string) *HTTPClient {
	return &HTTPClient{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (k *HTTPClient) post(ctx context.Context, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.apiURL+path, body)
	if err != nil {
		return nil, &igiserr.IPFSUnavailableError{Op: path, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return nil, &igiserr.IPFSUnavailableError{Op: path, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, &igiserr.IPFSUnavailableError{Op: path, Err: fmt.Errorf("status %d: %s", resp.StatusCode, msg)}
	}
	return resp, nil
}

// Add implements Client.
func (k *HTTPClient) Add(ctx context.Context, content []byte, pin bool) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "data")
	if err != nil {
		return "", fmt.Errorf("ipfs add: build form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("ipfs add: write form: %w", err)
	}
	w.Close()

	path := fmt.Sprintf("/add?pin=%t", pin)
	resp, err := k.post(ctx, path, &buf, w.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ipfs add: parse response: %w", err)
	}
	return result.Hash, nil
}

// Cat implements Client.
func (k *HTTPClient) Cat(ctx context.Context, cid string) ([]byte, error) {
	resp, err := k.post(ctx, "/cat?arg="+cid, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ipfs cat: read body: %w", err)
	}
	return data, nil
}

// Ls implements Client.
func (k *HTTPClient) Ls(ctx context.Context, cid string) ([]DirEntry, error) {
	resp, err := k.post(ctx, "/ls?arg="+cid, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Objects []struct {
			Links []struct {
				Name string `json:"Name"`
				Hash string `json:"Hash"`
				Type int    `json:"Type"` // 1 == directory, 2 == file, per UnixFS link types
			} `json:"Links"`
		} `json:"Objects"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ipfs ls: parse response: %w", err)
	}
	if len(result.Objects) == 0 {
		return nil, nil
	}

	entries := make([]DirEntry, 0, len(result.Objects[0].Links))
	for _, l := range result.Objects[0].Links {
		entries = append(entries, DirEntry{Name: l.Name, CID: l.Hash, Dir: l.Type == 1})
	}
	return entries, nil
}

// DagPut implements Client.
func (k *HTTPClient) DagPut(ctx context.Context, data []byte, pin bool) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "node.cbor")
	if err != nil {
		return "", fmt.Errorf("ipfs dag put: build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("ipfs dag put: write form: %w", err)
	}
	w.Close()

	path := fmt.Sprintf("/dag/put?store-codec=dag-cbor&input-codec=dag-cbor&pin=%t", pin)
	resp, err := k.post(ctx, path, &buf, w.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Cid struct {
			Slash string `json:"/"`
		} `json:"Cid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ipfs dag put: parse response: %w", err)
	}
	return result.Cid.Slash, nil
}

// DagGet implements Client.
func (k *HTTPClient) DagGet(ctx context.Context, cid string) ([]byte, error) {
	path := fmt.Sprintf("/dag/get?arg=%s&output-codec=dag-cbor", cid)
	resp, err := k.post(ctx, path, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ipfs dag get: read body: %w", err)
	}
	return data, nil
}

// PatchAddLink implements Client.
func (k *HTTPClient) PatchAddLink(ctx context.Context, base, name, target string, create, pin bool) (string, error) {
	path := fmt.Sprintf("/object/patch/add-link?arg=%s&arg=%s&arg=%s&create=%t&pin=%t",
		base, name, target, create, pin)
	resp, err := k.post(ctx, path, nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ipfs patch add-link: parse response: %w", err)
	}
	return result.Hash, nil
}

// Pin implements Client.
func (k *HTTPClient) Pin(ctx context.Context, cid string) error {
	resp, err := k.post(ctx, "/pin/add?arg="+cid, nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
