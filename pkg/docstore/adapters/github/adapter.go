package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"

	"github.com/rbxmod/banlist/pkg/docstore"
)

// apiVersion pins the REST API version header.
const apiVersion = "2022-11-28"

// maxResponseBytes caps API response bodies. The contents API inlines files
// up to 1 MB; larger files are fetched through the blob API.
const maxResponseBytes = 100 << 20

var _ docstore.Store = (*Adapter)(nil)

// Adapter stores the document as a file in a GitHub repository. Revisions
// are blob SHAs and each Put is one commit.
type Adapter struct {
	cfg    *Config
	client *http.Client
	logger hclog.Logger
}

// contentResponse is the subset of the contents API file object we use.
type contentResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
}

type blobResponse struct {
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
}

type committer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type putRequest struct {
	Message   string     `json:"message"`
	Content   string     `json:"content"`
	SHA       string     `json:"sha,omitempty"`
	Branch    string     `json:"branch,omitempty"`
	Committer *committer `json:"committer,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// NewAdapter creates a GitHub contents adapter.
func NewAdapter(cfg *Config, logger hclog.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid GitHub configuration: %w", err)
	}
	cfg.SetDefaults()

	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.Token,
		TokenType:   "Bearer",
	}))
	client.Timeout = cfg.Timeout

	return &Adapter{
		cfg:    cfg,
		client: client,
		logger: logger.Named("github-store"),
	}, nil
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return "github"
}

// Get fetches the document through the contents API.
func (a *Adapter) Get(ctx context.Context) (*docstore.Object, error) {
	endpoint := a.contentsURL()
	if a.cfg.Branch != "" {
		endpoint += "?ref=" + url.QueryEscape(a.cfg.Branch)
	}

	var file contentResponse
	if err := a.doRequest(ctx, http.MethodGet, endpoint, nil, &file); err != nil {
		return nil, fmt.Errorf("getting %s from %s/%s: %w", a.cfg.Path, a.cfg.Owner, a.cfg.Repo, err)
	}
	if file.Type != "" && file.Type != "file" {
		return nil, fmt.Errorf("%s in %s/%s is a %s, not a file", a.cfg.Path, a.cfg.Owner, a.cfg.Repo, file.Type)
	}

	content, encoding := file.Content, file.Encoding
	if encoding == "none" || (content == "" && file.Size > 0) {
		// Too large to inline; read the blob directly.
		blob, err := a.getBlob(ctx, file.SHA)
		if err != nil {
			return nil, err
		}
		content, encoding = blob.Content, blob.Encoding
	}

	decoded, err := decodeContent(content, encoding)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", a.cfg.Path, err)
	}

	a.logger.Debug("fetched document", "path", a.cfg.Path, "sha", file.SHA, "bytes", len(decoded))

	return &docstore.Object{Content: decoded, Revision: file.SHA}, nil
}

// Put commits content to the document path. revision must be the blob SHA
// of the current file, or empty when the file does not exist.
func (a *Adapter) Put(ctx context.Context, content []byte, revision, message string) (string, error) {
	req := putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     revision,
		Branch:  a.cfg.Branch,
	}
	if a.cfg.CommitterName != "" && a.cfg.CommitterEmail != "" {
		req.Committer = &committer{Name: a.cfg.CommitterName, Email: a.cfg.CommitterEmail}
	}

	var resp putResponse
	if err := a.doRequest(ctx, http.MethodPut, a.contentsURL(), req, &resp); err != nil {
		return "", fmt.Errorf("updating %s in %s/%s: %w", a.cfg.Path, a.cfg.Owner, a.cfg.Repo, err)
	}

	a.logger.Debug("committed document",
		"path", a.cfg.Path,
		"previous_sha", revision,
		"sha", resp.Content.SHA,
		"commit", resp.Commit.SHA,
	)

	return resp.Content.SHA, nil
}

func (a *Adapter) getBlob(ctx context.Context, sha string) (*blobResponse, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/git/blobs/%s",
		a.cfg.BaseURL, url.PathEscape(a.cfg.Owner), url.PathEscape(a.cfg.Repo), url.PathEscape(sha))

	var blob blobResponse
	if err := a.doRequest(ctx, http.MethodGet, endpoint, nil, &blob); err != nil {
		return nil, fmt.Errorf("getting blob %s: %w", sha, err)
	}
	return &blob, nil
}

func (a *Adapter) contentsURL() string {
	segments := strings.Split(a.cfg.Path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		a.cfg.BaseURL, url.PathEscape(a.cfg.Owner), url.PathEscape(a.cfg.Repo), strings.Join(segments, "/"))
}

// doRequest executes one API call. There is no retry here: a failed write
// must surface to the caller unchanged.
func (a *Adapter) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, respBody)
		a.logger.Debug("github API error",
			"method", method,
			"status", resp.StatusCode,
			"message", apiErr.Message,
		)
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func decodeContent(content, encoding string) ([]byte, error) {
	switch encoding {
	case "base64":
		// The API wraps base64 at 60 columns.
		clean := strings.NewReplacer("\n", "", "\r", "").Replace(content)
		return base64.StdEncoding.DecodeString(clean)
	case "", "utf-8":
		return []byte(content), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
