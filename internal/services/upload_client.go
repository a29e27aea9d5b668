package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/observability"
	"golang.org/x/oauth2"
)

// UploadClient sends one asset to the remote intake endpoint
type UploadClient interface {
	// Upload never retries; the returned outcome says whether a later
	// pass should try again.
	Upload(ctx context.Context, asset *models.Asset) models.UploadOutcome
}

// UploadClientOptions configures an HTTPUploadClient
type UploadClientOptions struct {
	Endpoint string
	DeviceID string
	Tokens   oauth2.TokenSource
	Timeout  time.Duration
	// MaxFileSize and AllowedExtensions mirror the intake limits. Zero and
	// empty disable the local check.
	MaxFileSize       int64
	AllowedExtensions []string
	HTTPClient        *http.Client
}

// HTTPUploadClient streams assets to the intake endpoint as multipart/form-data
type HTTPUploadClient struct {
	endpoint    string
	deviceID    string
	tokens      oauth2.TokenSource
	timeout     time.Duration
	maxFileSize int64
	extensions  map[string]bool
	client      *http.Client
}

// NewHTTPUploadClient creates a new HTTPUploadClient
func NewHTTPUploadClient(opts UploadClientOptions) (*HTTPUploadClient, error) {
	u, err := url.Parse(opts.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upload endpoint %q", opts.Endpoint)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = oauth2.StaticTokenSource(&oauth2.Token{})
	}

	var extensions map[string]bool
	if len(opts.AllowedExtensions) > 0 {
		extensions = make(map[string]bool, len(opts.AllowedExtensions))
		for _, ext := range opts.AllowedExtensions {
			extensions[strings.ToLower(ext)] = true
		}
	}

	return &HTTPUploadClient{
		endpoint:    u.String(),
		deviceID:    opts.DeviceID,
		tokens:      tokens,
		timeout:     opts.Timeout,
		maxFileSize: opts.MaxFileSize,
		extensions:  extensions,
		client:      client,
	}, nil
}

// StaticBearerToken returns a token source for a fixed API key
func StaticBearerToken(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload sends the asset and classifies the result
func (c *HTTPUploadClient) Upload(ctx context.Context, asset *models.Asset) models.UploadOutcome {
	ctx, span := observability.StartServiceSpan(ctx, "UploadClient", "Upload")
	defer span.End()
	span.SetAttributes(observability.AssetID(asset.ID), observability.DeviceID(c.deviceID))

	outcome := c.upload(ctx, asset)
	if outcome.Success {
		observability.SetSuccess(span)
	} else {
		observability.RecordError(span, outcome.Err)
	}
	return outcome
}

func (c *HTTPUploadClient) upload(ctx context.Context, asset *models.Asset) models.UploadOutcome {
	info, err := os.Stat(asset.Path)
	if err != nil {
		return classifyLocalError(asset, err)
	}
	if info.IsDir() {
		return models.UploadPermanentFailure(fmt.Errorf("%s is a directory", asset.Path))
	}
	// The intake refuses these files, so retrying one can never succeed.
	if info.Size() == 0 {
		return models.UploadPermanentFailure(fmt.Errorf("%s is empty", asset.Path))
	}
	if c.maxFileSize > 0 && info.Size() > c.maxFileSize {
		return models.UploadPermanentFailure(fmt.Errorf("%s is %d bytes, over the %d byte limit",
			asset.Path, info.Size(), c.maxFileSize))
	}
	if c.extensions != nil && !c.extensions[strings.ToLower(filepath.Ext(asset.Name))] {
		return models.UploadPermanentFailure(fmt.Errorf("%s has a file type the intake does not accept", asset.Name))
	}

	file, err := os.Open(asset.Path)
	if err != nil {
		return classifyLocalError(asset, err)
	}

	token, err := c.tokens.Token()
	if err != nil {
		file.Close()
		return models.UploadTransientFailure(0, fmt.Errorf("failed to obtain auth token: %w", err))
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	form := multipart.NewWriter(pw)

	go func() {
		defer file.Close()
		pw.CloseWithError(c.writeForm(form, file, asset))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		return models.UploadTransientFailure(0, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if token.AccessToken != "" {
		token.SetAuthHeader(req)
	}
	observability.InjectHTTP(ctx, req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		return models.UploadTransientFailure(0, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case rejectedForGood(resp.StatusCode):
		outcome := models.UploadPermanentFailure(
			fmt.Errorf("server rejected %s with %d: %s", asset.Name, resp.StatusCode, snippet(body)))
		outcome.StatusCode = resp.StatusCode
		return outcome
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return models.UploadTransientFailure(resp.StatusCode,
			fmt.Errorf("server returned %d: %s", resp.StatusCode, snippet(body)))
	}

	var decoded models.UploadResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		decoded.Message = snippet(body)
	}
	return models.UploadSucceeded(resp.StatusCode, decoded.FileID, decoded.Message, decoded.IsDuplicate)
}

func (c *HTTPUploadClient) writeForm(form *multipart.Writer, file io.Reader, asset *models.Asset) error {
	if err := form.WriteField("originalFilename", asset.Name); err != nil {
		return err
	}
	if c.deviceID != "" {
		if err := form.WriteField("deviceId", c.deviceID); err != nil {
			return err
		}
	}
	if asset.DateTaken != nil {
		if err := form.WriteField("dateTaken", asset.DateTaken.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(asset.Name)))
	header.Set("Content-Type", contentTypeFor(asset.Name))

	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return form.Close()
}

// rejectedForGood reports responses that depend only on the file itself
func rejectedForGood(status int) bool {
	return status == http.StatusRequestEntityTooLarge || status == http.StatusUnsupportedMediaType
}

// classifyLocalError decides whether a failure to read the local file can heal
func classifyLocalError(asset *models.Asset, err error) models.UploadOutcome {
	if errors.Is(err, os.ErrNotExist) {
		return models.UploadPermanentFailure(fmt.Errorf("source file %s no longer exists", asset.Path))
	}
	return models.UploadTransientFailure(0, fmt.Errorf("failed to read %s: %w", asset.Path, err))
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
