package notify

import (
	"bytes"
	"context"
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

	"github.com/cjeanneret/catwatch/internal/debug"
)

const (
	DefaultEndpoint = "https://notify-api.line.me/api/notify"
	DefaultTimeout  = 10 * time.Second

	// Form field names understood by the notification endpoint.
	MessageField = "message"
	ImageField   = "imageFile"
)

// ErrAttachment is wrapped by Notify when the image part cannot be built.
// Nothing was sent in that case.
var ErrAttachment = errors.New("notify: build attachment")

// Message is one notification. ImagePath empty means text only.
type Message struct {
	Text      string
	ImagePath string
}

// Notifier delivers a message to the remote endpoint.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("notify: http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("notify: http error: status=%d body=%s", e.StatusCode, e.Body)
}

// Client posts messages with bearer-token authentication.
// Text-only messages go out as a urlencoded form, image messages as
// multipart/form-data with the file under ImageField.
type Client struct {
	HTTP     *http.Client
	Endpoint string
	token    string
}

// New creates a Client. The endpoint must be an absolute http(s) URL and
// the token must not be empty.
func New(endpoint, token string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("notify: empty token")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.ParseRequestURI(endpoint)
	if err != nil {
		return nil, fmt.Errorf("notify: invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("notify: invalid endpoint scheme %q", u.Scheme)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		HTTP:     &http.Client{Timeout: timeout},
		Endpoint: endpoint,
		token:    token,
	}, nil
}

// Notify sends msg once. There is no retry.
func (c *Client) Notify(ctx context.Context, msg Message) error {
	var (
		body        io.Reader
		contentType string
	)
	if msg.ImagePath != "" {
		buf, ct, err := multipartBody(msg)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAttachment, err)
		}
		body, contentType = buf, ct
	} else {
		form := url.Values{MessageField: {msg.Text}}
		body, contentType = strings.NewReader(form.Encode()), "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, body)
	if err != nil {
		return fmt.Errorf("notify: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notify: do request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := readAtMost(resp.Body, 1<<16)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	debug.Verbose("Notify: %d in %v", resp.StatusCode, time.Since(start).Round(time.Millisecond))
	return nil
}

func multipartBody(msg Message) (*bytes.Buffer, string, error) {
	f, err := os.Open(msg.ImagePath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField(MessageField, msg.Text); err != nil {
		return nil, "", err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, ImageField, filepath.Base(msg.ImagePath)))
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func readAtMost(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		max = 1 << 20
	}
	return io.ReadAll(io.LimitReader(r, max))
}
