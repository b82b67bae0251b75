package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

type Options struct {
	Timeout time.Duration
	// RetryCount is 0 for outbound calls that must not be duplicated (chat messages).
	RetryCount int
	UserAgent  string
	Headers    map[string]string
}

type Client struct {
	client    *resty.Client
	userAgent string
}

func NewClient(host string, opts Options) *Client {
	host = strings.TrimSuffix(host, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "traderelay"
	}

	// resty reads HTTP_PROXY / HTTPS_PROXY from the environment
	client := resty.New().
		SetBaseURL(host).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
				}
				return 5 * time.Second, nil
			}
			return 0, nil
		})
	if opts.RetryCount > 0 {
		// only statuses that mean the request was not applied
		client.AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil || resp == nil {
				return false
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() == http.StatusServiceUnavailable
		})
	}
	for k, v := range opts.Headers {
		client.SetHeader(k, v)
	}

	return &Client{client: client, userAgent: opts.UserAgent}
}

type RequestOptions struct {
	Headers map[string]string
	Data    any
}

// per-request defaults only; client-level headers are fixed at construction
func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", c.userAgent)
	return r
}

func (c *Client) DoRequest(ctx context.Context, method, endpoint string, opt *RequestOptions, out any) (*resty.Response, error) {
	rc := c.newRequest(ctx)
	if opt != nil {
		for k, v := range opt.Headers {
			rc.SetHeader(k, v)
		}
		if opt.Data != nil {
			rc.SetHeader("Content-Type", "application/json")
			rc.SetBody(opt.Data)
		}
	}
	if out != nil {
		rc.SetResult(out)
	}

	// Telegram and Notion only take JSON bodies
	switch strings.ToUpper(method) {
	case http.MethodPost:
		return rc.Post(endpoint)
	case http.MethodPatch:
		return rc.Patch(endpoint)
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
}

// StatusError is a non-2xx response. Body holds the decoded JSON body when
// there was one, the raw text otherwise.
type StatusError struct {
	StatusCode int
	Status     string
	Body       any
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %v", e.StatusCode, e.Body)
}

// CheckResponse folds transport errors and non-2xx statuses into one error.
func CheckResponse(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(err, "http request")
	}
	if resp.IsSuccess() {
		return nil
	}
	var body any
	b := resp.Body()
	_ = json.Unmarshal(b, &body)
	if body == nil {
		body = string(b)
	}
	return &StatusError{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Body:       body,
	}
}
