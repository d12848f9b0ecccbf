package payment

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"staybook/internal/adapters/observability"
	"staybook/internal/domain"
)

// Client talks to the hosted card-payment API: one call creates a payment
// intent, a second confirms the charge against a client-supplied instrument.
type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("payment secret key is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

type intentRequest struct {
	Amount   int64  `json:"amount"` // minor currency units
	Currency string `json:"currency"`
}

type intentResponse struct {
	ClientSecret string `json:"clientSecret"`
}

type confirmRequest struct {
	ClientSecret  string `json:"clientSecret"`
	PaymentMethod string `json:"paymentMethod"`
}

type confirmResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency string) (domain.Intent, error) {
	if amountMinor <= 0 {
		return domain.Intent{}, &domain.PaymentError{Stage: "intent", Message: "amount must be positive"}
	}
	start := time.Now()
	var out intentResponse
	err := c.post(ctx, c.base+"/intents", intentRequest{Amount: amountMinor, Currency: currency}, &out)
	observability.ObserveGateway("payment", "create_intent", err, time.Since(start))
	if err != nil {
		return domain.Intent{}, err
	}
	if out.ClientSecret == "" {
		return domain.Intent{}, &domain.PaymentError{Stage: "intent", Message: "gateway returned empty client secret"}
	}
	return domain.Intent{ClientSecret: out.ClientSecret}, nil
}

func (c *Client) Confirm(ctx context.Context, clientSecret, paymentMethod string) (domain.PaymentResult, error) {
	start := time.Now()
	var out confirmResponse
	err := c.post(ctx, c.base+"/intents/confirm", confirmRequest{ClientSecret: clientSecret, PaymentMethod: paymentMethod}, &out)
	observability.ObserveGateway("payment", "confirm", err, time.Since(start))
	if err != nil {
		return domain.PaymentResult{}, err
	}
	switch out.Status {
	case domain.PaymentSucceeded, domain.PaymentFailed, domain.PaymentRequiresAction:
		observability.ObservePayment(out.Status)
		return domain.PaymentResult{Status: out.Status, Message: out.Message}, nil
	default:
		return domain.PaymentResult{}, &domain.PaymentError{
			Stage: "confirm", Status: out.Status,
			Message: fmt.Sprintf("unknown confirmation status %q", out.Status),
		}
	}
}

// post performs a JSON POST with client-side rate limiting and retries.
// Retries on 429 and transient 5xx, honoring Retry-After when provided.
// 4xx rejections surface as PaymentError with the gateway's message verbatim.
func (c *Client) post(ctx context.Context, url string, in, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.key)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "staybook/1.0")

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return &domain.PaymentError{
				Stage:   stageFor(url),
				Message: rejectionMessage(resp.StatusCode, b),
			}
		}
	}

	return lastErr
}

func stageFor(url string) string {
	if strings.HasSuffix(url, "/confirm") {
		return "confirm"
	}
	return "intent"
}

// rejectionMessage extracts the gateway's own message when the error body is
// JSON, otherwise falls back to the raw body.
func rejectionMessage(status int, body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return fmt.Sprintf("status %d: %s", status, strings.TrimSpace(string(body)))
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential backoff delay with concurrency-safe jitter.
// Base doubles each attempt (200ms, 400ms, 800ms...), with up to +50% random
// jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
