package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"staybook/internal/adapters/observability"
	"staybook/internal/domain"
)

// Client fronts the hosted credential service. Credentials are opaque to this
// application; the service yields a stable uid and email or a failure message.
type Client struct {
	base string
	hc   *http.Client
	key  string
}

func New(base, key string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 10 * time.Second},
		key:  key,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type identityResponse struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

func (c *Client) SignUp(ctx context.Context, email, password string) (domain.Identity, error) {
	return c.call(ctx, "signup", email, password)
}

func (c *Client) SignIn(ctx context.Context, email, password string) (domain.Identity, error) {
	return c.call(ctx, "signin", email, password)
}

func (c *Client) call(ctx context.Context, op, email, password string) (domain.Identity, error) {
	start := time.Now()
	id, err := c.post(ctx, c.base+"/accounts/"+op, credentials{Email: email, Password: password})
	observability.ObserveGateway("auth", op, err, time.Since(start))
	return id, err
}

func (c *Client) post(ctx context.Context, url string, in credentials) (domain.Identity, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return domain.Identity{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.Identity{}, err
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return domain.Identity{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Identity{}, &domain.GatewayError{Op: "auth", Message: authMessage(resp.StatusCode, b)}
	}

	var out identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Identity{}, err
	}
	if out.UID == "" {
		return domain.Identity{}, &domain.GatewayError{Op: "auth", Message: "gateway returned empty uid"}
	}
	return domain.Identity{UID: out.UID, Email: out.Email}, nil
}

func authMessage(status int, body []byte) string {
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
