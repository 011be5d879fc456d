package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/openclaw/export-worker-go/internal/transport"
)

const closeTimeout = 5 * time.Second

var _ transport.Platform = (*Client)(nil)

func (c *Client) Connect(ctx context.Context, appID int64, appSecret string) (transport.Conn, error) {
	data, err := c.call(ctx, c.client, http.MethodPost, "/v1/connections", map[string]any{
		"appId":     appID,
		"appSecret": appSecret,
	})
	if err != nil {
		return nil, err
	}

	id := gjson.GetBytes(data, "connectionId").String()
	if id == "" {
		return nil, fmt.Errorf("gateway returned no connection id")
	}
	return &conn{client: c, id: id}, nil
}

type conn struct {
	client *Client
	id     string
	closed atomic.Bool
}

func (c *conn) path(suffix string) string {
	return "/v1/connections/" + c.id + suffix
}

func (c *conn) RequestQRLogin(ctx context.Context) (*transport.QRLogin, error) {
	data, err := c.client.call(ctx, c.client.client, http.MethodPost, c.path("/qr"), nil)
	if err != nil {
		return nil, err
	}

	login := &transport.QRLogin{URL: gjson.GetBytes(data, "url").String()}
	if login.URL == "" {
		return nil, fmt.Errorf("gateway returned no qr url")
	}
	if expires := gjson.GetBytes(data, "expiresAt"); expires.Exists() {
		login.ExpiresAt = expires.Time()
	}
	return login, nil
}

func (c *conn) WaitQRLogin(ctx context.Context) (*transport.Session, error) {
	data, err := c.client.call(ctx, c.client.stream, http.MethodPost, c.path("/qr/wait"), nil)
	if err != nil {
		return nil, err
	}
	return parseSession(data)
}

func (c *conn) SendCode(ctx context.Context, phone string) (string, error) {
	data, err := c.client.call(ctx, c.client.client, http.MethodPost, c.path("/code"), map[string]any{
		"phone": phone,
	})
	if err != nil {
		return "", err
	}

	hash := gjson.GetBytes(data, "phoneCodeHash").String()
	if hash == "" {
		return "", fmt.Errorf("gateway returned no phone code hash")
	}
	return hash, nil
}

func (c *conn) SignIn(ctx context.Context, phone, codeHash, code string) (*transport.Session, error) {
	data, err := c.client.call(ctx, c.client.client, http.MethodPost, c.path("/sign-in"), map[string]any{
		"phone":         phone,
		"phoneCodeHash": codeHash,
		"code":          code,
	})
	if err != nil {
		return nil, err
	}
	return parseSession(data)
}

func (c *conn) CheckPassword(ctx context.Context, password string) (*transport.Session, error) {
	data, err := c.client.call(ctx, c.client.client, http.MethodPost, c.path("/password"), map[string]any{
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	return parseSession(data)
}

func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if _, err := c.client.call(ctx, c.client.client, http.MethodDelete, c.path(""), nil); err != nil {
		log.Warn().Err(err).Str("connectionId", c.id).Msg("failed to close gateway connection")
		return err
	}
	return nil
}

func parseSession(data []byte) (*transport.Session, error) {
	session := &transport.Session{
		Token: gjson.GetBytes(data, "sessionToken").String(),
		Phone: gjson.GetBytes(data, "phone").String(),
	}
	if session.Token == "" {
		return nil, fmt.Errorf("gateway returned no session token")
	}
	return session, nil
}
