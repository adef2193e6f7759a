// Package smartapi is a data source backed by the Angel One SmartAPI REST
// endpoints: password+TOTP login, historical candles, last traded price and
// the RMS limits used as the account posture.
package smartapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const defaultRoot = "https://apiconnect.angelone.in"

const (
	routeLogin   = "/rest/auth/angelbroking/user/v1/loginByPassword"
	routeLogout  = "/rest/secure/angelbroking/user/v1/logout"
	routeCandles = "/rest/secure/angelbroking/historical/v1/getCandleData"
	routeLTP     = "/rest/secure/angelbroking/order/v1/getLtpData"
	routeRMS     = "/rest/secure/angelbroking/user/v1/getRMS"
)

// APIError is a response with status=false or an error_type.
type APIError struct {
	Route   string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("smartapi %s: %s (code=%s http=%d)", e.Route, e.Message, e.Code, e.Status)
}

// envelope is the common SmartAPI response wrapper.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// Session holds the tokens issued at login.
type Session struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// client is a minimal typed SmartAPI REST client.
type client struct {
	root   string
	apiKey string
	http   *http.Client

	localIP  string
	publicIP string
	mac      string

	mu  sync.RWMutex
	jwt string
}

func newClient(root, apiKey string, timeout time.Duration) *client {
	if root == "" {
		root = defaultRoot
	}
	if timeout <= 0 {
		timeout = 7 * time.Second
	}
	local := localIP()
	return &client{
		root:     strings.TrimRight(root, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		localIP:  local,
		publicIP: local,
		mac:      macAddress(),
	}
}

func (c *client) setToken(jwt string) {
	c.mu.Lock()
	c.jwt = jwt
	c.mu.Unlock()
}

func (c *client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jwt
}

func (c *client) headers(h http.Header) {
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", c.localIP)
	h.Set("X-ClientPublicIP", c.publicIP)
	h.Set("X-MACAddress", c.mac)
	h.Set("X-PrivateKey", c.apiKey)
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")
	if jwt := c.token(); jwt != "" {
		h.Set("Authorization", "Bearer "+jwt)
	}
}

// do performs a request and decodes the envelope's data into out (if non-nil).
func (c *client) do(ctx context.Context, method, route string, params any, out any) error {
	var body io.Reader
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("smartapi %s: encode: %w", route, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.root+route, body)
	if err != nil {
		return err
	}
	c.headers(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("smartapi %s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("smartapi %s: read: %w", route, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("smartapi %s: couldn't parse JSON response (http %d): %w", route, resp.StatusCode, err)
	}
	if env.ErrorType != "" || !env.Status {
		code := env.ErrorCode
		if code == "" {
			code = env.ErrorType
		}
		return &APIError{Route: route, Status: resp.StatusCode, Code: code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("smartapi %s: decode data: %w", route, err)
	}
	return nil
}

func (c *client) login(ctx context.Context, clientCode, password, totpCode string) (*Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, routeLogin, map[string]string{
		"clientcode": clientCode,
		"password":   password,
		"totp":       totpCode,
	}, &s)
	if err != nil {
		return nil, err
	}
	if s.JWTToken == "" {
		return nil, fmt.Errorf("smartapi login: empty jwt token")
	}
	c.setToken(s.JWTToken)
	return &s, nil
}

func (c *client) logout(ctx context.Context, clientCode string) error {
	defer c.setToken("")
	return c.do(ctx, http.MethodPost, routeLogout, map[string]string{"clientcode": clientCode}, nil)
}

type candleParams struct {
	Exchange    string `json:"exchange"`
	SymbolToken string `json:"symboltoken"`
	Interval    string `json:"interval"`
	FromDate    string `json:"fromdate"`
	ToDate      string `json:"todate"`
}

// candles returns raw rows: [timestamp, open, high, low, close, volume].
func (c *client) candles(ctx context.Context, p candleParams) ([][]json.RawMessage, error) {
	var rows [][]json.RawMessage
	if err := c.do(ctx, http.MethodPost, routeCandles, p, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

type ltpParams struct {
	Exchange      string `json:"exchange"`
	TradingSymbol string `json:"tradingsymbol"`
	SymbolToken   string `json:"symboltoken"`
}

type ltpData struct {
	LTP float64 `json:"ltp"`
}

func (c *client) ltp(ctx context.Context, p ltpParams) (float64, error) {
	var d ltpData
	if err := c.do(ctx, http.MethodPost, routeLTP, p, &d); err != nil {
		return 0, err
	}
	return d.LTP, nil
}

// rmsData carries the RMS limits; SmartAPI encodes amounts as strings.
type rmsData struct {
	Net                  json.Number `json:"net"`
	AvailableCash        json.Number `json:"availablecash"`
	AvailableLimitMargin json.Number `json:"availablelimitmargin"`
	M2MUnrealized        json.Number `json:"m2munrealized"`
}

func (c *client) rms(ctx context.Context) (*rmsData, error) {
	var d rmsData
	if err := c.do(ctx, http.MethodGet, routeRMS, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			if ipNet, ok := a.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
				return ipNet.IP.String()
			}
		}
	}
	return "127.0.0.1"
}

func macAddress() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}
