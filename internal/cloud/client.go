package cloud

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/ewest/midea/internal/crypto"
	"github.com/ewest/midea/internal/logging"
	"github.com/ewest/midea/internal/midea"
)

const (
	clientType    = "1" // Android
	payloadFormat = "2" // JSON
	apiLanguage   = "en_US"
	apiDeviceID   = "c1acad8939ac0d7d"

	proxiedAppVersion = "2.22.0"
	proxiedSysVersion = "8.1.0"

	stampLayout = "20060102150405"
)

// Client talks to the Midea cloud API. All exported methods serialize on an
// internal mutex, mirroring the session state the API keeps per login.
type Client struct {
	Account  string
	Password string
	Profile  midea.AppProfile
	// BaseURL overrides the profile API URL, mainly for tests.
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration
	// SleepInterval is the unit of time for retry backoff. Shortened in
	// tests.
	SleepInterval time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	mu  sync.Mutex
	sec *crypto.Security

	loginID           string
	countryCode       string
	idAdapt           string
	sessionID         string
	uid               string
	headerAccessToken string
	proxiedAuth       string
	pushToken         string
	loggedIn          bool
	restarts          int

	appliances []midea.ApplianceDetails
}

// NewClient creates a cloud client for the given app identity and account.
func NewClient(profile midea.AppProfile, account, password string) *Client {
	basic := base64.StdEncoding.EncodeToString([]byte(profile.AppKey + ":" + profile.IoTKey))
	return &Client{
		Account:       account,
		Password:      password,
		Profile:       profile,
		BaseURL:       profile.APIURL,
		MaxRetries:    midea.DefaultRetries,
		Timeout:       midea.DefaultCloudTimeout,
		SleepInterval: midea.DefaultSleepInterval,
		sec:           crypto.NewSecurity(profile),
		proxiedAuth:   "Basic " + basic,
		pushToken:     randomURLSafe(120),
	}
}

// Security exposes the security context sharing the session data key, so
// device sessions created from this client reuse the same crypto state.
func (c *Client) Security() *crypto.Security {
	return c.sec
}

func (c *Client) String() string {
	return fmt.Sprintf("Cloud(%s)", c.BaseURL)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}

func (c *Client) proxied() bool {
	return c.Profile.Proxied != ""
}

// linearBackOff waits retries*interval between attempts, the pacing the
// vendor apps use.
type linearBackOff struct {
	interval time.Duration
	n        int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.interval
}

func (b *linearBackOff) Reset() { b.n = 0 }

// apiRequest performs one API call with bounded retries. The caller must
// hold the client mutex. body overrides the standard payload for endpoints
// with a custom request shape (the proxied login).
func (c *Client) apiRequest(endpoint string, args map[string]any, authenticate bool, body map[string]any) (map[string]any, error) {
	var result map[string]any
	op := func() error {
		r, err := c.call(endpoint, args, authenticate, body)
		if err != nil {
			logging.Debug("api call failed, may retry",
				zap.String("endpoint", endpoint), zap.Error(err))
			return err
		}
		result = r
		return nil
	}
	bo := backoff.WithMaxRetries(
		&linearBackOff{interval: c.SleepInterval}, uint64(c.MaxRetries-1))
	if err := backoff.Retry(op, bo); err != nil {
		var apiErr *midea.Error
		if errors.As(err, &apiErr) && apiErr.Kind != midea.KindNetwork {
			return nil, err
		}
		return nil, midea.NewCloudRequestError(
			fmt.Sprintf("too many retries while calling %s", endpoint), err)
	}
	c.restarts = 0
	return result, nil
}

// call performs a single request/response exchange.
func (c *Client) call(endpoint string, args map[string]any, authenticate bool, body map[string]any) (map[string]any, error) {
	if authenticate {
		if err := c.authenticate(); err != nil {
			return nil, err
		}
	}

	var (
		req *http.Request
		err error
	)
	if c.proxied() {
		req, err = c.buildProxiedRequest(endpoint, args, body)
	} else {
		req, err = c.buildLegacyRequest(endpoint, args)
	}
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, midea.NewNetworkError(fmt.Sprintf("request to %s failed", endpoint), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, midea.NewNetworkError(
			fmt.Sprintf("request to %s returned status %d", endpoint, resp.StatusCode), nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, midea.NewNetworkError(fmt.Sprintf("reading response from %s", endpoint), err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, midea.NewProtocolError(fmt.Sprintf("malformed response from %s: %v", endpoint, err))
	}

	errorTag, resultKey := "errorCode", "result"
	if c.proxied() {
		errorTag, resultKey = "code", "data"
	}
	if code := asInt(payload[errorTag]); code != 0 {
		if err := c.handleAPIError(code, asString(payload["msg"])); err != nil {
			return nil, err
		}
		// Handled (restarted session or ignorable), retry the call.
		return nil, midea.NewNetworkError(
			fmt.Sprintf("%s (%d)", asString(payload["msg"]), code), nil)
	}
	result, _ := payload[resultKey].(map[string]any)
	if result == nil {
		result = payload
	}
	return result, nil
}

func (c *Client) buildLegacyRequest(endpoint string, args map[string]any) (*http.Request, error) {
	data := map[string]string{
		"appId":      strconv.Itoa(c.Profile.AppID),
		"format":     payloadFormat,
		"clientType": clientType,
		"language":   apiLanguage,
		"src":        strconv.Itoa(c.Profile.AppID),
		"stamp":      time.Now().Format(stampLayout),
		"deviceId":   apiDeviceID,
	}
	for k, v := range args {
		data[k] = asString(v)
	}
	if c.sessionID != "" {
		data["sessionId"] = c.sessionID
	}
	fullURL := c.BaseURL + endpoint
	sign, err := c.sec.Sign(fullURL, data)
	if err != nil {
		return nil, err
	}
	data["sign"] = sign

	form := url.Values{}
	for k, v := range data {
		form.Set(k, v)
	}
	req, err := http.NewRequest(http.MethodPost, fullURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

func (c *Client) buildProxiedRequest(endpoint string, args map[string]any, body map[string]any) (*http.Request, error) {
	payload := body
	if payload == nil {
		payload = map[string]any{
			"appId":      strconv.Itoa(c.Profile.AppID),
			"format":     payloadFormat,
			"clientType": clientType,
			"language":   apiLanguage,
			"src":        strconv.Itoa(c.Profile.AppID),
			"stamp":      time.Now().Format(stampLayout),
			"deviceId":   apiDeviceID,
		}
		for k, v := range args {
			payload[k] = v
		}
	}
	if _, ok := payload["reqId"]; !ok {
		payload["appVNum"] = proxiedAppVersion
		payload["appVersion"] = proxiedAppVersion
		payload["clientVersion"] = proxiedAppVersion
		payload["platformId"] = "1"
		payload["reqId"] = randomHex(16)
		payload["retryCount"] = "3"
		payload["uid"] = c.uid
		payload["userType"] = "0"
	}
	sendPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	instant := strconv.FormatInt(time.Now().Unix(), 10)
	sign := c.sec.SignProxied(nil, string(sendPayload), instant)

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+endpoint, strings.NewReader(string(sendPayload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-recipe-app", strconv.Itoa(c.Profile.AppID))
	req.Header.Set("Authorization", c.proxiedAuth)
	req.Header.Set("sign", sign)
	req.Header.Set("secretVersion", "1")
	req.Header.Set("random", instant)
	req.Header.Set("version", proxiedAppVersion)
	req.Header.Set("systemVersion", proxiedSysVersion)
	req.Header.Set("platform", "0")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Content-Type", "application/json")
	if c.uid != "" {
		req.Header.Set("uid", c.uid)
	}
	if c.headerAccessToken != "" {
		req.Header.Set("accessToken", c.headerAccessToken)
	}
	return req, nil
}

// handleAPIError maps cloud error codes onto recovery actions. A nil return
// means the caller should retry; an error ends the request.
func (c *Client) handleAPIError(code int, message string) error {
	switch code {
	case 3004, 3106: // value is illegal, invalid session
		logging.Debug("restarting cloud session",
			zap.Int("code", code), zap.String("message", message))
		if err := c.restartCheck(code, message); err != nil {
			return err
		}
		c.resetSession()
		return c.authenticate()
	case 3144:
		logging.Debug("full cloud connection restart",
			zap.Int("code", code), zap.String("message", message))
		if err := c.restartCheck(code, message); err != nil {
			return err
		}
		c.resetSession()
		c.loginID = ""
		if err := c.authenticate(); err != nil {
			return err
		}
		_, err := c.listAppliances(true)
		return err
	case 3101, 3102, 3301: // invalid password, username, app key
		logging.Warn("cloud authentication error",
			zap.Int("code", code), zap.String("message", message))
		return backoff.Permanent(midea.NewCloudAuthenticationError(code, message))
	case 7610:
		return backoff.Permanent(midea.NewRetryLaterError(code, message))
	case 3176, 9999: // async reply does not exist, system error
		logging.Debug("ignored cloud error",
			zap.Int("code", code), zap.String("message", message))
		return nil
	}
	return backoff.Permanent(midea.NewCloudError(code, message))
}

// restartCheck bounds the nested session restarts a response can trigger.
func (c *Client) restartCheck(code int, message string) error {
	c.restarts++
	if c.restarts >= c.MaxRetries {
		c.restarts = 0
		return backoff.Permanent(midea.NewCloudRequestError(
			fmt.Sprintf("too many session restarts, last error %s (%d)", message, code), nil))
	}
	return nil
}

func (c *Client) resetSession() {
	c.sessionID = ""
	c.headerAccessToken = ""
	c.loggedIn = false
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func asInt(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		n, _ := strconv.Atoi(t)
		return n
	case json.Number:
		n, _ := t.Int64()
		return int(n)
	case float64:
		return int(t)
	case int:
		return t
	}
	return 0
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func randomURLSafe(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
