package cloud

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ewest/midea/internal/logging"
	"github.com/ewest/midea/internal/midea"
)

// encodeSignedCSV renders bytes the way the transparent-send endpoint
// expects them: comma-separated signed decimal bytes.
func encodeSignedCSV(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = strconv.Itoa(int(int8(b)))
	}
	return strings.Join(parts, ",")
}

// decodeSignedCSV is the inverse of encodeSignedCSV.
func decodeSignedCSV(data string) ([]byte, error) {
	parts := strings.Split(data, ",")
	out := make([]byte, len(parts))
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v < -128 || v > 255 {
			return nil, midea.NewProtocolError(fmt.Sprintf("invalid byte %q in cloud reply", part))
		}
		out[i] = byte(v)
	}
	return out, nil
}

// getLoginID resolves the account email to the internal login id the
// password hashes are salted with.
func (c *Client) getLoginID() error {
	result, err := c.apiRequest("/v1/user/login/id/get",
		map[string]any{"loginAccount": c.Account}, false, nil)
	if err != nil {
		return err
	}
	loginID := asString(result["loginId"])
	if loginID == "" {
		return midea.NewAuthenticationError("cloud did not return a login id")
	}
	c.loginID = loginID
	return nil
}

// getRegion resolves the account region and switches to the regional API
// server. Only the proxied API has this step.
func (c *Client) getRegion() error {
	result, err := c.apiRequest("/v1/multicloud/platform/user/route",
		map[string]any{"userName": c.Account}, false, nil)
	if err != nil {
		return err
	}
	c.countryCode = asString(result["countryCode"])
	c.idAdapt = asString(result["idAdapt"])
	if masURL := asString(result["masUrl"]); masURL != "" {
		c.BaseURL = masURL
	}
	return nil
}

// Authenticate logs the account in. It is idempotent: an existing session is
// reused until the API invalidates it.
func (c *Client) Authenticate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticate()
}

func (c *Client) authenticate() error {
	if c.proxied() && c.countryCode == "" {
		if err := c.getRegion(); err != nil {
			return err
		}
	}
	if c.loginID == "" {
		if err := c.getLoginID(); err != nil {
			return err
		}
	}
	if c.loggedIn {
		return nil
	}
	if c.proxied() {
		return c.loginProxied()
	}
	return c.loginLegacy()
}

func (c *Client) loginLegacy() error {
	password := c.sec.EncryptPassword(c.loginID, c.Password)
	session, err := c.apiRequest("/v1/user/login", map[string]any{
		"loginAccount": c.Account,
		"password":     password,
	}, false, nil)
	if err != nil {
		return err
	}
	sessionID := asString(session["sessionId"])
	if sessionID == "" {
		return midea.NewAuthenticationError("unable to retrieve session id from cloud API")
	}
	c.sessionID = sessionID
	if err := c.sec.SetAccessToken(asString(session["accessToken"])); err != nil {
		return midea.NewAuthenticationError(fmt.Sprintf("cannot unwrap access token: %v", err))
	}
	c.loggedIn = true
	logging.Debug("cloud session established")
	return nil
}

func (c *Client) loginProxied() error {
	stamp := time.Now().Format(stampLayout)
	c.headerAccessToken = ""
	c.uid = ""

	iamPassword := c.sec.EncryptIAMPassword(c.loginID, c.Password)
	password := c.sec.EncryptPassword(c.loginID, c.Password)
	body := map[string]any{
		"data": map[string]any{
			"appKey":     c.Profile.AppKey,
			"appVersion": proxiedAppVersion,
			"osVersion":  proxiedSysVersion,
			"deviceId":   apiDeviceID,
			"platform":   "2",
		},
		"iotData": map[string]any{
			"appId":         strconv.Itoa(c.Profile.AppID),
			"appVNum":       proxiedAppVersion,
			"appVersion":    proxiedAppVersion,
			"clientType":    clientType,
			"clientVersion": proxiedAppVersion,
			"format":        payloadFormat,
			"language":      apiLanguage,
			"iampwd":        iamPassword,
			"loginAccount":  c.Account,
			"password":      password,
			"pushToken":     c.pushToken,
			"pushType":      "4",
			"reqId":         randomHex(16),
			"retryCount":    "3",
			"src":           "10",
			"stamp":         stamp,
		},
		"reqId": randomHex(16),
		"stamp": stamp,
	}
	session, err := c.apiRequest("/mj/user/login", nil, false, body)
	if err != nil {
		return err
	}
	c.uid = asString(session["uid"])
	if mdata, ok := session["mdata"].(map[string]any); ok {
		c.headerAccessToken = asString(mdata["accessToken"])
	}
	if err := c.sec.SetAccessTokenWithRandom(
		asString(session["accessToken"]), asString(session["randomData"])); err != nil {
		return midea.NewAuthenticationError(fmt.Sprintf("cannot unwrap access token: %v", err))
	}
	c.loggedIn = true
	logging.Debug("proxied cloud session established", zap.String("uid", logging.Redact(c.uid, 4)))
	return nil
}

// ListAppliances returns the appliances registered to the account, cached
// after the first call.
func (c *Client) ListAppliances() ([]midea.ApplianceDetails, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listAppliances(false)
}

// RefreshAppliances re-reads the appliance registry, bypassing the cache.
func (c *Client) RefreshAppliances() ([]midea.ApplianceDetails, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listAppliances(true)
}

func (c *Client) listAppliances(force bool) ([]midea.ApplianceDetails, error) {
	if !force && len(c.appliances) > 0 {
		return c.appliances, nil
	}
	result, err := c.apiRequest("/v1/appliance/user/list/get", map[string]any{}, true, nil)
	if err != nil {
		return nil, err
	}
	list, _ := result["list"].([]any)
	appliances := make([]midea.ApplianceDetails, 0, len(list))
	for _, raw := range list {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		serial := "Unknown"
		if encrypted := asString(item["sn"]); encrypted != "" {
			if decrypted, err := c.sec.DecryptString(encrypted, "", ""); err == nil {
				serial = decrypted
			} else {
				logging.Warn("cannot decrypt appliance serial number", zap.Error(err))
			}
		}
		appliances = append(appliances, midea.ApplianceDetails{
			ID:           asString(item["id"]),
			Name:         asString(item["name"]),
			SerialNumber: serial,
			Type:         asString(item["type"]),
		})
	}
	logging.Debug("cloud appliance list", zap.Int("count", len(appliances)))
	c.appliances = appliances
	return appliances, nil
}

// GetToken returns the token/key pair registered for a UDP id, empty strings
// when the id is unknown.
func (c *Client) GetToken(udpID string) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.apiRequest("/v1/iot/secure/getToken", map[string]any{"udpid": udpID}, true, nil)
	if err != nil {
		return "", "", err
	}
	tokens, _ := result["tokenlist"].([]any)
	for _, raw := range tokens {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if asString(entry["udpId"]) == udpID {
			return asString(entry["token"]), asString(entry["key"]), nil
		}
	}
	return "", "", nil
}

// ApplianceTransparentSend relays a LAN packet through the cloud as if it
// had been sent locally and returns the reply payloads.
func (c *Client) ApplianceTransparentSend(applianceID string, data []byte) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, err := c.sec.EncryptString(encodeSignedCSV(data), "", "")
	if err != nil {
		return nil, err
	}
	result, err := c.apiRequest("/v1/appliance/transparent/send", map[string]any{
		"order":       order,
		"funId":       "0000",
		"applianceId": applianceID,
	}, true, nil)
	if err != nil {
		return nil, err
	}
	decrypted, err := c.sec.DecryptString(asString(result["reply"]), "", "")
	if err != nil {
		return nil, err
	}
	reply, err := decodeSignedCSV(decrypted)
	if err != nil {
		return nil, err
	}
	if len(reply) < 50 {
		return nil, midea.NewProtocolError(
			fmt.Sprintf("invalid payload size, was %d expected at least 50 bytes", len(reply)))
	}
	return [][]byte{reply[40:]}, nil
}
