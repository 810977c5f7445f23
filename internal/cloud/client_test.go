package cloud

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ewest/midea/internal/crypto"
	"github.com/ewest/midea/internal/midea"
)

const testDataKey = "23f4b15525824bc3"

// testServer is a fake legacy cloud API. Handlers receive the parsed form
// and return the value of the "result" key.
type testServer struct {
	t        *testing.T
	sec      *crypto.Security
	server   *httptest.Server
	logins   int
	listHits int
	handlers map[string]func(form map[string]string) (any, int, string)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	sec := crypto.NewSecurity(midea.DefaultProfile())
	ts := &testServer{
		t:        t,
		sec:      sec,
		handlers: map[string]func(map[string]string) (any, int, string){},
	}
	ts.server = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.server.Close)

	accessToken, err := sec.EncryptString(testDataKey, sec.MD5AppKey(), "")
	if err != nil {
		t.Fatalf("cannot build access token: %v", err)
	}
	if err := sec.SetAccessToken(accessToken); err != nil {
		t.Fatalf("cannot install access token: %v", err)
	}

	ts.handlers["/v1/user/login/id/get"] = func(form map[string]string) (any, int, string) {
		if form["loginAccount"] == "" || form["sign"] == "" {
			return nil, 3501, "missing account or sign"
		}
		return map[string]any{"loginId": "test-login-id"}, 0, ""
	}
	ts.handlers["/v1/user/login"] = func(form map[string]string) (any, int, string) {
		ts.logins++
		return map[string]any{
			"sessionId":   fmt.Sprintf("session-%d", ts.logins),
			"accessToken": accessToken,
		}, 0, ""
	}
	return ts
}

func (ts *testServer) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ts.t.Errorf("bad form: %v", err)
	}
	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	handler, ok := ts.handlers[r.URL.Path]
	if !ok {
		ts.t.Errorf("unexpected endpoint %s", r.URL.Path)
		http.NotFound(w, r)
		return
	}
	result, code, msg := handler(form)
	payload := map[string]any{"errorCode": fmt.Sprint(code), "msg": msg}
	if code == 0 {
		payload["result"] = result
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (ts *testServer) client() *Client {
	c := NewClient(midea.DefaultProfile(), "user@example.com", "secret")
	c.BaseURL = ts.server.URL
	c.SleepInterval = 0
	return c
}

func TestClient_ListAppliances(t *testing.T) {
	ts := newTestServer(t)
	encryptedSN, err := ts.sec.EncryptString("SN0123456789", "", "")
	if err != nil {
		t.Fatal(err)
	}
	ts.handlers["/v1/appliance/user/list/get"] = func(form map[string]string) (any, int, string) {
		ts.listHits++
		if form["sessionId"] == "" {
			return nil, 3501, "missing session"
		}
		return map[string]any{"list": []any{
			map[string]any{"id": "12345", "name": "Cellar", "sn": encryptedSN, "type": "0xa1"},
		}}, 0, ""
	}

	c := ts.client()
	appliances, err := c.ListAppliances()
	if err != nil {
		t.Fatalf("ListAppliances() error = %v", err)
	}
	if len(appliances) != 1 {
		t.Fatalf("got %d appliances, want 1", len(appliances))
	}
	got := appliances[0]
	if got.ID != "12345" || got.Name != "Cellar" || got.Type != "0xa1" {
		t.Errorf("appliance = %+v", got)
	}
	if got.SerialNumber != "SN0123456789" {
		t.Errorf("SerialNumber = %q, want decrypted value", got.SerialNumber)
	}
	if ts.logins != 1 {
		t.Errorf("logins = %d, want 1", ts.logins)
	}

	// Second call hits the cache.
	if _, err := c.ListAppliances(); err != nil {
		t.Fatalf("cached ListAppliances() error = %v", err)
	}
	if ts.listHits != 1 {
		t.Errorf("list endpoint hit %d times, want 1", ts.listHits)
	}
}

func TestClient_GetToken(t *testing.T) {
	ts := newTestServer(t)
	ts.handlers["/v1/iot/secure/getToken"] = func(form map[string]string) (any, int, string) {
		return map[string]any{"tokenlist": []any{
			map[string]any{"udpId": "other", "token": "bad", "key": "bad"},
			map[string]any{"udpId": form["udpid"], "token": "t0k3n", "key": "k3y"},
		}}, 0, ""
	}

	c := ts.client()
	token, key, err := c.GetToken("abcdef")
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if token != "t0k3n" || key != "k3y" {
		t.Errorf("GetToken() = %q, %q", token, key)
	}
}

func TestClient_GetToken_Unknown(t *testing.T) {
	ts := newTestServer(t)
	ts.handlers["/v1/iot/secure/getToken"] = func(form map[string]string) (any, int, string) {
		return map[string]any{"tokenlist": []any{}}, 0, ""
	}

	c := ts.client()
	token, key, err := c.GetToken("abcdef")
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if token != "" || key != "" {
		t.Errorf("GetToken() = %q, %q, want empty pair", token, key)
	}
}

func TestClient_ApplianceTransparentSend(t *testing.T) {
	ts := newTestServer(t)
	replyPayload := append(make([]byte, 40), 0xAA, 0x22, 0xA1, 0x00, 0xFF, 0x80,
		0x01, 0x02, 0x03, 0x04, 0x05)
	ts.handlers["/v1/appliance/transparent/send"] = func(form map[string]string) (any, int, string) {
		decrypted, err := ts.sec.DecryptString(form["order"], "", "")
		if err != nil {
			return nil, 3501, "cannot decrypt order"
		}
		sent, err := decodeSignedCSV(decrypted)
		if err != nil || len(sent) == 0 || sent[0] != 0x5A {
			return nil, 3501, "unexpected order"
		}
		reply, err := ts.sec.EncryptString(encodeSignedCSV(replyPayload), "", "")
		if err != nil {
			return nil, 3501, "cannot encrypt reply"
		}
		return map[string]any{"reply": reply}, 0, ""
	}

	c := ts.client()
	packet := make([]byte, 60)
	packet[0], packet[1] = 0x5A, 0x5A
	responses, err := c.ApplianceTransparentSend("12345", packet)
	if err != nil {
		t.Fatalf("ApplianceTransparentSend() error = %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}
	want := replyPayload[40:]
	if len(responses[0]) != len(want) || responses[0][0] != 0xAA {
		t.Errorf("response = %x, want %x", responses[0], want)
	}
}

func TestClient_ApplianceTransparentSend_ShortReply(t *testing.T) {
	ts := newTestServer(t)
	ts.handlers["/v1/appliance/transparent/send"] = func(form map[string]string) (any, int, string) {
		reply, err := ts.sec.EncryptString(encodeSignedCSV(make([]byte, 10)), "", "")
		if err != nil {
			return nil, 3501, "cannot encrypt reply"
		}
		return map[string]any{"reply": reply}, 0, ""
	}

	c := ts.client()
	if _, err := c.ApplianceTransparentSend("12345", make([]byte, 60)); !midea.IsProtocolError(err) {
		t.Errorf("error = %v, want protocol error", err)
	}
}

func TestClient_ErrorDispatch(t *testing.T) {
	t.Run("authentication error is terminal", func(t *testing.T) {
		ts := newTestServer(t)
		ts.handlers["/v1/user/login"] = func(form map[string]string) (any, int, string) {
			ts.logins++
			return nil, 3102, "invalid username"
		}
		c := ts.client()
		err := c.Authenticate()
		if !midea.IsAuthenticationError(err) {
			t.Fatalf("error = %v, want authentication error", err)
		}
		var apiErr *midea.Error
		if !errors.As(err, &apiErr) || apiErr.Code != 3102 {
			t.Errorf("error = %v, want code 3102", err)
		}
		if ts.logins != 1 {
			t.Errorf("logins = %d, terminal errors must not retry", ts.logins)
		}
	})

	t.Run("retry later", func(t *testing.T) {
		ts := newTestServer(t)
		ts.handlers["/v1/iot/secure/getToken"] = func(form map[string]string) (any, int, string) {
			return nil, 7610, "throttled"
		}
		c := ts.client()
		_, _, err := c.GetToken("abcdef")
		if !midea.IsRetryable(err) {
			t.Errorf("error = %v, want retry-later", err)
		}
	})

	t.Run("unknown code is a cloud error", func(t *testing.T) {
		ts := newTestServer(t)
		ts.handlers["/v1/iot/secure/getToken"] = func(form map[string]string) (any, int, string) {
			return nil, 3501, "something odd"
		}
		c := ts.client()
		_, _, err := c.GetToken("abcdef")
		var apiErr *midea.Error
		if !errors.As(err, &apiErr) || apiErr.Kind != midea.KindCloud || apiErr.Code != 3501 {
			t.Errorf("error = %v, want cloud error 3501", err)
		}
	})

	t.Run("invalid session restarts and retries", func(t *testing.T) {
		ts := newTestServer(t)
		failures := 1
		ts.handlers["/v1/appliance/user/list/get"] = func(form map[string]string) (any, int, string) {
			if failures > 0 {
				failures--
				return nil, 3106, "invalid session"
			}
			return map[string]any{"list": []any{}}, 0, ""
		}
		c := ts.client()
		if _, err := c.ListAppliances(); err != nil {
			t.Fatalf("ListAppliances() error = %v", err)
		}
		if ts.logins != 2 {
			t.Errorf("logins = %d, want re-login after session restart", ts.logins)
		}
	})
}

func TestClient_RetriesTransportErrors(t *testing.T) {
	failures := 1
	inner := newTestServer(t)
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures > 0 {
			failures--
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		inner.handle(w, r)
	}))
	t.Cleanup(proxy.Close)

	c := inner.client()
	c.BaseURL = proxy.URL
	if err := c.Authenticate(); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
}

func TestClient_TooManyTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	c := NewClient(midea.DefaultProfile(), "user@example.com", "secret")
	c.BaseURL = server.URL
	c.SleepInterval = 0
	err := c.Authenticate()
	var apiErr *midea.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != midea.KindCloudRequest {
		t.Fatalf("error = %v, want cloud request error", err)
	}
}

func TestSignedCSVRoundTrip(t *testing.T) {
	data := []byte{0x00, 0x01, 0x7F, 0x80, 0xFF, 0xAA}
	encoded := encodeSignedCSV(data)
	if encoded != "0,1,127,-128,-1,-86" {
		t.Errorf("encodeSignedCSV() = %q", encoded)
	}
	decoded, err := decodeSignedCSV(encoded)
	if err != nil {
		t.Fatalf("decodeSignedCSV() error = %v", err)
	}
	if string(decoded) != string(data) {
		t.Errorf("round trip = %x, want %x", decoded, data)
	}
	if _, err := decodeSignedCSV("1,2,zz"); !midea.IsProtocolError(err) {
		t.Errorf("decodeSignedCSV(garbage) error = %v, want protocol error", err)
	}
}
