package lan

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ewest/midea/internal/appliance"
	"github.com/ewest/midea/internal/command"
	"github.com/ewest/midea/internal/logging"
	"github.com/ewest/midea/internal/midea"
	"github.com/ewest/midea/internal/protocol"
)

// sleep pauses for the given number of backoff units.
func (d *Device) sleep(units float64) {
	if units <= 0 || d.SleepInterval <= 0 {
		return
	}
	time.Sleep(time.Duration(units * float64(d.SleepInterval)))
}

func (d *Device) connect() {
	if d.conn != nil {
		return
	}
	d.disconnect()
	logging.Debug("connecting", zap.String("device", d.String()))
	d.decoder.Reset()
	conn, err := d.dial(net.JoinHostPort(d.Address, strconv.Itoa(d.Port)), d.Timeout)
	if err != nil {
		logging.Debug("connection failed", zap.String("device", d.String()), zap.Error(err))
		d.lastError = err.Error()
		return
	}
	d.conn = conn
}

func (d *Device) disconnect() {
	if d.conn != nil {
		d.conn.Close()
	}
	d.conn = nil
	d.framer.SetKey(nil)
}

// request writes one message and reads one reply. Failures are recorded in
// lastError and the retry counter; the caller decides whether to resend.
func (d *Device) request(message []byte) []byte {
	d.connect()
	if d.conn == nil {
		d.lastError = fmt.Sprintf("socket not open for %s", d.Address)
		d.retries++
		return nil
	}
	_ = d.conn.SetDeadline(time.Now().Add(d.Timeout))
	logging.LogRawBytes("sending", message)
	if _, err := d.conn.Write(message); err != nil {
		logging.Debug("send failed", zap.String("device", d.String()), zap.Error(err))
		d.lastError = err.Error()
		d.disconnect()
		d.retries++
		return nil
	}
	buf := make([]byte, 1024)
	n, err := d.conn.Read(buf)
	if err != nil {
		logging.Debug("receive failed", zap.String("device", d.String()), zap.Error(err))
		d.lastError = err.Error()
		// Keep the connection on a plain timeout, the session may recover.
		if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
			d.disconnect()
		}
		d.retries++
		return nil
	}
	if n == 0 {
		d.lastError = fmt.Sprintf("no results from %s", d.Address)
		d.disconnect()
		d.retries++
		return nil
	}
	logging.LogRawBytes("received", buf[:n])
	d.retries = 0
	return buf[:n]
}

// Authenticate performs the v3 handshake: it sends the token and derives the
// session key from the response. Empty replies are retried with linear
// backoff.
func (d *Device) Authenticate() error {
	if d.Token == "" || d.Key == "" {
		return midea.NewAuthenticationError("missing token/key pair")
	}
	byteToken, err := hex.DecodeString(d.Token)
	if err != nil {
		return midea.NewAuthenticationError(fmt.Sprintf("invalid token: %v", err))
	}
	var response []byte
	for i := 0; i < d.MaxRetries; i++ {
		frame, err := d.framer.Encode(byteToken, midea.MsgTypeHandshakeRequest)
		if err != nil {
			return err
		}
		response = d.request(frame)
		if len(response) > 0 {
			break
		}
		if i > 0 {
			logging.Debug("handshake retry",
				zap.Int("attempt", i+1), zap.Int("max", d.MaxRetries))
			d.sleep(float64(i + 1))
		}
	}
	if len(response) == 0 {
		return midea.NewAuthenticationError(
			fmt.Sprintf("failed to perform handshake for %s", logging.Redact(d.SerialNumber, 8)))
	}
	if len(response) < 72 {
		return midea.NewAuthenticationError("handshake response too short")
	}
	return d.installSessionKey(response[8:72])
}

func (d *Device) installSessionKey(response []byte) error {
	localKey, err := hex.DecodeString(d.Key)
	if err != nil {
		return midea.NewAuthenticationError(fmt.Sprintf("invalid key: %v", err))
	}
	sessionKey, err := d.sec.TCPKey(response, localKey)
	if err != nil {
		return midea.NewAuthenticationError(fmt.Sprintf(
			"failed to get TCP key for %s: %v", logging.Redact(d.SerialNumber, 8), err))
	}
	d.framer.SetKey(sessionKey)
	d.decoder.Reset()
	logging.Debug("got TCP key", zap.String("device", d.String()))
	// The firmware drops data sent right after the handshake.
	d.sleep(0.5)
	return nil
}

// lanPacket wraps a command in the v2 envelope. Packets relayed through the
// cloud stay plaintext, the cloud encrypts them itself.
func (d *Device) lanPacket(cmd command.Command, local bool) ([]byte, error) {
	id, err := strconv.ParseUint(d.ApplianceID, 10, 64)
	if err != nil {
		return nil, midea.NewProtocolError(fmt.Sprintf("invalid appliance id %q", d.ApplianceID))
	}
	return protocol.EncodeLanPacket(d.sec, id, cmd.Finalize(), time.Now(), local)
}

// applianceSend delivers a packet over the protocol the appliance speaks.
func (d *Device) applianceSend(data []byte) ([][]byte, error) {
	switch {
	case d.Version >= 3:
		return d.send8370(data)
	case d.Version == 2:
		return d.sendV2(data)
	}
	return nil, midea.NewUnsupportedError(fmt.Sprintf("unsupported protocol version %d", d.Version))
}

func (d *Device) send8370(data []byte) ([][]byte, error) {
	if d.conn == nil || !d.framer.HasKey() {
		logging.Debug("session closed, authenticating", zap.String("device", d.String()))
		d.disconnect()
		for i := 0; ; i++ {
			err := d.Authenticate()
			if err == nil {
				break
			}
			if i >= d.MaxRetries-1 {
				logging.Debug("failed to authenticate", zap.String("device", d.String()))
				return nil, err
			}
			logging.Debug("retrying authentication",
				zap.Int("attempt", i+2), zap.Int("max", d.MaxRetries),
				zap.String("device", d.String()))
			d.disconnect()
			d.sleep(float64((i + 1) * 2))
		}
	}

	frame, err := d.framer.Encode(data, midea.MsgTypeEncryptedRequest)
	if err != nil {
		return nil, err
	}
	// Resends back off by the retry count.
	d.sleep(float64(d.retries))
	responseBuf := d.request(frame)
	if packets, handled, err := d.retrySend(data, responseBuf); handled {
		return packets, err
	}

	responses, err := d.decoder.Feed(responseBuf)
	if err != nil {
		return nil, err
	}
	var packets [][]byte
	for _, response := range responses {
		if len(response) > 40+16 {
			response, err = d.sec.AESDecrypt(response[40 : len(response)-16])
			if err != nil {
				return nil, midea.NewProtocolError(fmt.Sprintf(
					"failed to decrypt response from %s: %v", d.String(), err))
			}
		}
		if len(response) > 10 {
			packets = append(packets, response)
		}
	}
	return packets, nil
}

func (d *Device) sendV2(data []byte) ([][]byte, error) {
	d.sleep(float64(d.retries))
	responseBuf := d.request(data)
	if packets, handled, err := d.retrySend(data, responseBuf); handled {
		return packets, err
	}
	switch {
	case len(responseBuf) > 5 && bytes.Equal(responseBuf[:2], midea.HdrZZ):
		return protocol.SplitZZPackets(d.sec, responseBuf)
	case len(responseBuf) > 2 && responseBuf[0] == 0xAA:
		return protocol.SplitB5Packets(responseBuf)
	}
	return nil, midea.NewProtocolError(fmt.Sprintf("unknown response format from %s", d.String()))
}

// retrySend resends data when the reply was empty, up to MaxRetries, then
// gives up with a network error. handled is false when the reply was fine
// and the caller should parse it.
func (d *Device) retrySend(data, responseBuf []byte) (packets [][]byte, handled bool, err error) {
	if len(responseBuf) > 0 {
		return nil, false, nil
	}
	if d.retries < d.MaxRetries {
		logging.Debug("retrying send",
			zap.Int("attempt", d.retries), zap.Int("max", d.MaxRetries))
		d.lastError = "empty reply"
		d.retries++
		packets, err = d.applianceSend(data)
		d.retries = 0
		return packets, true, err
	}
	lastError := d.lastError
	d.lastError = ""
	return nil, true, midea.NewNetworkError(fmt.Sprintf(
		"unable to send data after %d retries, last error %q for %s (%s)",
		d.MaxRetries, lastError,
		logging.Redact(d.SerialNumber, 8), logging.Redact(d.ApplianceID, 4)), nil)
}

// status sends a command and does the online/offline bookkeeping.
func (d *Device) status(cmd command.Command, cloud CloudService) ([][]byte, error) {
	data, err := d.lanPacket(cmd, cloud == nil)
	if err != nil {
		return nil, err
	}
	var responses [][]byte
	if cloud != nil {
		logging.Debug("sending request via cloud", zap.String("device", d.String()))
		responses, err = cloud.ApplianceTransparentSend(d.ApplianceID, data)
	} else {
		responses, err = d.applianceSend(data)
	}
	if err != nil {
		d.noResponses++
		d.checkForOffline(cloud != nil)
		return nil, err
	}
	if len(responses) == 0 {
		logging.Debug("got no responses on status", zap.String("device", d.String()))
		d.noResponses++
		d.checkForOffline(cloud != nil)
	} else {
		d.noResponses = 0
		d.online = true
	}
	return responses, nil
}

func (d *Device) checkForOffline(viaCloud bool) {
	if d.noResponses <= d.MaxRetries {
		return
	}
	if d.online {
		logging.Debug("considered offline",
			zap.String("device", d.String()), zap.Int("attempts", d.noResponses))
	}
	d.online = false
	if !viaCloud {
		d.disconnect()
	}
}

// Refresh queries the appliance status and feeds the responses into State.
// A non-nil cloud relays the query through the cloud API.
func (d *Device) Refresh(cloud CloudService) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refresh(cloud)
}

func (d *Device) refresh(cloud CloudService) error {
	cmd := d.State.RefreshCommand()
	if cmd == nil {
		return midea.NewUnsupportedError(fmt.Sprintf("appliance %s cannot be refreshed", d.State.Model()))
	}
	responses, err := d.status(cmd, cloud)
	if err != nil {
		return err
	}
	if len(responses) > 0 {
		if len(responses) > 1 {
			logging.Debug("got several responses on refresh",
				zap.String("device", d.String()), zap.Int("count", len(responses)))
		}
		d.noResponses = 0
		d.online = true
		d.State.ProcessResponseExt(responses)
	}
	return nil
}

// Apply sends the current State settings to the appliance. Families that
// answer the set command with a stale snapshot are refreshed afterwards.
func (d *Device) Apply(cloud CloudService) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.apply(cloud)
}

func (d *Device) apply(cloud CloudService) error {
	cmd := d.State.ApplyCommand()
	if cmd == nil {
		return midea.NewUnsupportedError(fmt.Sprintf("appliance %s cannot be controlled", d.State.Model()))
	}
	data, err := d.lanPacket(cmd, cloud == nil)
	if err != nil {
		return err
	}
	var responses [][]byte
	if cloud != nil {
		logging.Debug("sending request via cloud", zap.String("device", d.String()))
		responses, err = cloud.ApplianceTransparentSend(d.ApplianceID, data)
	} else {
		responses, err = d.applianceSend(data)
	}
	if err != nil {
		return err
	}
	if len(responses) == 0 {
		logging.Debug("got no responses on apply", zap.String("device", d.String()))
		d.online = false
		if cloud == nil {
			d.disconnect()
		}
		return nil
	}
	if len(responses) > 1 {
		logging.Debug("got several responses on apply",
			zap.String("device", d.String()), zap.Int("count", len(responses)))
	}
	d.online = true
	if d.State.NeedsRefresh() {
		return d.refresh(cloud)
	}
	d.State.ProcessResponseExt(responses)
	return nil
}

// ValidToken ensures the device holds a working token/key pair, probing the
// candidates the cloud has for either byte order of the appliance id when
// none is configured.
func (d *Device) ValidToken(cloud CloudService) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.validToken(cloud)
}

func (d *Device) validToken(cloud CloudService) error {
	if d.Token != "" && d.Key != "" {
		return d.Authenticate()
	}
	if cloud == nil {
		return midea.NewAuthenticationError(
			fmt.Sprintf("provide either a token/key pair or cloud access for %s", d.String()))
	}
	for _, udpID := range d.udpIDs() {
		token, key, err := cloud.GetToken(udpID)
		if err != nil {
			return err
		}
		d.Token, d.Key = token, key
		if err := d.Authenticate(); err != nil {
			logging.Debug("token check failed", zap.String("udp_id", udpID), zap.Error(err))
			d.Token, d.Key = "", ""
			d.disconnect()
			continue
		}
		logging.Debug("token valid",
			zap.String("udp_id", udpID), zap.String("device", d.String()))
		return nil
	}
	return midea.NewAuthenticationError(
		fmt.Sprintf("unable to get valid token for %s", logging.Redact(d.SerialNumber, 8)))
}

// Identify verifies the appliance is supported, makes sure a v3 session can
// be authenticated, queries the capability tables and refreshes the status.
func (d *Device) Identify(cloud CloudService, useCloud bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkIsSupported(useCloud); err != nil {
		return err
	}
	if d.Version >= 3 && !useCloud {
		if err := d.validToken(cloud); err != nil {
			return err
		}
	}
	var relay CloudService
	if useCloud {
		relay = cloud
	}
	d.queryCapabilities(d.State.CapabilitiesCommand(), relay, 0)
	d.queryCapabilities(d.State.CapabilitiesMoreCommand(), relay, 1)
	if err := d.refresh(relay); err != nil {
		return err
	}
	logging.Debug("identified appliance", zap.String("device", d.String()))
	return nil
}

func (d *Device) queryCapabilities(cmd command.Command, cloud CloudService, sequence int) {
	responses, err := d.status(cmd, cloud)
	if err != nil {
		// Capabilities are optional, many appliances never answer B5.
		logging.Warn("error getting device capabilities",
			zap.String("device", d.String()), zap.Error(err))
		return
	}
	if len(responses) == 0 {
		logging.Debug("no response on capabilities request", zap.String("device", d.String()))
		return
	}
	last := responses[len(responses)-1]
	if len(last) <= 10 {
		logging.Debug("invalid capabilities response",
			zap.String("data", logging.HexDump(last)))
		return
	}
	d.State.ProcessCapabilities(last[10:], sequence)
}

func (d *Device) checkIsSupported(useCloud bool) error {
	if !d.SupportedVersion() && !useCloud {
		return midea.NewUnsupportedError(fmt.Sprintf(
			"appliance %s protocol is not supported", logging.Redact(d.SerialNumber, 8)))
	}
	if !appliance.Supported(d.Type) {
		return midea.NewUnsupportedError(fmt.Sprintf("unsupported appliance type %q", d.Type))
	}
	return nil
}
