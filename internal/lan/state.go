package lan

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ewest/midea/internal/crypto"
	"github.com/ewest/midea/internal/logging"
	"github.com/ewest/midea/internal/midea"
)

// StateOptions configures ApplianceState. Either Address or ApplianceID must
// be set; ApplianceID alone requires a cloud client with UseCloud.
type StateOptions struct {
	Address       string
	Token         string
	Key           string
	Cloud         CloudService
	UseCloud      bool
	ApplianceID   string
	ApplianceType string
	Security      *crypto.Security
	Retries       int
	Timeout       time.Duration
}

// ApplianceState locates an appliance, identifies it and returns it with a
// fresh status. A unicast address is probed over the discovery ports; with
// only an appliance id the state is fetched through the cloud.
func ApplianceState(opts StateOptions) (*Device, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = midea.DefaultTimeout
	}

	var device *Device
	switch {
	case opts.Address != "":
		var lastErr error
		for _, port := range midea.DiscoveryPorts {
			d, err := probe(opts.Address, port, opts.Token, opts.Key, opts.Security, timeout)
			if err != nil {
				lastErr = err
				continue
			}
			device = d
			break
		}
		if device == nil {
			return nil, lastErr
		}
	case opts.ApplianceID != "":
		if !opts.UseCloud || opts.Cloud == nil {
			return nil, midea.NewValidationError("missing cloud credentials")
		}
		applianceType := opts.ApplianceType
		if applianceType == "" {
			applianceType = midea.ApplianceTypeDehumidifier
		}
		device = NewDevice(opts.ApplianceID, "", 0, applianceType, opts.Security)
	default:
		return nil, midea.NewValidationError("must provide either appliance id or network address")
	}

	if opts.Retries > 0 {
		device.MaxRetries = opts.Retries
	}
	device.Timeout = timeout

	if err := device.Identify(opts.Cloud, opts.UseCloud); err != nil {
		return nil, err
	}

	if opts.Cloud != nil {
		details, err := opts.Cloud.ListAppliances()
		if err != nil {
			return nil, err
		}
		for _, entry := range details {
			if device.MatchesCloud(entry) {
				device.State.SetName(entry.Name)
				if device.SerialNumber == "" {
					device.SerialNumber = entry.SerialNumber
				}
				break
			}
		}
	}
	return device, nil
}

// probe sends the discovery datagram to one unicast address and parses the
// reply.
func probe(address string, port int, token, key string, sec *crypto.Security, timeout time.Duration) (*Device, error) {
	conn, err := net.DialTimeout("udp", net.JoinHostPort(address, strconv.Itoa(port)), timeout)
	if err != nil {
		return nil, midea.NewNetworkError(
			fmt.Sprintf("could not connect to appliance %s:%d", address, port), err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	logging.Debug("probing appliance",
		zap.String("address", logging.Redact(address, 5)), zap.Int("port", port))
	if _, err := conn.Write(DiscoveryMessage); err != nil {
		return nil, midea.NewNetworkError(
			fmt.Sprintf("could not send to appliance %s:%d", address, port), err)
	}
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, midea.NewNetworkError(
			fmt.Sprintf("timeout while connecting to appliance %s:%d", address, port), err)
	}
	return NewDeviceFromDiscovery(buf[:n], token, key, sec)
}
