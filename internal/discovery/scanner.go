package discovery

import (
	"context"
	"net"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ewest/midea/internal/appliance"
	"github.com/ewest/midea/internal/crypto"
	"github.com/ewest/midea/internal/lan"
	"github.com/ewest/midea/internal/logging"
	"github.com/ewest/midea/internal/midea"
)

// Scanner discovers appliances on the local network.
type Scanner struct {
	// Cloud matches discovered appliances against the account registry and
	// validates their tokens. Without it every supported appliance is
	// returned as-is.
	Cloud lan.CloudService
	// Security is shared with the created devices. Nil gets the default app
	// profile.
	Security *crypto.Security
	// Timeout is how long one broadcast round waits for replies.
	Timeout time.Duration
	// Retries is the number of broadcast rounds.
	Retries int
	// Ports overrides the discovery ports, mainly for tests.
	Ports []int
}

// NewScanner creates a scanner with the default timeout and retry counts.
func NewScanner(cloud lan.CloudService) *Scanner {
	return &Scanner{
		Cloud:   cloud,
		Timeout: midea.DefaultTimeout,
		Retries: midea.DefaultRetries,
		Ports:   midea.DiscoveryPorts,
	}
}

// Scan broadcasts to the given addresses (typically directed broadcast
// addresses like 192.168.1.255) and returns the discovered appliances. With
// a cloud client, appliances registered to the account but not discovered
// are appended as offline placeholders.
func (s *Scanner) Scan(ctx context.Context, addresses []string) ([]*lan.Device, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, midea.NewNetworkError("cannot open discovery socket", err)
	}
	defer conn.Close()

	var (
		devices    []*lan.Device
		registry   []midea.ApplianceDetails
		known      = map[string]bool{}
		knownIPs   = map[string]bool{}
		cloudCount int
	)
	discoverAll := s.Cloud == nil
	if s.Cloud != nil {
		registry, err = s.Cloud.ListAppliances()
		if err != nil {
			return nil, err
		}
		for _, details := range registry {
			if appliance.Supported(details.Type) {
				cloudCount++
			}
			known[details.ID] = true
		}
	}

	retries := s.Retries
	if retries <= 0 {
		retries = midea.DefaultRetries
	}
	for i := 0; i < retries; i++ {
		if ctx.Err() != nil {
			return devices, ctx.Err()
		}
		logging.Debug("broadcast round", zap.Int("attempt", i+1), zap.Int("max", retries))
		scanned := s.collect(ctx, conn, addresses, knownIPs)
		sort.Slice(scanned, func(a, b int) bool {
			return scanned[a].ApplianceID < scanned[b].ApplianceID
		})
		for _, found := range scanned {
			if existing := findByID(devices, found.ApplianceID); existing != nil {
				if existing.Address != found.Address {
					logging.Debug("known appliance, data changed",
						zap.String("device", found.String()))
					existing.Update(found)
				}
				continue
			}
			if discoverAll {
				devices = append(devices, found)
				continue
			}
			s.matchWithCloud(&devices, registry, known, found)
		}
		if s.Cloud != nil && len(known) == 0 {
			break
		}
	}
	logging.Debug("discovery finished",
		zap.Int("found", len(devices)), zap.Int("registered", cloudCount))

	if s.Cloud != nil && len(devices) < cloudCount {
		addMissingAppliances(registry, &devices, s.Security)
	}
	return devices, nil
}

// collect broadcasts one round and gathers replies until the socket
// timeout. Replies are deduplicated by source IP across rounds.
func (s *Scanner) collect(ctx context.Context, conn net.PacketConn, addresses []string, knownIPs map[string]bool) []*lan.Device {
	for _, address := range addresses {
		for _, port := range s.Ports {
			dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(address, strconv.Itoa(port)))
			if err != nil {
				logging.Debug("invalid broadcast address",
					zap.String("address", address), zap.Error(err))
				continue
			}
			logging.Debug("broadcasting", zap.String("address", address), zap.Int("port", port))
			if _, err := conn.WriteTo(lan.DiscoveryMessage, dst); err != nil {
				logging.Debug("unable to send broadcast",
					zap.String("address", address), zap.Error(err))
			}
		}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = midea.DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	var found []*lan.Device
	buf := make([]byte, 512)
	for {
		if ctx.Err() != nil {
			return found
		}
		_ = conn.SetReadDeadline(deadline)
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			// Timeout means we waited long enough for this round.
			return found
		}
		ip, _, _ := net.SplitHostPort(src.String())
		if knownIPs[ip] {
			continue
		}
		knownIPs[ip] = true
		logging.LogRawBytes("discovery reply", buf[:n])

		device, err := lan.NewDeviceFromDiscovery(buf[:n], "", "", s.Security)
		if err != nil {
			logging.Debug("cannot parse discovery reply",
				zap.String("address", ip), zap.Error(err))
			continue
		}
		if !appliance.Supported(device.Type) {
			logging.Debug("not a supported appliance", zap.String("device", device.String()))
			continue
		}
		if s.Cloud != nil {
			if err := device.Identify(s.Cloud, false); err != nil {
				logging.Debug("cannot identify appliance",
					zap.String("device", device.String()), zap.Error(err))
				continue
			}
		}
		found = append(found, device)
	}
}

// matchWithCloud names a discovered appliance from the account registry. An
// appliance missing from the registry is reported with its token so the user
// can register or configure it manually.
func (s *Scanner) matchWithCloud(devices *[]*lan.Device, registry []midea.ApplianceDetails, known map[string]bool, found *lan.Device) {
	for _, details := range registry {
		if found.MatchesCloud(details) {
			found.State.SetName(details.Name)
			*devices = append(*devices, found)
			logging.Debug("found registered appliance", zap.String("device", found.String()))
			delete(known, details.ID)
			return
		}
	}
	if err := found.ValidToken(s.Cloud); err != nil {
		logging.Debug("unable to get token",
			zap.String("device", found.String()), zap.Error(err))
	}
	logging.Warn("found an appliance that is not registered to the account",
		zap.String("device", found.String()),
		zap.String("token", logging.Redact(found.Token, 4)),
		zap.String("key", logging.Redact(found.Key, 4)))
}

// addMissingAppliances appends offline placeholders for registered
// appliances that did not answer the broadcast.
func addMissingAppliances(registry []midea.ApplianceDetails, devices *[]*lan.Device, sec *crypto.Security) {
	logging.Warn("some appliances were not discovered on the local network",
		zap.Int("discovered", len(*devices)))
	for _, details := range registry {
		if !appliance.Supported(details.Type) {
			continue
		}
		var local *lan.Device
		for _, d := range *devices {
			if d.MatchesCloud(details) {
				local = d
				break
			}
		}
		if local == nil {
			local = lan.NewDevice(details.ID, "", 0, details.Type, sec)
			local.SerialNumber = details.SerialNumber
			*devices = append(*devices, local)
			logging.Warn("unable to discover registered appliance",
				zap.String("id", logging.Redact(details.ID, 4)),
				zap.String("sn", logging.Redact(details.SerialNumber, 8)))
		}
		local.State.SetName(details.Name)
	}
}

func findByID(devices []*lan.Device, id string) *lan.Device {
	for _, d := range devices {
		if d.ApplianceID == id {
			return d
		}
	}
	return nil
}
