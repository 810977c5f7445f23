package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ewest/midea/internal/appliance"
	"github.com/ewest/midea/internal/cloud"
	"github.com/ewest/midea/internal/config"
	"github.com/ewest/midea/internal/crypto"
	"github.com/ewest/midea/internal/discovery"
	"github.com/ewest/midea/internal/lan"
	"github.com/ewest/midea/internal/logging"
	"github.com/ewest/midea/internal/midea"
	"github.com/ewest/midea/internal/ui"
)

// Command flags
var (
	logLevel string

	accountFlag  string
	passwordFlag string
	appFlag      string

	addressFlag string
	idFlag      string
	tokenFlag   string
	keyFlag     string
	useCloud    bool

	retriesFlag int
	timeoutFlag int

	broadcastFlags []string
	scanTimeout    int
	scanRounds     int

	outputFormat  string
	watchInterval int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log verbosity (debug, info, warn, error); silent when unset")
	rootCmd.PersistentFlags().StringVar(&accountFlag, "account", "", "Cloud account email (overrides config file)")
	rootCmd.PersistentFlags().StringVar(&passwordFlag, "password", "", "Cloud account password (prompted when omitted)")
	rootCmd.PersistentFlags().StringVar(&appFlag, "app", "", "Cloud app profile (NetHome Plus, Midea Air, Ariston Clima, MSmartHome)")

	rootCmd.PersistentFlags().StringVar(&addressFlag, "address", "", "Appliance IP address")
	rootCmd.PersistentFlags().StringVar(&idFlag, "id", "", "Appliance id (requires cloud credentials when no address is known)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Hex authentication token for v3 appliances")
	rootCmd.PersistentFlags().StringVar(&keyFlag, "key", "", "Hex authentication key for v3 appliances")
	rootCmd.PersistentFlags().BoolVar(&useCloud, "cloud", false, "Talk to the appliance through the cloud relay")

	rootCmd.PersistentFlags().IntVar(&retriesFlag, "retries", 0, "Number of retries for appliance exchanges")
	rootCmd.PersistentFlags().IntVar(&timeoutFlag, "timeout", 0, "Network timeout in seconds")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(watchCmd)
}

// loadConfig reads the user configuration, falling back to defaults when the
// file is unreadable so read-only commands still work.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logging.Warn("cannot load configuration, using defaults", zap.Error(err))
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return cfg
}

// profile resolves the app identity from flags and config.
func profile(cfg *config.Config) (midea.AppProfile, error) {
	if appFlag != "" {
		p, ok := midea.SupportedApps[appFlag]
		if !ok {
			return midea.AppProfile{}, fmt.Errorf("unknown app %q", appFlag)
		}
		return p, nil
	}
	return cfg.Profile()
}

// cloudClient builds a cloud client when an account is configured, nil
// otherwise. The password is prompted when not given on the command line.
func cloudClient(cfg *config.Config, p midea.AppProfile) (*cloud.Client, error) {
	account := accountFlag
	if account == "" {
		account = cfg.Account
	}
	if account == "" {
		return nil, nil
	}

	password := passwordFlag
	if password == "" {
		fmt.Fprintf(os.Stderr, "Password for %s: ", account)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("cannot read password: %w", err)
		}
		password = string(raw)
	}
	if password == "" {
		return nil, fmt.Errorf("cloud account %s needs a password", account)
	}

	return cloud.NewClient(p, account, password), nil
}

// cloudService converts the concrete client into the interface the LAN layer
// takes, keeping a nil client a nil interface.
func cloudService(c *cloud.Client) lan.CloudService {
	if c == nil {
		return nil
	}
	return c
}

// storedCredentials returns the token/key pair for an appliance, preferring
// command line flags over the configuration file.
func storedCredentials(cfg *config.Config, applianceID, address string) (string, string) {
	if tokenFlag != "" || keyFlag != "" {
		return tokenFlag, keyFlag
	}
	if applianceID != "" {
		if device := cfg.GetDevice(applianceID); device != nil {
			return device.Token, device.Key
		}
	}
	if address != "" {
		for _, device := range cfg.Devices {
			if device.LastIP == address {
				return device.Token, device.Key
			}
		}
	}
	return "", ""
}

// applianceState locates the target appliance from flags and config.
func applianceState(cfg *config.Config) (*lan.Device, *cloud.Client, error) {
	p, err := profile(cfg)
	if err != nil {
		return nil, nil, err
	}
	cloudCli, err := cloudClient(cfg, p)
	if err != nil {
		return nil, nil, err
	}

	address, applianceID := addressFlag, idFlag
	if address == "" && applianceID != "" && !useCloud {
		// Reuse the last known address before falling back to the cloud.
		if device := cfg.GetDevice(applianceID); device != nil {
			address = device.LastIP
		}
	}
	if address == "" && applianceID == "" {
		return nil, nil, fmt.Errorf("no appliance selected, use --address or --id (or run 'mideactl discover')")
	}

	token, key := storedCredentials(cfg, applianceID, address)
	applianceType := ""
	if applianceID != "" {
		if device := cfg.GetDevice(applianceID); device != nil {
			applianceType = device.Type
		}
	}

	device, err := lan.ApplianceState(lan.StateOptions{
		Address:       address,
		Token:         token,
		Key:           key,
		Cloud:         cloudService(cloudCli),
		UseCloud:      useCloud || address == "",
		ApplianceID:   applianceID,
		ApplianceType: applianceType,
		Security:      crypto.NewSecurity(p),
		Retries:       retriesFlag,
		Timeout:       time.Duration(timeoutFlag) * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}

	rememberDevice(cfg, device)
	return device, cloudCli, nil
}

// rememberDevice persists the credentials learned during the exchange so the
// next invocation can skip the cloud. Best effort.
func rememberDevice(cfg *config.Config, device *lan.Device) {
	cfg.RememberDevice(device.ApplianceID, device.Token, device.Key, device.Address, device.Type)
	if name := device.State.Name(); name != device.ApplianceID {
		cfg.SetDeviceName(device.ApplianceID, name)
	}
	if err := cfg.Save(); err != nil {
		logging.Warn("cannot save configuration", zap.Error(err))
	}
}

// relayFor returns the cloud service status polls should go through: the
// relay for appliances without a direct address, nil for LAN appliances.
func relayFor(device *lan.Device, cloudCli *cloud.Client) lan.CloudService {
	if useCloud || device.Address == "" {
		return cloudService(cloudCli)
	}
	return nil
}

// discoverCmd broadcasts on the local network and lists the appliances found
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover Midea appliances on the local network",
	Long: `Discover Midea appliances by broadcasting the discovery datagram.

With cloud credentials (--account or the config file) discovered appliances
are matched against the account registry, named, and their authentication
tokens are fetched and stored for later commands.`,
	Example: `  # Broadcast on the default addresses
  mideactl discover

  # Directed broadcast with cloud matching
  mideactl discover --broadcast 192.168.1.255 --account user@example.com`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringSliceVar(&broadcastFlags, "broadcast", nil, "Broadcast addresses (default from config)")
	discoverCmd.Flags().IntVar(&scanTimeout, "scan-timeout", 0, "Seconds to wait for replies per round")
	discoverCmd.Flags().IntVar(&scanRounds, "rounds", 0, "Number of broadcast rounds")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	p, err := profile(cfg)
	if err != nil {
		return err
	}
	cloudCli, err := cloudClient(cfg, p)
	if err != nil {
		return err
	}

	addresses := broadcastFlags
	if len(addresses) == 0 {
		addresses = cfg.Preferences.BroadcastAddresses
	}
	if len(addresses) == 0 {
		addresses = []string{"255.255.255.255"}
	}

	scanner := discovery.NewScanner(cloudService(cloudCli))
	scanner.Security = crypto.NewSecurity(p)
	if scanTimeout > 0 {
		scanner.Timeout = time.Duration(scanTimeout) * time.Second
	} else if cfg.Preferences.ScanTimeout > 0 {
		scanner.Timeout = time.Duration(cfg.Preferences.ScanTimeout) * time.Second
	}
	if scanRounds > 0 {
		scanner.Retries = scanRounds
	} else if cfg.Preferences.ScanRounds > 0 {
		scanner.Retries = cfg.Preferences.ScanRounds
	}

	fmt.Printf("Scanning %s for appliances...\n\n", strings.Join(addresses, ", "))

	devices, err := scanner.Scan(context.Background(), addresses)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No appliances found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure the appliance is powered on and connected to WiFi")
		fmt.Println("  - Use --broadcast with your subnet broadcast address (e.g. 192.168.1.255)")
		fmt.Println("  - Try increasing --scan-timeout for slower networks")
		fmt.Println("  - Use --address to talk to a known appliance directly")
		return nil
	}

	fmt.Printf("Found %d appliance(s):\n\n", len(devices))
	for i, device := range devices {
		online := "offline"
		if device.Online() {
			online = "online"
		}
		fmt.Printf("%d. %s (%s)\n", i+1, device.State.Name(), device.State.Model())
		fmt.Printf("   Id:       %s\n", device.ApplianceID)
		if device.Address != "" {
			fmt.Printf("   Address:  %s:%d (%s)\n", device.Address, device.Port, online)
		} else {
			fmt.Printf("   Address:  not on this network (%s)\n", online)
		}
		fmt.Printf("   Version:  v%d, firmware %s\n", device.Version, device.FirmwareVersion)
		if device.Token != "" {
			fmt.Printf("   Token:    stored\n")
		}
		fmt.Println()

		cfg.RememberDevice(device.ApplianceID, device.Token, device.Key, device.Address, device.Type)
		if name := device.State.Name(); name != device.ApplianceID {
			cfg.SetDeviceName(device.ApplianceID, name)
		}
	}
	if err := cfg.Save(); err != nil {
		logging.Warn("cannot save configuration", zap.Error(err))
	}

	fmt.Println("Use 'mideactl status --id <id>' to view appliance state")
	return nil
}

// statusCmd reads and prints the appliance state
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current appliance state",
	Long: `Connect to an appliance, refresh its state and print it.

The appliance is selected with --address or --id. Credentials stored by
'mideactl discover' are used automatically.`,
	Example: `  # Status of an appliance by address
  mideactl status --address 192.168.1.10

  # Status through the cloud relay
  mideactl status --id 21354673567853 --cloud --account user@example.com

  # JSON output for scripting
  mideactl status --address 192.168.1.10 --format json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format (table, plain, json)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	device, _, err := applianceState(cfg)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		state := map[string]any{
			"id":      device.ApplianceID,
			"name":    device.State.Name(),
			"type":    device.Type,
			"address": device.Address,
			"online":  device.Online(),
		}
		for _, prop := range device.State.Properties() {
			state[prop.Name] = prop.Get()
		}
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
	case "plain":
		fmt.Print(ui.FormatProperties(device))
	case "table":
		fallthrough
	default:
		fmt.Println(ui.RenderStatus(device, ui.GetTerminalWidth()))
	}
	return nil
}

// setCmd changes appliance settings. Its flags are generated from the
// property schema, so every settable property of every family appears once.
var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change appliance settings",
	Long: `Change one or more appliance settings and apply them.

Each settable property of the supported appliance families is available as
a flag. Flags that the selected appliance does not support are rejected.`,
	Example: `  # Start the dehumidifier and set the target humidity
  mideactl set --address 192.168.1.10 --running on --humidity 45

  # Switch an air conditioner to cool at 21.5 degrees
  mideactl set --address 192.168.1.20 --running on --mode 2 --temperature 21.5`,
	RunE: runSet,
}

// setValues collects the property flags registered on setCmd.
var setValues = map[string]*string{}

func init() {
	for _, name := range settablePropertyNames() {
		value := new(string)
		setValues[name] = value
		setCmd.Flags().StringVar(value, name, "", "Set the "+strings.ReplaceAll(name, "-", " "))
	}
}

// settablePropertyNames returns the union of the settable property names of
// all supported appliance families, sorted for stable flag ordering.
func settablePropertyNames() []string {
	seen := map[string]bool{}
	for _, model := range []appliance.Appliance{
		appliance.NewDehumidifier("0"),
		appliance.NewAirConditioner("0"),
	} {
		for _, prop := range model.Properties() {
			if prop.Set != nil {
				seen[prop.Name] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runSet(cmd *cobra.Command, args []string) error {
	changed := map[string]string{}
	for name, value := range setValues {
		if cmd.Flags().Changed(name) {
			changed[name] = *value
		}
	}
	if len(changed) == 0 {
		return fmt.Errorf("nothing to set, pass at least one property flag (see 'mideactl set --help')")
	}

	cfg := loadConfig()
	device, cloudCli, err := applianceState(cfg)
	if err != nil {
		return err
	}

	schema := map[string]appliance.Property{}
	for _, prop := range device.State.Properties() {
		schema[prop.Name] = prop
	}
	for name, value := range changed {
		prop, ok := schema[name]
		if !ok || prop.Set == nil {
			return fmt.Errorf("%s does not support --%s", device.State.Model(), name)
		}
		if err := prop.Set(value); err != nil {
			return fmt.Errorf("--%s: %w", name, err)
		}
	}

	if err := device.Apply(relayFor(device, cloudCli)); err != nil {
		return err
	}

	fmt.Printf("Applied %d setting(s) to %s\n\n", len(changed), device.State.Name())
	fmt.Print(ui.FormatProperties(device))
	return nil
}

// watchCmd runs the interactive status dashboard
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch appliance state in an interactive dashboard",
	Long: `Open an interactive dashboard that polls the appliance state.

The dashboard refreshes on an interval and redraws the status table. Press
'r' to refresh immediately and 'q' to quit.`,
	Example: `  # Watch a dehumidifier, polling every 15 seconds
  mideactl watch --address 192.168.1.10

  # Faster polling
  mideactl watch --address 192.168.1.10 --interval 5`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchInterval, "interval", 15, "Poll interval in seconds")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	device, cloudCli, err := applianceState(cfg)
	if err != nil {
		return err
	}

	interval := time.Duration(watchInterval) * time.Second
	if interval < 2*time.Second {
		interval = 2 * time.Second
	}

	model := ui.NewWatchModel(device, relayFor(device, cloudCli), interval)
	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("watch error: %w", err)
	}
	return nil
}
