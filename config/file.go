package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := applyValue(cfg, key, value); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
	}
	return nil
}

func applyValue(cfg *Config, key, value string) error {
	switch key {
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value
	case "params":
		cfg.ParamsFile = value

	case "rpc.enabled":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		cfg.RPC.Enabled = b
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		p, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid port: %w", err)
		}
		cfg.RPC.Port = p
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	case "wallet.enabled":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		cfg.Wallet.Enabled = b
	case "wallet.file":
		cfg.Wallet.FilePath = value

	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		cfg.Log.JSON = b

	default:
		return fmt.Errorf("unknown config key")
	}
	return nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", value)
	}
}

// WriteDefaultConfig writes a commented default config file.
func WriteDefaultConfig(path string, network NetworkType) error {
	def := Default(network)
	content := fmt.Sprintf(`# Klingnet ledger node configuration.
# Lines starting with # are comments. Format: key = value

network = %s

# Data directory (blank = platform default)
# datadir =

# Protocol parameters JSON file (blank = built-in defaults)
# params =

rpc.enabled = %t
rpc.addr = %s
rpc.port = %d
rpc.allowed = 127.0.0.1

wallet.enabled = %t

log.level = %s
log.json = %t
`, def.Network, def.RPC.Enabled, def.RPC.Addr, def.RPC.Port,
		def.Wallet.Enabled, def.Log.Level, def.Log.JSON)

	return os.WriteFile(path, []byte(content), 0644)
}
