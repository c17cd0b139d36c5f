package modem

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"i4.energy/across/wifigw/at"
)

type PasswordType int

const (
	PasswordOpen PasswordType = iota
	PasswordWEP64
	PasswordWEP128
	PasswordWPA2
	PasswordWPAText
)

type RadioMode int

const (
	RadioIdle RadioMode = iota
	RadioStation
	RadioIBSS
	RadioMiniAP
)

type SecurityMode int

const (
	SecurityNone SecurityMode = iota
	SecurityWEP
	SecurityWPA2Personal
)

// WEP keys are entered as text of at most this many characters.
const (
	maxWEP64Key  = 5
	maxWEP128Key = 13
)

// ConnectWiFi stores the network settings on the module and restarts it so
// it joins the network. Boot indications that follow are drained by the
// worker.
func (m *Modem) ConnectWiFi(ctx context.Context, network, password string, ptype PasswordType, radio RadioMode, security SecurityMode) error {
	var credential string
	switch ptype {
	case PasswordWEP64, PasswordWEP128:
		if err := checkWEPKey(ptype, password); err != nil {
			return err
		}
		credential = "wifi_wep_keys[0]," + ToHex(password)
	case PasswordWPA2:
		credential = "wifi_wpa_psk_raw," + password
	case PasswordWPAText:
		credential = "wifi_wpa_psk_text," + password
	case PasswordOpen:
		if security != SecurityNone {
			return fmt.Errorf("open network with security mode %d: %w", security, ErrUnsupportedSecurity)
		}
	default:
		return fmt.Errorf("password type %d: %w", ptype, ErrUnsupportedSecurity)
	}

	privMode, err := security.privMode()
	if err != nil {
		return err
	}
	if radio < RadioIdle || radio > RadioMiniAP {
		return fmt.Errorf("radio mode %d: %w", radio, ErrUnsupportedSecurity)
	}

	cmds := []string{
		at.CmdErase,
		at.CmdSSID + network,
		at.CmdSetValue + "wifi_mode," + strconv.Itoa(int(radio)),
		at.CmdSetValue + "wifi_priv_mode," + privMode,
	}
	if wepLen, ok := wepKeyLen(ptype); ok {
		cmds = append(cmds, at.CmdSetValue+"wifi_wep_key_lens,"+wepLen)
	}
	if credential != "" {
		cmds = append(cmds, at.CmdSetValue+credential)
	}
	cmds = append(cmds, at.CmdSaveConfig)

	return m.configureAndRestart(ctx, "wifi_connect", cmds)
}

// ConnectMiniAP turns the module into an access point. Only open and WEP
// networks are supported in this mode.
func (m *Modem) ConnectMiniAP(ctx context.Context, network string, ptype PasswordType, password string, security SecurityMode) error {
	switch ptype {
	case PasswordOpen, PasswordWEP64, PasswordWEP128:
	default:
		return fmt.Errorf("mini AP with password type %d: %w", ptype, ErrUnsupportedSecurity)
	}
	if security != SecurityNone && security != SecurityWEP {
		return fmt.Errorf("mini AP with security mode %d: %w", security, ErrUnsupportedSecurity)
	}
	if security == SecurityNone {
		password = ""
	}
	if err := checkWEPKey(ptype, password); err != nil {
		return err
	}

	privMode, _ := security.privMode()
	keyLen, _ := wepKeyLen(ptype)

	cmds := []string{
		at.CmdErase,
		at.CmdSSID + network,
		at.CmdSetValue + "wifi_wep_keys[0]," + ToHex(password),
		at.CmdSetValue + "wifi_wep_key_lens," + keyLen,
		at.CmdSetValue + "wifi_auth_type,0",
		at.CmdSetValue + "wifi_mode," + strconv.Itoa(int(RadioMiniAP)),
		at.CmdSetValue + "wifi_priv_mode," + privMode,
		at.CmdSaveConfig,
	}
	return m.configureAndRestart(ctx, "wifi_miniap", cmds)
}

// configureAndRestart runs cmds in order, stopping at the first failure, and
// then restarts the module without waiting for it to come back.
func (m *Modem) configureAndRestart(ctx context.Context, op string, cmds []string) error {
	return m.exclusive(op, func() error {
		for _, cmd := range cmds {
			if _, err := m.exec(ctx, cmd, nil); err != nil {
				return err
			}
		}
		return m.writeLine(at.CmdReset)
	})
}

func (s SecurityMode) privMode() (string, error) {
	switch s {
	case SecurityNone, SecurityWEP, SecurityWPA2Personal:
		return strconv.Itoa(int(s)), nil
	default:
		return "", fmt.Errorf("security mode %d: %w", s, ErrUnsupportedSecurity)
	}
}

func wepKeyLen(ptype PasswordType) (string, bool) {
	switch ptype {
	case PasswordWEP64:
		return "05", true
	case PasswordWEP128:
		return "0D", true
	default:
		return "", false
	}
}

func checkWEPKey(ptype PasswordType, key string) error {
	if ptype == PasswordWEP64 && len(key) > maxWEP64Key || ptype == PasswordWEP128 && len(key) > maxWEP128Key {
		return fmt.Errorf("WEP key of %d characters: %w", len(key), ErrUnsupportedSecurity)
	}
	return nil
}

// ToHex encodes s as upper case hexadecimal, the form the module expects for
// WEP keys.
func ToHex(s string) string {
	return strings.ToUpper(hex.EncodeToString([]byte(s)))
}

// Test sends the attention command and waits for the success status.
func (m *Modem) Test(ctx context.Context) error {
	_, err := m.Exec(ctx, at.CmdTest)
	return err
}

// Erase restores the factory configuration.
func (m *Modem) Erase(ctx context.Context) error {
	_, err := m.Exec(ctx, at.CmdErase)
	return err
}

// Reset restarts the module firmware. The reply is left to the worker since
// the module reboots right away.
func (m *Modem) Reset(ctx context.Context) error {
	_, err := m.SendATCommand(ctx, at.CmdReset, "", WaitForever)
	return err
}

func (m *Modem) WiFiOn(ctx context.Context) error {
	_, err := m.Exec(ctx, at.CmdWiFi+"1")
	return err
}

func (m *Modem) WiFiOff(ctx context.Context) error {
	_, err := m.Exec(ctx, at.CmdWiFi+"0")
	return err
}

// Ping sends ICMP echo requests to host and returns the module's report.
func (m *Modem) Ping(ctx context.Context, host string) ([]string, error) {
	return m.Exec(ctx, at.CmdPing+host)
}

// Status returns the module status variables.
func (m *Modem) Status(ctx context.Context) ([]string, error) {
	return m.Exec(ctx, at.CmdStatus)
}

// ScanNetworks lists the networks in range.
func (m *Modem) ScanNetworks(ctx context.Context) ([]string, error) {
	return m.Exec(ctx, at.CmdScan)
}

func (m *Modem) ConfigDump(ctx context.Context) ([]string, error) {
	return m.Exec(ctx, at.CmdConfigDump)
}

func (m *Modem) FileList(ctx context.Context) ([]string, error) {
	return m.Exec(ctx, at.CmdFileList)
}

func (m *Modem) FileContent(ctx context.Context, path string) ([]string, error) {
	return m.Exec(ctx, at.CmdFileContent+path)
}

func (m *Modem) Help(ctx context.Context) ([]string, error) {
	return m.Exec(ctx, at.CmdHelp)
}

// FirmwareUpdate downloads a firmware image from host and flashes it.
func (m *Modem) FirmwareUpdate(ctx context.Context, host, path string, port int) error {
	_, err := m.Exec(ctx, fmt.Sprintf("%s%s,%s,%d", at.CmdFirmwareUpdate, host, path, port))
	return err
}

// EnableHandshaking turns on RTS/CTS flow control on the module console and
// restarts the module.
func (m *Modem) EnableHandshaking(ctx context.Context) error {
	return m.configureAndRestart(ctx, "enable_handshaking", []string{
		at.CmdSetValue + "console1_hwfc,1",
		at.CmdSaveConfig,
	})
}

// DisableEcho stops the module from echoing commands.
func (m *Modem) DisableEcho(ctx context.Context) error {
	return m.exclusive("disable_echo", func() error {
		if _, err := m.exec(ctx, at.CmdSetValue+"console_echo,0", nil); err != nil {
			return err
		}
		_, err := m.exec(ctx, at.CmdWriteConfig, nil)
		return err
	})
}
