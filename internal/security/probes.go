package security

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"
)

const probeTimeout = 5 * time.Second

// virtualPrefixes name adapters that come and go with software, not hardware.
var virtualPrefixes = []string{"docker", "veth", "br-", "virbr", "vmnet", "vbox", "tun", "tap", "wg", "utun", "zt", "lo"}

// placeholderSerials are values firmware reports when no serial was burned in.
var placeholderSerials = map[string]bool{
	"":                       true,
	"none":                   true,
	"default string":         true,
	"to be filled by o.e.m.": true,
	"not applicable":         true,
	"0":                      true,
}

// PlatformProbes returns the probes for the running operating system.
func PlatformProbes() Probes {
	probes := Probes{MAC: StableMACAddress}
	switch runtime.GOOS {
	case "linux":
		probes.CPU = linuxCPUID
		probes.Board = linuxBoardSerial
	case "windows":
		probes.CPU = func() (string, error) { return wmicValue("cpu", "ProcessorId") }
		probes.Board = func() (string, error) { return serialOrError(wmicValue("baseboard", "SerialNumber")) }
	case "darwin":
		probes.CPU = func() (string, error) { return runProbe("sysctl", "-n", "machdep.cpu.brand_string") }
		probes.Board = darwinPlatformSerial
	}
	return probes
}

// StableMACAddress returns the MAC of the first physical adapter by name.
// Interfaces that are down still count so unplugging a cable does not
// change the identity.
func StableMACAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}

	sort.Slice(interfaces, func(i, j int) bool { return interfaces[i].Name < interfaces[j].Name })

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || isVirtualAdapter(iface.Name) {
			continue
		}
		mac := iface.HardwareAddr.String()
		if len(iface.HardwareAddr) == 0 || mac == "00:00:00:00:00:00" {
			continue
		}
		if iface.HardwareAddr[0]&0x02 != 0 {
			// locally administered, usually randomised
			continue
		}
		return mac, nil
	}
	return "", errors.New("no physical network adapter found")
}

func isVirtualAdapter(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func linuxCPUID() (string, error) {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "", fmt.Errorf("read /proc/cpuinfo: %w", err)
	}
	return parseCPUInfo(data)
}

// parseCPUInfo extracts the identifying fields of the first processor.
func parseCPUInfo(data []byte) (string, error) {
	wanted := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" && len(wanted) > 0 {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		switch key {
		case "Serial", "vendor_id", "model name", "cpu family", "model", "stepping":
			wanted[key] = strings.TrimSpace(value)
		}
	}

	if serial := wanted["Serial"]; serial != "" && strings.Trim(serial, "0") != "" {
		return serial, nil
	}
	if wanted["model name"] == "" && wanted["vendor_id"] == "" {
		return "", errors.New("no processor identity in cpuinfo")
	}
	return strings.Join([]string{wanted["vendor_id"], wanted["model name"], wanted["cpu family"], wanted["model"], wanted["stepping"]}, "/"), nil
}

func linuxBoardSerial() (string, error) {
	for _, path := range []string{"/sys/class/dmi/id/board_serial", "/sys/class/dmi/id/product_uuid"} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if serial, err := serialOrError(string(data), nil); err == nil {
			return serial, nil
		}
	}
	return "", errors.New("board serial not readable")
}

func darwinPlatformSerial() (string, error) {
	out, err := runProbe("ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "IOPlatformSerialNumber") {
			continue
		}
		if _, value, ok := strings.Cut(line, "="); ok {
			return serialOrError(strings.Trim(strings.TrimSpace(value), `"`), nil)
		}
	}
	return "", errors.New("platform serial not reported")
}

func wmicValue(class, property string) (string, error) {
	out, err := runProbe("wmic", class, "get", property, "/value")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		if key, value, ok := strings.Cut(strings.TrimSpace(line), "="); ok && strings.EqualFold(key, property) {
			return strings.TrimSpace(value), nil
		}
	}
	return "", fmt.Errorf("wmic %s %s: no value", class, property)
}

func serialOrError(serial string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	serial = strings.TrimSpace(serial)
	if placeholderSerials[strings.ToLower(serial)] {
		return "", fmt.Errorf("placeholder serial %q", serial)
	}
	return serial, nil
}

func runProbe(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}
