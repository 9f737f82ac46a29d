package config

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// TransferInfo содержимое файла transfer.info:
// адрес ip:port, имя клиента и путь к файлу, по строке на каждое.
type TransferInfo struct {
	Host string
	Port int
	Name string
	File string
}

// LoadTransferInfo читает transfer.info.
func LoadTransferInfo(path string) (*TransferInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transfer info: %w", err)
	}
	return ParseTransferInfo(data)
}

// ParseTransferInfo разбирает содержимое transfer.info.
func ParseTransferInfo(data []byte) (*TransferInfo, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	var lines []string
	for sc.Scan() && len(lines) < 3 {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan transfer info: %w", err)
	}
	if len(lines) < 3 {
		return nil, fmt.Errorf("transfer info: expected address, name and file, got %d lines", len(lines))
	}

	host, portStr, err := net.SplitHostPort(lines[0])
	if err != nil {
		return nil, fmt.Errorf("transfer info address %q: %w", lines[0], err)
	}
	if err := validateHost(host); err != nil {
		return nil, fmt.Errorf("transfer info: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("transfer info port %q: %w", portStr, err)
	}
	if err := validatePort(port); err != nil {
		return nil, fmt.Errorf("transfer info: %w", err)
	}
	if err := validateName(lines[1]); err != nil {
		return nil, fmt.Errorf("transfer info: %w", err)
	}
	if lines[2] == "" {
		return nil, fmt.Errorf("transfer info: file path is empty")
	}

	return &TransferInfo{Host: host, Port: port, Name: lines[1], File: lines[2]}, nil
}

// Apply переносит значения transfer.info в конфигурацию.
func (t *TransferInfo) Apply(cfg *Config) {
	cfg.Server.Host = t.Host
	cfg.Server.Port = t.Port
	cfg.Client.Name = t.Name
	cfg.Client.File = t.File
}
