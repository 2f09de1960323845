// SPDX-License-Identifier: GPL-2.0-or-later

// Package storage owns the environment configuration and the capture
// artifact directory.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// Defaults matching the device this tool was written for.
const (
	defaultVendorID      = 0x0329
	defaultProductID     = 0x2022
	defaultInterface     = 1
	defaultAltSetting    = 1
	defaultEndpointIn    = 0x81
	defaultEndpointOut   = 0x01
	defaultMaxPacketSize = 512
	defaultCaptureMs     = 100
)

// Artifact file names. The raw capture name is part of the convert-only
// contract, a previous run's capture is re-read from the same path.
const (
	rawCaptureFile    = "image_data.raw"
	extractedJpegFile = "extracted_frame.jpg"
	decodedPNGFile    = "output.png"
	logDBFile         = "logs.db"
)

// ConfigEnv stores the environment configuration.
type ConfigEnv struct {
	VendorID      uint16 `yaml:"vendorId"`
	ProductID     uint16 `yaml:"productId"`
	Interface     uint8  `yaml:"interface"`
	AltSetting    uint8  `yaml:"altSetting"`
	EndpointIn    uint8  `yaml:"endpointIn"`
	EndpointOut   uint8  `yaml:"endpointOut"`
	MaxPacketSize int    `yaml:"maxPacketSize"`
	CaptureMs     int    `yaml:"captureMs"`

	StorageDir string `yaml:"storageDir"`
	ConfigDir  string
}

// ErrPathNotAbsolute path is not absolute.
var ErrPathNotAbsolute = errors.New("path is not absolute")

// NewConfigEnv return new environment configuration.
func NewConfigEnv(envPath string, envYAML []byte) (*ConfigEnv, error) {
	var env ConfigEnv

	if err := yaml.Unmarshal(envYAML, &env); err != nil {
		return nil, fmt.Errorf("unmarshal env.yaml: %w", err)
	}

	env.ConfigDir = filepath.Dir(envPath)

	if env.VendorID == 0 {
		env.VendorID = defaultVendorID
	}
	if env.ProductID == 0 {
		env.ProductID = defaultProductID
	}
	if env.Interface == 0 {
		env.Interface = defaultInterface
	}
	if env.AltSetting == 0 {
		env.AltSetting = defaultAltSetting
	}
	if env.EndpointIn == 0 {
		env.EndpointIn = defaultEndpointIn
	}
	if env.EndpointOut == 0 {
		env.EndpointOut = defaultEndpointOut
	}
	if env.MaxPacketSize == 0 {
		env.MaxPacketSize = defaultMaxPacketSize
	}
	if env.CaptureMs == 0 {
		env.CaptureMs = defaultCaptureMs
	}
	if env.StorageDir == "" {
		env.StorageDir = filepath.Join(env.ConfigDir, "storage")
	}

	if !filepath.IsAbs(env.StorageDir) {
		return nil, fmt.Errorf("storageDir '%v': %w", env.StorageDir, ErrPathNotAbsolute)
	}

	return &env, nil
}

// CaptureDuration wall-clock bound on the bulk read loop.
func (env ConfigEnv) CaptureDuration() time.Duration {
	return time.Duration(env.CaptureMs) * time.Millisecond
}

// RawCapturePath path of the persisted raw capture buffer.
func (env ConfigEnv) RawCapturePath() string {
	return filepath.Join(env.StorageDir, rawCaptureFile)
}

// ExtractedFramePath path of the persisted sanitized JPEG frame.
func (env ConfigEnv) ExtractedFramePath() string {
	return filepath.Join(env.StorageDir, extractedJpegFile)
}

// DecodedImagePath path of the persisted decoded PNG image.
func (env ConfigEnv) DecodedImagePath() string {
	return filepath.Join(env.StorageDir, decodedPNGFile)
}

// LogDBPath path of the log database.
func (env ConfigEnv) LogDBPath() string {
	return filepath.Join(env.StorageDir, logDBFile)
}

// PrepareEnvironment creates the storage directory.
func (env ConfigEnv) PrepareEnvironment() error {
	err := os.MkdirAll(env.StorageDir, 0o700)
	if err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create storage directory: %v: %w", env.StorageDir, err)
	}
	return nil
}

// Manager storage manager.
type Manager struct {
	storageDir   string
	storageDirFS fs.FS
}

// NewManager returns new manager.
func NewManager(storageDir string) *Manager {
	return &Manager{
		storageDir:   storageDir,
		storageDirFS: os.DirFS(storageDir),
	}
}

// SaveRawCapture persists the raw capture buffer so a later convert-only
// run can re-process it.
func (s *Manager) SaveRawCapture(path string, raw []byte) error {
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write raw capture: %w", err)
	}
	return nil
}

// ReadRawCapture reads a previously saved raw capture buffer.
func (s *Manager) ReadRawCapture(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read raw capture: %w", err)
	}
	return raw, nil
}

// SaveFrame persists the sanitized frame for external verification.
// Callers treat failure as a diagnostic, never as a pipeline error.
func (s *Manager) SaveFrame(path string, f []byte) error {
	if err := os.WriteFile(path, f, 0o600); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// DiskUsage returns the storage directory usage in bytes.
func (s *Manager) DiskUsage() DiskUsage {
	used := diskUsageBytes(s.storageDirFS)
	return DiskUsage{
		Used:      used,
		Formatted: formatDiskUsage(float64(used)),
	}
}

// DiskUsage in Bytes.
type DiskUsage struct {
	Used      int64
	Formatted string
}

const (
	kilobyte float64 = 1000
	megabyte         = kilobyte * 1000
	gigabyte         = megabyte * 1000
	terabyte         = gigabyte * 1000
)

func formatDiskUsage(used float64) string {
	switch {
	case used < 1000*kilobyte:
		return fmt.Sprintf("%.0fkB", used/kilobyte)
	case used < 1000*megabyte:
		return fmt.Sprintf("%.0fMB", used/megabyte)
	case used < 10*gigabyte:
		return fmt.Sprintf("%.2fGB", used/gigabyte)
	case used < 100*gigabyte:
		return fmt.Sprintf("%.1fGB", used/gigabyte)
	case used < 1000*gigabyte:
		return fmt.Sprintf("%.0fGB", used/gigabyte)
	default:
		return fmt.Sprintf("%.2fTB", used/terabyte)
	}
}

func diskUsageBytes(fileSystem fs.FS) int64 {
	var used int64
	fs.WalkDir(fileSystem, ".", func(_ string, d fs.DirEntry, err error) error { //nolint:errcheck
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		used += info.Size()

		return nil
	})
	return used
}
