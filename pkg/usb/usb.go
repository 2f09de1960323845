// SPDX-License-Identifier: GPL-2.0-or-later

// Package usb acquires a raw capture burst from the camera over a bulk
// endpoint.
package usb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"framegrab/pkg/log"

	gousb "github.com/kevmo314/go-usb"
)

// Config device wiring, taken from the environment configuration.
type Config struct {
	VendorID      uint16
	ProductID     uint16
	Interface     uint8
	AltSetting    uint8
	EndpointIn    uint8
	EndpointOut   uint8
	MaxPacketSize int
	Duration      time.Duration
}

// Stream control commands sent on the OUT endpoint.
var (
	startStreamCmd = []byte{0xBB, 0xAA, 0x05, 0x00, 0x00}
	endStreamCmd   = []byte{0xBB, 0xAA, 0x06, 0x00, 0x00}
)

const transferTimeout = 1 * time.Second

// device is the subset of the usb device handle the capturer uses.
type device interface {
	KernelDriverActive(iface uint8) (bool, error)
	DetachKernelDriver(iface uint8) error
	ClaimInterface(iface uint8) error
	ReleaseInterface(iface uint8) error
	SetAltSetting(iface, altSetting uint8) error
	BulkTransfer(endpoint uint8, data []byte, timeout time.Duration) (int, error)
	Close() error
}

type openFunc func(vid, pid uint16) (device, error)

// Capturer reads one bounded burst of bulk data from the device.
type Capturer struct {
	cfg    Config
	logger *log.Logger

	open openFunc
}

// NewCapturer returns new Capturer.
func NewCapturer(cfg Config, logger *log.Logger) *Capturer {
	return &Capturer{
		cfg:    cfg,
		logger: logger,

		open: func(vid, pid uint16) (device, error) {
			return gousb.OpenDevice(vid, pid)
		},
	}
}

// Capture configures the device, starts the stream and reads bulk
// transfers until the configured duration has elapsed. The result is a
// single finite buffer, the capturer never hands out partial state.
func (c *Capturer) Capture(ctx context.Context) ([]byte, error) {
	dev, err := c.open(c.cfg.VendorID, c.cfg.ProductID)
	if err != nil {
		return nil, fmt.Errorf("open device %04x:%04x: %w",
			c.cfg.VendorID, c.cfg.ProductID, err)
	}
	defer dev.Close()

	active, err := dev.KernelDriverActive(c.cfg.Interface)
	if err == nil && active {
		if err := dev.DetachKernelDriver(c.cfg.Interface); err != nil {
			return nil, fmt.Errorf("detach kernel driver: %w", err)
		}
	}

	if err := dev.ClaimInterface(c.cfg.Interface); err != nil {
		return nil, fmt.Errorf("claim interface %v: %w", c.cfg.Interface, err)
	}
	defer dev.ReleaseInterface(c.cfg.Interface) //nolint:errcheck

	if err := dev.SetAltSetting(c.cfg.Interface, c.cfg.AltSetting); err != nil {
		return nil, fmt.Errorf("set alternate setting %v: %w", c.cfg.AltSetting, err)
	}
	c.logger.Info().Src("capture").Msg("device configured")

	c.sendCommand(dev, startStreamCmd, "start")

	raw := c.readLoop(ctx, dev)

	c.sendCommand(dev, endStreamCmd, "end")

	c.logger.Info().Src("capture").Msgf("captured %v bytes", len(raw))
	return raw, nil
}

// sendCommand writes a stream control command to the OUT endpoint.
// The device streams regardless on some firmware revisions, failure is a
// warning.
func (c *Capturer) sendCommand(dev device, cmd []byte, name string) {
	n, err := dev.BulkTransfer(c.cfg.EndpointOut, cmd, transferTimeout)
	if err != nil || n != len(cmd) {
		c.logger.Warn().Src("capture").
			Msgf("could not send %v stream command: %v", name, err)
	}
}

func (c *Capturer) readLoop(ctx context.Context, dev device) []byte {
	var raw []byte
	buf := make([]byte, c.cfg.MaxPacketSize)

	start := time.Now()
	c.logger.Info().Src("capture").
		Msgf("capturing for %v", c.cfg.Duration)

	for {
		if ctx.Err() != nil {
			break
		}

		n, err := dev.BulkTransfer(c.cfg.EndpointIn, buf, transferTimeout)
		if err == nil && n > 0 {
			raw = append(raw, buf[:n]...)
		} else if err != nil && !isTimeout(err) {
			c.logger.Warn().Src("capture").
				Msgf("bulk endpoint read: %v", err)
			break
		}

		if time.Since(start) >= c.cfg.Duration {
			break
		}
	}
	return raw
}

// A timed out transfer just means the device had nothing to send yet.
func isTimeout(err error) bool {
	if os.IsTimeout(err) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ETIMEDOUT
	}
	return false
}
