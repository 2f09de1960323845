// SPDX-License-Identifier: GPL-2.0-or-later

package usb

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"framegrab/pkg/log"

	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	driverActive bool
	detached     bool
	claimed      bool
	released     bool
	altSetting   uint8
	closed       bool

	commands [][]byte
	reads    []fakeRead

	claimErr error
}

type fakeRead struct {
	data []byte
	err  error
}

func (d *fakeDevice) KernelDriverActive(uint8) (bool, error) { return d.driverActive, nil }
func (d *fakeDevice) DetachKernelDriver(uint8) error         { d.detached = true; return nil }
func (d *fakeDevice) ReleaseInterface(uint8) error           { d.released = true; return nil }
func (d *fakeDevice) Close() error                           { d.closed = true; return nil }

func (d *fakeDevice) ClaimInterface(uint8) error {
	if d.claimErr != nil {
		return d.claimErr
	}
	d.claimed = true
	return nil
}

func (d *fakeDevice) SetAltSetting(_, altSetting uint8) error {
	d.altSetting = altSetting
	return nil
}

func (d *fakeDevice) BulkTransfer(
	endpoint uint8,
	data []byte,
	_ time.Duration,
) (int, error) {
	if endpoint == 0x01 {
		cmd := make([]byte, len(data))
		copy(cmd, data)
		d.commands = append(d.commands, cmd)
		return len(data), nil
	}

	if len(d.reads) == 0 {
		return 0, syscall.ETIMEDOUT
	}
	read := d.reads[0]
	d.reads = d.reads[1:]
	if read.err != nil {
		return 0, read.err
	}
	return copy(data, read.data), nil
}

func newTestCapturer(dev device) *Capturer {
	c := NewCapturer(Config{
		VendorID:      0x0329,
		ProductID:     0x2022,
		Interface:     1,
		AltSetting:    1,
		EndpointIn:    0x81,
		EndpointOut:   0x01,
		MaxPacketSize: 512,
		Duration:      10 * time.Millisecond,
	}, log.NewMockLogger())

	c.open = func(vid, pid uint16) (device, error) {
		return dev, nil
	}
	return c
}

func TestCapture(t *testing.T) {
	t.Run("working", func(t *testing.T) {
		dev := &fakeDevice{
			driverActive: true,
			reads: []fakeRead{
				{data: []byte{1, 2, 3}},
				{data: []byte{4, 5}},
			},
		}
		c := newTestCapturer(dev)

		raw, err := c.Capture(context.Background())
		require.NoError(t, err)
		require.Equal(t, []byte{1, 2, 3, 4, 5}, raw)

		require.True(t, dev.detached)
		require.True(t, dev.claimed)
		require.True(t, dev.released)
		require.True(t, dev.closed)
		require.Equal(t, uint8(1), dev.altSetting)

		// Start and end stream commands.
		require.Equal(t, [][]byte{
			{0xBB, 0xAA, 0x05, 0x00, 0x00},
			{0xBB, 0xAA, 0x06, 0x00, 0x00},
		}, dev.commands)
	})
	t.Run("noDetachWhenInactive", func(t *testing.T) {
		dev := &fakeDevice{}
		c := newTestCapturer(dev)

		_, err := c.Capture(context.Background())
		require.NoError(t, err)
		require.False(t, dev.detached)
	})
	t.Run("timeoutsIgnored", func(t *testing.T) {
		dev := &fakeDevice{
			reads: []fakeRead{
				{data: []byte{1}},
				{err: syscall.ETIMEDOUT},
				{data: []byte{2}},
			},
		}
		c := newTestCapturer(dev)

		raw, err := c.Capture(context.Background())
		require.NoError(t, err)
		require.Equal(t, []byte{1, 2}, raw)
	})
	t.Run("transferErrStopsLoop", func(t *testing.T) {
		dev := &fakeDevice{
			reads: []fakeRead{
				{data: []byte{1}},
				{err: errors.New("pipe error")},
				{data: []byte{2}},
			},
		}
		c := newTestCapturer(dev)
		c.cfg.Duration = time.Minute

		raw, err := c.Capture(context.Background())
		require.NoError(t, err)
		require.Equal(t, []byte{1}, raw)
	})
	t.Run("openErr", func(t *testing.T) {
		c := newTestCapturer(nil)
		c.open = func(vid, pid uint16) (device, error) {
			return nil, errors.New("no such device")
		}

		_, err := c.Capture(context.Background())
		require.Error(t, err)
	})
	t.Run("claimErr", func(t *testing.T) {
		dev := &fakeDevice{claimErr: errors.New("busy")}
		c := newTestCapturer(dev)

		_, err := c.Capture(context.Background())
		require.Error(t, err)
		require.True(t, dev.closed)
	})
	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		dev := &fakeDevice{
			reads: []fakeRead{{data: []byte{1}}},
		}
		c := newTestCapturer(dev)
		c.cfg.Duration = time.Minute

		raw, err := c.Capture(ctx)
		require.NoError(t, err)
		require.Empty(t, raw)
	})
}

func TestIsTimeout(t *testing.T) {
	require.True(t, isTimeout(syscall.ETIMEDOUT))
	require.False(t, isTimeout(errors.New("x")))
	require.False(t, isTimeout(syscall.EPIPE))
}
