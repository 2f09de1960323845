// SPDX-License-Identifier: GPL-2.0-or-later

// Package system reports host status before a capture run.
package system

import (
	"context"
	"fmt"
	"time"

	"framegrab/pkg/log"
	"framegrab/pkg/storage"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Status stores system status.
type Status struct {
	CPUUsage           int
	RAMUsage           int
	DiskUsageFormatted string
}

type (
	cpuFunc  func(context.Context, time.Duration, bool) ([]float64, error)
	ramFunc  func() (*mem.VirtualMemoryStat, error)
	diskFunc func() storage.DiskUsage
)

// System one-shot system status reporter.
type System struct {
	cpu  cpuFunc
	ram  ramFunc
	disk diskFunc

	logger *log.Logger
}

// New returns new System.
func New(disk diskFunc, logger *log.Logger) *System {
	return &System{
		cpu:  cpu.PercentWithContext,
		ram:  mem.VirtualMemory,
		disk: disk,

		logger: logger,
	}
}

const cpuSampleDuration = 100 * time.Millisecond

// Status samples cpu, ram and storage disk usage.
func (s *System) Status(ctx context.Context) (Status, error) {
	cpuUsage, err := s.cpu(ctx, cpuSampleDuration, false)
	if err != nil {
		return Status{}, fmt.Errorf("get cpu usage: %w", err)
	}

	ramUsage, err := s.ram()
	if err != nil {
		return Status{}, fmt.Errorf("get ram usage: %w", err)
	}

	return Status{
		CPUUsage:           int(cpuUsage[0]),
		RAMUsage:           int(ramUsage.UsedPercent),
		DiskUsageFormatted: s.disk().Formatted,
	}, nil
}

// Report logs the current status. Diagnostic only, failure to sample is a
// warning and never stops a run.
func (s *System) Report(ctx context.Context) {
	status, err := s.Status(ctx)
	if err != nil {
		s.logger.Warn().Src("app").Msgf("could not get system status: %v", err)
		return
	}

	s.logger.Info().Src("app").Msgf(
		"cpu: %v%% ram: %v%% storage: %v",
		status.CPUUsage, status.RAMUsage, status.DiskUsageFormatted)
}
