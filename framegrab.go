// SPDX-License-Identifier: GPL-2.0-or-later

package framegrab

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"framegrab/pkg/decode"
	"framegrab/pkg/frame"
	"framegrab/pkg/log"
	"framegrab/pkg/storage"
	"framegrab/pkg/system"
	"framegrab/pkg/usb"
)

// Run .
func Run() error {
	envFlag := flag.String("env", "", "path to env.yaml")
	convertOnly := flag.Bool("convert-only", false,
		"skip capture, convert a previous run's raw capture")
	writePNG := flag.Bool("png", false, "write the decoded image as PNG")
	flag.Parse()

	if *envFlag == "" {
		flag.Usage()
		return nil
	}

	envPath, err := filepath.Abs(*envFlag)
	if err != nil {
		return fmt.Errorf("could not get absolute path of env.yaml: %w", err)
	}

	wg := &sync.WaitGroup{}
	app, err := newApp(envPath, wg, *convertOnly, *writePNG)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- app.run(ctx) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-done:
	case signal := <-stop:
		app.Logger.Info().Msg("") // New line.
		app.Logger.Info().Src("app").Msgf("received %v, stopping", signal)
	}

	if err != nil {
		app.Logger.Error().Src("app").Msgf("fatal error: %v", err)
	}

	cancel()
	wg.Wait()
	return err
}

func newApp(envPath string, wg *sync.WaitGroup, convertOnly, writePNG bool) (*App, error) {
	// Environment config.
	envYAML, err := os.ReadFile(envPath)
	if err != nil {
		return nil, fmt.Errorf("could not read env.yaml: %w", err)
	}

	env, err := storage.NewConfigEnv(envPath, envYAML)
	if err != nil {
		return nil, fmt.Errorf("could not get environment config: %w", err)
	}

	// Logs.
	logger := log.NewLogger(wg)
	logDB := log.NewDB(env.LogDBPath(), wg)

	// Storage.
	storageManager := storage.NewManager(env.StorageDir)

	// System status.
	sys := system.New(storageManager.DiskUsage, logger)

	// Acquisition.
	capturer := usb.NewCapturer(usb.Config{
		VendorID:      env.VendorID,
		ProductID:     env.ProductID,
		Interface:     env.Interface,
		AltSetting:    env.AltSetting,
		EndpointIn:    env.EndpointIn,
		EndpointOut:   env.EndpointOut,
		MaxPacketSize: env.MaxPacketSize,
		Duration:      env.CaptureDuration(),
	}, logger)

	return &App{
		WG:          wg,
		Logger:      logger,
		logDB:       logDB,
		Env:         *env,
		Storage:     storageManager,
		System:      sys,
		Capturer:    capturer,
		Decoder:     decode.NewDecoder(),
		convertOnly: convertOnly,
		writePNG:    writePNG,
	}, nil
}

// App is the main application struct.
type App struct {
	WG       *sync.WaitGroup
	Logger   *log.Logger
	logDB    *log.DB
	Env      storage.ConfigEnv
	Storage  *storage.Manager
	System   *system.System
	Capturer *usb.Capturer
	Decoder  *decode.Decoder

	convertOnly bool
	writePNG    bool
}

func (app *App) run(ctx context.Context) error {
	app.Logger.Start(ctx)
	go app.Logger.LogToStdout(ctx)

	if err := app.logDB.Init(ctx); err != nil {
		// Continue even if log database is corrupt.
		time.Sleep(10 * time.Millisecond)
		app.Logger.Error().Src("app").Msgf("could not initialize log database: %v", err)
	} else {
		go app.logDB.SaveLogs(ctx, app.Logger)
		time.Sleep(10 * time.Millisecond)
	}

	app.Logger.Info().Src("app").Msg("Starting..")

	if err := app.Env.PrepareEnvironment(); err != nil {
		return fmt.Errorf("could not prepare environment: %w", err)
	}

	app.System.Report(ctx)

	raw, err := app.acquire(ctx)
	if err != nil {
		return err
	}

	img, err := app.Convert(raw)
	if err != nil {
		return err
	}

	app.Logger.Info().Src("app").Msgf(
		"decoded frame: %vx%v with %v channels",
		img.Width, img.Height, img.Channels)

	if app.writePNG {
		if err := app.savePNG(img); err != nil {
			return err
		}
	}

	// Give the log saver a chance to drain before shutdown.
	time.Sleep(10 * time.Millisecond)
	return nil
}

// acquire returns the raw capture, either from the device or, in
// convert-only mode, from the previous run's artifact on disk.
func (app *App) acquire(ctx context.Context) ([]byte, error) {
	if app.convertOnly {
		raw, err := app.Storage.ReadRawCapture(app.Env.RawCapturePath())
		if err != nil {
			return nil, fmt.Errorf("could not read raw capture: %w", err)
		}
		app.Logger.Info().Src("app").
			Msgf("loaded raw capture: %v bytes", len(raw))
		return raw, nil
	}

	raw, err := app.Capturer.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not capture: %w", err)
	}

	// The raw artifact is a convenience for convert-only reruns, losing it
	// does not invalidate the capture we already hold in memory.
	if err := app.Storage.SaveRawCapture(app.Env.RawCapturePath(), raw); err != nil {
		app.Logger.Warn().Src("storage").
			Msgf("could not save raw capture: %v", err)
	}
	return raw, nil
}

// Convert runs the raw capture through the full demultiplex, extract and
// decode pipeline. Intermediate artifacts are written best-effort.
func (app *App) Convert(raw []byte) (*decode.Image, error) {
	payload, truncated := frame.Demultiplex(raw)
	if truncated {
		app.Logger.Warn().Src("frame").
			Msg("capture ends mid-header, trailing fragment discarded")
	}
	if len(payload) == 0 {
		return nil, frame.ErrNoPayload
	}
	app.Logger.Debug().Src("frame").
		Msgf("demultiplexed payload: %v bytes", len(payload))

	f, err := frame.Extract(payload)
	if err != nil {
		app.logMarkers(payload)
		return nil, err
	}

	if err := app.Storage.SaveFrame(app.Env.ExtractedFramePath(), f); err != nil {
		app.Logger.Warn().Src("storage").
			Msgf("could not save extracted frame: %v", err)
	}

	app.logSegments(f)

	img, err := app.Decoder.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// logMarkers reports marker positions when extraction fails, the offsets
// tell a misbehaving device apart from a botched capture.
func (app *App) logMarkers(payload []byte) {
	soi, eoi := frame.ScanMarkers(payload)
	app.Logger.Debug().Src("frame").
		Msgf("markers in payload: %v SOI %v EOI", len(soi), len(eoi))
}

func (app *App) logSegments(f []byte) {
	segments, err := frame.WalkSegments(f)
	if err != nil {
		app.Logger.Debug().Src("frame").
			Msgf("could not walk segments: %v", err)
		return
	}
	for _, seg := range segments {
		app.Logger.Debug().Src("frame").Msgf(
			"segment FF%02X at %v length %v",
			seg.Marker, seg.Offset, seg.Length)
	}
}

func (app *App) savePNG(img *decode.Image) error {
	file, err := os.OpenFile(
		app.Env.DecodedImagePath(),
		os.O_WRONLY|os.O_CREATE|os.O_TRUNC,
		0o600,
	)
	if err != nil {
		return fmt.Errorf("could not create png: %w", err)
	}

	if err := img.WritePNG(file); err != nil {
		file.Close()
		return errors.Join(err, os.Remove(file.Name()))
	}
	return file.Close()
}
