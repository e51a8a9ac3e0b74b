package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/glebovdev/gapless/internal/cache"
	"github.com/glebovdev/gapless/internal/config"
	"github.com/glebovdev/gapless/internal/formats"
	"github.com/glebovdev/gapless/internal/output"
	"github.com/glebovdev/gapless/internal/player"
	"github.com/glebovdev/gapless/internal/service"
	"github.com/glebovdev/gapless/internal/track"
	"github.com/glebovdev/gapless/internal/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	versionFlag  = flag.Bool("version", false, "Show version information")
	debugFlag    = flag.Bool("debug", false, "Enable debug logging")
	headlessFlag = flag.Bool("headless", false, "Play the tracks in order without the terminal UI")
	autoplayFlag = flag.Bool("autoplay", false, "Start playing the first track right away")
	backendFlag  = flag.String("backend", "", "Audio output: speaker, oto or null (overrides the config file)")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", config.AppName, config.AppVersion, config.AppDescription)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [file or directory ...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "With no arguments the last played directory is opened.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()

		configPath, err := config.GetConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintf(os.Stderr, "\nConfig file: %s\n", configPath)
			} else {
				fmt.Fprintf(os.Stderr, "\nConfig file will be created on first use.\n")
			}
		}
	}
}

func setupLogging() {
	if !*debugFlag && !*headlessFlag {
		// Avoid TUI corruption by only logging errors to /dev/null
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
		if err == nil {
			log.Logger = log.Output(logFile)
		}
		return
	}

	if !*debugFlag {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
		return
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cacheDir, err := cache.GetCacheDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not get cache dir: %v\n", err)
		cacheDir = os.TempDir()
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
	}
	logPath := filepath.Join(cacheDir, "debug.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
		logFile = os.Stderr
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05"})
	fmt.Printf("Debug log: %s\n", logPath)
	log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)

	if configPath, err := config.GetConfigPath(); err == nil {
		log.Debug().Msgf("Config: %s", configPath)
	}
	log.Debug().Msgf("Cache: %s", cacheDir)
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppDescription)
		os.Exit(0)
	}

	setupLogging()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Using default config")
	}
	if *backendFlag != "" {
		cfg.Output.Backend = *backendFlag
	}

	out, err := output.New(cfg.Output.Backend, time.Duration(cfg.Output.BufferMillis)*time.Millisecond)
	if err != nil {
		return err
	}

	p, err := player.New(out, player.Options{
		RingBufferCapacity:  cfg.RingBuffer.Capacity,
		RingBufferChunkSize: cfg.RingBuffer.ChunkSize,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close player")
		}
	}()

	if err := p.SetPreGain(cfg.Output.PreGain); err != nil {
		log.Debug().Err(err).Msg("Failed to set pre-gain")
	}
	if err := p.SetVolume(float64(cfg.Volume) / 100); err != nil {
		log.Debug().Err(err).Msg("Failed to set volume")
	}

	registry := formats.NewRegistry()

	paths := flag.Args()
	if len(paths) == 0 && cfg.LastDir != "" {
		paths = []string{cfg.LastDir}
	}
	tracks, err := track.Scan(paths, registry.Extensions())
	if err != nil {
		return err
	}
	log.Debug().Int("tracks", len(tracks)).Msg("Scanned playlist")

	probeCache, err := cache.NewCache()
	if err != nil {
		log.Debug().Err(err).Msg("Track cache unavailable")
	}

	playlist := service.NewPlaylistService(p, registry, tracks, probeCache)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if *headlessFlag {
		return runHeadless(playlist, sigChan)
	}

	gaplessUI := ui.NewUI(p, playlist, cfg, *autoplayFlag)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, cleaning up...")
		gaplessUI.Shutdown()
	}()

	log.Debug().Msg("Starting UI...")
	if err := gaplessUI.Run(); err != nil {
		return fmt.Errorf("error running UI: %w", err)
	}

	log.Info().Msgf("%s stopped", config.AppName)
	return nil
}

// runHeadless plays the whole playlist once and returns when it ends or a
// signal arrives.
func runHeadless(playlist *service.PlaylistService, sigChan <-chan os.Signal) error {
	if playlist.TrackCount() == 0 {
		return ui.ErrNoTracks
	}

	ctx, cancel := context.WithTimeout(context.Background(), ui.ProbeTimeout)
	if err := playlist.Probe(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Debug().Err(err).Msg("Probe failed")
	}
	cancel()

	playlist.SetOnTrackChange(func(index int) {
		t := playlist.GetTrack(index)
		if t == nil {
			return
		}
		event := log.Info().Int("index", index).Str("track", t.DisplayName())
		if t.Duration > 0 {
			event = event.Str("length", track.FormatDuration(t.Duration))
		}
		event.Msg("Playing")
	})
	playlist.StartMonitor(service.DefaultMonitorInterval)
	defer playlist.StopMonitor()

	if err := playlist.QueueFrom(0); err != nil {
		return err
	}

	ticker := time.NewTicker(service.DefaultMonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			log.Info().Msg("Received shutdown signal, cleaning up...")
			return playlist.Stop()
		case <-ticker.C:
			if !playlist.IsActive() {
				log.Info().Msg("Playlist finished")
				return nil
			}
		}
	}
}
