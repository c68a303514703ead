package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/domino14/bjsim/config"
	"github.com/domino14/bjsim/server"
	"github.com/domino14/bjsim/shell"
)

var (
	GitVersion string
)

//go:embed bjsim.txt
var bjsimbanner string

func main() {

	// Determine the directory of the executable. We will use this
	// directory to find the data files if an absolute path is not
	// provided for these!
	ex, err := os.Executable()
	if err != nil {
		panic(err)
	}
	exPath := filepath.Dir(ex)
	fmt.Println(bjsimbanner)
	fmt.Println(GitVersion)

	// a .env file next to the working directory may hold BJSIM_* settings.
	_ = godotenv.Load()

	cfg := config.DefaultConfig()
	if err := cfg.Load(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg.AdjustRelativePaths(exPath)

	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	output.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("%s", i)
	}
	output.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("%s:", i)
	}

	var logger zerolog.Logger
	if cfg.GetBool(config.ConfigDebug) {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		logger = zerolog.New(output).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		logger = zerolog.New(output).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	}
	zerolog.DefaultContextLogger = &logger
	log.Logger = logger
	logger.Debug().Msg("Debug logging is on")
	log.Info().Msgf("executable path: %v", exPath)
	log.Info().Msgf("Loaded config: %v", cfg.SanitizedSettings())

	if cfg.GetString(config.ConfigCPUProfile) != "" {
		f, err := os.Create(cfg.GetString(config.ConfigCPUProfile))
		if err != nil {
			panic("could not create CPU profile: " + err.Error())
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			panic("could not start CPU profile: " + err.Error())
		}
		defer pprof.StopCPUProfile()
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background()))
	defer cancel()

	idleConnsClosed := make(chan struct{})
	sig := make(chan os.Signal, 1)
	go func() {
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		// We received an interrupt signal, shut down.
		log.Info().Msg("got quit signal...")
		cancel()
		close(idleConnsClosed)
	}()

	sc, err := shell.NewShellController(cfg, exPath, GitVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("could-not-start-shell")
	}

	serverDone := make(chan struct{})
	if addr := cfg.GetString(config.ConfigHTTPAddr); addr != "" {
		go func() {
			defer close(serverDone)
			if err := server.Serve(ctx, addr, server.Router(sc, sc.Store())); err != nil {
				log.Err(err).Msg("http-server")
			}
		}()
	} else {
		close(serverDone)
	}

	argsLine := strings.TrimSpace(strings.Join(cfg.Args(), " "))
	if argsLine == "" && cfg.GetBool(config.ConfigBatch) {
		argsLine = "sim"
	}

	exitCode := 0
	if argsLine == "" {
		go sc.Loop(sig)
		log.Info().Msg("started loop")
	} else {
		if err := sc.Execute(ctx, argsLine); err != nil {
			log.Err(err).Str("command", argsLine).Msg("command-failed")
			exitCode = 1
		}
		sig <- syscall.SIGINT
	}

	<-idleConnsClosed
	<-serverDone

	if cfg.GetString(config.ConfigMemProfile) != "" {
		f, err := os.Create(cfg.GetString(config.ConfigMemProfile))
		if err != nil {
			panic("could not create memory profile: " + err.Error())
		}
		defer f.Close()
		memstats := &runtime.MemStats{}
		runtime.ReadMemStats(memstats)
		log.Info().Interface("memstats", memstats).Msg("memory-stats")

		if err := pprof.WriteHeapProfile(f); err != nil {
			panic("could not write memory profile: " + err.Error())
		}
		log.Info().Msg("wrote memory profile")
	}

	sc.Cleanup()
	log.Info().Msg("gracefully shutting down")
	if exitCode != 0 {
		pprof.StopCPUProfile()
		os.Exit(exitCode)
	}
}
