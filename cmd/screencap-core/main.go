package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tiroq/screencap/internal/channel"
	"github.com/tiroq/screencap/internal/config"
	"github.com/tiroq/screencap/internal/diaglog"
	"github.com/tiroq/screencap/internal/ipc"
	"github.com/tiroq/screencap/internal/pidfile"
	"github.com/tiroq/screencap/internal/platform"
)

const (
	logPrefix      = "[screencap-core]"
	channelPath    = "/ws"
	statusInterval = 5 * time.Second
)

var (
	// Version is set at build time via -ldflags "-X main.Version=..."
	Version = "dev"

	outLog *log.Logger
	errLog *log.Logger
)

func main() {
	// --export-diag: read the diagnostic log, write a bundle, exit.
	if len(os.Args) > 1 && os.Args[1] == "--export-diag" {
		diaglog.Version = Version
		path, n, err := diaglog.Export(diaglog.DefaultPath(), ".")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			if os.IsNotExist(err) {
				fmt.Fprintln(os.Stderr, "hint: run with SCREENCAP_DEBUG=true to enable logging")
				os.Exit(1)
			}
			os.Exit(2)
		}
		fmt.Printf("Wrote: %s (%d lines)\n", path, n)
		os.Exit(0)
	}

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in screencap-core: %v\n", r)
			if errLog != nil {
				errLog.Printf("PANIC: %v", r)
			}
			os.Exit(1)
		}
	}()

	if err := initLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(); err != nil {
		errLog.Printf("%v", err)
		os.Exit(1)
	}
}

func run() error {
	outLog.Println("===========================================")
	outLog.Println("Starting screencap-core v" + Version + "...")
	outLog.Printf("PID: %d", os.Getpid())
	outLog.Printf("Platform: %s (api level %d)", platform.Name(), platform.APILevel())
	outLog.Println("===========================================")

	pidFilePath := pidfile.PathFor("screencap-core")
	pf, err := pidfile.New(pidFilePath)
	if err != nil {
		errLog.Printf("If you're sure no other instance is running, remove: %s", pidFilePath)
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer func() {
		if err := pf.Remove(); err != nil {
			errLog.Printf("Warning: failed to remove PID file: %v", err)
		}
	}()
	outLog.Printf("[STARTUP] PID file created: %s", pf.Path())

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	outLog.Printf("[STARTUP] Config: component=%s listen=%s auto_start=%v", cfg.Component, cfg.ListenAddr, cfg.AutoStart)

	dl := diaglog.NewNoOp()
	if diaglog.IsDebugEnabled() {
		if l, err := diaglog.New(diaglog.DefaultPath()); err != nil {
			errLog.Printf("[STARTUP] Diagnostic log disabled: %v", err)
		} else {
			dl = l
			outLog.Printf("[STARTUP] Diagnostic log: %s", diaglog.DefaultPath())
		}
	}
	defer dl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := channel.NewServer(string(cfg.Component))
	server.SetLogger(dl)
	sink := newEventCounter(server)

	comp, err := buildComponent(ctx, cfg, sink, dl)
	if err != nil {
		return err
	}
	server.SetMethodCallHandler(comp)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}
	mux := http.NewServeMux()
	mux.Handle(channelPath, server)
	httpServer := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(ln)
	}()
	outLog.Printf("[STARTUP] Channel %q listening on ws://%s%s", channel.Name, ln.Addr(), channelPath)

	st := &statusWriter{
		dir:        ipc.StatusDir(),
		cfg:        cfg,
		comp:       comp,
		server:     server,
		events:     sink,
		listenAddr: ln.Addr().String(),
	}

	if cfg.AutoStart {
		if err := comp.start(); err != nil {
			errLog.Printf("[STARTUP] Auto start failed: %v", err)
			st.lastErr = err.Error()
		} else {
			outLog.Println("[STARTUP] Detection started")
		}
	}
	st.write()

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	outLog.Println("[RUNNING] screencap-core is running")

	for {
		select {
		case <-ticker.C:
			st.write()

		case err := <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				comp.Detach()
				return fmt.Errorf("channel server stopped: %w", err)
			}
			return nil

		case sig := <-sigChan:
			outLog.Println("===========================================")
			outLog.Printf("[SHUTDOWN] Received %s", sig)

			comp.Detach()
			cancel()
			if err := server.Close(); err != nil {
				errLog.Printf("[SHUTDOWN] Channel close: %v", err)
			}
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				errLog.Printf("[SHUTDOWN] HTTP shutdown: %v", err)
			}
			done()
			if err := ipc.RemoveStatus(st.dir); err != nil {
				errLog.Printf("[SHUTDOWN] Failed to remove status file: %v", err)
			}

			outLog.Println("[SHUTDOWN] Shutting down gracefully")
			outLog.Println("===========================================")
			return nil
		}
	}
}

// initLogging writes to the console and to rotating files in the temp dir.
// Packages logging through the standard logger share the out stream.
func initLogging() error {
	logDir := os.TempDir()
	outLogPath := filepath.Join(logDir, "screencap-core.out.log")
	errLogPath := filepath.Join(logDir, "screencap-core.err.log")

	for _, p := range []string{outLogPath, errLogPath} {
		if err := rotateLogIfNeeded(p, 10*1024*1024); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to rotate %s: %v\n", p, err)
		}
	}

	outFile, err := os.OpenFile(outLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	errFile, err := os.OpenFile(errLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		outFile.Close()
		return err
	}

	outW := io.MultiWriter(os.Stdout, outFile)
	outLog = log.New(outW, logPrefix+" ", log.LstdFlags)
	errLog = log.New(io.MultiWriter(os.Stderr, errFile), logPrefix+" ERROR: ", log.LstdFlags)

	log.SetOutput(outW)
	log.SetPrefix(logPrefix + " ")
	return nil
}

// rotateLogIfNeeded moves logPath to logPath.old once it exceeds maxSize bytes.
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxSize {
		return nil
	}
	return os.Rename(logPath, logPath+".old")
}
