package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/tiroq/screencap/internal/channel"
	"github.com/tiroq/screencap/internal/config"
	"github.com/tiroq/screencap/internal/ipc"
)

type command struct {
	name        string
	description string
	run         func(ctx context.Context, a *app, args []string) error
}

type app struct {
	commands map[string]command
	stdout   io.Writer
	stderr   io.Writer

	url     string
	timeout time.Duration

	// dial is replaced in tests
	dial func(ctx context.Context, url string, onDisconnected func()) (*channel.Client, error)
}

func newApp(stdout, stderr io.Writer) *app {
	a := &app{
		commands: make(map[string]command),
		stdout:   stdout,
		stderr:   stderr,
		dial:     dialChannel,
	}
	for _, c := range []command{
		{"start", "Start screenshot detection", runStart},
		{"stop", "Stop screenshot detection", runStop},
		{"sdk-version", "Print the platform API level reported by the component", runSdkVersion},
		{"watch", "Start detection and print screenshot events until interrupted", runWatch},
		{"status", "Print the daemon status (-json for raw output)", runStatus},
		{"version", "Print the client version", runVersion},
	} {
		a.commands[c.name] = c
	}
	return a
}

func (a *app) execute(args []string) error {
	fs := flag.NewFlagSet("screencap-ctl", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = a.printHelp
	fs.StringVar(&a.url, "url", defaultURL(), "Channel endpoint of screencap-core")
	fs.DurationVar(&a.timeout, "timeout", channel.DefaultCallTimeout, "Per-call timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() == 0 {
		a.printHelp()
		return errors.New("no command given")
	}

	cmd, ok := a.commands[fs.Arg(0)]
	if !ok {
		a.printHelp()
		return fmt.Errorf("unknown command %q", fs.Arg(0))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cmd.run(ctx, a, fs.Args()[1:])
}

func (a *app) printHelp() {
	fmt.Fprintln(a.stderr, "usage: screencap-ctl [-url ws://host:port/ws] [-timeout 10s] <command>")
	fmt.Fprintln(a.stderr, "\ncommands:")
	names := make([]string, 0, len(a.commands))
	for name := range a.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(a.stderr, "  %-12s %s\n", name, a.commands[name].description)
	}
}

// defaultURL points at the listen address from the user config.
func defaultURL() string {
	addr := config.Default().ListenAddr
	if cfg, err := config.Load(); err == nil {
		addr = cfg.ListenAddr
	}
	return "ws://" + addr + "/ws"
}

func dialChannel(ctx context.Context, url string, onDisconnected func()) (*channel.Client, error) {
	c := channel.NewClient(url)
	if onDisconnected != nil {
		c.OnDisconnected(onDisconnected)
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (a *app) connect(ctx context.Context, onDisconnected func()) (*channel.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	c, err := a.dial(dialCtx, a.url, onDisconnected)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", a.url, err)
	}
	return c, nil
}

func (a *app) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.timeout)
}

func runStart(ctx context.Context, a *app, _ []string) error {
	c, err := a.connect(ctx, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	callCtx, cancel := a.callCtx(ctx)
	defer cancel()
	ok, err := c.StartDetection(callCtx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "startDetection: %v (%s)\n", ok, c.Hello().Component)
	return nil
}

func runStop(ctx context.Context, a *app, _ []string) error {
	c, err := a.connect(ctx, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	callCtx, cancel := a.callCtx(ctx)
	defer cancel()
	ok, err := c.StopDetection(callCtx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "stopDetection: %v\n", ok)
	return nil
}

func runSdkVersion(ctx context.Context, a *app, _ []string) error {
	c, err := a.connect(ctx, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	callCtx, cancel := a.callCtx(ctx)
	defer cancel()
	v, err := c.SdkVersion(callCtx)
	if errors.Is(err, channel.ErrNotImplemented) {
		fmt.Fprintf(a.stdout, "getSdkVersion: not implemented by %s\n", c.Hello().Component)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "getSdkVersion: %d\n", v)
	return nil
}

// runWatch starts detection, prints events and stops detection on exit.
// With -keep detection stays active after the client leaves.
func runWatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	keep := fs.Bool("keep", false, "Leave detection running on exit")
	asJSON := fs.Bool("json", false, "Print events as JSON lines")
	if err := fs.Parse(args); err != nil {
		return err
	}

	disconnected := make(chan struct{})
	var once sync.Once
	c, err := a.connect(ctx, func() {
		once.Do(func() { close(disconnected) })
	})
	if err != nil {
		return err
	}
	defer c.Close()

	c.OnScreenshotTaken(func(path string) {
		a.printEvent(*asJSON, path)
	})

	callCtx, cancel := a.callCtx(ctx)
	_, err = c.StartDetection(callCtx)
	cancel()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stderr, "watching %s (%s), Ctrl-C to quit\n", a.url, c.Hello().Component)

	select {
	case <-ctx.Done():
	case <-disconnected:
		return errors.New("screencap-core closed the channel")
	}

	if !*keep {
		stopCtx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if _, err := c.StopDetection(stopCtx); err != nil {
			return fmt.Errorf("stopDetection: %w", err)
		}
	}
	return nil
}

func (a *app) printEvent(asJSON bool, path string) {
	now := time.Now()
	if asJSON {
		line, _ := json.Marshal(struct {
			Method string    `json:"method"`
			Path   string    `json:"path,omitempty"`
			At     time.Time `json:"at"`
		}{channel.MethodOnScreenshotTaken, path, now})
		fmt.Fprintln(a.stdout, string(line))
		return
	}
	if path == "" {
		path = "(no path)"
	}
	fmt.Fprintf(a.stdout, "%s %s %s\n", now.Format(time.TimeOnly), channel.MethodOnScreenshotTaken, path)
}

func runStatus(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	asJSON := fs.Bool("json", false, "Print the raw status JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := ipc.ReadStatus()
	if os.IsNotExist(err) {
		return errors.New("screencap-core is not running")
	}
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	t := table.NewWriter()
	t.SetOutputMirror(a.stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"Component", st.Component},
		{"Platform", fmt.Sprintf("%s (api %d)", st.Platform, st.APILevel)},
		{"Listen", st.ListenAddr},
		{"PID", st.PID},
		{"Detection", activeLabel(st)},
		{"Activations", st.Activations},
		{"Hosts", st.Hosts},
		{"Events sent", st.EventsSent},
		{"Last event", timeLabel(st.LastEvent)},
		{"Updated", st.Timestamp.Format(time.RFC3339)},
	})
	if st.LastError != "" {
		t.AppendRow(table.Row{"Last error", st.LastError})
	}
	t.Render()
	return nil
}

func activeLabel(st *ipc.StatusSnapshot) string {
	if !st.Active {
		return "inactive"
	}
	if st.ActiveSince != nil {
		return "active for " + time.Since(*st.ActiveSince).Round(time.Second).String()
	}
	return "active"
}

func timeLabel(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func runVersion(_ context.Context, a *app, _ []string) error {
	_, err := fmt.Fprintf(a.stdout, "screencap-ctl %s (protocol %d)\n", Version, channel.ProtocolVersion)
	return err
}
