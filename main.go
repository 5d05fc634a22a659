// xtransmit drives the socket abstraction in xsocket through one of the
// mode pipelines in package pipeline: generate, receive, mreceive, route,
// forward, send, or filereceive, per spec §6's CLI surface. Subcommand
// dispatch, per-mode flags, and signal handling live here; everything else
// is delegated to connloop/pipeline/xsocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/srtkit/xtransmit/connevent"
	"github.com/srtkit/xtransmit/connloop"
	"github.com/srtkit/xtransmit/metricswriter"
	"github.com/srtkit/xtransmit/pipeline"
	"github.com/srtkit/xtransmit/scheduler"
	"github.com/srtkit/xtransmit/statswriter"
	"github.com/srtkit/xtransmit/xsocket"
)

// dialSchedulerOnce lazily starts the scheduler backing the one-shot group
// dial path in openOnce, so route/forward/send never spin up the worker
// goroutine unless a group endpoint is actually dialed outside connloop.Run
// (which keeps its own instance, scoped to a single Run call).
var (
	dialSchedulerOnce sync.Once
	dialScheduler     *scheduler.Scheduler
)

func getDialScheduler() *scheduler.Scheduler {
	dialSchedulerOnce.Do(func() { dialScheduler = scheduler.New() })
	return dialScheduler
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

// cancel is the shared force_break flag from spec §5's cancellation model:
// every pipeline, writer, dispatch, and scheduler-hosted wait observes it.
var cancel atomic.Bool

// interrupted additionally records whether the cancellation came from a
// signal rather than a normal exit path; main consults it to log a clean
// interrupted exit. Stopping reconnection on SIGINT/SIGTERM is done by
// cancel, not by this flag.
var interrupted atomic.Bool

func installSignalHandler() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		interrupted.Store(true)
		cancel.Store(true)
	}()
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	installSignalHandler()

	mode, args := os.Args[1], os.Args[2:]
	var err error
	switch mode {
	case "generate":
		err = runGenerate(args)
	case "receive":
		err = runReceive(args)
	case "mreceive":
		err = runMReceive(args)
	case "route":
		err = runRoute(args)
	case "forward":
		err = runForward(args)
	case "send":
		err = runSend(args)
	case "filereceive":
		err = runFileReceive(args)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Printf("xtransmit: %s: %v", mode, err)
		os.Exit(1)
	}
	if interrupted.Load() {
		log.Printf("xtransmit: %s: interrupted, exiting cleanly", mode)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: xtransmit <generate|receive|mreceive|route|forward|send|filereceive> [flags] url...")
}

// commonFlags bundles the ambient flags every subcommand accepts: a
// Prometheus export address (started once, per spec §10's ambient-stack
// rule), and the stats-writer sink/period/compress triple shared by every
// mode that can hold a long-lived connection.
type commonFlags struct {
	prom          *string
	statsFile     *string
	statsPeriod   *time.Duration
	statsCompress *bool
	reconnect     *bool
}

func addCommonFlags(fs *flag.FlagSet, reconnectDefault bool) *commonFlags {
	return &commonFlags{
		prom:          fs.String("prom", ":9090", "Prometheus metrics export address"),
		statsFile:     fs.String("statsfile", "", "stats CSV output path (empty disables the stats writer, except in mreceive, which then writes to the log)"),
		statsPeriod:   fs.Duration("statsperiod", 0, "stats emission period, 0 disables the stats writer"),
		statsCompress: fs.Bool("statscompress", false, "pipe the stats sink through zstd"),
		reconnect:     fs.Bool("reconnect", reconnectDefault, "reconnect after connection loss"),
	}
}

// startConnEvents starts a connevent.Server listening on path, if path is
// non-empty, and returns it plus a shutdown func; both are no-ops when path
// is empty.
func startConnEvents(path string) (*connevent.Server, func()) {
	if path == "" {
		return nil, func() {}
	}
	srv := connevent.New(path)
	rtx.Must(srv.Listen(), "could not listen for connection events on %q", path)
	ctx, cancelServe := context.WithCancel(context.Background())
	go func() {
		if err := srv.Serve(ctx); err != nil {
			log.Printf("connevent: serve: %v", err)
		}
	}()
	return srv, func() {
		cancelServe()
		srv.Wait()
		os.Remove(path)
	}
}

func startProm(addr string) func() {
	srv := prometheusx.MustStartPrometheus(addr)
	return func() { srv.Shutdown(context.Background()) } //nolint:errcheck
}

func parseArgs(fs *flag.FlagSet, args []string) []string {
	rtx.Must(fs.Parse(args), "could not parse flags")
	flagx.ArgsFromEnv(fs)
	return fs.Args()
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	common := addCommonFlags(fs, true)
	msgSize := fs.Int("msgsize", 1316, "message size in bytes")
	bitrate := fs.Float64("bitrate", 5_000_000, "target bitrate in bits/second; ignored when -csv is set")
	num := fs.Int64("num", 0, "number of messages to send; 0 or negative means unlimited")
	duration := fs.Duration("duration", 0, "stop after this long; 0 means unbounded")
	csvPath := fs.String("csv", "", "CSV pacer timeline file; overrides -bitrate")
	spin := fs.Bool("spin", false, "busy-poll the pacer instead of sleeping")
	metrics := fs.Bool("enable-metrics", false, "stamp a metrics header on every message")
	twoway := fs.Bool("twoway", false, "spawn a reader that discards the peer's echoed replies")
	connEvents := fs.String("connevents", "", "Unix-domain socket path to publish connection lifecycle events on; empty disables")

	urls := parseArgs(fs, args)
	if len(urls) == 0 {
		return fmt.Errorf("generate: at least one url is required")
	}
	stopProm := startProm(*common.prom)
	defer stopProm()
	events, stopEvents := startConnEvents(*connEvents)
	defer stopEvents()

	cfg := pipeline.GenerateConfig{
		MessageSize:    *msgSize,
		NumMessages:    *num,
		Duration:       *duration,
		Bitrate:        *bitrate,
		CSVPath:        *csvPath,
		Spin:           *spin,
		MetricsEnabled: *metrics,
		TwoWay:         *twoway,
	}
	return connloop.Run(urls, false, statsConfig(common, events), *common.reconnect, &cancel, pipeline.Generate(cfg))
}

func runReceive(args []string) error {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	common := addCommonFlags(fs, true)
	msgSize := fs.Int("msgsize", 1316, "message size in bytes")
	metrics := fs.Bool("enable-metrics", false, "decode and validate a metrics header on every message")
	metricsFile := fs.String("metricsfile", "", "metrics CSV output path (empty writes to log)")
	metricsPeriod := fs.Duration("metricsfreq", 0, "metrics emission period, 0 disables the metrics writer")
	metricsCompress := fs.Bool("metricscompress", false, "pipe the metrics sink through zstd")
	reply := fs.Bool("reply", false, "send a short acknowledgement after every message")
	connEvents := fs.String("connevents", "", "Unix-domain socket path to publish connection lifecycle events on; empty disables")

	urls := parseArgs(fs, args)
	if len(urls) == 0 {
		return fmt.Errorf("receive: at least one url is required")
	}
	stopProm := startProm(*common.prom)
	defer stopProm()
	events, stopEvents := startConnEvents(*connEvents)
	defer stopEvents()

	var mw *metricswriter.Writer
	if *metricsPeriod > 0 {
		var err error
		mw, err = metricswriter.New(*metricsPeriod, *metricsFile, *metricsCompress)
		if err != nil {
			return err
		}
		defer mw.Stop()
	}

	cfg := pipeline.ReceiveConfig{
		MessageSize:    *msgSize,
		MetricsEnabled: *metrics,
		MetricsWriter:  mw,
		Reply:          *reply,
	}
	return connloop.Run(urls, true, statsConfig(common, events), *common.reconnect, &cancel, pipeline.Receive(cfg))
}

func runMReceive(args []string) error {
	fs := flag.NewFlagSet("mreceive", flag.ExitOnError)
	common := addCommonFlags(fs, false)
	msgSize := fs.Int("msgsize", 1316, "message size in bytes")
	metrics := fs.Bool("enable-metrics", false, "decode and validate a metrics header on every message")
	metricsFile := fs.String("metricsfile", "", "metrics CSV output path (empty writes to log)")
	metricsPeriod := fs.Duration("metricsfreq", 0, "metrics emission period, 0 disables the metrics writer")
	metricsCompress := fs.Bool("metricscompress", false, "pipe the metrics sink through zstd")
	reply := fs.Bool("reply", false, "send a short acknowledgement after every message")
	acceptTimeout := fs.Duration("accepttimeout", 200*time.Millisecond, "poll interval for new source acceptance")

	urls := parseArgs(fs, args)
	if len(urls) != 1 {
		return fmt.Errorf("mreceive: exactly one listener url is required")
	}
	stopProm := startProm(*common.prom)
	defer stopProm()

	ep, err := xsocket.ParseEndpoint(urls[0], false)
	if err != nil {
		return err
	}
	listener, err := newListenerFor(ep)
	if err != nil {
		return err
	}
	defer listener.Close()

	var sw *statswriter.Writer
	if *common.statsPeriod > 0 {
		sw, err = statswriter.New(*common.statsPeriod, *common.statsFile, *common.statsCompress)
		if err != nil {
			return err
		}
		defer sw.Stop()
	}
	var mw *metricswriter.Writer
	if *metricsPeriod > 0 {
		mw, err = metricswriter.New(*metricsPeriod, *metricsFile, *metricsCompress)
		if err != nil {
			return err
		}
		defer mw.Stop()
	}

	cfg := pipeline.MReceiveConfig{
		MessageSize:    *msgSize,
		MetricsEnabled: *metrics,
		MetricsWriter:  mw,
		StatsWriter:    sw,
		Reply:          *reply,
		AcceptTimeout:  *acceptTimeout,
	}
	return pipeline.MReceive(listener, cfg, &cancel)
}

// runRoute drives the source side through connloop.Run (so the source gets
// the ordinary reconnect-with-backoff treatment and stats registration from
// spec §4.11), dialing or accepting the destination fresh, one-shot, inside
// the pipeline closure on every new source connection, per spec §4.12's
// "source + destination; pump bytes from source to destination" shape.
func runRoute(args []string) error {
	fs := flag.NewFlagSet("route", flag.ExitOnError)
	common := addCommonFlags(fs, true)
	bufSize := fs.Int("bufsize", 1316, "pump buffer size in bytes")
	bidir := fs.Bool("bidir", false, "pump in both directions")

	urls := parseArgs(fs, args)
	if len(urls) != 2 {
		return fmt.Errorf("route: exactly two urls (source, destination) are required")
	}
	stopProm := startProm(*common.prom)
	defer stopProm()

	dstURL := urls[1]
	rcfg := pipeline.RouteConfig{BufferSize: *bufSize, Bidir: *bidir}
	routePipeline := func(src xsocket.Socket, cancel *atomic.Bool) {
		dst, err := openOnce(dstURL, false, cancel)
		if err != nil {
			log.Printf("route: destination: %v", err)
			return
		}
		defer dst.Close()
		pipeline.Route(src, dst, rcfg, cancel)
	}
	return connloop.Run([]string{urls[0]}, false, statsConfig(common, nil), *common.reconnect, &cancel, routePipeline)
}

// runForward is route's bidirectional, full-delivery counterpart, driven
// the same way: the source side (a) reconnects through connloop.Run, and
// side b is opened fresh per forward pass. Forward's outer loop reconnects
// on ordinary connection loss unless -reconnect=false (it defaults to true
// here); the shared cancel flag (set on SIGINT/SIGTERM) stops it in either
// case, since connloop.Run refuses to loop once cancel is set.
func runForward(args []string) error {
	fs := flag.NewFlagSet("forward", flag.ExitOnError)
	common := addCommonFlags(fs, true)
	bufSize := fs.Int("bufsize", 1316, "pump buffer size in bytes")

	urls := parseArgs(fs, args)
	if len(urls) != 2 {
		return fmt.Errorf("forward: exactly two urls are required")
	}
	stopProm := startProm(*common.prom)
	defer stopProm()

	bURL := urls[1]
	fcfg := pipeline.RouteConfig{BufferSize: *bufSize}
	forwardPipeline := func(a xsocket.Socket, cancel *atomic.Bool) {
		b, err := openOnce(bURL, false, cancel)
		if err != nil {
			log.Printf("forward: side b: %v", err)
			return
		}
		defer b.Close()
		pipeline.Forward(a, b, fcfg, cancel)
	}
	return connloop.Run([]string{urls[0]}, false, statsConfig(common, nil), *common.reconnect, &cancel, forwardPipeline)
}

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	common := addCommonFlags(fs, false)
	msgSize := fs.Int("msgsize", 1456000, "message (segment) size in bytes")

	rest := parseArgs(fs, args)
	if len(rest) != 2 {
		return fmt.Errorf("send: url and path are required")
	}
	stopProm := startProm(*common.prom)
	defer stopProm()

	conn, err := openOnce(rest[0], true, &cancel)
	if err != nil {
		return err
	}
	defer conn.Close()

	return pipeline.FileSend(conn, pipeline.FileSendConfig{Root: rest[1], MessageSize: *msgSize}, &cancel)
}

func runFileReceive(args []string) error {
	fs := flag.NewFlagSet("filereceive", flag.ExitOnError)
	common := addCommonFlags(fs, false)
	msgSize := fs.Int("msgsize", 1456000, "message (segment) size in bytes")

	rest := parseArgs(fs, args)
	if len(rest) != 2 {
		return fmt.Errorf("filereceive: url and destination directory are required")
	}
	stopProm := startProm(*common.prom)
	defer stopProm()

	ep, err := xsocket.ParseEndpoint(rest[0], true)
	if err != nil {
		return err
	}
	listener, err := newListenerFor(ep)
	if err != nil {
		return err
	}
	defer listener.Close()

	conn, err := listener.Accept(-1)
	if err != nil {
		return err
	}
	defer conn.Close()

	return pipeline.FileReceive(conn, pipeline.FileReceiveConfig{Dest: rest[1], MessageSize: *msgSize}, &cancel)
}

func statsConfig(c *commonFlags, events *connevent.Server) connloop.StatsConfig {
	return connloop.StatsConfig{File: *c.statsFile, Period: *c.statsPeriod, Compress: *c.statsCompress, Events: events}
}

// newListenerFor opens a listening handle for a single endpoint descriptor,
// the non-reconnecting counterpart of connloop's retained-listener path,
// for modes (mreceive, filereceive) that own their own accept loop instead
// of handing it to connloop.Run.
func newListenerFor(ep xsocket.Endpoint) (xsocket.Listener, error) {
	if ep.GroupType != xsocket.GroupNone {
		return xsocket.NewGroupListener([]xsocket.Endpoint{ep})
	}
	return xsocket.NewReliableListener(ep)
}

// openOnce establishes a single connection for one URL without the
// reconnect-with-backoff loop connloop.Run drives, for pipelines (route,
// forward, send) that own exactly one connection for their entire run. In
// listener mode it polls Accept until cancel is set.
func openOnce(rawURL string, defaultBlocking bool, cancel *atomic.Bool) (xsocket.Socket, error) {
	ep, err := xsocket.ParseEndpoint(rawURL, defaultBlocking)
	if err != nil {
		return nil, err
	}
	if ep.Mode == xsocket.ModeListener {
		listener, err := newListenerFor(ep)
		if err != nil {
			return nil, err
		}
		for !cancel.Load() {
			sock, err := listener.Accept(200 * time.Millisecond)
			if err != nil {
				listener.Close()
				return nil, err
			}
			if sock != nil {
				listener.Close()
				return sock, nil
			}
		}
		listener.Close()
		return nil, fmt.Errorf("openOnce: cancelled before accept")
	}

	switch connloop.SelectKind([]xsocket.Endpoint{ep}) {
	case xsocket.ReliableGroup:
		return xsocket.DialGroup([]xsocket.Endpoint{ep}, getDialScheduler())
	case xsocket.UDP:
		return xsocket.NewUDP(ep)
	case xsocket.MUDP:
		return xsocket.NewMUDP(ep)
	default:
		return xsocket.DialReliable(ep)
	}
}
