package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go2tv.app/castads/adrelay"
	"go2tv.app/castads/castprotocol"
	"go2tv.app/castads/internal/config"
	"go2tv.app/castads/tracking"
)

var (
	version         string
	build           string
	targetPtr       = flag.String("t", "", "Chromecast address (host or host:port). Defaults to the configured device.")
	mediaArg        = flag.String("u", "", "Media URL to load. Without it castads only listens to the running session.")
	appArg          = flag.String("app", "", "Receiver application ID to launch. Defaults to the configured receiverAppID.")
	contentTypeArg  = flag.String("ct", "video/mp4", "Content type of the media URL.")
	titleArg        = flag.String("title", "", "Title shown by the receiver for the loaded media.")
	adTagArg        = flag.String("ad-tag", "", "Ad tag URL scheduled with the media.")
	adClientArg     = flag.String("ad-client", "vast", "Ad client the receiver uses (vast or googima).")
	adOffsetArg     = flag.String("ad-offset", "pre", "Ad break offset (pre, post, seconds, hh:mm:ss or percentage).")
	jsonPtr         = flag.Bool("json", false, "Print ad metadata as JSON.")
	fireTrackersPtr = flag.Bool("fire-trackers", false, "Ping companion creativeView trackers when ad metadata arrives.")
	openClickPtr    = flag.Bool("open-clickthrough", false, "Open the ad clickthrough URL in the default browser.")
	debugPtr        = flag.Bool("debug", false, "Write debug logs to stderr or the configured log file.")
	configArg       = flag.String("config", "", "Path to the settings file.")
	versionPtr      = flag.Bool("version", false, "Print version.")
)

func main() {
	flag.Parse()

	exit, err := checkflags()
	check(err)
	if exit {
		os.Exit(0)
	}

	conf, err := loadConfig(*configArg)
	check(err)

	opts := resolveOptions(conf)
	if opts.device == "" {
		check(errors.New("no device: pass -t or set \"device\" in the settings file"))
	}

	logOut, closeLog, err := logOutput(opts)
	check(err)
	defer closeLog()

	client, err := castprotocol.NewCastClient(opts.device, opts.appID)
	check(errors.Wrap(err, "cast client"))
	client.LogOutput = logOut
	client.Events().LogOutput = logOut

	relay := adrelay.NewRelay(adrelay.WithNamespaces(opts.namespaces...))
	relay.LogOutput = logOut

	pinger := tracking.NewPinger(opts.trackerRetries, opts.trackerRate)
	pinger.LogOutput = logOut

	printer := newAdPrinter(os.Stdout, opts, pinger)
	adrelay.SetDelegate(relay, printer)

	check(errors.Wrap(client.Connect(), "connect"))
	relay.Attach(client.Events())
	statusSub := client.Events().Subscribe(printer.OnStatus)

	if opts.mediaURL != "" {
		var ads *castprotocol.Advertising
		if opts.adTag != "" {
			ads = castprotocol.NewAdvertising(opts.adClient, opts.adTag, opts.adOffset)
		}
		check(errors.Wrap(client.Load(opts.mediaURL, opts.contentType, opts.title, 0, ads), "load"))
	} else if err := client.RequestStatus(); err != nil {
		fmt.Fprintf(os.Stderr, "Status request failed: %s\n", err)
	}

	fmt.Fprintf(os.Stderr, "Listening for ad events on %s, press Ctrl+C to exit.\n", client.Host())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	statusSub.Cancel()
	_ = relay.Close()
	_ = client.Close(false)
	runtime.KeepAlive(printer)
}

func check(err error) {
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Encountered error(s): %s\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		conf, err := config.Load(path)
		return conf, errors.Wrap(err, "loadConfig error")
	}
	conf, err := config.GetAppConfig()
	return conf, errors.Wrap(err, "loadConfig error")
}

func logOutput(opts options) (io.Writer, func(), error) {
	if !opts.debug {
		return io.Discard, func() {}, nil
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	if opts.logFile == "" {
		return zerolog.ConsoleWriter{Out: os.Stderr}, func() {}, nil
	}

	f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, nil, errors.Wrap(err, "logOutput error")
	}
	return f, func() { _ = f.Close() }, nil
}
