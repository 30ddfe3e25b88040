package castprotocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vishen/go-chromecast/application"
	"github.com/vishen/go-chromecast/cast"
)

const (
	defaultCastPort  = 8009
	loadAttempts     = 5
	wakeUpWait       = 4 * time.Second
	transportRetries = 8
)

// CastClient wraps go-chromecast Application and exposes the device's
// message stream as MediaEvents.
type CastClient struct {
	app         *application.Application
	conn        cast.Conn // keep reference to connection for custom commands
	mu          sync.RWMutex
	host        string
	port        int
	appID       string
	connected   bool
	events      *MediaEvents
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (c *CastClient) Log() *zerolog.Logger {
	if c.LogOutput != nil {
		c.initLogOnce.Do(func() {
			c.Logger = zerolog.New(c.LogOutput).With().Timestamp().Logger()
		})
	}
	return &c.Logger
}

// NewCastClient prepares a client for deviceAddr, "host", "host:port" or
// "tcp://host:port". appID is the receiver application Load launches, an
// empty appID selects the Default Media Receiver. Nothing is dialed until
// Connect.
func NewCastClient(deviceAddr, appID string) (*CastClient, error) {
	host, port, err := splitDeviceAddr(deviceAddr)
	if err != nil {
		return nil, err
	}

	if appID == "" {
		appID = DefaultMediaReceiverAppID
	}

	// Create our own connection that we can use for custom commands
	conn := cast.NewConnection()

	app := application.NewApplication(
		application.WithConnection(conn),
		application.WithConnectionRetries(5), // slow TVs need time to wake
	)

	events := NewMediaEvents()
	app.AddMessageFunc(events.HandleMessage)

	return &CastClient{
		app:    app,
		conn:   conn,
		host:   host,
		port:   port,
		appID:  appID,
		events: events,
	}, nil
}

func splitDeviceAddr(deviceAddr string) (string, int, error) {
	if deviceAddr == "" {
		return "", 0, fmt.Errorf("parse device addr: empty address")
	}

	raw := deviceAddr
	u, err := url.Parse(deviceAddr)
	if err != nil || u.Host == "" {
		u, err = url.Parse("tcp://" + raw)
		if err != nil {
			return "", 0, fmt.Errorf("parse device addr: %w", err)
		}
	}

	host := u.Hostname()
	if host == "" {
		return "", 0, fmt.Errorf("parse device addr: no host in %q", deviceAddr)
	}

	port := defaultCastPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("parse device addr port: %w", err)
		}
	}

	return host, port, nil
}

// Events returns the event source fed by this client's connection.
func (c *CastClient) Events() *MediaEvents {
	return c.events
}

// Connect establishes connection to the Chromecast device.
func (c *CastClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.app == nil {
		return fmt.Errorf("chromecast connect: app is nil")
	}

	c.Log().Debug().Str("Method", "Connect").Str("Host", c.host).Int("Port", c.port).Msg("connecting")
	if err := c.app.Start(c.host, c.port); err != nil {
		c.Log().Error().Str("Method", "Connect").Err(err).Msg("connection failed")
		return fmt.Errorf("chromecast connect: %w", err)
	}
	c.connected = true
	c.Log().Debug().Str("Method", "Connect").Msg("connected successfully")
	return nil
}

// isTimeoutError checks if an error is a timeout/deadline exceeded error.
// This typically happens when the TV needs to wake from sleep.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Load launches the client's receiver app and loads mediaURL on it. When
// ads is not nil the receiver is handed the ad schedule with the media.
func (c *CastClient) Load(mediaURL, contentType, title string, startTime int, ads *Advertising) error {
	c.Log().Debug().Str("Method", "Load").Str("App", c.appID).Str("URL", mediaURL).Str("ContentType", contentType).Int("StartTime", startTime).Bool("HasAds", ads != nil).Msg("loading media")

	if !c.IsConnected() {
		c.Log().Debug().Str("Method", "Load").Msg("connection closed, reconnecting")
		if err := c.Connect(); err != nil {
			return fmt.Errorf("reconnect before load: %w", err)
		}
	}

	var lastErr error
	for attempt := range loadAttempts {
		if !c.IsConnected() {
			c.Log().Debug().Str("Method", "Load").Msg("connection closed during load, aborting silently")
			return nil
		}

		err := c.loadOnce(mediaURL, contentType, title, startTime, ads)
		if err == nil {
			c.Log().Debug().Str("Method", "Load").Msg("load success")
			return nil
		}
		lastErr = err

		if !isTimeoutError(err) {
			c.Log().Error().Str("Method", "Load").Err(err).Msg("load failed")
			return err
		}

		c.Log().Debug().Str("Method", "Load").Int("Attempt", attempt).Err(err).Msg("timeout, TV may be waking up, retrying...")
		time.Sleep(wakeUpWait)
	}
	return lastErr
}

func (c *CastClient) loadOnce(mediaURL, contentType, title string, startTime int, ads *Advertising) error {
	if err := c.launch(c.conn); err != nil {
		return err
	}

	transportId, err := c.transportID()
	if err != nil {
		return err
	}

	return LoadMedia(c.conn, transportId, mediaURL, contentType, title, startTime, ads)
}

func (c *CastClient) launch(conn payloadSender) error {
	return LaunchReceiver(conn, c.ReceiverAppID())
}

// transportID polls the application state until the receiver reports a
// transport ID (handles "media receiver app not available").
func (c *CastClient) transportID() (string, error) {
	var lastErr error
	for i := range transportRetries {
		if err := c.app.Update(); err != nil {
			lastErr = err
			c.Log().Debug().Str("Method", "transportID").Int("Attempt", i+1).Err(err).Msg("app.Update retry")
			time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
			continue
		}
		if app := c.app.App(); app != nil && app.TransportId != "" {
			return app.TransportId, nil
		}
		time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
	}

	if lastErr != nil {
		return "", fmt.Errorf("get transport id: %w", lastErr)
	}
	return "", fmt.Errorf("get transport id: receiver did not report one")
}

// SendCustomMessage sends payload on namespace to the running receiver app.
func (c *CastClient) SendCustomMessage(namespace string, payload CustomPayload) error {
	if !c.IsConnected() {
		return fmt.Errorf("send custom message: not connected")
	}

	transportId, err := c.transportID()
	if err != nil {
		return fmt.Errorf("send custom message: %w", err)
	}

	c.Log().Debug().Str("Method", "SendCustomMessage").Str("Namespace", namespace).Msg("sending")
	return SendCustom(c.conn, transportId, namespace, payload)
}

// RequestStatus asks the custom receiver to broadcast its status, which
// carries the current ad metadata if an ad is playing.
func (c *CastClient) RequestStatus() error {
	return c.SendCustomMessage(CustomReceiverNamespace, CustomPayload{"type": "GET_STATUS"})
}

// Close disconnects from the Chromecast device.
func (c *CastClient) Close(stopMedia bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Log().Debug().Str("Method", "Close").Bool("StopMedia", stopMedia).Msg("closing connection")
	c.connected = false
	err := c.app.Close(stopMedia)
	if err != nil {
		c.Log().Error().Str("Method", "Close").Err(err).Msg("failed")
	}
	return err
}

// IsConnected returns whether client is connected.
func (c *CastClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Host returns the hostname of the Chromecast device.
func (c *CastClient) Host() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host
}

// ReceiverAppID returns the receiver application Load launches.
func (c *CastClient) ReceiverAppID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.appID
}

// Port returns the cast port of the device.
func (c *CastClient) Port() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.port
}
