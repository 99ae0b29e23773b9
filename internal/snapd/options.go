package snapd

import (
	"log/slog"
	"time"
)

const (
	// DefaultSocketPath is where snapd listens.
	DefaultSocketPath = "/run/snapd.socket"
	// DefaultPollInterval is the delay between change polls.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultConnectTimeout bounds connecting to the socket.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultWriteTimeout bounds writing one request.
	DefaultWriteTimeout = 5 * time.Second
	// DefaultUserAgent is sent unless overridden.
	DefaultUserAgent = "snapc/dev"
)

type options struct {
	socketPath       string
	userAgent        string
	acceptLanguage   string
	allowInteraction bool
	auth             *AuthData
	logger           *slog.Logger
	metrics          *Metrics
	pollInterval     time.Duration
	connectTimeout   time.Duration
	writeTimeout     time.Duration
}

func defaultOptions() options {
	return options{
		socketPath:     DefaultSocketPath,
		userAgent:      DefaultUserAgent,
		pollInterval:   DefaultPollInterval,
		connectTimeout: DefaultConnectTimeout,
		writeTimeout:   DefaultWriteTimeout,
	}
}

// Option configures a Client.
type Option func(*options)

// WithSocketPath sets the daemon socket path.
func WithSocketPath(path string) Option {
	return func(o *options) {
		if path != "" {
			o.socketPath = path
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// WithAcceptLanguage overrides the Accept-Language header derived from the
// environment.
func WithAcceptLanguage(value string) Option {
	return func(o *options) {
		o.acceptLanguage = value
	}
}

// WithAllowInteraction lets the daemon prompt the user for authorization.
func WithAllowInteraction(allow bool) Option {
	return func(o *options) {
		o.allowInteraction = allow
	}
}

// WithAuthData sets the credentials sent with every request.
func WithAuthData(auth *AuthData) Option {
	return func(o *options) {
		o.auth = auth
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records client activity into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithPollInterval sets the delay between change polls.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithConnectTimeout bounds connecting to the socket.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithWriteTimeout bounds writing a single request.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}
