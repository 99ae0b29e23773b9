package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/runger/snapc/internal/config"
	"github.com/runger/snapc/internal/logging"
	"github.com/runger/snapc/internal/snapd"
)

// session holds what one command invocation needs. The snapd client is
// created on first use so that offline commands never touch the socket.
type session struct {
	paths     *config.Paths
	cfg       *config.Config
	log       *slog.Logger
	logCloser io.Closer
	registry  *prometheus.Registry
	client    *snapd.Client
}

var app = &session{}

func (s *session) open(cmd *cobra.Command) error {
	s.paths = config.DefaultPaths()

	cfg, err := config.LoadFromFile(s.paths.ConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if flagSocket != "" {
		cfg.Client.SocketPath = flagSocket
	}
	if flagVerbose {
		cfg.Log.Level = "debug"
	}
	s.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger, closer, err := logging.Open(logging.FileConfig{
		Path:       cfg.Log.File,
		Level:      level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return err
	}
	s.log = logger.With("command", cmd.CommandPath())
	s.logCloser = closer
	return nil
}

// Client returns the snapd client, creating it on first call.
func (s *session) Client() (*snapd.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	auth, err := config.LoadAuthData(s.paths.AuthFile())
	if err != nil {
		// Bad credentials should not lock the user out of read-only calls.
		s.log.Warn("ignoring stored credentials", "path", s.paths.AuthFile(), "error", err)
		auth = nil
	}

	// A configured user agent replaces the built-in one.
	opts := append([]snapd.Option{snapd.WithUserAgent(userAgent())}, s.cfg.ClientOptions()...)
	opts = append(opts, snapd.WithLogger(s.log), snapd.WithAuthData(auth))
	if s.log.Enabled(context.Background(), slog.LevelDebug) {
		s.registry = prometheus.NewRegistry()
		opts = append(opts, snapd.WithMetrics(snapd.NewMetrics(s.registry)))
	}

	s.client = snapd.New(opts...)
	return s.client, nil
}

func (s *session) close() error {
	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Close())
		s.logMetrics()
		s.client = nil
	}
	if s.logCloser != nil {
		errs = append(errs, s.logCloser.Close())
		s.logCloser = nil
	}
	s.registry = nil
	return errors.Join(errs...)
}

// logMetrics writes the client's counters to the debug log.
func (s *session) logMetrics() {
	if s.registry == nil {
		return
	}
	families, err := s.registry.Gather()
	if err != nil {
		s.log.Debug("gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			}
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			s.log.Debug("metric", "name", mf.GetName(), "labels", strings.Join(labels, ","), "value", value)
		}
	}
}

func userAgent() string {
	return "snapc/" + Version
}
