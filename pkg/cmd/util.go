package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jzelinskie/stringz"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	log "github.com/manifoldrouter/manifold/internal/logging"
)

// HTTPServerConfig configures one of the HTTP servers of the serve command.
type HTTPServerConfig struct {
	Address     string
	TLSCertPath string
	TLSKeyPath  string
	Enabled     bool

	flagPrefix string
}

// Complete returns a server running the handler.
func (c *HTTPServerConfig) Complete(level zerolog.Level, handler http.Handler) (RunnableHTTPServer, error) {
	srv := &http.Server{
		Addr:              c.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var serveFunc func() error
	switch {
	case c.TLSCertPath == "" && c.TLSKeyPath == "":
		serveFunc = func() error {
			log.Warn().Str("addr", srv.Addr).Str("prefix", c.flagPrefix).Msg("http server serving plaintext")
			return srv.ListenAndServe()
		}

	case c.TLSCertPath != "" && c.TLSKeyPath != "":
		serveFunc = func() error {
			log.WithLevel(level).Str("addr", srv.Addr).Str("prefix", c.flagPrefix).Msg("https server started serving")
			return srv.ListenAndServeTLS(c.TLSCertPath, c.TLSKeyPath)
		}

	default:
		return nil, fmt.Errorf("failed to start http server: must provide both --%s-tls-cert-path and --%s-tls-key-path",
			c.flagPrefix,
			c.flagPrefix,
		)
	}

	return &completedHTTPServer{
		serve: func() error {
			if err := serveFunc(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed while serving %s: %w", c.flagPrefix, err)
			}
			return nil
		},
		close: func() {
			if err := srv.Close(); err != nil {
				log.Warn().Str("addr", srv.Addr).Str("prefix", c.flagPrefix).Err(err).Msg("error stopping http server")
			}
			log.WithLevel(level).Str("addr", srv.Addr).Str("prefix", c.flagPrefix).Msg("http server stopped serving")
		},
		enabled: c.Enabled,
	}, nil
}

// RunnableHTTPServer is a server that can be started and stopped.
type RunnableHTTPServer interface {
	// ListenAndServe blocks until the server is closed. It returns at once
	// for a disabled server.
	ListenAndServe() error
	Close()
}

type completedHTTPServer struct {
	serve   func() error
	close   func()
	enabled bool
}

func (c *completedHTTPServer) ListenAndServe() error {
	if !c.enabled {
		return nil
	}
	return c.serve()
}

func (c *completedHTTPServer) Close() {
	if c.enabled {
		c.close()
	}
}

// RegisterHTTPServerFlags adds the flags configuring an HTTP server, named
// after flagPrefix.
func RegisterHTTPServerFlags(flags *flag.FlagSet, config *HTTPServerConfig, flagPrefix, serviceName, defaultAddr string, defaultEnabled bool) {
	flagPrefix = stringz.DefaultEmpty(flagPrefix, "http")
	serviceName = stringz.DefaultEmpty(serviceName, "http")
	defaultAddr = stringz.DefaultEmpty(defaultAddr, ":8080")
	config.flagPrefix = flagPrefix

	flags.StringVar(&config.Address, flagPrefix+"-addr", defaultAddr, "address to listen on to serve "+serviceName)
	flags.StringVar(&config.TLSCertPath, flagPrefix+"-tls-cert-path", "", "local path to the TLS certificate used to serve "+serviceName)
	flags.StringVar(&config.TLSKeyPath, flagPrefix+"-tls-key-path", "", "local path to the TLS key used to serve "+serviceName)
	flags.BoolVar(&config.Enabled, flagPrefix+"-enabled", defaultEnabled, "enable "+serviceName+" http server")
}
