package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSOptions configures the optional TLS wrapping of a PeSIT session.
type TLSOptions struct {
	Enabled bool

	CertFile string
	KeyFile  string

	// ClientCAFile, when set, enables mutual authentication: client
	// certificates are required and verified against this CA bundle.
	ClientCAFile string
}

// BuildServerConfig constructs a *tls.Config from opts, suitable for
// transport.Conn.UpgradeTLS on the accept side.
func BuildServerConfig(opts TLSOptions) (*tls.Config, error) {
	if !opts.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("transport: load server certificate: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if opts.ClientCAFile != "" {
		pem, err := os.ReadFile(opts.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("transport: read client CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("transport: no certificates parsed from %s", opts.ClientCAFile)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return cfg, nil
}

// NegotiatedSummary renders the negotiated protocol version and cipher suite
// of a completed TLS handshake for structured logging.
func NegotiatedSummary(state tls.ConnectionState) string {
	return fmt.Sprintf("%s/%s", tls.VersionName(state.Version), tls.CipherSuiteName(state.CipherSuite))
}
