package sinks

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
)

// maxErrorBody caps how much of a rejected response is kept in the error
const maxErrorBody = 1024

// HTTPSink posts payloads to a collector that answers 200 on acceptance
type HTTPSink struct {
	name        string
	url         string
	contentType string
	client      *http.Client
	authorize   func(req *http.Request)
}

// NewLogstashSink posts JSON bundles with basic authentication
func NewLogstashSink(cfg config.LogstashConfig, contentType string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		name:        config.BindingLogstash,
		url:         cfg.URL,
		contentType: contentType,
		client:      &http.Client{Timeout: timeout},
		authorize: func(req *http.Request) {
			req.SetBasicAuth(cfg.User, cfg.Password)
		},
	}
}

// NewSplunkSink posts HEC events. With a certificate thumbprint configured
// the collector is trusted only when its leaf certificate matches it.
func NewSplunkSink(cfg config.SplunkConfig, timeout time.Duration) (*HTTPSink, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CertThumbprint != "" {
		pin, err := normalizeThumbprint(cfg.CertThumbprint)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = &tls.Config{
			// chain validation is replaced by the thumbprint check
			InsecureSkipVerify:    true,
			VerifyPeerCertificate: pinnedThumbprint(pin),
		}
	}

	return &HTTPSink{
		name:        config.BindingSplunk,
		url:         cfg.URL,
		contentType: "application/json",
		client:      &http.Client{Timeout: timeout, Transport: transport},
		authorize: func(req *http.Request) {
			req.Header.Set("Authorization", "Splunk "+cfg.Token)
		},
	}, nil
}

func (s *HTTPSink) Name() string { return s.name }

// Send posts the payload; any status other than 200 is a transport error
func (s *HTTPSink) Send(ctx context.Context, payload []byte) error {
	op := "sinks." + s.name

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return faults.Transport(op, "failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", s.contentType)
	if s.authorize != nil {
		s.authorize(req)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return faults.Transport(op, "failed to post %d bytes: %w", len(payload), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return faults.Transport(op, "collector returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close releases idle connections
func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// normalizeThumbprint accepts hex with optional spaces or colons
func normalizeThumbprint(thumbprint string) (string, error) {
	clean := strings.NewReplacer(" ", "", ":", "").Replace(strings.TrimSpace(thumbprint))
	raw, err := hex.DecodeString(clean)
	if err != nil || len(raw) != sha1.Size {
		return "", faults.Configuration("sinks.splunk", "certificate thumbprint %q is not a SHA-1 hex digest", thumbprint)
	}
	return strings.ToUpper(clean), nil
}

// Thumbprint returns the uppercase SHA-1 hex digest of a DER certificate
func Thumbprint(der []byte) string {
	sum := sha1.Sum(der)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func pinnedThumbprint(pin string) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("collector presented no certificate")
		}
		if got := Thumbprint(rawCerts[0]); got != pin {
			return fmt.Errorf("collector certificate thumbprint %s does not match %s", got, pin)
		}
		return nil
	}
}
