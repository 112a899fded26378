package netconf

import (
	"context"
	"encoding/xml"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/hanneskuettner/libnetconf/transport"
	ncssh "github.com/hanneskuettner/libnetconf/transport/ssh"
)

// Open exchanges hello messages on the given transport and returns a live
// session.  The protocol version is 1.1 when both advertisements carry the
// base:1.1 capability and 1.0 otherwise; the hello exchange itself always
// uses End-of-Message framing.  On failure the transport is closed.
func Open(conn transport.Conn, opts ...SessionOption) (*Session, error) {
	var cfg sessionConfig
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	clientCaps := cfg.clientCaps
	if clientCaps == nil {
		clientCaps = DefaultCapabilities()
	}

	s := NewSession(conn, V10, nil, opts...)

	if err := s.handshake(clientCaps); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// handshake sends the client hello, reads the peer's, and derives the
// session version, id, and capability set.
func (s *Session) handshake(clientCaps *CapabilitySet) error {
	hello := HelloMsg{
		Namespace:    BaseNamespace10,
		Capabilities: slices.Collect(clientCaps.All()),
	}

	p, err := xml.Marshal(&hello)
	if err != nil {
		return fmt.Errorf("failed to encode hello: %w", err)
	}
	if err := s.fr.WriteMsg(p); err != nil {
		return fmt.Errorf("failed to send hello: %w", err)
	}

	raw, err := s.fr.ReadMsg()
	if err != nil {
		return fmt.Errorf("failed to receive peer hello: %w", err)
	}

	var peerHello HelloMsg
	if err := xml.Unmarshal(raw, &peerHello); err != nil {
		return fmt.Errorf("failed to parse peer hello: %w", err)
	}

	if peerHello.SessionID == "" {
		return fmt.Errorf("netconf: peer did not assign a session-id")
	}
	if len(peerHello.Capabilities) == 0 {
		return fmt.Errorf("netconf: peer advertised no capabilities")
	}

	s.sessionID = peerHello.SessionID
	s.caps = NewCapabilitySet(peerHello.Capabilities...)
	s.version = NegotiateVersion(clientCaps, s.caps)
	if s.version == V11 {
		s.fr.Upgrade()
	}

	return nil
}

// Config carries the tunables of DialSSH.  Zero fields are filled in from
// DefaultConfig.
type Config struct {
	// Capabilities advertised in the client hello.
	Capabilities []string

	// ReadBackoff is the transport adapter's sleep between would-block
	// retries.
	ReadBackoff time.Duration
}

// DefaultConfig holds the values applied to unset Config fields.
var DefaultConfig = &Config{
	Capabilities: []string{
		CapBase10,
		CapBase11,
		CapWritableRunning,
		CapCandidate,
		CapStartup,
	},
	ReadBackoff: 100 * time.Microsecond,
}

// DialSSH connects to addr over SSH, opens the netconf subsystem, and
// establishes a session.  cfg may be nil for defaults; a partial cfg is
// resolved against DefaultConfig.
func DialSSH(ctx context.Context, addr string, sshcfg *ssh.ClientConfig, cfg *Config) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig
	}
	resolved := *cfg
	_ = mergo.Merge(&resolved, DefaultConfig)

	conn, err := ncssh.Dial(ctx, "tcp", addr, sshcfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", addr)
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	s, err := Open(conn,
		WithCapabilities(resolved.Capabilities...),
		WithPeer(host, sshcfg.User),
		WithReadBackoff(resolved.ReadBackoff),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to establish netconf session")
	}
	return s, nil
}
