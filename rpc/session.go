package rpc

import (
	"encoding/xml"

	netconf "github.com/hanneskuettner/libnetconf"
)

// CloseSession implements the <close-session> operation of RFC6241 section
// 7.8, asking the peer to release the session gracefully.  Session.Close
// already sends one; this constructor exists for callers driving the
// shutdown themselves.
type CloseSession struct{}

func (CloseSession) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	req := struct {
		XMLName xml.Name `xml:"close-session"`
	}{}
	return e.Encode(&req)
}

func (op CloseSession) Exec(s *netconf.Session) error {
	return execOK(s, "close-session", op)
}

// KillSession implements the <kill-session> operation of RFC6241 section
// 7.9, forcibly terminating another session by its peer-assigned id.
type KillSession struct {
	SessionID string
}

func (op KillSession) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	req := struct {
		XMLName   xml.Name `xml:"kill-session"`
		SessionID string   `xml:"session-id"`
	}{
		SessionID: op.SessionID,
	}
	return e.Encode(&req)
}

func (op KillSession) Exec(s *netconf.Session) error {
	return execOK(s, "kill-session", op)
}
