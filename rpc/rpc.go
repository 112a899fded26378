// Package rpc provides constructors for the base NETCONF protocol
// operations.  Each operation marshals to its wire element without a
// namespace of its own: the session stamps the base namespace on the <rpc>
// envelope and the operation inherits it.
package rpc

import (
	"encoding/xml"
	"fmt"

	netconf "github.com/hanneskuettner/libnetconf"
)

// ExtantBool marshals to an empty element when true and nothing when
// false, and unmarshals presence to true.
type ExtantBool bool

func (b ExtantBool) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if !b {
		return nil
	}
	return e.EncodeElement(struct{}{}, start)
}

func (b *ExtantBool) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	*b = true
	return d.Skip()
}

// OkReply decodes an <rpc-reply> that acknowledges with <ok>.
type OkReply struct {
	XMLName xml.Name   `xml:"rpc-reply"`
	OK      ExtantBool `xml:"ok"`
}

// Get implements the <get> operation of RFC6241 section 7.7, retrieving
// running configuration and device state.
type Get struct {
	Filter Filter
}

func (op Get) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	req := struct {
		XMLName xml.Name `xml:"get"`
		Filter  Filter   `xml:"filter,omitempty"`
	}{
		Filter: op.Filter,
	}
	return e.Encode(&req)
}

// GetReply carries the <data> body of a <get> reply.
type GetReply struct {
	XMLName xml.Name `xml:"rpc-reply"`
	Data    struct {
		XML []byte `xml:",innerxml"`
	} `xml:"data"`
}

// Exec runs the operation on the session and returns the inner XML of the
// reply's <data> element.
func (op Get) Exec(s *netconf.Session) ([]byte, error) {
	var reply GetReply
	if err := s.Call(op, &reply); err != nil {
		return nil, err
	}
	return reply.Data.XML, nil
}

// execOK runs an operation whose only successful reply shape is <ok>.
func execOK(s *netconf.Session, name string, op any) error {
	var reply OkReply
	if err := s.Call(op, &reply); err != nil {
		return err
	}
	if !reply.OK {
		return fmt.Errorf("%s: operation failed, <ok> not received", name)
	}
	return nil
}
