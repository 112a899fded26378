package netconf

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"strconv"
	"strings"
)

// ReplyType classifies a received message by its root element and the root's
// first child.
type ReplyType int

const (
	// ReplyUnknown is anything that is not a recognised <rpc-reply> shape.
	ReplyUnknown ReplyType = iota

	// ReplyOK is an <rpc-reply> whose first child is <ok>.
	ReplyOK

	// ReplyError is an <rpc-reply> whose first child is <rpc-error>.
	ReplyError

	// ReplyData is an <rpc-reply> whose first child is <data>.
	ReplyData
)

func (t ReplyType) String() string {
	switch t {
	case ReplyOK:
		return "ok"
	case ReplyError:
		return "error"
	case ReplyData:
		return "data"
	default:
		return "unknown"
	}
}

// RPC is an outgoing <rpc> request.  MessageID is managed by the session
// and overwritten on send; the Operation is the inner payload and may be a
// raw XML string, a []byte, or any value encoding/xml can marshal.
type RPC struct {
	MessageID string

	// Additional attributes placed on the <rpc> envelope.  Per RFC6241
	// section 4.1 the peer reflects them on the matching <rpc-reply>.
	Attrs []xml.Attr

	Operation any
}

// dup gives the session a private envelope to stamp so the caller's RPC is
// never modified.
func (r *RPC) dup() *RPC {
	cp := *r
	cp.Attrs = slices.Clone(r.Attrs)
	return &cp
}

// marshal serializes the <rpc> envelope with the given base namespace.  An
// envelope without a message id omits the attribute.
func (r *RPC) marshal(namespace string) ([]byte, error) {
	inner, err := marshalOperation(r.Operation)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rpc operation: %w", err)
	}

	env := struct {
		XMLName   xml.Name   `xml:"rpc"`
		MessageID string     `xml:"message-id,attr,omitempty"`
		Namespace string     `xml:"xmlns,attr"`
		Attrs     []xml.Attr `xml:",attr"`
		Inner     []byte     `xml:",innerxml"`
	}{
		MessageID: r.MessageID,
		Namespace: namespace,
		Attrs:     r.Attrs,
		Inner:     inner,
	}

	return xml.Marshal(&env)
}

func marshalOperation(op any) ([]byte, error) {
	switch v := op.(type) {
	case nil:
		return nil, errors.New("rpc has no operation")
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return xml.Marshal(op)
	}
}

// Reply is one received message.  Raw holds the complete de-framed XML so
// callers can decode operation-specific bodies with Decode.
type Reply struct {
	// MessageID echoes the id attribute of the reply root, 0 when absent.
	MessageID uint64

	Type ReplyType

	Raw []byte

	// Errors holds the decoded <rpc-error> elements when Type is
	// ReplyError.
	Errors RPCErrors
}

// Decode unmarshals the reply body into v, which must map the full
// <rpc-reply> structure.
func (r *Reply) Decode(v any) error {
	if err := xml.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	return nil
}

// Err returns the reply's error-severity rpc-errors, or nil for any other
// reply type.
func (r *Reply) Err() error {
	if r.Type != ReplyError {
		return nil
	}
	errs := r.Errors.Filter(SevError)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// parseReply classifies one de-framed message.  Anything that is not valid
// XML is an error; unexpected shapes degrade to ReplyUnknown with a logged
// warning instead of failing the session.
func parseReply(raw []byte) (*Reply, error) {
	// Walk the whole document once so malformed XML anywhere in it is
	// rejected, not only in the elements inspected below.
	check := xml.NewDecoder(bytes.NewReader(raw))
	for {
		if _, err := check.Token(); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to parse message: %w", err)
		}
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	root, err := startElement(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	reply := &Reply{Raw: raw, Type: ReplyUnknown}

	isReply := root.Name.Local == "rpc-reply"

	if id, ok := attrValue(root.Attr, "message-id"); ok {
		// Mirror a lenient numeric parse: garbage ids read as 0.
		reply.MessageID, _ = strconv.ParseUint(id, 10, 64)
	} else if isReply {
		log.Printf("netconf: missing message-id in rpc-reply")
	}

	if !isReply {
		return reply, nil
	}

	child, ok := firstChild(dec)
	if !ok {
		log.Printf("netconf: unknown type of received <rpc-reply> detected")
		return reply, nil
	}

	switch child.Name.Local {
	case "ok":
		reply.Type = ReplyOK
	case "rpc-error":
		reply.Type = ReplyError
	case "data":
		reply.Type = ReplyData
	default:
		log.Printf("netconf: unknown type of received <rpc-reply> detected")
		return reply, nil
	}

	if reply.Type == ReplyError {
		var body struct {
			XMLName xml.Name  `xml:"rpc-reply"`
			Errors  RPCErrors `xml:"rpc-error"`
		}
		if err := xml.Unmarshal(raw, &body); err == nil {
			reply.Errors = body.Errors
		}
	}

	return reply, nil
}

// startElement walks the decoder until it finds a start element.
func startElement(dec *xml.Decoder) (*xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return &start, nil
		}
	}
}

// firstChild returns the first child element of the element the decoder is
// positioned in, or false if the element closes first.
func firstChild(dec *xml.Decoder) (*xml.StartElement, bool) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return &t, true
		case xml.EndElement:
			return nil, false
		}
	}
}

func attrValue(attrs []xml.Attr, name string) (string, bool) {
	for _, attr := range attrs {
		if attr.Name.Local == name {
			return attr.Value, true
		}
	}
	return "", false
}

// ErrSeverity is the severity of a single rpc-error.
type ErrSeverity string

const (
	SevError   ErrSeverity = "error"
	SevWarning ErrSeverity = "warning"
)

// RPCError maps one <rpc-error> element of an <rpc-reply> as defined in
// RFC6241 appendix A.
type RPCError struct {
	Type     string      `xml:"error-type"`
	Tag      string      `xml:"error-tag"`
	Severity ErrSeverity `xml:"error-severity"`
	AppTag   string      `xml:"error-app-tag,omitempty"`
	Path     string      `xml:"error-path,omitempty"`
	Message  string      `xml:"error-message,omitempty"`
	Info     RawXML      `xml:"error-info,omitempty"`
}

func (e RPCError) Error() string {
	return fmt.Sprintf("netconf error: %s %s: %s", e.Type, e.Tag, e.Message)
}

type RPCErrors []RPCError

// Filter returns the errors matching any of the given severities, default
// SevError.
func (errs RPCErrors) Filter(severity ...ErrSeverity) RPCErrors {
	if len(errs) == 0 {
		return nil
	}
	if len(severity) == 0 {
		severity = []ErrSeverity{SevError}
	}

	filtered := make(RPCErrors, 0, len(errs))
	for _, err := range errs {
		if slices.Contains(severity, err.Severity) {
			filtered = append(filtered, err)
		}
	}
	return filtered
}

func (errs RPCErrors) Error() string {
	switch len(errs) {
	case 0:
		return ""
	case 1:
		return errs[0].Error()
	}

	var sb strings.Builder
	sb.WriteString("multiple netconf errors:")
	for _, err := range errs {
		sb.WriteRune('\n')
		sb.WriteString(err.Error())
	}
	return sb.String()
}

func (errs RPCErrors) Unwrap() []error {
	unboxed := make([]error, len(errs))
	for i, err := range errs {
		unboxed[i] = err
	}
	return unboxed
}

// HelloMsg maps the <hello> message of RFC6241.  The session id is the
// peer-assigned identifier and treated as opaque.
type HelloMsg struct {
	XMLName      xml.Name `xml:"hello"`
	Namespace    string   `xml:"xmlns,attr,omitempty"`
	SessionID    string   `xml:"session-id,omitempty"`
	Capabilities []string `xml:"capabilities>capability"`
}

// RawXML is a helper type carrying innerxml content as a byte slice.
type RawXML []byte

func (x *RawXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var inner struct {
		Data []byte `xml:",innerxml"`
	}
	if err := d.DecodeElement(&inner, &start); err != nil {
		return err
	}
	*x = inner.Data
	return nil
}

func (x RawXML) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	inner := struct {
		Data []byte `xml:",innerxml"`
	}{Data: []byte(x)}
	return e.EncodeElement(&inner, start)
}
