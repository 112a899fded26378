package rpc

import (
	"encoding/xml"
	"fmt"

	netconf "github.com/hanneskuettner/libnetconf"
)

// Datastore names a configuration datastore.  It marshals to an empty
// element of its own name, e.g. <running/>.
type Datastore string

const (
	// Running is required by RFC6241; writes need the :writable-running
	// capability.
	Running Datastore = "running"

	// Candidate requires the :candidate capability.
	Candidate Datastore = "candidate"

	// Startup requires the :startup capability.
	Startup Datastore = "startup"
)

func (d Datastore) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if d == "" {
		return fmt.Errorf("datastore name cannot be empty")
	}
	for i := range len(d) {
		c := d[i]
		if (c < 'a' || c > 'z') &&
			(c < 'A' || c > 'Z') &&
			(c < '0' || c > '9') &&
			c != '_' && c != '-' && c != '.' {
			return fmt.Errorf("invalid datastore name: %q", d)
		}
	}

	inner := struct {
		Elem string `xml:",innerxml"`
	}{Elem: "<" + string(d) + "/>"}
	return e.EncodeElement(&inner, start)
}

// GetConfig implements the <get-config> operation of RFC6241 section 7.1.
type GetConfig struct {
	Source Datastore
	Filter Filter
}

func (op GetConfig) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	req := struct {
		XMLName xml.Name  `xml:"get-config"`
		Source  Datastore `xml:"source"`
		Filter  Filter    `xml:"filter,omitempty"`
	}{
		Source: op.Source,
		Filter: op.Filter,
	}
	return e.Encode(&req)
}

// Exec returns the inner XML of the reply's <data> element.
func (op GetConfig) Exec(s *netconf.Session) ([]byte, error) {
	var reply GetReply
	if err := s.Call(op, &reply); err != nil {
		return nil, err
	}
	return reply.Data.XML, nil
}

// DefaultOperation selects the merge strategy of an <edit-config>.
type DefaultOperation string

const (
	MergeConfig   DefaultOperation = "merge"
	ReplaceConfig DefaultOperation = "replace"
	NoneOperation DefaultOperation = "none"
)

// ErrorOption selects the failure behavior of an <edit-config>.
type ErrorOption string

const (
	StopOnError     ErrorOption = "stop-on-error"
	ContinueOnError ErrorOption = "continue-on-error"

	// RollbackOnError requires the :rollback-on-error capability.
	RollbackOnError ErrorOption = "rollback-on-error"
)

// EditConfig implements the <edit-config> operation of RFC6241 section
// 7.2.  Config may be a raw XML string, a []byte, or any marshalable
// value; it is wrapped in the <config> element.
type EditConfig struct {
	Target           Datastore
	DefaultOperation DefaultOperation
	ErrorOption      ErrorOption
	Config           any
}

func (op EditConfig) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	req := struct {
		XMLName          xml.Name         `xml:"edit-config"`
		Target           Datastore        `xml:"target"`
		DefaultOperation DefaultOperation `xml:"default-operation,omitempty"`
		ErrorOption      ErrorOption      `xml:"error-option,omitempty"`
		Config           any              `xml:"config"`
	}{
		Target:           op.Target,
		DefaultOperation: op.DefaultOperation,
		ErrorOption:      op.ErrorOption,
	}

	switch v := op.Config.(type) {
	case string:
		req.Config = struct {
			Inner string `xml:",innerxml"`
		}{Inner: v}
	case []byte:
		req.Config = struct {
			Inner []byte `xml:",innerxml"`
		}{Inner: v}
	default:
		req.Config = op.Config
	}

	return e.Encode(&req)
}

func (op EditConfig) Exec(s *netconf.Session) error {
	return execOK(s, "edit-config", op)
}

// DeleteConfig implements the <delete-config> operation of RFC6241 section
// 7.4.  The running datastore cannot be deleted.
type DeleteConfig struct {
	Target Datastore
}

func (op DeleteConfig) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	req := struct {
		XMLName xml.Name  `xml:"delete-config"`
		Target  Datastore `xml:"target"`
	}{
		Target: op.Target,
	}
	return e.Encode(&req)
}

func (op DeleteConfig) Exec(s *netconf.Session) error {
	return execOK(s, "delete-config", op)
}

// Lock implements the <lock> operation of RFC6241 section 7.5.
type Lock struct {
	Target Datastore
}

func (op Lock) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	req := struct {
		XMLName xml.Name  `xml:"lock"`
		Target  Datastore `xml:"target"`
	}{
		Target: op.Target,
	}
	return e.Encode(&req)
}

func (op Lock) Exec(s *netconf.Session) error {
	return execOK(s, "lock", op)
}

// Unlock implements the <unlock> operation of RFC6241 section 7.5.
type Unlock struct {
	Target Datastore
}

func (op Unlock) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	req := struct {
		XMLName xml.Name  `xml:"unlock"`
		Target  Datastore `xml:"target"`
	}{
		Target: op.Target,
	}
	return e.Encode(&req)
}

func (op Unlock) Exec(s *netconf.Session) error {
	return execOK(s, "unlock", op)
}

// Commit implements the <commit> operation of RFC6241 section 8.4,
// promoting the candidate datastore to running.  Requires the :candidate
// capability.
type Commit struct{}

func (Commit) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	req := struct {
		XMLName xml.Name `xml:"commit"`
	}{}
	return e.Encode(&req)
}

func (op Commit) Exec(s *netconf.Session) error {
	return execOK(s, "commit", op)
}
