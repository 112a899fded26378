package rpc_test

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanneskuettner/libnetconf/rpc"
)

func TestDatastoreMarshal(t *testing.T) {
	p, err := xml.Marshal(struct {
		XMLName xml.Name      `xml:"source"`
		DS      rpc.Datastore `xml:"ds"`
	}{DS: rpc.Running})
	require.NoError(t, err)
	assert.Equal(t, "<source><ds><running/></ds></source>", string(p))
}

func TestDatastoreMarshalInvalid(t *testing.T) {
	_, err := xml.Marshal(struct {
		XMLName xml.Name      `xml:"source"`
		DS      rpc.Datastore `xml:"ds"`
	}{DS: rpc.Datastore("run/../ning")})
	assert.Error(t, err)

	_, err = xml.Marshal(struct {
		XMLName xml.Name      `xml:"source"`
		DS      rpc.Datastore `xml:"ds"`
	}{DS: rpc.Datastore("")})
	assert.Error(t, err)
}

func TestGetConfigMarshal(t *testing.T) {
	p, err := xml.Marshal(rpc.GetConfig{Source: rpc.Running})
	require.NoError(t, err)
	assert.Equal(t,
		"<get-config><source><running/></source></get-config>",
		string(p))
}

func TestGetConfigExec(t *testing.T) {
	s, tc := scriptedSession(t,
		`<rpc-reply message-id="1"><data><top><config/></top></data></rpc-reply>`)

	cfg, err := rpc.GetConfig{Source: rpc.Candidate}.Exec(s)
	require.NoError(t, err)
	assert.Equal(t, "<top><config/></top>", string(cfg))

	assert.Contains(t, tc.WriteBuf.String(), "<source><candidate/></source>")
}

func TestEditConfigMarshal(t *testing.T) {
	op := rpc.EditConfig{
		Target:           rpc.Candidate,
		DefaultOperation: rpc.MergeConfig,
		ErrorOption:      rpc.RollbackOnError,
		Config:           "<top><interface><name>eth0</name></interface></top>",
	}

	p, err := xml.Marshal(op)
	require.NoError(t, err)
	assert.Equal(t,
		"<edit-config><target><candidate/></target>"+
			"<default-operation>merge</default-operation>"+
			"<error-option>rollback-on-error</error-option>"+
			"<config><top><interface><name>eth0</name></interface></top></config>"+
			"</edit-config>",
		string(p))
}

func TestEditConfigExec(t *testing.T) {
	s, tc := scriptedSession(t, `<rpc-reply message-id="1"><ok/></rpc-reply>`)

	op := rpc.EditConfig{Target: rpc.Running, Config: "<top/>"}
	require.NoError(t, op.Exec(s))
	assert.Contains(t, tc.WriteBuf.String(), "<config><top/></config>")
}

func TestLockUnlockMarshal(t *testing.T) {
	p, err := xml.Marshal(rpc.Lock{Target: rpc.Candidate})
	require.NoError(t, err)
	assert.Equal(t, "<lock><target><candidate/></target></lock>", string(p))

	p, err = xml.Marshal(rpc.Unlock{Target: rpc.Candidate})
	require.NoError(t, err)
	assert.Equal(t, "<unlock><target><candidate/></target></unlock>", string(p))
}

func TestCommitMarshal(t *testing.T) {
	p, err := xml.Marshal(rpc.Commit{})
	require.NoError(t, err)
	assert.Equal(t, "<commit></commit>", string(p))
}

func TestDeleteConfigExec(t *testing.T) {
	s, tc := scriptedSession(t, `<rpc-reply message-id="1"><ok/></rpc-reply>`)

	require.NoError(t, rpc.DeleteConfig{Target: rpc.Startup}.Exec(s))
	assert.Contains(t, tc.WriteBuf.String(),
		"<delete-config><target><startup/></target></delete-config>")
}
