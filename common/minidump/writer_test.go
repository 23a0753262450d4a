package minidump

import (
	"bytes"
	"encoding/binary"
	"testing"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmdsp/crashpad/common/snapshot"
)

type staticStream struct {
	kind uint32
	data []byte
}

func (s *staticStream) StreamType() uint32 { return s.kind }

func (s *staticStream) ProduceStreamData(snap snapshot.ProcessSnapshot) []byte {
	return s.data
}

func testCapture() *snapshot.Capture {
	capture := &snapshot.Capture{
		ProcessId: 99,
		Exc: snapshot.ExceptionInfo{
			ThreadId: 7,
			Code:     0xC0000005,
			Address:  0x00401000,
		},
		ThreadList: []snapshot.ThreadInfo{
			{Id: 7, SuspendCount: 1, StackBase: 0x7fff0000, StackSize: 0x10000},
			{Id: 8, SuspendCount: 1},
		},
		ModuleList: []snapshot.ModuleInfo{
			{Name: "app.exe", Base: 0x00400000, Size: 0x200000, DebugId: "ABCD1234"},
		},
	}
	capture.SetAnnotationsSimpleMap(map[string]string{"channel": "beta"})
	capture.SetClientID(uuid.NewV4())
	capture.SetReportID(uuid.NewV4())
	return capture
}

func TestWriteEverythingHeaderAndDirectory(t *testing.T) {
	capture := testCapture()

	var w FileWriter
	w.InitializeFromSnapshot(capture)

	var out bytes.Buffer
	require.NoError(t, w.WriteEverything(&out))

	raw := out.Bytes()
	require.GreaterOrEqual(t, len(raw), headerSize)

	assert.Equal(t, uint32(signature), binary.LittleEndian.Uint32(raw[0:]))
	assert.Equal(t, uint32(version), binary.LittleEndian.Uint32(raw[4:]))

	streamCount := binary.LittleEndian.Uint32(raw[8:])
	require.Equal(t, uint32(4), streamCount)

	// Directory entries are contiguous after the header and their RVAs
	// must all land inside the file.
	for i := 0; i < int(streamCount); i++ {
		entry := raw[headerSize+i*directoryEntrySize:]
		size := binary.LittleEndian.Uint32(entry[4:])
		rva := binary.LittleEndian.Uint32(entry[8:])
		assert.LessOrEqual(t, int(rva+size), len(raw))
	}
}

func TestWriteEverythingCarriesReportIdentity(t *testing.T) {
	capture := testCapture()

	var w FileWriter
	w.InitializeFromSnapshot(capture)

	var out bytes.Buffer
	require.NoError(t, w.WriteEverything(&out))

	reportId := capture.ReportID()
	clientId := capture.ClientID()
	assert.True(t, bytes.Contains(out.Bytes(), reportId[:]))
	assert.True(t, bytes.Contains(out.Bytes(), clientId[:]))
	assert.True(t, bytes.Contains(out.Bytes(), []byte("channel")))
	assert.True(t, bytes.Contains(out.Bytes(), []byte("app.exe")))
}

func TestAddUserExtensionStreams(t *testing.T) {
	capture := testCapture()

	var w FileWriter
	w.InitializeFromSnapshot(capture)

	produced := &staticStream{kind: 0x43501000, data: []byte("extension payload")}
	empty := &staticStream{kind: 0x43501001, data: nil}
	AddUserExtensionStreams([]UserStreamSource{produced, empty}, capture, &w)

	var out bytes.Buffer
	require.NoError(t, w.WriteEverything(&out))

	raw := out.Bytes()
	// The empty source contributes no stream.
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(raw[8:]))
	assert.True(t, bytes.Contains(raw, produced.data))
}

func TestInitializeFromSnapshotResetsStreams(t *testing.T) {
	capture := testCapture()

	var w FileWriter
	w.InitializeFromSnapshot(capture)
	AddUserExtensionStreams([]UserStreamSource{
		&staticStream{kind: 0x43501000, data: []byte("x")},
	}, capture, &w)
	w.InitializeFromSnapshot(capture)

	var out bytes.Buffer
	require.NoError(t, w.WriteEverything(&out))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(out.Bytes()[8:]))
}
