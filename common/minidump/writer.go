// Package minidump serializes a process snapshot into a minidump-framed
// stream: a fixed header, a stream directory, then the stream payloads.
package minidump

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"time"

	"github.com/go-errors/errors"

	"github.com/lmdsp/crashpad/common/snapshot"
)

const (
	signature = 0x504d444d // 'MDMP'
	version   = 0xa793

	streamTypeThreadList   = 3
	streamTypeModuleList   = 4
	streamTypeException    = 6
	streamTypeCrashpadInfo = 0x43500001

	headerSize         = 32
	directoryEntrySize = 12
)

// UserStreamSource produces an extension stream to embed in the dump.
// A nil payload means the source has nothing for this snapshot.
type UserStreamSource interface {
	StreamType() uint32
	ProduceStreamData(snap snapshot.ProcessSnapshot) []byte
}

type stream struct {
	kind uint32
	data []byte
}

// FileWriter collects streams from a snapshot and writes them out.
type FileWriter struct {
	streams []stream
}

func (w *FileWriter) InitializeFromSnapshot(snap snapshot.ProcessSnapshot) {
	w.streams = w.streams[:0]
	w.appendStream(streamTypeException, encodeException(snap.Exception()))
	w.appendStream(streamTypeThreadList, encodeThreads(snap.Threads()))
	w.appendStream(streamTypeModuleList, encodeModules(snap.Modules()))
	w.appendStream(streamTypeCrashpadInfo, encodeCrashpadInfo(snap))
}

// AddUserExtensionStreams merges caller-supplied extension streams into the
// dump. Sources that produce nothing are skipped.
func AddUserExtensionStreams(sources []UserStreamSource, snap snapshot.ProcessSnapshot, w *FileWriter) {
	for _, source := range sources {
		data := source.ProduceStreamData(snap)
		if data == nil {
			continue
		}
		w.appendStream(source.StreamType(), data)
	}
}

func (w *FileWriter) appendStream(kind uint32, data []byte) {
	w.streams = append(w.streams, stream{kind: kind, data: data})
}

// WriteEverything writes the header, directory and all stream payloads.
func (w *FileWriter) WriteEverything(out io.Writer) error {
	var buf bytes.Buffer

	writeU32(&buf, signature)
	writeU32(&buf, version)
	writeU32(&buf, uint32(len(w.streams)))
	writeU32(&buf, headerSize)
	writeU32(&buf, 0) // checksum, unused
	writeU32(&buf, uint32(time.Now().Unix()))
	writeU64(&buf, 0) // flags

	rva := uint32(headerSize + directoryEntrySize*len(w.streams))
	for _, s := range w.streams {
		writeU32(&buf, s.kind)
		writeU32(&buf, uint32(len(s.data)))
		writeU32(&buf, rva)
		rva += uint32(len(s.data))
	}
	for _, s := range w.streams {
		buf.Write(s.data)
	}

	if _, err := out.Write(buf.Bytes()); err != nil {
		return errors.WrapPrefix(err, "write minidump", 0)
	}
	return nil
}

func encodeException(exc *snapshot.ExceptionInfo) []byte {
	var buf bytes.Buffer
	writeU64(&buf, exc.ThreadId)
	writeU32(&buf, exc.Code)
	writeU32(&buf, exc.Flags)
	writeU64(&buf, exc.Address)
	return buf.Bytes()
}

func encodeThreads(threads []snapshot.ThreadInfo) []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(threads)))
	for _, t := range threads {
		writeU64(&buf, t.Id)
		writeU32(&buf, uint32(t.SuspendCount))
		writeU64(&buf, t.StackBase)
		writeU64(&buf, t.StackSize)
	}
	return buf.Bytes()
}

func encodeModules(modules []snapshot.ModuleInfo) []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(modules)))
	for _, m := range modules {
		writeU64(&buf, m.Base)
		writeU64(&buf, m.Size)
		writeString(&buf, m.Name)
		writeString(&buf, m.DebugId)
	}
	return buf.Bytes()
}

// encodeCrashpadInfo carries the report id, the client id and the simple
// annotation map, so the serialized dump references its own report.
func encodeCrashpadInfo(snap snapshot.ProcessSnapshot) []byte {
	var buf bytes.Buffer

	reportId := snap.ReportID()
	clientId := snap.ClientID()
	buf.Write(reportId[:])
	buf.Write(clientId[:])

	annotations := snap.AnnotationsSimpleMap()
	keys := make([]string, 0, len(annotations))
	for k := range annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writeU32(&buf, uint32(len(keys)))
	for _, k := range keys {
		writeString(&buf, k)
		writeString(&buf, annotations[k])
	}
	return buf.Bytes()
}

func writeU32(buf *bytes.Buffer, v uint32) {
	binary.Write(buf, binary.LittleEndian, v)
}

func writeU64(buf *bytes.Buffer, v uint64) {
	binary.Write(buf, binary.LittleEndian, v)
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}
