//go:build linux

package snapshot

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-errors/errors"
	log "github.com/sirupsen/logrus"
)

type osProcess struct {
	pid int
	mem *os.File
}

// OpenProcess opens a handle to a running process.
func OpenProcess(pid int) (Process, error) {
	mem, err := os.Open(fmt.Sprintf("/proc/%d/mem", pid))
	if err != nil {
		return nil, errors.WrapPrefix(err, "open process memory", 0)
	}
	return &osProcess{pid: pid, mem: mem}, nil
}

func (p *osProcess) Pid() int {
	return p.pid
}

func (p *osProcess) Suspend() error {
	if err := syscall.Kill(p.pid, syscall.SIGSTOP); err != nil {
		return errors.WrapPrefix(err, "suspend process", 0)
	}
	return nil
}

func (p *osProcess) Resume() error {
	if err := syscall.Kill(p.pid, syscall.SIGCONT); err != nil {
		return errors.WrapPrefix(err, "resume process", 0)
	}
	return nil
}

func (p *osProcess) ReadMemory(address uint64, out []byte) error {
	_, err := p.mem.ReadAt(out, int64(address))
	if err != nil {
		return errors.WrapPrefix(err, "read process memory", 0)
	}
	return nil
}

// exceptionInformation is the record the crashed client leaves in its own
// address space for the handler. Layout is fixed little endian:
// thread id u64, exception code u32, flags u32, fault address u64,
// handler behavior u32.
const exceptionInformationSize = 28

type procProvider struct{}

// NewSystemProvider returns the platform snapshot backend.
func NewSystemProvider() Provider {
	return &procProvider{}
}

func (procProvider) TakeSnapshot(p Process, exceptionInformationAddress, debugCriticalSectionAddress uint64) (ProcessSnapshot, error) {
	// The debug critical section only exists in Windows targets; the
	// address is accepted and ignored here.
	_ = debugCriticalSectionAddress

	raw := make([]byte, exceptionInformationSize)
	if err := p.ReadMemory(exceptionInformationAddress, raw); err != nil {
		return nil, errors.WrapPrefix(err, "read exception information", 0)
	}

	capture := &Capture{
		ProcessId: p.Pid(),
		Exc: ExceptionInfo{
			ThreadId: binary.LittleEndian.Uint64(raw[0:]),
			Code:     binary.LittleEndian.Uint32(raw[8:]),
			Flags:    binary.LittleEndian.Uint32(raw[12:]),
			Address:  binary.LittleEndian.Uint64(raw[16:]),
		},
	}

	switch binary.LittleEndian.Uint32(raw[24:]) {
	case 1:
		capture.Opts.HandlerBehavior = TriStateEnabled
	case 2:
		capture.Opts.HandlerBehavior = TriStateDisabled
	default:
		capture.Opts.HandlerBehavior = TriStateDefault
	}

	threads, err := readThreads(p.Pid())
	if err != nil {
		return nil, err
	}
	capture.ThreadList = threads
	capture.ModuleList = readModules(p.Pid())

	return capture, nil
}

func readThreads(pid int) ([]ThreadInfo, error) {
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", pid))
	if err != nil {
		return nil, errors.WrapPrefix(err, "enumerate threads", 0)
	}

	var threads []ThreadInfo
	for _, entry := range entries {
		tid, err := strconv.ParseUint(entry.Name(), 10, 64)
		if err != nil {
			continue
		}
		threads = append(threads, ThreadInfo{Id: tid, SuspendCount: 1})
	}
	return threads, nil
}

// readModules parses /proc/<pid>/maps. Module enumeration is best effort;
// a report without modules is still a report.
func readModules(pid int) []ModuleInfo {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		log.WithError(err).WithField("pid", pid).
			Warning("Can't read module list")
		return nil
	}

	seen := make(map[string]int)
	var modules []ModuleInfo
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}

		path := fields[5]
		if !strings.HasPrefix(path, "/") {
			continue
		}

		bounds := strings.SplitN(fields[0], "-", 2)
		if len(bounds) != 2 {
			continue
		}
		start, err1 := strconv.ParseUint(bounds[0], 16, 64)
		end, err2 := strconv.ParseUint(bounds[1], 16, 64)
		if err1 != nil || err2 != nil {
			continue
		}

		if idx, ok := seen[path]; ok {
			modules[idx].Size += end - start
			continue
		}
		seen[path] = len(modules)
		modules = append(modules, ModuleInfo{
			Name: filepath.Base(path),
			Base: start,
			Size: end - start,
		})
	}
	return modules
}
