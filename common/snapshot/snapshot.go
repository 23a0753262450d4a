// Package snapshot defines the contract between the crash handler and the
// platform code that captures the state of a crashed process.
package snapshot

import (
	uuid "github.com/satori/go.uuid"
)

// TriState is a client-configured option that can be explicitly enabled,
// explicitly disabled, or left to the handler default.
type TriState int

const (
	TriStateDefault TriState = iota
	TriStateEnabled
	TriStateDisabled
)

func (t TriState) String() string {
	switch t {
	case TriStateEnabled:
		return "enabled"
	case TriStateDisabled:
		return "disabled"
	default:
		return "default"
	}
}

// ClientOptions are the options the crashed client embedded in its own
// address space for the handler to pick up.
type ClientOptions struct {
	HandlerBehavior TriState
}

// ExceptionInfo describes the exception that was raised in the target.
// Code matches the OS-native termination code domain.
type ExceptionInfo struct {
	ThreadId uint64
	Code     uint32
	Flags    uint32
	Address  uint64
}

type ThreadInfo struct {
	Id           uint64
	SuspendCount int
	StackBase    uint64
	StackSize    uint64
}

type ModuleInfo struct {
	Name    string
	Base    uint64
	Size    uint64
	DebugId string
}

// Process is a handle to a foreign process. Suspend and Resume control its
// scheduling; ReadMemory reads from its address space.
type Process interface {
	Pid() int
	Suspend() error
	Resume() error
	ReadMemory(address uint64, out []byte) error
}

// ProcessSnapshot is an immutable capture of a crashed process, plus the
// report identity the handler attaches before serialization.
type ProcessSnapshot interface {
	Pid() int
	Exception() *ExceptionInfo
	Options() ClientOptions
	Threads() []ThreadInfo
	Modules() []ModuleInfo

	ClientID() uuid.UUID
	ReportID() uuid.UUID
	AnnotationsSimpleMap() map[string]string

	SetClientID(id uuid.UUID)
	SetReportID(id uuid.UUID)
	SetAnnotationsSimpleMap(annotations map[string]string)
}

// Provider captures a snapshot of a suspended process. The two addresses
// point into the target's address space and are only interpreted here,
// never by the caller.
type Provider interface {
	TakeSnapshot(p Process, exceptionInformationAddress, debugCriticalSectionAddress uint64) (ProcessSnapshot, error)
}

// Capture is the concrete snapshot providers fill in.
type Capture struct {
	ProcessId  int
	Exc        ExceptionInfo
	Opts       ClientOptions
	ThreadList []ThreadInfo
	ModuleList []ModuleInfo

	annotations map[string]string
	clientId    uuid.UUID
	reportId    uuid.UUID
}

func (c *Capture) Pid() int {
	return c.ProcessId
}

func (c *Capture) Exception() *ExceptionInfo {
	return &c.Exc
}

func (c *Capture) Options() ClientOptions {
	return c.Opts
}

func (c *Capture) Threads() []ThreadInfo {
	return c.ThreadList
}

func (c *Capture) Modules() []ModuleInfo {
	return c.ModuleList
}

func (c *Capture) ClientID() uuid.UUID {
	return c.clientId
}

func (c *Capture) ReportID() uuid.UUID {
	return c.reportId
}

func (c *Capture) AnnotationsSimpleMap() map[string]string {
	return c.annotations
}

func (c *Capture) SetClientID(id uuid.UUID) {
	c.clientId = id
}

func (c *Capture) SetReportID(id uuid.UUID) {
	c.reportId = id
}

func (c *Capture) SetAnnotationsSimpleMap(annotations map[string]string) {
	c.annotations = annotations
}
