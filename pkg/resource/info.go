package resource

import (
	"github.com/corwinn/h3r-sub000/pkg/stream"
	"github.com/corwinn/h3r-sub000/pkg/task"
)

// Info is handed back by every Manager operation and filled in by the IO
// worker. Status may be polled at any time; the other accessors are valid
// once Manager.TaskComplete reports true.
type Info struct {
	name    string
	stream  stream.Stream
	success bool
	err     error
	loaded  []string
	rep     task.Reporter
}

func newInfo(name, message string) *Info {
	i := &Info{name: name}
	i.rep.Publish(0, message, nil)
	return i
}

// Name is the path or resource name the operation was started with.
func (i *Info) Name() string { return i.name }

// Stream is the resource found by GetResource. It is the backend's reused
// stream: the next GetResource may invalidate it.
func (i *Info) Stream() stream.Stream { return i.stream }

// Success reports whether the operation achieved what it was asked to.
func (i *Info) Success() bool { return i.success }

// Err describes a failed operation.
func (i *Info) Err() error { return i.err }

// Loaded lists the archives activated by Load or LoadDir.
func (i *Info) Loaded() []string { return i.loaded }

// Status returns the operation's current progress.
func (i *Info) Status() *task.State { return i.rep.Status() }
