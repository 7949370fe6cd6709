//go:build linux

package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// timevalSize is the kernel's timeval on this platform: 16 bytes on 64-bit,
// 8 on 32-bit ARM.
const timevalSize = int(unsafe.Sizeof(unix.Timeval{}))

// inputEventSize is sizeof(struct input_event) for a timeval of tv bytes.
func inputEventSize(tv int) int { return tv + 8 }

// decodeInputEvent decodes one event laid out with a timeval of tv bytes in
// native byte order.
func decodeInputEvent(b []byte, tv int) (inputEvent, bool) {
	if len(b) < inputEventSize(tv) {
		return inputEvent{}, false
	}
	var ev inputEvent
	switch tv {
	case 16:
		ev.Sec = int64(binary.NativeEndian.Uint64(b[0:]))
		ev.Usec = int64(binary.NativeEndian.Uint64(b[8:]))
	case 8:
		ev.Sec = int64(int32(binary.NativeEndian.Uint32(b[0:])))
		ev.Usec = int64(int32(binary.NativeEndian.Uint32(b[4:])))
	default:
		return inputEvent{}, false
	}
	ev.Type = binary.NativeEndian.Uint16(b[tv:])
	ev.Code = binary.NativeEndian.Uint16(b[tv+2:])
	ev.Value = int32(binary.NativeEndian.Uint32(b[tv+4:]))
	return ev, true
}

// evdevWaitMS bounds each epoll_wait so Close is noticed promptly.
const evdevWaitMS = 100

// evdevInput reads the panel through the kernel input subsystem: a
// rotary-encoder overlay reporting a relative axis, and a gpio-keys overlay
// reporting the three buttons as keys.
//
// The kernel already decodes and debounces, so this backend only translates:
// relative steps go into a step counter and key press/release into levels.
type evdevInput struct {
	cfg     EvdevConfig
	files   []*os.File
	counter *stepCounter
	levels  map[ButtonSource]*atomicLevel
	keys    map[uint16]ButtonSource
	logger  *slog.Logger

	epfd int
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func openEvdevInput(cfg EvdevConfig, initial int, logger *slog.Logger) (PanelInput, error) {
	in := &evdevInput{
		cfg:     cfg,
		counter: newStepCounter(initial),
		levels:  make(map[ButtonSource]*atomicLevel, len(allSources)),
		keys: map[uint16]ButtonSource{
			uint16(cfg.KeyEncoder):   SourceEncoder,
			uint16(cfg.KeyPrimary):   SourcePrimary,
			uint16(cfg.KeySecondary): SourceSecondary,
		},
		logger: logger,
		epfd:   -1,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, src := range allSources {
		in.levels[src] = &atomicLevel{}
	}

	for _, dev := range cfg.Devices {
		f, err := os.Open(dev)
		if err != nil {
			in.closeFiles()
			return nil, fmt.Errorf("open input device %s: %w (run as root or add user to 'input' group)", dev, err)
		}
		in.files = append(in.files, f)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		in.closeFiles()
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	in.epfd = epfd

	for _, f := range in.files {
		fd := int(f.Fd())
		event := unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			unix.Close(epfd)
			in.closeFiles()
			return nil, fmt.Errorf("epoll_ctl_add %s: %w", f.Name(), err)
		}
	}

	go in.run()

	logger.Info("evdev input ready", "devices", cfg.Devices, "rel_code", cfg.RelCode)
	return in, nil
}

// run is the single reader goroutine for every device.
func (in *evdevInput) run() {
	defer close(in.done)

	fdToFile := make(map[int]*os.File, len(in.files))
	for _, f := range in.files {
		fdToFile[int(f.Fd())] = f
	}

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	evSize := inputEventSize(timevalSize)
	buf := make([]byte, evSize*64)

	for {
		select {
		case <-in.stop:
			return
		default:
		}

		n, err := unix.EpollWait(in.epfd, epollEvents, evdevWaitMS)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			in.logger.Error("epoll_wait failed; input stopped", "error", err)
			in.releaseAll()
			return
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f := fdToFile[fd]
			if f == nil {
				continue
			}

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				in.dropDevice(fd, f, errors.New("device error/hangup"))
				delete(fdToFile, fd)
				continue
			}

			nr, err := f.Read(buf)
			if err != nil {
				in.dropDevice(fd, f, err)
				delete(fdToFile, fd)
				continue
			}

			// The kernel only returns whole events.
			for off := 0; off+evSize <= nr; off += evSize {
				if ev, ok := decodeInputEvent(buf[off:off+evSize], timevalSize); ok {
					in.handle(ev)
				}
			}
		}
	}
}

// handle translates one kernel event.
func (in *evdevInput) handle(ev inputEvent) {
	switch ev.Type {
	case EV_REL:
		if int(ev.Code) != in.cfg.RelCode {
			return
		}
		steps := int(ev.Value)
		if in.cfg.Invert {
			steps = -steps
		}
		in.counter.Add(steps)

	case EV_KEY:
		src, ok := in.keys[ev.Code]
		if !ok {
			return
		}
		switch ev.Value {
		case evValuePress, evValueRepeat:
			in.levels[src].Set(true)
		case evValueRelease:
			in.levels[src].Set(false)
		}
	}
}

// dropDevice stops watching a failed device. Its buttons read as released.
func (in *evdevInput) dropDevice(fd int, f *os.File, cause error) {
	in.logger.Error("input device failed; ignoring it", "device", f.Name(), "error", cause)
	_ = unix.EpollCtl(in.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	in.releaseAll()
}

func (in *evdevInput) releaseAll() {
	for _, l := range in.levels {
		l.Set(false)
	}
}

func (in *evdevInput) Counter() DetentCounter { return in.counter }

func (in *evdevInput) Button(src ButtonSource) LevelReader {
	if l, ok := in.levels[src]; ok {
		return l
	}
	return &atomicLevel{}
}

func (in *evdevInput) Close() error {
	in.once.Do(func() {
		close(in.stop)
		<-in.done
		unix.Close(in.epfd)
		in.closeFiles()
	})
	return nil
}

func (in *evdevInput) closeFiles() {
	for _, f := range in.files {
		f.Close()
	}
	in.files = nil
}
