//go:build linux

package serial

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// Port is an open serial device.
type Port struct {
	path string

	mu sync.Mutex
	fd int
}

// Open opens and configures the device in cfg.
func Open(cfg Config) (*Port, error) {
	rate, ok := baudRates[cfg.baud()]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBaud, cfg.baud())
	}

	// O_NONBLOCK keeps open from waiting on carrier detect; cleared below.
	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Device, err)
	}

	if err := configure(fd, rate); err != nil {
		unix.Close(fd) //nolint:errcheck // Already failing
		return nil, fmt.Errorf("configuring %s: %w", cfg.Device, err)
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd) //nolint:errcheck // Already failing
		return nil, fmt.Errorf("clearing O_NONBLOCK on %s: %w", cfg.Device, err)
	}

	return &Port{path: cfg.Device, fd: fd}, nil
}

// configure puts the line in raw 8N1 mode at rate with immediate reads.
func configure(fd int, rate uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios (TCGETS): %w", err)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | rate
	t.Ispeed = rate
	t.Ospeed = rate

	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("set termios (TCSETS): %w", err)
	}
	return nil
}

// Path returns the device path.
func (p *Port) Path() string { return p.path }

// ReadAvailable returns whatever bytes are pending, or nil if none are.
func (p *Port) ReadAvailable() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fd < 0 {
		return nil, ErrClosed
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := unix.Read(p.fd, buf)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return nil, nil
		case err != nil:
			return nil, fmt.Errorf("%w: read %s: %w", ErrLinkFailed, p.path, err)
		case n == 0:
			return nil, nil
		}
		return buf[:n], nil
	}
}

// Write sends p in full.
func (p *Port) Write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fd < 0 {
		return ErrClosed
	}

	for len(b) > 0 {
		n, err := unix.Write(p.fd, b)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: write %s: %w", ErrLinkFailed, p.path, err)
		}
		b = b[n:]
	}
	return nil
}

// Close releases the device. Safe to call more than once.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return err
}
