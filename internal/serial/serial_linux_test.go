//go:build linux

package serial

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// openPTY allocates a pseudo-terminal pair. The slave stands in for the
// microcontroller's tty; the test drives the master side.
func openPTY(t *testing.T) (*os.File, string) {
	t.Helper()

	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		t.Skipf("no pseudo-terminal support: %v", err)
	}

	fd := int(master.Fd())
	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		master.Close()
		t.Skipf("TIOCGPTN: %v", err)
	}
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		t.Skipf("TIOCSPTLCK: %v", err)
	}
	return master, fmt.Sprintf("/dev/pts/%d", n)
}

func readAvailableUntil(t *testing.T, p *Port) []byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := p.ReadAvailable()
		if err != nil {
			t.Fatalf("ReadAvailable() error = %v", err)
		}
		if len(data) > 0 {
			return data
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for serial data")
	return nil
}

func TestOpen_ReadAndWrite(t *testing.T) {
	master, slave := openPTY(t)
	defer master.Close()

	p, err := Open(Config{Device: slave, Baud: 115200})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer p.Close()

	if p.Path() != slave {
		t.Errorf("Path() = %q, want %q", p.Path(), slave)
	}

	t.Run("empty read returns immediately", func(t *testing.T) {
		start := time.Now()
		data, err := p.ReadAvailable()
		if err != nil || data != nil {
			t.Errorf("ReadAvailable() = %q, %v; want nil, nil", data, err)
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Errorf("ReadAvailable() blocked for %v", elapsed)
		}
	})

	t.Run("bytes from device", func(t *testing.T) {
		if _, err := master.Write([]byte("@PDS3?1?")); err != nil {
			t.Fatalf("master Write() error = %v", err)
		}
		if got := string(readAvailableUntil(t, p)); got != "@PDS3?1?" {
			t.Errorf("ReadAvailable() = %q, want @PDS3?1?", got)
		}
	})

	t.Run("bytes to device", func(t *testing.T) {
		if err := p.Write([]byte("@HAL3?1?")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		master.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test
		buf := make([]byte, 32)
		n, err := master.Read(buf)
		if err != nil {
			t.Fatalf("master Read() error = %v", err)
		}
		if got := string(buf[:n]); got != "@HAL3?1?" {
			t.Errorf("device received %q, want @HAL3?1?", got)
		}
	})
}

func TestPort_HangupIsFatal(t *testing.T) {
	master, slave := openPTY(t)

	p, err := Open(Config{Device: slave})
	if err != nil {
		master.Close()
		t.Fatalf("Open() error = %v", err)
	}
	defer p.Close()

	master.Close()

	_, err = p.ReadAvailable()
	if !errors.Is(err, ErrLinkFailed) {
		t.Errorf("ReadAvailable() after hangup error = %v, want ErrLinkFailed", err)
	}
}

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "unsupported baud",
			cfg:     Config{Device: "/dev/null", Baud: 12345},
			wantErr: ErrUnsupportedBaud,
		},
		{
			name:    "missing device",
			cfg:     Config{Device: filepath.Join(t.TempDir(), "ttyACM9")},
			wantErr: unix.ENOENT,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Open(tt.cfg)
			if p != nil {
				p.Close()
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Open() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpen_NotATerminal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(Config{Device: path}); err == nil {
		t.Error("Open() on a regular file succeeded, want termios error")
	}
}

func TestPort_Close(t *testing.T) {
	master, slave := openPTY(t)
	defer master.Close()

	p, err := Open(Config{Device: slave})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := p.ReadAvailable(); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadAvailable() after Close error = %v, want ErrClosed", err)
	}
	if err := p.Write([]byte("@HAL1?1?")); !errors.Is(err, ErrClosed) {
		t.Errorf("Write() after Close error = %v, want ErrClosed", err)
	}
}

func TestConfig_DefaultBaud(t *testing.T) {
	if got := (Config{}).baud(); got != DefaultBaud {
		t.Errorf("baud() = %d, want %d", got, DefaultBaud)
	}
	if _, ok := baudRates[DefaultBaud]; !ok {
		t.Errorf("DefaultBaud %d has no termios constant", DefaultBaud)
	}
}
