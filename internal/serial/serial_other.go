//go:build !linux

package serial

// Port is an open serial device.
type Port struct{}

// Open always fails on this platform.
func Open(Config) (*Port, error) {
	return nil, ErrUnsupported
}

// Path returns the device path.
func (p *Port) Path() string { return "" }

// ReadAvailable always fails on this platform.
func (p *Port) ReadAvailable() ([]byte, error) { return nil, ErrUnsupported }

// Write always fails on this platform.
func (p *Port) Write([]byte) error { return ErrUnsupported }

// Close is a no-op on this platform.
func (p *Port) Close() error { return nil }
