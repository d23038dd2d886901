package serial

// DefaultBaud matches the microcontroller firmware's UART setting.
const DefaultBaud = 9600

// Config describes the port to open.
type Config struct {
	// Device is the tty path, e.g. /dev/ttyACM0.
	Device string

	// Baud is the line rate. Zero uses DefaultBaud.
	Baud int
}

func (c Config) baud() int {
	if c.Baud <= 0 {
		return DefaultBaud
	}
	return c.Baud
}

// readBufferSize bounds one ReadAvailable call.
const readBufferSize = 256
