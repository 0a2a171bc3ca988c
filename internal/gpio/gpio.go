// Package gpio provides GPIO input reading with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the barrier sensor line.
type Reader interface {
	// Read returns the logical state of the sensor line: true when the
	// beam is interrupted. Polarity inversion (active-low sensors) is
	// applied by the implementation, so callers only see logical values.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultPin is the BCM pin the sensor output is wired to.
const DefaultPin = 27
