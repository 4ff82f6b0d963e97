// Package gpio reads the inverter's grid-relay contact with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the grid-relay contact.
type Reader interface {
	// Read returns true while the contact reports the plant feeding the grid.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Defaults for a Raspberry Pi (BCM numbering).
const (
	DefaultChip = "gpiochip0"
	DefaultLine = 26
)
