package dto

// Frame is a captured image owned by whoever holds it. Close releases the pixel buffer.
type Frame interface {
	// Size returns width and height in pixels.
	Size() (width, height int)
	// Clone returns a private deep copy.
	Clone() Frame
	// Encode returns the frame as JPEG bytes at the given quality (0-100).
	Encode(quality int) ([]byte, error)
	Close() error
}
