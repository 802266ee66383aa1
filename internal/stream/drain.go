package stream

// Reader is the read side of a streaming connection.
type Reader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// Drain reads and discards peer messages until the connection fails, and
// returns that error. Reading keeps control frames (ping, close) flowing.
func Drain(r Reader) error {
	for {
		if _, _, err := r.ReadMessage(); err != nil {
			return err
		}
	}
}
