package interfaces

// Publisher delivers events to rooms and single sessions.
type Publisher interface {
	// Publish delivers to every current member of room and returns how many
	// sessions the frame was handed to. Unknown rooms are a silent no-op.
	Publish(room, event string, payload interface{}) int

	// PublishToSession is the unicast form; false when the session is gone.
	PublishToSession(sessionID, event string, payload interface{}) bool

	// RoomSize returns the current member count of room.
	RoomSize(room string) int
}
