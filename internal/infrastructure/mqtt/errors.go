package mqtt

import "errors"

var (
	// ErrNotConnected is returned for operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for QoS levels other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrUnexpectedTopic is returned by handlers given a topic outside
	// the pattern they were subscribed with.
	ErrUnexpectedTopic = errors.New("mqtt: unexpected topic")

	// ErrPublisherClosed is returned by AsyncPublisher after Close.
	ErrPublisherClosed = errors.New("mqtt: publisher closed")
)
