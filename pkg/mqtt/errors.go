package mqtt

import "errors"

// Sentinel errors returned by the client. Check with errors.Is.
var (
	// ErrConnectionFailed indicates the broker connection could not be established.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected indicates an operation was attempted without a connection.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrSubscribeFailed indicates the SUBSCRIBE exchange itself failed.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrBadSubscribeResponse indicates the SUBACK was missing or did not
	// mention the requested topic.
	ErrBadSubscribeResponse = errors.New("mqtt: bad subscribe response")

	// ErrSubscriptionRejected indicates the broker answered with the 0x80
	// failure return code.
	ErrSubscriptionRejected = errors.New("mqtt: subscription rejected by broker")

	// ErrPublishFailed indicates a publish could not be delivered to the broker.
	ErrPublishFailed = errors.New("mqtt: publish failed")
)
