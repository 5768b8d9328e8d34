package mqtt

// Fixed topic pair used by the agent bridge
const (
	// TopicCommand carries remote commands destined for the agent socket
	TopicCommand = "agent/command"

	// TopicResponse carries everything the agent writes to its socket
	TopicResponse = "agent/response"
)

// QoSAtMostOnce is the only quality of service the bridge uses
const QoSAtMostOnce byte = 0
