package events

// Kafka Topics
const (
	// TopicStage1 carries chunks planned from the committed block list
	TopicStage1 = "stage1"

	// TopicStage2 carries chunks within the transmission budget
	TopicStage2 = "stage2"

	// TopicDeadLetter receives messages whose processing failed permanently
	TopicDeadLetter = "stage-deadletter"
)
