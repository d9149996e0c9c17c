package eventpubsub

const (
	TopicPositionUpdated = "position.updated"
	TopicOrderUpdated    = "order.updated"
	TopicPropertyChanged = "property.changed"
	TopicAUMUpdated      = "aum.updated"
)
