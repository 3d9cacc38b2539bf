package events

// Topics emitted by the storefront.
const (
	TopicOrderCreated = "order.created"
	TopicBookReviewed = "book.reviewed"
)
