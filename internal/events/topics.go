package events

// Topic constants for events emitted by the checkout flow.
const (
	TopicOrderSubmitted = "order.submitted"
	TopicPaymentReused  = "payment.reused"
	TopicPaymentFailed  = "payment.failed"
	TopicOrderRejected  = "order.rejected"
	TopicCartReset      = "cart.reset"
)

// DefaultTopics returns the canonical list of checkout topics.
func DefaultTopics() []string {
	return []string{
		TopicOrderSubmitted,
		TopicPaymentReused,
		TopicPaymentFailed,
		TopicOrderRejected,
		TopicCartReset,
	}
}
