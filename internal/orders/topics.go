package orders

const (
	// Lifecycle events of every order go to one topic so consumers see them in order.
	TopicOrderLifecycle = "presale.order.lifecycle"
	// Payment confirmations from the settlement side, consumed by the worker.
	TopicPaymentConfirmed = "presale.payment.confirmed"
)

// Partition key = order_id, so all events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
