package events

const (
	TopicAudit = "checkout.audit" // satu topic, ordered per correlation id
)

// Partition key = correlation id (cart/order), supaya semua event
// satu checkout maintain urutan.
func PartitionKey(correlationID string) []byte { return []byte(correlationID) }
