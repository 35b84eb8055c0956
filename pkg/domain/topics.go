package domain

// Broker topics. Every message is keyed by correlation id (aggregate id for
// the order stream), so one business transaction always lands on one partition.
const (
	TopicOrderEvents       = "order-events"
	TopicPaymentCommands   = "payment-commands"
	TopicPaymentEvents     = "payment-events"
	TopicInventoryCommands = "inventory-commands"
	TopicInventoryEvents   = "inventory-events"
	TopicShippingCommands  = "shipping-commands"
	TopicShippingEvents    = "shipping-events"
)

// Collaborator result status values.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)
