package enums

// OutboxEventType identifies the domain event carried by an outbox row.
type OutboxEventType string

const (
	EventOrderPlaced         OutboxEventType = "order.placed"
	EventOrderPaid           OutboxEventType = "order.paid"
	EventOrderStatusChanged  OutboxEventType = "order.status_changed"
	EventOrderCancelled      OutboxEventType = "order.cancelled"
	EventPaymentSettled      OutboxEventType = "payment.settled"
	EventPayoutRequested     OutboxEventType = "payout.requested"
	EventPayoutStatusChanged OutboxEventType = "payout.status_changed"
)

// OutboxAggregateType identifies the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder  OutboxAggregateType = "order"
	AggregatePayout OutboxAggregateType = "payout"
)
