package domain

var forwardRank = map[string]int{
	OrderStatusPending:    0,
	OrderStatusInProgress: 1,
	OrderStatusCompleted:  2,
}

func OrderStatuses() []string {
	return []string{
		OrderStatusPending,
		OrderStatusInProgress,
		OrderStatusCompleted,
		OrderStatusCancelled,
		OrderStatusVoided,
	}
}

func IsOrderStatus(status string) bool {
	switch status {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusCompleted, OrderStatusCancelled, OrderStatusVoided:
		return true
	}
	return false
}

// IsReversal reports whether moving to status must give stock back.
func IsReversal(status string) bool {
	return status == OrderStatusCancelled || status == OrderStatusVoided
}

// IsSettled is true for orders whose total still counts toward the session cash.
func IsSettled(status string) bool {
	return status != OrderStatusCancelled && status != OrderStatusVoided
}

// CanTransition validates a move between canonical statuses. Forward moves may
// skip steps but never go back; completed only leaves through a void.
func CanTransition(from string, to string) bool {
	if !IsOrderStatus(from) || !IsOrderStatus(to) || from == to {
		return false
	}
	switch to {
	case OrderStatusCancelled:
		return from == OrderStatusPending || from == OrderStatusInProgress
	case OrderStatusVoided:
		return from == OrderStatusPending || from == OrderStatusInProgress || from == OrderStatusCompleted
	}
	fromRank, ok := forwardRank[from]
	if !ok {
		return false
	}
	return forwardRank[to] > fromRank
}
