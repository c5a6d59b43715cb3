package tooladapter

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	paymentsMu sync.Mutex
	payments   = map[string]map[string]interface{}{}
	refunds    = map[string]map[string]interface{}{}
)

// CreatePayment records a new payment. Expected params: amount,
// currency, vendor_id, and an optional memo.
func CreatePayment(params map[string]interface{}) (map[string]interface{}, error) {
	if err := requireFields(params, "amount", "currency", "vendor_id"); err != nil {
		return nil, err
	}

	paymentID := uuid.NewString()
	payment := map[string]interface{}{
		"payment_id": paymentID,
		"amount":     params["amount"],
		"currency":   params["currency"],
		"vendor_id":  params["vendor_id"],
		"status":     "created",
	}
	if memo, ok := params["memo"]; ok {
		payment["memo"] = memo
	}

	paymentsMu.Lock()
	payments[paymentID] = payment
	paymentsMu.Unlock()
	return payment, nil
}

// RefundPayment refunds a previously created payment. Expected
// params: payment_id, and an optional reason.
func RefundPayment(params map[string]interface{}) (map[string]interface{}, error) {
	if err := requireFields(params, "payment_id"); err != nil {
		return nil, err
	}
	paymentID, _ := params["payment_id"].(string)

	paymentsMu.Lock()
	_, exists := payments[paymentID]
	paymentsMu.Unlock()
	if !exists {
		return nil, fmt.Errorf("payment %s not found", paymentID)
	}

	refundID := uuid.NewString()
	refund := map[string]interface{}{
		"refund_id":  refundID,
		"payment_id": paymentID,
		"status":     "refunded",
	}
	if reason, ok := params["reason"]; ok {
		refund["reason"] = reason
	}

	paymentsMu.Lock()
	refunds[refundID] = refund
	paymentsMu.Unlock()
	return refund, nil
}
