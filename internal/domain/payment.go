package domain

// Transaction and fraud states reported by the payment provider.
const (
	TransactionCapture    = "capture"
	TransactionSettlement = "settlement"
	FraudAccept           = "accept"
)

// PaymentNotification is a verified notification from the payment provider.
// OrderID equals the ID of the tenant the payment session was created for.
type PaymentNotification struct {
	OrderID           string
	TransactionID     string
	TransactionStatus string
	FraudStatus       string
}

// Settled reports whether the notification confirms a captured payment that
// passed fraud screening.
func (n PaymentNotification) Settled() bool {
	switch n.TransactionStatus {
	case TransactionSettlement:
		return n.FraudStatus == "" || n.FraudStatus == FraudAccept
	case TransactionCapture:
		return n.FraudStatus == FraudAccept
	}
	return false
}

// PaymentSession is a checkout session opened with the payment provider.
type PaymentSession struct {
	OrderID     string
	Token       string
	RedirectURL string
}
