package transport

// Action names what happened to a transport in the audit trail.
type Action string

const (
	ActionOpen            Action = "open"
	ActionSubmit          Action = "submit"
	ActionPaymentProof    Action = "payment_proof"
	ActionApprovePayment  Action = "approve_payment"
	ActionRejectPayment   Action = "reject_payment"
	ActionCorrectPayment  Action = "correct_payment"
	ActionReleaseAccess   Action = "release_access"
	ActionRequestDeposit  Action = "request_deposit"
	ActionConfirmDeposit  Action = "confirm_deposit"
	ActionStartTransport  Action = "start_transport"
	ActionConfirmDelivery Action = "confirm_delivery"
	ActionConfirmPickup   Action = "confirm_pickup"
	ActionCancel          Action = "cancel"
	ActionReject          Action = "reject"
)
