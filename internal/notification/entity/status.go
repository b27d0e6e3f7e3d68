package entity

// DeliveryStatus is the outcome of handling one SMS dispatch message.
type DeliveryStatus string

const (
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
	DeliveryStatusDropped DeliveryStatus = "dropped"
	DeliveryStatusExpired DeliveryStatus = "expired"
)

func (s DeliveryStatus) String() string {
	return string(s)
}
