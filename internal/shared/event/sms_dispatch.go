package event

import "time"

const SMSDispatchDestination string = "sms_dispatch"
const SMSDispatchConsumerNotification string = "sms_dispatch_notification"

// SMSDispatchMessage asks the notification consumer to deliver a verification code.
// Messages read after ExpiresAt are dropped unsent.
type SMSDispatchMessage struct {
	ChallengeID int64     `json:"challenge_id"`
	PhoneNumber string    `json:"phone_number"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
}

const SMSUndeliveredDestination string = "sms_undelivered"
const SMSUndeliveredConsumerPhoneAuth string = "sms_undelivered_phoneauth"

// SMSUndeliveredMessage reports a code the provider never accepted, so the
// challenge it belongs to can be withdrawn.
type SMSUndeliveredMessage struct {
	ChallengeID int64  `json:"challenge_id"`
	PhoneNumber string `json:"phone_number"`
	Reason      string `json:"reason"`
}
