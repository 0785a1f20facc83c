package models

import "strings"

// Channel is an identity verification path.
type Channel string

// Channel constants.
const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

// ParseChannel accepts "email" or "sms" in any case.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToUpper(strings.TrimSpace(s))) {
	case ChannelEmail:
		return ChannelEmail, nil
	case ChannelSMS:
		return ChannelSMS, nil
	}
	return "", &ValidationError{Field: "channel", Value: s, Reason: "must be email or sms"}
}

// EntryStep is the first step of the channel's login flow.
func (c Channel) EntryStep() Step {
	if c == ChannelSMS {
		return StepPhoneEntry
	}
	return StepEmailEntry
}

// CodeStep is the step reached once a one-time code has been sent.
func (c Channel) CodeStep() Step {
	if c == ChannelSMS {
		return StepSMSCodeEntry
	}
	return StepCodeEntry
}

// Step is a state of the login flow.
type Step string

// Step constants.
const (
	StepEmailEntry   Step = "EMAIL_ENTRY"
	StepCodeEntry    Step = "CODE_ENTRY"
	StepPhoneEntry   Step = "PHONE_ENTRY"
	StepSMSCodeEntry Step = "SMS_CODE_ENTRY"
	StepLoggedIn     Step = "LOGGED_IN"
)

// Session is a snapshot of the authentication state. Step is LOGGED_IN
// exactly when Token is non-empty.
type Session struct {
	Token         string  `json:"-"`
	Channel       Channel `json:"channel"`
	Step          Step    `json:"step"`
	IdentityLabel string  `json:"identity,omitempty"`
}

// LoggedIn reports whether the session carries a token.
func (s Session) LoggedIn() bool {
	return s.Token != ""
}
