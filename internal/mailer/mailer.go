package mailer

// Mailer delivers a message to an email address. Sends are blocking and may
// fail on transport problems; callers decide how a failed send affects the
// operation outcome.
type Mailer interface {
	Send(toEmail, toName, subject, body string) error
}
