package auth

import (
	"context"
	"net/url"
	"strings"
)

// NotificationKind selects the email template downstream
type NotificationKind string

const (
	NotifyCustomerVerification      NotificationKind = "customer_verification"
	NotifyCourierVerification       NotificationKind = "courier_verification"
	NotifyCourierPendingApproval    NotificationKind = "courier_pending_approval"
	NotifyCourierEmployeeApproval   NotificationKind = "courier_employee_approval"
	NotifyCourierFreelancerApproval NotificationKind = "courier_freelancer_approval"
	NotifyCourierAccountReady       NotificationKind = "courier_account_ready"
	NotifyPasswordReset             NotificationKind = "password_reset"
)

var notificationSubjects = map[NotificationKind]string{
	NotifyCustomerVerification:      "Verify your email",
	NotifyCourierVerification:       "Verify your courier email",
	NotifyCourierPendingApproval:    "Your courier application is under review",
	NotifyCourierEmployeeApproval:   "Welcome aboard, set up your courier account",
	NotifyCourierFreelancerApproval: "You're approved, set up your courier account",
	NotifyCourierAccountReady:       "Your courier account is ready",
	NotifyPasswordReset:             "Reset your password",
}

// Notification is a request to send one email
type Notification struct {
	Kind      NotificationKind  `json:"kind"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Variables map[string]string `json:"variables,omitempty"`
}

// NewNotification fills the default subject for kind
func NewNotification(kind NotificationKind, recipient string, vars map[string]string) Notification {
	return Notification{
		Kind:      kind,
		Recipient: recipient,
		Subject:   notificationSubjects[kind],
		Variables: vars,
	}
}

// Notifier is the email collaborator. Implementations should not block
// the caller on network I/O.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Send(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, Notification) error { return nil }

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// sendNotification never fails the caller
func sendNotification(ctx context.Context, notifier Notifier, logger Logger, n Notification) {
	if err := normalizeNotifier(notifier).Send(ctx, n); err != nil {
		normalizeLogger(logger).Error("failed to send %s notification: %v", n.Kind, err)
	}
}

// LinkBuilder renders the frontend links embedded in emails
type LinkBuilder struct {
	base string
}

func NewLinkBuilder(frontendURL string) LinkBuilder {
	return LinkBuilder{base: strings.TrimRight(frontendURL, "/")}
}

func (l LinkBuilder) CustomerVerification(token string) string {
	return l.withToken("/verify/customer", token)
}

func (l LinkBuilder) CourierVerification(token string) string {
	return l.withToken("/verify/courier", token)
}

func (l LinkBuilder) AccountSetup(token string) string {
	return l.withToken("/account-setup", token)
}

func (l LinkBuilder) PasswordReset(token string) string {
	return l.withToken("/password-reset", token)
}

// CourierVerificationResult is where the browser lands after clicking the
// courier verification link
func (l LinkBuilder) CourierVerificationResult(success bool) string {
	if success {
		return l.base + "/verify/courier?success=true"
	}
	return l.base + "/verify/courier?success=false"
}

func (l LinkBuilder) withToken(path, token string) string {
	return l.base + path + "?token=" + url.QueryEscape(token)
}
