// Package auth is the credential and token authority of the delivery
// platform. It mints and verifies signed bearer tokens, keeps the
// single use verification tokens and the rotating refresh tokens, and
// runs the two account flows built on top of them.
//
// Accounts:
//   - An Account is shared by every role. Customers get a CustomerAuth
//     flow: register, verify email, log in. Their account is enabled the
//     moment the email is verified.
//   - Couriers go through CourierOnboarding. OnboardingStateMachine guards
//     the stage graph submitted, email_verified, approved, credentials_set
//     and emits an activity event on every transition. The account only
//     gets a username and password, and is only enabled, at the last step.
//
// Tokens:
//   - TokenService signs HS256 JWTs carrying typ (access or refresh), env,
//     role, username and email. The issuer is app name and environment,
//     tokens minted for another environment are rejected at the gate.
//   - VerificationTokenStore keeps at most one live token per account and
//     type. Tokens are consumed in the transaction that applies the change
//     they authorize.
//   - RefreshTokenStore rotates refresh tokens with a conditional update,
//     so a token can only be redeemed once.
//
// HTTP:
//   - NewAuthGate returns the router middleware that turns a bearer token
//     into a Principal. RequireRole and RequireAuthenticated guard routes.
//   - AuthController mounts the public routes under /api/v1/auth.
//
// Side effects:
//   - Notifier and ActivitySink are best effort collaborators. Their
//     failures are logged and never roll back a committed change. The
//     notify package ships queue, breaker and kafka implementations.
package auth
