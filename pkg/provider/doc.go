// Package provider adapts third-party push backends to one capability.
//
// Three adapters implement Provider:
//
//   - OneSignal, a broadcast service addressed by app id and REST API key.
//   - FCM, Firebase Cloud Messaging HTTP v1, authenticated with a service
//     account through golang.org/x/oauth2/google.
//   - WebPush, the browser push standard with VAPID authentication, backed by
//     github.com/SherClockHolmes/webpush-go. Device tokens are the JSON
//     encoded PushSubscription objects browsers hand out.
//
// Adapters start unready. Initialize validates credentials and swaps them in
// atomically, so calling it again with fresh credentials hot-reloads a live
// adapter. Sends never return errors: every outcome, including partial
// delivery, is described by a SendResult. Tokens the backend reports as
// permanently gone are listed in SendResult.InvalidTokens.
//
// Every adapter talks HTTP through a client with a bounded timeout and a
// circuit breaker, so an unreachable backend costs at most one timeout per
// call and is skipped entirely while the breaker is open.
package provider
