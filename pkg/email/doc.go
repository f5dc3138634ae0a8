// Package email sends transactional email through Postmark, or to local files
// in development.
//
//	var sender email.EmailSender
//	if cfg.Enabled() {
//		sender = email.MustNewPostmarkClient(cfg)
//	} else {
//		sender = email.NewDevSender(cfg.DevOutputDir)
//	}
//
// Email is sent from a queue worker so request paths never wait on Postmark:
//
//	worker.RegisterHandler(email.NewSendHandler(sender))
//	_ = enqueuer.Enqueue(ctx, email.SendEmailParams{...}, queue.WithQueue(email.QueueName))
//
// Bodies are rendered by the templates subpackage.
package email
