package push

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/pushkit/pkg/email"
	"github.com/dmitrymomot/pushkit/pkg/email/templates"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/notifications"
	"github.com/dmitrymomot/pushkit/pkg/queue"
)

// Enqueuer puts jobs on a queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) error
}

// NewEpisodeEvent is published when an episode goes live.
type NewEpisodeEvent struct {
	TenantID     string
	PodcastID    string
	PodcastTitle string
	EpisodeID    string
	EpisodeTitle string
}

// CommentEvent is published when someone comments on a recipient's episode.
// RecipientEmail is optional; without it no email is sent.
type CommentEvent struct {
	TenantID       string
	CommentID      string
	EpisodeID      string
	EpisodeTitle   string
	AuthorID       string
	AuthorName     string
	RecipientID    string
	RecipientName  string
	RecipientEmail string
	Excerpt        string
	URL            string
}

// FollowEvent is published when a user follows a podcast.
type FollowEvent struct {
	TenantID     string
	PodcastID    string
	PodcastTitle string
	FollowerID   string
	FollowerName string
}

// Triggers turn domain events into in-app notification, push and email jobs.
// Recipients who turned a category off are skipped without error.
type Triggers struct {
	registry *Registry
	audience Audience
	queue    Enqueuer
	attempts int
	logger   *slog.Logger
}

func NewTriggers(registry *Registry, audience Audience, q Enqueuer, opts ...Option) *Triggers {
	o := newOptions(opts)
	return &Triggers{
		registry: registry,
		audience: audience,
		queue:    q,
		attempts: o.attempts,
		logger:   o.logger.With(logger.Component("push.triggers")),
	}
}

// SendNewEpisodeNotification notifies the podcast's followers.
func (t *Triggers) SendNewEpisodeNotification(ctx context.Context, ev NewEpisodeEvent) error {
	owner, err := t.audience.PodcastOwner(ctx, ev.TenantID, ev.PodcastID)
	if err != nil {
		return err
	}
	followers, err := t.audience.Followers(ctx, ev.TenantID, []string{ev.PodcastID})
	if err != nil {
		return fmt.Errorf("list followers: %w", err)
	}

	title := "New episode of " + ev.PodcastTitle
	data := map[string]any{"podcast_id": ev.PodcastID, "episode_id": ev.EpisodeID}

	var recipients []string
	for _, user := range followers {
		if user == owner {
			continue
		}
		ok, err := t.wants(ctx, ev.TenantID, user, CategoryNewEpisodes)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := t.notify(ctx, notifications.SendPayload{
			ID:       notificationID(ev.TenantID, notifications.TypeNewEpisode, ev.EpisodeID, user),
			TenantID: ev.TenantID,
			UserID:   user,
			Type:     notifications.TypeNewEpisode,
			Title:    title,
			Message:  ev.EpisodeTitle,
			Data:     data,
		}); err != nil {
			return err
		}
		recipients = append(recipients, user)
	}
	if len(recipients) == 0 {
		return nil
	}

	return t.push(ctx, ev.TenantID, SendRequest{
		Title:      title,
		Body:       ev.EpisodeTitle,
		Data:       data,
		TargetType: TargetUserIDs,
		UserIDs:    recipients,
	})
}

// SendCommentNotification notifies the episode owner and, when an address is
// known, emails them.
func (t *Triggers) SendCommentNotification(ctx context.Context, ev CommentEvent) error {
	if ev.RecipientID == ev.AuthorID {
		return nil
	}
	ok, err := t.wants(ctx, ev.TenantID, ev.RecipientID, CategoryComments)
	if err != nil || !ok {
		return err
	}

	title := ev.AuthorName + " commented on " + ev.EpisodeTitle
	data := map[string]any{"episode_id": ev.EpisodeID, "comment_id": ev.CommentID}

	if err := t.notify(ctx, notifications.SendPayload{
		ID:       notificationID(ev.TenantID, notifications.TypeComment, ev.CommentID, ev.RecipientID),
		TenantID: ev.TenantID,
		UserID:   ev.RecipientID,
		Type:     notifications.TypeComment,
		Title:    title,
		Message:  ev.Excerpt,
		Data:     data,
	}); err != nil {
		return err
	}
	if err := t.push(ctx, ev.TenantID, SendRequest{
		Title:      title,
		Body:       ev.Excerpt,
		Data:       data,
		TargetType: TargetUserIDs,
		UserIDs:    []string{ev.RecipientID},
	}); err != nil {
		return err
	}

	if ev.RecipientEmail == "" {
		return nil
	}
	body, err := templates.Render(templates.Comment, templates.CommentData{
		RecipientName: ev.RecipientName,
		AuthorName:    ev.AuthorName,
		EpisodeTitle:  ev.EpisodeTitle,
		Excerpt:       ev.Excerpt,
		URL:           ev.URL,
	})
	if err != nil {
		return err
	}
	if err := t.queue.Enqueue(ctx, email.SendEmailParams{
		SendTo:   ev.RecipientEmail,
		Subject:  title,
		BodyHTML: body,
		Tag:      "comment",
	}, queue.WithQueue(email.QueueName), queue.WithMaxAttempts(t.attempts)); err != nil {
		return fmt.Errorf("enqueue comment email: %w", err)
	}
	return nil
}

// SendFollowNotification notifies the podcast owner of a new follower.
func (t *Triggers) SendFollowNotification(ctx context.Context, ev FollowEvent) error {
	owner, err := t.audience.PodcastOwner(ctx, ev.TenantID, ev.PodcastID)
	if err != nil {
		return err
	}
	if owner == ev.FollowerID {
		return nil
	}
	ok, err := t.wants(ctx, ev.TenantID, owner, CategoryFollows)
	if err != nil || !ok {
		return err
	}

	title := "New follower"
	message := ev.FollowerName + " followed " + ev.PodcastTitle
	data := map[string]any{"podcast_id": ev.PodcastID, "follower_id": ev.FollowerID}

	if err := t.notify(ctx, notifications.SendPayload{
		ID:       notificationID(ev.TenantID, notifications.TypeFollow, ev.PodcastID+":"+ev.FollowerID, owner),
		TenantID: ev.TenantID,
		UserID:   owner,
		Type:     notifications.TypeFollow,
		Title:    title,
		Message:  message,
		Data:     data,
	}); err != nil {
		return err
	}
	return t.push(ctx, ev.TenantID, SendRequest{
		Title:      title,
		Body:       message,
		Data:       data,
		TargetType: TargetUserIDs,
		UserIDs:    []string{owner},
	})
}

func (t *Triggers) wants(ctx context.Context, tenantID, userID string, c Category) (bool, error) {
	settings, err := t.registry.GetSettings(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	if !settings.Wants(c) {
		t.logger.DebugContext(ctx, "notification category disabled",
			logger.TenantID(tenantID),
			logger.UserID(userID),
			slog.String("category", string(c)),
		)
		return false, nil
	}
	return true, nil
}

func (t *Triggers) notify(ctx context.Context, p notifications.SendPayload) error {
	if err := t.queue.Enqueue(ctx, p,
		queue.WithQueue(notifications.QueueName),
		queue.WithMaxAttempts(t.attempts),
	); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func (t *Triggers) push(ctx context.Context, tenantID string, req SendRequest) error {
	if err := t.queue.Enqueue(ctx, DispatchPayload{TenantID: tenantID, Request: req},
		queue.WithQueue(notifications.QueueName),
		queue.WithMaxAttempts(t.attempts),
	); err != nil {
		return fmt.Errorf("enqueue push dispatch: %w", err)
	}
	return nil
}

// notificationID derives a stable id so a re-run trigger maps to the rows
// already created.
func notificationID(tenantID string, kind notifications.Type, sourceID, userID string) string {
	name := tenantID + "/" + string(kind) + "/" + sourceID + "/" + userID
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
