package push

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// SendCreatorBroadcast sends msg to the followers of one of the actor's
// podcasts, or of all of them when PodcastID is empty. Admins may broadcast
// for any podcast. The actor never receives their own broadcast, and an
// empty audience fails with ErrBadRequest.
func (d *Dispatcher) SendCreatorBroadcast(ctx context.Context, actor Actor, msg CreatorBroadcast) (*PushNotificationLog, error) {
	if actor.TenantID == "" || actor.UserID == "" || !actor.canBroadcast() {
		return nil, fmt.Errorf("%w: role %q cannot broadcast", ErrForbidden, actor.Role)
	}
	if strings.TrimSpace(msg.Title) == "" || strings.TrimSpace(msg.Body) == "" {
		return nil, fmt.Errorf("%w: title and body are required", ErrBadRequest)
	}

	var podcasts []string
	if msg.PodcastID != "" {
		owner, err := d.audience.PodcastOwner(ctx, actor.TenantID, msg.PodcastID)
		if err != nil {
			return nil, err
		}
		if owner != actor.UserID && actor.Role != RoleAdmin {
			return nil, fmt.Errorf("%w: podcast %s belongs to another creator", ErrForbidden, msg.PodcastID)
		}
		podcasts = []string{msg.PodcastID}
	} else {
		owned, err := d.audience.OwnedPodcasts(ctx, actor.TenantID, actor.UserID)
		if err != nil {
			return nil, fmt.Errorf("list owned podcasts: %w", err)
		}
		podcasts = owned
	}
	if len(podcasts) == 0 {
		return nil, fmt.Errorf("%w: actor owns no podcasts", ErrBadRequest)
	}

	followers, err := d.audience.Followers(ctx, actor.TenantID, podcasts)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	followers = slices.DeleteFunc(followers, func(id string) bool { return id == actor.UserID })
	if len(followers) == 0 {
		return nil, fmt.Errorf("%w: broadcast audience is empty", ErrBadRequest)
	}

	data := map[string]any{"type": "creator_broadcast"}
	if msg.PodcastID != "" {
		data["podcast_id"] = msg.PodcastID
	}
	return d.SendPush(ctx, actor.TenantID, SendRequest{
		Title:      msg.Title,
		Body:       msg.Body,
		ImageURL:   msg.ImageURL,
		Data:       data,
		TargetType: TargetUserIDs,
		UserIDs:    followers,
		CreatedBy:  actor.UserID,
	})
}
