package bot

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxIconBytes = 256 * 1024

// discordRegistry adapts discordgo to the roles.Registry contract.
// Discord rate limits role mutations aggressively, so every call
// passes through a shared limiter before hitting the API.
type discordRegistry struct {
	session *discordgo.Session
	guildID string
	limiter *rate.Limiter
	client  *http.Client
	log     *zap.Logger
}

func newDiscordRegistry(
	session *discordgo.Session,
	guildID string,
	log *zap.Logger,
) *discordRegistry {
	return &discordRegistry{
		session: session,
		guildID: guildID,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

func (r *discordRegistry) CreateRole(
	ctx context.Context,
	ownerID string,
	name string,
	color int,
) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}

	role, err := r.session.GuildRoleCreate(
		r.guildID,
		&discordgo.RoleParams{
			Name:  name,
			Color: &color,
		},
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return "", err
	}

	// The owner wears their own role.
	err = r.session.GuildMemberRoleAdd(
		r.guildID, ownerID, role.ID, discordgo.WithContext(ctx),
	)
	if err != nil {
		// Best effort: don't leave an orphaned role behind.
		if cleanupErr := r.session.GuildRoleDelete(r.guildID, role.ID); cleanupErr != nil {
			r.log.Error(
				"Failed to clean up role after grant failure.",
				zap.String("role", role.ID),
				zap.Error(cleanupErr),
			)
		}
		return "", err
	}

	return role.ID, nil
}

func (r *discordRegistry) RenameRole(ctx context.Context, roleID, name string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := r.session.GuildRoleEdit(
		r.guildID, roleID,
		&discordgo.RoleParams{Name: name},
		discordgo.WithContext(ctx),
	)
	return err
}

func (r *discordRegistry) RecolorRole(ctx context.Context, roleID string, color int) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := r.session.GuildRoleEdit(
		r.guildID, roleID,
		&discordgo.RoleParams{Color: &color},
		discordgo.WithContext(ctx),
	)
	return err
}

func (r *discordRegistry) SetRoleIcon(ctx context.Context, roleID, icon string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	params := &discordgo.RoleParams{}
	if strings.Contains(icon, "://") {
		data, err := r.fetchIconData(ctx, icon)
		if err != nil {
			return fmt.Errorf("fetch icon: %w", err)
		}
		params.Icon = &data
	} else {
		params.UnicodeEmoji = &icon
	}

	_, err := r.session.GuildRoleEdit(
		r.guildID, roleID, params, discordgo.WithContext(ctx),
	)
	return err
}

func (r *discordRegistry) DeleteRole(ctx context.Context, roleID string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	return r.session.GuildRoleDelete(r.guildID, roleID, discordgo.WithContext(ctx))
}

func (r *discordRegistry) GrantRole(ctx context.Context, roleID, userID string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	return r.session.GuildMemberRoleAdd(
		r.guildID, userID, roleID, discordgo.WithContext(ctx),
	)
}

func (r *discordRegistry) RevokeRole(ctx context.Context, roleID, userID string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	return r.session.GuildMemberRoleRemove(
		r.guildID, userID, roleID, discordgo.WithContext(ctx),
	)
}

// fetchIconData downloads an icon image and encodes it as the data URI
// the role endpoint expects.
func (r *discordRegistry) fetchIconData(ctx context.Context, iconURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %v", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIconBytes))
	if err != nil {
		return "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	return fmt.Sprintf(
		"data:%v;base64,%v",
		contentType,
		base64.StdEncoding.EncodeToString(body),
	), nil
}
