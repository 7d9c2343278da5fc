package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"flowboost/dal"
	"flowboost/discordutils"
)

const boostEmbedImage = "https://media.discordapp.net/attachments/470983675157151755/1229087659977085078/mf8Uagt.png"

const boostButtonEmojiID = "1229089677630505032"

func (bot *Bot) handleGuildMemberUpdate(
	s *discordgo.Session,
	e *discordgo.GuildMemberUpdate,
) {
	wasBoosting := e.BeforeUpdate != nil && e.BeforeUpdate.PremiumSince != nil
	isBoosting := e.PremiumSince != nil

	switch {
	case !wasBoosting && isBoosting:
		bot.log.Info("Member started boosting.", zap.String("user", e.User.ID))
		bot.announceBoost(e.Member, e.GuildID)
		bot.applyBoostCount(e.User.ID, bot.boostCount(e.Member))

	case wasBoosting && !isBoosting:
		bot.log.Info("Member stopped boosting.", zap.String("user", e.User.ID))
		bot.applyBoostCount(e.User.ID, 0)
	}
}

func (bot *Bot) applyBoostCount(userID string, boosts int) {
	err := bot.controller.OnTierChange(context.Background(), userID, boosts)
	if err != nil {
		bot.log.Error(
			"Failed to apply boost change; the periodic check will retry.",
			zap.String("user", userID),
			zap.Int("boosts", boosts),
			zap.Error(err),
		)
	}
}

func (bot *Bot) announceBoost(member *discordgo.Member, guildID string) {
	channelID := bot.boostChannelID(guildID)
	if channelID == "" {
		bot.log.Warn("No boost channel configured; skipping announcement.")
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "NEW Server Boost!",
		Description: fmt.Sprintf(
			"A big thanks to %v for helping out with the Flow server upgrade! "+
				"The community will really appreciate it",
			member.Mention(),
		),
		Thumbnail: &discordgo.MessageEmbedThumbnail{
			URL: member.User.AvatarURL(""),
		},
		Image: &discordgo.MessageEmbedImage{
			URL: boostEmbedImage,
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "FLOW | BOOSTING SYSTEM",
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}

	_, err := bot.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Style:    discordgo.PrimaryButton,
						Label:    "Boosting Advantages",
						CustomID: advantagesCustomID,
						Emoji: &discordgo.ComponentEmoji{
							ID: boostButtonEmojiID,
						},
					},
				},
			},
		},
	})
	if err != nil {
		bot.log.Error(
			"Failed to send boost announcement.",
			zap.String("channel", channelID),
			zap.Error(err),
		)
	}
}

// handleMessageCreate implements the admin-only testboost prefix
// command for exercising the boost flow without a real boost.
func (bot *Bot) handleMessageCreate(
	s *discordgo.Session,
	m *discordgo.MessageCreate,
) {
	if m.Author == nil || m.Author.Bot || bot.cfg.TestPrefix == "" {
		return
	}
	if !strings.HasPrefix(m.Content, bot.cfg.TestPrefix) {
		return
	}

	args := strings.Fields(strings.TrimPrefix(m.Content, bot.cfg.TestPrefix))
	if len(args) == 0 || strings.ToLower(args[0]) != "testboost" {
		return
	}

	guild, err := s.State.Guild(m.GuildID)
	if err != nil {
		return
	}

	member := m.Member
	if member != nil && member.User == nil {
		member.User = m.Author
	}
	if member == nil || !discordutils.MemberHasAdminPermissions(guild, member) {
		return
	}

	if len(args) < 2 {
		s.ChannelMessageSend(
			m.ChannelID,
			fmt.Sprintf("Usage: %vtestboost <userID> [boosts]", bot.cfg.TestPrefix),
		)
		return
	}

	userID := args[1]
	boosts := 1
	if len(args) > 2 {
		boosts, err = strconv.Atoi(args[2])
		if err != nil || boosts < 0 {
			s.ChannelMessageSend(m.ChannelID, "Boost count must be a non-negative number.")
			return
		}
	}

	target, err := s.GuildMember(m.GuildID, userID)
	if err != nil {
		s.ChannelMessageSend(m.ChannelID, "User not found.")
		return
	}

	if boosts > 0 {
		bot.announceBoost(target, m.GuildID)
	}
	bot.applyBoostCount(userID, boosts)

	s.ChannelMessageSend(
		m.ChannelID,
		fmt.Sprintf("Simulated a boost count of %v for %v.", boosts, target.Mention()),
	)
}

// CheckBoosts reconciles every ledger record against live member boost
// state, reclaiming roles whose owners stopped boosting while the bot
// was down and retrying trims that previously failed.
func (bot *Bot) CheckBoosts() {
	for _, guild := range bot.session.State.Guilds {
		members := make(map[string]*discordgo.Member, len(guild.Members))
		for _, member := range guild.Members {
			members[member.User.ID] = member
		}

		for _, record := range bot.ledger.All() {
			member, ok := members[record.OwnerID]
			if !ok {
				continue
			}

			boosts := 0
			if discordutils.MemberIsBoosting(member) {
				boosts = record.Boosts
				if boosts < 1 {
					boosts = 1
				}
			}

			if boosts == record.Boosts {
				continue
			}

			bot.applyBoostCount(record.OwnerID, boosts)
		}
	}
}

// BoostChecker runs CheckBoosts on each tick of the given ticker.
func (bot *Bot) BoostChecker(ticker *time.Ticker, done chan bool) {
	for {
		select {
		case <-done:
			bot.log.Info("Stopped boost checker.")
			return
		case <-ticker.C:
			bot.CheckBoosts()
		}
	}
}

func (bot *Bot) boostChannelID(guildID string) string {
	channelID, err := dal.GetBoostChannel(guildID, bot.db)
	if err == nil && channelID != "" {
		return channelID
	}
	return bot.cfg.BoostChannelID
}
