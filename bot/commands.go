package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"flowboost/dal"
	"flowboost/discordutils"
	"flowboost/roles"
)

const (
	advantagesCustomID = "boosting_advantages"
	acceptPrefix       = "role-accept:"
)

// RoleCreate creates the caller's personal booster role.
func (bot *Bot) RoleCreate(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session)

	if !discordutils.MemberIsBoosting(i.Member) {
		discordutils.SendFollowup(
			"Custom roles are a booster perk. Boost the server first!",
			i.Interaction,
			bot.session,
		)
		return
	}

	opts := optionMap(i)
	name := opts["name"].StringValue()

	var color string
	if opt, ok := opts["color"]; ok {
		color = opt.StringValue()
	}

	err := bot.controller.Create(
		context.Background(),
		i.Member.User.ID,
		name,
		color,
		bot.boostCount(i.Member),
	)

	bot.reply(i, err, fmt.Sprintf(
		"Your custom role **%v** is ready. Wear it with pride!", name,
	))
}

// RoleRename renames the caller's booster role.
func (bot *Bot) RoleRename(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session)

	name := optionMap(i)["name"].StringValue()
	err := bot.controller.Rename(context.Background(), i.Member.User.ID, name)

	bot.reply(i, err, fmt.Sprintf("Renamed your role to **%v**.", name))
}

// RoleColor recolors the caller's booster role.
func (bot *Bot) RoleColor(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session)

	color := optionMap(i)["color"].StringValue()
	err := bot.controller.Recolor(context.Background(), i.Member.User.ID, color)

	bot.reply(i, err, fmt.Sprintf("Recolored your role to %v.", color))
}

// RoleIcon sets the caller's booster role icon.
func (bot *Bot) RoleIcon(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session)

	icon := optionMap(i)["icon"].StringValue()
	err := bot.controller.SetIcon(context.Background(), i.Member.User.ID, icon)

	bot.reply(i, err, "Updated your role's icon.")
}

// RoleGift offers the caller's booster role to another member. The
// gift only goes through once the recipient accepts within the
// confirmation window.
func (bot *Bot) RoleGift(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session)

	ownerID := i.Member.User.ID
	recipient := optionMap(i)["member"].UserValue(nil)

	info, ok := bot.controller.Lookup(ownerID)
	if !ok || info.Record.RoleID == "" {
		bot.reply(i, roles.ErrNoRoleOwned, "")
		return
	}
	if recipient.ID == ownerID {
		bot.reply(i, roles.ErrSelfGift, "")
		return
	}
	if info.Remaining == 0 {
		bot.reply(i, roles.ErrQuotaExceeded, "")
		return
	}

	bot.pending.Offer(recipient.ID, giftAction(ownerID), func(ctx context.Context) error {
		return bot.controller.Gift(ctx, ownerID, recipient.ID)
	})

	expires := time.Now().Add(bot.pending.Window())
	discordutils.SendFollowupWithComponents(
		fmt.Sprintf(
			"%v, %v wants to gift you their custom role! The offer expires %v.",
			recipient.Mention(),
			i.Member.Mention(),
			humanize.Time(expires),
		),
		[]discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Style:    discordgo.PrimaryButton,
						Label:    "Accept",
						CustomID: acceptCustomID(ownerID, recipient.ID),
					},
				},
			},
		},
		i.Interaction,
		bot.session,
	)
}

// RoleRevoke takes the caller's booster role back from a member.
func (bot *Bot) RoleRevoke(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session)

	recipient := optionMap(i)["member"].UserValue(nil)
	err := bot.controller.Revoke(context.Background(), i.Member.User.ID, recipient.ID)

	bot.reply(i, err, fmt.Sprintf(
		"Took your role back from %v.", recipient.Mention(),
	))
}

// RoleDelete deletes the caller's booster role.
func (bot *Bot) RoleDelete(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session)

	err := bot.controller.Delete(context.Background(), i.Member.User.ID)

	bot.reply(i, err, "Deleted your custom role.")
}

// RoleInfo shows a member's booster role standing.
func (bot *Bot) RoleInfo(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session)

	user := i.Member.User
	if opt, ok := optionMap(i)["member"]; ok {
		user = opt.UserValue(nil)
	}

	var reply string

	info, ok := bot.controller.Lookup(user.ID)
	if !ok || info.Record.RoleID == "" {
		reply = fmt.Sprintf("%v doesn't have a custom role.", user.Mention())
	} else {
		reply = fmt.Sprintf(
			"%v owns <@&%v> (tier %v), with %v of %v gifts used.",
			user.Mention(),
			info.Record.RoleID,
			info.Tier,
			len(info.Record.GiftedTo),
			info.Quota,
		)
	}

	discordutils.SendFollowup(reply, i.Interaction, bot.session)
}

// BoostChannel sets the channel used for boost announcements.
func (bot *Bot) BoostChannel(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session)

	guild, err := bot.session.State.Guild(i.GuildID)
	if err != nil {
		bot.log.Error(
			"Received an interaction from an unknown guild.",
			zap.String("guild", i.GuildID),
		)
		return
	}

	var reply string

	if discordutils.MemberHasAdminPermissions(guild, i.Member) {
		channel := optionMap(i)["channel"].ChannelValue(nil)

		err := dal.UpsertBoostChannel(guild.ID, channel.ID, bot.db)
		if err != nil {
			reply = fmt.Sprintf("Failed to set new channel: %v", err)
		} else {
			reply = fmt.Sprintf(
				"I will now use %v for boost announcements.",
				channel.Mention(),
			)
		}
	} else {
		reply = "Nice try."
	}

	discordutils.SendFollowup(reply, i.Interaction, bot.session)
}

func (bot *Bot) handleComponent(i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID

	switch {
	case customID == advantagesCustomID:
		discordutils.RespondEphemeral(
			fmt.Sprintf(
				"Check the boosting advantages from here: <#%v>",
				bot.cfg.AdvantagesChannelID,
			),
			i.Interaction,
			bot.session,
		)

	case strings.HasPrefix(customID, acceptPrefix):
		bot.handleGiftAccept(i, customID)
	}
}

func (bot *Bot) handleGiftAccept(i *discordgo.InteractionCreate, customID string) {
	parts := strings.Split(customID, ":")
	if len(parts) != 3 {
		return
	}
	ownerID, recipientID := parts[1], parts[2]

	if i.Member.User.ID != recipientID {
		discordutils.RespondEphemeral(
			"This gift isn't for you.",
			i.Interaction,
			bot.session,
		)
		return
	}

	confirmed, err := bot.pending.Confirm(
		context.Background(),
		recipientID,
		giftAction(ownerID),
	)

	var reply string
	switch {
	case !confirmed:
		reply = "That offer has expired or was already used."
	case err == nil:
		reply = "Enjoy your new role!"
	case roles.IsUserError(err):
		reply = upperFirst(err.Error()) + "."
	default:
		bot.log.Error(
			"Failed to complete gift.",
			zap.String("owner", ownerID),
			zap.String("recipient", recipientID),
			zap.Error(err),
		)
		reply = "Something went wrong on Discord's side. Ask for the gift again!"
	}

	discordutils.RespondEphemeral(reply, i.Interaction, bot.session)
}

// boostCount derives a member's current boost count. Discord only
// exposes whether a member is boosting, so the count is the ledger's
// cached value when one exists, otherwise one boost.
func (bot *Bot) boostCount(member *discordgo.Member) int {
	if !discordutils.MemberIsBoosting(member) {
		return 0
	}
	if record, ok := bot.ledger.Read(member.User.ID); ok && record.Boosts > 0 {
		return record.Boosts
	}
	return 1
}

func (bot *Bot) reply(i *discordgo.InteractionCreate, err error, success string) {
	var reply string
	switch {
	case err == nil:
		reply = success
	case roles.IsUserError(err):
		reply = upperFirst(err.Error()) + "."
	default:
		bot.log.Error(
			"Command failed against the platform.",
			zap.String("command", i.ApplicationCommandData().Name),
			zap.String("user", i.Member.User.ID),
			zap.Error(err),
		)
		reply = "Something went wrong on Discord's side. Please try again."
	}

	discordutils.SendFollowup(reply, i.Interaction, bot.session)
}

func giftAction(ownerID string) string {
	return "gift:" + ownerID
}

func acceptCustomID(ownerID, recipientID string) string {
	return acceptPrefix + ownerID + ":" + recipientID
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func optionMap(
	i *discordgo.InteractionCreate,
) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	mapped := make(
		map[string]*discordgo.ApplicationCommandInteractionDataOption,
		len(options),
	)
	for _, opt := range options {
		mapped[opt.Name] = opt
	}
	return mapped
}
