package bot

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"flowboost/ledger"
	"flowboost/roles"
	"flowboost/tier"
)

type commandHandler = func(*discordgo.InteractionCreate)

var botCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "role-create",
		Description: "Creates your personal booster role.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "name",
				Description: "The name for your role.",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "color",
				Description: "A 6-digit hex color, like #ff7700.",
				Required:    false,
			},
		},
	}, {
		Name:        "role-rename",
		Description: "Renames your booster role.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "name",
				Description: "The new name for your role.",
				Required:    true,
			},
		},
	}, {
		Name:        "role-color",
		Description: "Recolors your booster role.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "color",
				Description: "A 6-digit hex color, like #ff7700.",
				Required:    true,
			},
		},
	}, {
		Name:        "role-icon",
		Description: "Sets your booster role's icon.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "icon",
				Description: "An image URL or an emoji.",
				Required:    true,
			},
		},
	}, {
		Name:        "role-gift",
		Description: "Offers your booster role to another member.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "member",
				Description: "The member to gift your role to.",
				Required:    true,
			},
		},
	}, {
		Name:        "role-revoke",
		Description: "Takes your booster role back from a member.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "member",
				Description: "The member to take your role back from.",
				Required:    true,
			},
		},
	}, {
		Name:        "role-delete",
		Description: "Deletes your booster role.",
	}, {
		Name:        "role-info",
		Description: "Shows a member's booster role and gift quota.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "member",
				Description: "The member to look up. Defaults to you.",
				Required:    false,
			},
		},
	}, {
		Name:        "boost-channel",
		Description: "Sets the channel to use for boost announcements.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        "channel",
				Description: "The channel to use.",
				Required:    true,
			},
		},
	},
}

// Config holds the bot's static settings.
type Config struct {
	Token               string
	GuildID             string
	BoostChannelID      string
	AdvantagesChannelID string
	TestPrefix          string
}

// Bot represents an instance of the flowboost discord bot.
type Bot struct {
	cfg                Config
	session            *discordgo.Session
	db                 *gorm.DB
	ledger             *ledger.Service
	controller         *roles.Controller
	pending            *roles.PendingActions
	log                *zap.Logger
	registeredCommands []*discordgo.ApplicationCommand
	commandHandlers    map[string]commandHandler
}

func (bot *Bot) initSession(token string) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		bot.log.Fatal("Failed to create discord session.", zap.Error(err))
	}

	session.Identify.Intents = discordgo.IntentsAll

	session.AddHandler(func(*discordgo.Session, *discordgo.Ready) {
		bot.log.Info("Bot is up!")
	})

	session.AddHandler(func(
		s *discordgo.Session,
		i *discordgo.InteractionCreate,
	) {
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			if handler, ok := bot.commandHandlers[i.ApplicationCommandData().Name]; ok {
				handler(i)
			}
		case discordgo.InteractionMessageComponent:
			bot.handleComponent(i)
		}
	})

	session.AddHandler(bot.handleGuildMemberUpdate)
	session.AddHandler(bot.handleMessageCreate)

	bot.session = session
}

func (bot *Bot) registerCommands() {
	for _, command := range botCommands {
		newCommand, err := bot.session.ApplicationCommandCreate(
			bot.session.State.User.ID,
			bot.cfg.GuildID,
			command,
		)
		if err != nil {
			bot.log.Fatal(
				"Failed to create command.",
				zap.String("command", command.Name),
				zap.Error(err),
			)
		}
		bot.registeredCommands = append(bot.registeredCommands, newCommand)
		bot.log.Info("Created command.", zap.String("command", command.Name))
	}
}

// newBot wires everything that doesn't need a live gateway: the
// session with its handlers, the registry and the controller. Event
// handlers can fire as soon as the session opens, so the controller
// must be in place before New calls Open.
func newBot(
	cfg Config,
	db *gorm.DB,
	ledgerService *ledger.Service,
	policy tier.Policy,
	log *zap.Logger,
) *Bot {
	bot := &Bot{
		cfg:     cfg,
		db:      db,
		ledger:  ledgerService,
		pending: roles.NewPendingActions(roles.DefaultConfirmWindow),
		log:     log,
	}

	bot.commandHandlers = map[string]commandHandler{
		"role-create":   bot.RoleCreate,
		"role-rename":   bot.RoleRename,
		"role-color":    bot.RoleColor,
		"role-icon":     bot.RoleIcon,
		"role-gift":     bot.RoleGift,
		"role-revoke":   bot.RoleRevoke,
		"role-delete":   bot.RoleDelete,
		"role-info":     bot.RoleInfo,
		"boost-channel": bot.BoostChannel,
	}

	bot.initSession(cfg.Token)

	registry := newDiscordRegistry(bot.session, cfg.GuildID, log)
	bot.controller = roles.New(ledgerService, registry, policy, log)

	return bot
}

// New initialises a new flowboost bot and connects it to the gateway.
func New(
	cfg Config,
	db *gorm.DB,
	ledgerService *ledger.Service,
	policy tier.Policy,
	log *zap.Logger,
) *Bot {
	bot := newBot(cfg, db, ledgerService, policy, log)

	if err := bot.session.Open(); err != nil {
		bot.log.Fatal("Failed to open session.", zap.Error(err))
	}

	bot.registerCommands()

	return bot
}

// Shutdown shuts down the bot cleanly.
func (bot *Bot) Shutdown() {
	bot.log.Info("Shutting down.")

	for _, command := range bot.registeredCommands {
		err := bot.session.ApplicationCommandDelete(
			bot.session.State.User.ID,
			bot.cfg.GuildID,
			command.ID,
		)
		if err != nil {
			bot.log.Error(
				"Failed to delete command.",
				zap.String("command", command.Name),
				zap.Error(err),
			)
		} else {
			bot.log.Info("Deleted command.", zap.String("command", command.Name))
		}
	}

	bot.session.Close()
}
