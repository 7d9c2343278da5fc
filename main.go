package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"flowboost/bot"
	"flowboost/dal"
	"flowboost/keepalive"
	"flowboost/ledger"
	"flowboost/tier"
)

var (
	botToken = flag.String(
		"token",
		"",
		"Bot access token. Falls back to the DISCORD_TOKEN environment variable.",
	)
	guildID = flag.String(
		"guild",
		"",
		"Guild ID to operate in.",
	)
	dbPath = flag.String(
		"dbPath",
		"roles.db",
		"SQLite database file path.",
	)
	boostChannel = flag.String(
		"boostChannel",
		"",
		"Fallback channel ID for boost announcements. Can be overridden with /boost-channel.",
	)
	advantagesChannel = flag.String(
		"advantagesChannel",
		"",
		"Channel ID linked from the boosting advantages button.",
	)
	keepAliveAddr = flag.String(
		"keepAlive",
		":8080",
		"Address for the keepalive HTTP server. Empty disables it.",
	)
	testPrefix = flag.String(
		"testPrefix",
		"?",
		"Prefix for the admin-only testboost message command. Empty disables it.",
	)
)

func init() {
	flag.Parse()

	if *botToken == "" {
		*botToken = os.Getenv("DISCORD_TOKEN")
	}

	okay := true

	if *botToken == "" {
		fmt.Println("-token (or DISCORD_TOKEN) must be provided.")
		okay = false
	}

	if *guildID == "" {
		fmt.Println("-guild must be provided.")
		okay = false
	}

	if !okay {
		fmt.Println()
		flag.Usage()
		os.Exit(1)
	}
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db := dal.InitDB(*dbPath, logger)

	ledgerService, err := ledger.New(dal.NewStore(db), logger)
	if err != nil {
		logger.Fatal("Failed to load role ledger.", zap.Error(err))
	}

	flowBot := bot.New(
		bot.Config{
			Token:               *botToken,
			GuildID:             *guildID,
			BoostChannelID:      *boostChannel,
			AdvantagesChannelID: *advantagesChannel,
			TestPrefix:          *testPrefix,
		},
		db,
		ledgerService,
		tier.DefaultPolicy(),
		logger,
	)
	defer flowBot.Shutdown()

	keepalive.Start(*keepAliveAddr, logger)

	ticker := time.NewTicker(1 * time.Hour)
	done := make(chan bool)
	go flowBot.BoostChecker(ticker, done)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	done <- true
	ledgerService.Flush()
}
