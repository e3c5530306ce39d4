package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mailgate/bot"
	"mailgate/impl/audit"
	"mailgate/impl/core"
	"mailgate/internal/cachekv"
	"mailgate/internal/config"
	"mailgate/internal/database"
	"mailgate/internal/http-server/api"
	"mailgate/internal/journal"
	"mailgate/lib/logger"
	"mailgate/lib/sl"
)

const logFileName = "mailgate.log"

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	log := logger.SetupLogger(conf.Env, filepath.Join(*logPath, logFileName))

	if conf.Telegram.Enabled {
		tgBot, err := bot.NewTgBot(conf.Telegram.ApiKey, conf.Telegram.ChatId, log)
		if err != nil {
			log.Error("telegram alerts disabled", sl.Err(err))
		} else {
			log = slog.New(logger.NewTelegramHandler(log.Handler(), tgBot, slog.LevelError))
		}
	}

	log.Info("starting mailgate",
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		slog.String("domain", conf.Mail.Domain),
	)

	store, err := database.NewStore(conf)
	if err != nil {
		log.Error("connect durable store", sl.Err(err))
		os.Exit(1)
	}
	defer store.Close()

	cache := cachekv.New(conf, log)
	if cache == nil {
		log.Info("cache disabled; all reads go to the store")
	}

	recorder := audit.New(store, journal.NewMongoClient(conf), log)

	handler := core.New(store, cache, recorder, core.Config{
		Domain:           conf.Mail.Domain,
		UserTTL:          time.Duration(conf.Cache.UserTTL) * time.Second,
		UserCheckTTL:     time.Duration(conf.Cache.UserCheckTTL) * time.Second,
		UserNegativeTTL:  time.Duration(conf.Cache.UserNegativeTTL) * time.Second,
		TokenSnapshotTTL: time.Duration(conf.Cache.TokenSnapshotTTL) * time.Second,
	}, log)

	if err = api.New(conf, log, handler); err != nil {
		log.Error("api server stopped", sl.Err(err))
		os.Exit(1)
	}
}
