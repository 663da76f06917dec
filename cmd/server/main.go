package main

import (
	"github.com/rs/zerolog/log"

	"github.com/kaanhena/knchat-server/internal/config"
	clog "github.com/kaanhena/knchat-server/internal/log"
	"github.com/kaanhena/knchat-server/internal/mail"
	"github.com/kaanhena/knchat-server/internal/server"
	"github.com/kaanhena/knchat-server/internal/service"
	"github.com/kaanhena/knchat-server/internal/store"
	"github.com/kaanhena/knchat-server/internal/ws"
)

func main() {
	// main 函数负责加载配置、初始化日志、选择存储后端并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)

	var st store.Store
	var err error
	if cfg.DatabaseDSN != "" {
		st, err = store.NewGormStore(cfg.DatabaseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres store")
		}
		log.Info().Msg("using postgres store")
	} else {
		st, err = store.NewFileStore(cfg.DataFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DataFile).Msg("file store")
		}
		log.Info().Str("path", cfg.DataFile).Msg("using file store")
	}

	var mailer mail.Sender
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
	} else {
		log.Warn().Msg("SMTP_HOST not set, verification codes go to the log")
		mailer = mail.LogSender{}
	}

	accounts := service.NewAccountService(st, mailer, cfg)

	hub := ws.NewHub()
	go hub.Run()

	r := server.SetupRouter(cfg, accounts, hub)
	log.Info().Str("port", cfg.Port).Msg("knchat server listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
