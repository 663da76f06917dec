package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port           string
	Env            string
	JWTSecret      string
	TokenTTLDays   int
	CodeTTLMinutes int
	DataFile       string
	DatabaseDSN    string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPass       string
	MailFrom       string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load 从环境变量加载配置，全部带默认值，方便本地直接跑起来。
// DATABASE_DSN / SMTP_HOST 留空时分别回退到文件存储和日志邮件。
func Load() Config {
	cfg := Config{
		Port:           getenv("APP_PORT", "4000"),
		Env:            getenv("APP_ENV", "dev"),
		JWTSecret:      getenv("JWT_SECRET", "dev-secret-knchat"),
		TokenTTLDays:   getenvInt("TOKEN_TTL_DAYS", 7),
		CodeTTLMinutes: getenvInt("VERIFY_CODE_TTL_MINUTES", 10),
		DataFile:       getenv("DATA_FILE", "users.json"),
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
		SMTPHost:       os.Getenv("SMTP_HOST"),
		SMTPPort:       getenvInt("SMTP_PORT", 587),
		SMTPUser:       os.Getenv("SMTP_USER"),
		SMTPPass:       os.Getenv("SMTP_PASS"),
	}
	cfg.MailFrom = getenv("MAIL_FROM", cfg.SMTPUser)
	return cfg
}
