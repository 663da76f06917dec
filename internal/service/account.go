package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kaanhena/knchat-server/internal/auth"
	"github.com/kaanhena/knchat-server/internal/config"
	"github.com/kaanhena/knchat-server/internal/mail"
	"github.com/kaanhena/knchat-server/internal/models"
	"github.com/kaanhena/knchat-server/internal/store"
)

var (
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9._]{3,64}$`)
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// AccountService 封装注册、验证、登录的账号状态机。
// mu 把所有“读-判断-写”串行化为一个同步点，并发重复注册不再有竞态。
type AccountService struct {
	mu     sync.Mutex
	store  store.Store
	mailer mail.Sender
	cfg    config.Config
}

func NewAccountService(st store.Store, mailer mail.Sender, cfg config.Config) *AccountService {
	return &AccountService{store: st, mailer: mailer, cfg: cfg}
}

// Identity 是对外暴露的身份信息，永远不包含哈希和验证码。
type Identity struct {
	ID       string `json:"-"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AuthResult 是验证或登录成功后签发的 token 与身份。
type AuthResult struct {
	Token string
	User  Identity
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register 创建（或原地重置）未验证账号并外发 6 位验证码。
// 已验证邮箱冲突返回 ErrEmailTaken；用户名被其他账号占用返回 ErrUsernameTaken。
func (s *AccountService) Register(ctx context.Context, username, email, password string) error {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	if !usernameRe.MatchString(username) {
		return fmt.Errorf("%w: username must be 3+ letters, digits, '.' or '_'", ErrValidation)
	}
	if !emailRe.MatchString(email) {
		return fmt.Errorf("%w: malformed email", ErrValidation)
	}
	if len(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.FindByEmail(email)
	if err != nil && err != store.ErrNotFound {
		return err
	}
	if existing != nil && existing.Verified {
		return ErrEmailTaken
	}
	if other, err := s.store.FindByUsername(username); err == nil && other.Email != email {
		return ErrUsernameTaken
	} else if err != nil && err != store.ErrNotFound {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	code, err := generateCode()
	if err != nil {
		return err
	}
	now := time.Now()

	acc := existing
	if acc == nil {
		acc = &models.Account{ID: uuid.NewString(), Email: email, CreatedAt: now}
	}
	// 未验证账号重复注册：保留 id 和 createdAt，其余原地覆盖。
	acc.Username = username
	acc.PasswordHash = hash
	acc.Verified = false
	acc.VerifyCode = code
	acc.CodeIssuedAt = &now

	if err := s.store.Upsert(acc); err != nil {
		log.Error().Err(err).Str("email", email).Msg("register persist")
		return fmt.Errorf("persist account: %w", err)
	}
	// 邮件发不出去必须让注册失败，否则用户拿不到验证码却以为成功了。
	body := fmt.Sprintf("KnChat verification code: %s", code)
	if err := s.mailer.Send(ctx, email, "KnChat Account Verification Code", body); err != nil {
		log.Error().Err(err).Str("email", email).Msg("register send code")
		return fmt.Errorf("dispatch verification code: %w", err)
	}
	return nil
}

// Verify 用验证码把账号从 unverified 推进到 verified，并签发会话 token。
// 这是状态机里唯一的前向迁移，没有反向迁移。
func (s *AccountService) Verify(email, code string) (*AuthResult, error) {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.store.FindByEmail(email)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if acc.VerifyCode == "" || acc.VerifyCode != code {
		return nil, ErrInvalidCode
	}
	if acc.CodeIssuedAt != nil && time.Since(*acc.CodeIssuedAt) > time.Duration(s.cfg.CodeTTLMinutes)*time.Minute {
		return nil, ErrCodeExpired
	}

	acc.Verified = true
	acc.VerifyCode = ""
	acc.CodeIssuedAt = nil
	if err := s.store.Upsert(acc); err != nil {
		log.Error().Err(err).Str("email", email).Msg("verify persist")
		return nil, fmt.Errorf("persist account: %w", err)
	}
	return s.issue(acc)
}

// Login 校验已验证账号的凭据并签发新 token，identifier 可以是用户名或邮箱。
func (s *AccountService) Login(identifier, password string) (*AuthResult, error) {
	identifier = strings.TrimSpace(identifier)
	var acc *models.Account
	var err error
	if strings.Contains(identifier, "@") {
		acc, err = s.store.FindByEmail(normalizeEmail(identifier))
	} else {
		acc, err = s.store.FindByUsername(identifier)
	}
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !acc.Verified {
		return nil, ErrNotVerified
	}
	if !auth.VerifyPassword(acc.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(acc)
}

func (s *AccountService) issue(acc *models.Account) (*AuthResult, error) {
	token, err := auth.GenerateToken(acc, s.cfg.JWTSecret, s.cfg.TokenTTLDays)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &AuthResult{
		Token: token,
		User:  Identity{ID: acc.ID, Username: acc.Username, Email: acc.Email},
	}, nil
}
