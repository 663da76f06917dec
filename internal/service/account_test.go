package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kaanhena/knchat-server/internal/auth"
	"github.com/kaanhena/knchat-server/internal/config"
	"github.com/kaanhena/knchat-server/internal/store"
)

type sentMail struct {
	To   string
	Body string
}

// fakeSender 记录外发邮件，fail=true 时模拟 SMTP 故障。
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

func (f *fakeSender) Send(_ context.Context, to, _ string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, sentMail{To: to, Body: body})
	return nil
}

func testConfig() config.Config {
	return config.Config{JWTSecret: "test-secret", TokenTTLDays: 7, CodeTTLMinutes: 10}
}

func newTestService(t *testing.T) (*AccountService, store.Store, *fakeSender) {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	sender := &fakeSender{}
	return NewAccountService(st, sender, testConfig()), st, sender
}

func issuedCode(t *testing.T, st store.Store, email string) string {
	t.Helper()
	acc, err := st.FindByEmail(email)
	if err != nil {
		t.Fatalf("FindByEmail(%s) error = %v", email, err)
	}
	if acc.VerifyCode == "" {
		t.Fatalf("no pending code for %s", email)
	}
	return acc.VerifyCode
}

func TestRegisterVerifyLogin_RoundTrip(t *testing.T) {
	svc, st, sender := newTestService(t)

	if err := svc.Register(context.Background(), "alice", "a@x.com", "secret1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].To != "a@x.com" {
		t.Fatalf("expected one mail to a@x.com, got %+v", sender.sent)
	}

	code := issuedCode(t, st, "a@x.com")
	result, err := svc.Verify("a@x.com", code)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if result.User.Username != "alice" || result.User.Email != "a@x.com" {
		t.Errorf("Verify() user = %+v", result.User)
	}

	// 验证成功后 pendingCode 必须清空
	acc, _ := st.FindByEmail("a@x.com")
	if !acc.Verified || acc.VerifyCode != "" || acc.CodeIssuedAt != nil {
		t.Errorf("account after verify = %+v", acc)
	}

	// 用户名登录，token 解码后身份一致
	login, err := svc.Login("alice", "secret1")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	claims, err := auth.ParseToken(login.Token, "test-secret")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Username != "alice" || claims.Email != "a@x.com" {
		t.Errorf("claims = %+v", claims)
	}

	// 邮箱登录同样可用
	if _, err := svc.Login("a@x.com", "secret1"); err != nil {
		t.Errorf("Login(by email) error = %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)

	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"short username", "ab", "a@x.com", "secret1"},
		{"bad username chars", "al ice!", "a@x.com", "secret1"},
		{"malformed email", "alice", "not-an-email", "secret1"},
		{"email without domain dot", "alice", "a@x", "secret1"},
		{"short password", "alice", "a@x.com", "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Register(context.Background(), tt.username, tt.email, tt.password)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Register() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestRegister_VerifiedEmailConflict(t *testing.T) {
	svc, st, _ := newTestService(t)

	if err := svc.Register(context.Background(), "alice", "a@x.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Verify("a@x.com", issuedCode(t, st, "a@x.com")); err != nil {
		t.Fatal(err)
	}

	// 已验证账号绝不允许被覆盖
	err := svc.Register(context.Background(), "alice2", "a@x.com", "another1")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("Register() error = %v, want ErrEmailTaken", err)
	}
	acc, _ := st.FindByEmail("a@x.com")
	if acc.Username != "alice" || !acc.Verified {
		t.Errorf("verified account was mutated: %+v", acc)
	}
}

func TestRegister_UnverifiedOverwriteInPlace(t *testing.T) {
	svc, st, _ := newTestService(t)

	if err := svc.Register(context.Background(), "alice", "a@x.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	first, _ := st.FindByEmail("a@x.com")

	if err := svc.Register(context.Background(), "alice_2", "a@x.com", "secret2"); err != nil {
		t.Fatalf("re-register error = %v", err)
	}
	second, _ := st.FindByEmail("a@x.com")

	if second.ID != first.ID {
		t.Errorf("re-register changed account id: %s -> %s", first.ID, second.ID)
	}
	if second.Username != "alice_2" {
		t.Errorf("username = %s, want alice_2", second.Username)
	}
	accs, _ := st.List()
	if len(accs) != 1 {
		t.Errorf("re-register accumulated %d rows, want 1", len(accs))
	}

	// 旧验证码作废，新验证码生效（last-writer-wins）
	if first.VerifyCode != second.VerifyCode {
		if _, err := svc.Verify("a@x.com", first.VerifyCode); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("stale code accepted, err = %v", err)
		}
	}
	if _, err := svc.Verify("a@x.com", second.VerifyCode); err != nil {
		t.Errorf("fresh code rejected: %v", err)
	}
}

func TestRegister_UsernameTaken(t *testing.T) {
	svc, _, _ := newTestService(t)

	if err := svc.Register(context.Background(), "alice", "a@x.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	err := svc.Register(context.Background(), "alice", "b@x.com", "secret1")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("Register() error = %v, want ErrUsernameTaken", err)
	}
}

func TestRegister_MailFailureFailsCall(t *testing.T) {
	svc, st, sender := newTestService(t)
	sender.fail = true

	err := svc.Register(context.Background(), "alice", "a@x.com", "secret1")
	if err == nil {
		t.Fatal("Register() reported success with undeliverable code")
	}
	// 账号不能因此变成已验证
	if acc, ferr := st.FindByEmail("a@x.com"); ferr == nil && acc.Verified {
		t.Error("mail failure left account verified")
	}
}

func TestVerify_WrongCodeDoesNotConsume(t *testing.T) {
	svc, st, _ := newTestService(t)
	if err := svc.Register(context.Background(), "alice", "a@x.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	code := issuedCode(t, st, "a@x.com")

	for i := 0; i < 3; i++ {
		if _, err := svc.Verify("a@x.com", "000000"); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("Verify(wrong) error = %v, want ErrInvalidCode", err)
		}
	}
	// 错误尝试不作废正确验证码
	if _, err := svc.Verify("a@x.com", code); err != nil {
		t.Errorf("Verify(correct after wrong attempts) error = %v", err)
	}
}

func TestVerify_UnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Verify("ghost@x.com", "123456"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Verify() error = %v, want ErrUserNotFound", err)
	}
}

func TestVerify_CodeExpired(t *testing.T) {
	svc, st, _ := newTestService(t)
	if err := svc.Register(context.Background(), "alice", "a@x.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	acc, _ := st.FindByEmail("a@x.com")
	code := acc.VerifyCode
	stale := time.Now().Add(-time.Hour)
	acc.CodeIssuedAt = &stale
	if err := st.Upsert(acc); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Verify("a@x.com", code); !errors.Is(err, ErrCodeExpired) {
		t.Errorf("Verify() error = %v, want ErrCodeExpired", err)
	}
}

func TestVerify_TrimsAndNormalizes(t *testing.T) {
	svc, st, _ := newTestService(t)
	if err := svc.Register(context.Background(), "alice", "  A@X.COM  ", "secret1"); err != nil {
		t.Fatal(err)
	}
	code := issuedCode(t, st, "a@x.com")
	if _, err := svc.Verify(" A@x.Com ", "  "+code+"  "); err != nil {
		t.Errorf("Verify() with unnormalized input error = %v", err)
	}
}

func TestLogin_BeforeVerifyForbidden(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.Register(context.Background(), "alice", "a@x.com", "secret1"); err != nil {
		t.Fatal(err)
	}

	// 凭据对不对都一样：未验证一律拒绝
	if _, err := svc.Login("alice", "secret1"); !errors.Is(err, ErrNotVerified) {
		t.Errorf("Login(correct pw) error = %v, want ErrNotVerified", err)
	}
	if _, err := svc.Login("alice", "wrong-pw"); !errors.Is(err, ErrNotVerified) {
		t.Errorf("Login(wrong pw) error = %v, want ErrNotVerified", err)
	}
}

func TestLogin_Failures(t *testing.T) {
	svc, st, _ := newTestService(t)
	if err := svc.Register(context.Background(), "alice", "a@x.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Verify("a@x.com", issuedCode(t, st, "a@x.com")); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Login("ghost", "secret1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Login(unknown) error = %v, want ErrUserNotFound", err)
	}
	if _, err := svc.Login("alice", "wrong-pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login(bad pw) error = %v, want ErrInvalidCredentials", err)
	}
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	svc, st, _ := newTestService(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// 所有请求串行通过同一个同步点，不允许 panic 或重复行
			_ = svc.Register(context.Background(), "alice", "a@x.com", "secret1")
		}()
	}
	wg.Wait()

	accs, _ := st.List()
	if len(accs) != 1 {
		t.Fatalf("concurrent register left %d rows, want 1", len(accs))
	}
	// 最后写入的验证码必须可用
	if _, err := svc.Verify("a@x.com", accs[0].VerifyCode); err != nil {
		t.Errorf("Verify(last-written code) error = %v", err)
	}
}
