package bootstrap

import (
	"context"
	"strings"
	"testing"
	"time"

	cardsfeature "github.com/MacielDouglas/direcciones-sub001/internal/app/features/cards"
	usersfeature "github.com/MacielDouglas/direcciones-sub001/internal/app/features/users"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/policy/userpolicy"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"github.com/MacielDouglas/direcciones-sub001/internal/testutil/memstore"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validConfig() AppConfig {
	return AppConfig{
		MongoURI:         "mongodb://localhost:27017",
		MongoDatabase:    "direcciones",
		JWTSecret:        strings.Repeat("j", 40),
		JWTTTL:           time.Hour,
		BcryptCost:       10,
		SessionKey:       strings.Repeat("k", 40),
		SessionName:      "direcciones-session",
		HistoryRetention: 24 * time.Hour,
		AuditLogAuth:     "all",
		AuditLogChanges:  "db",
	}
}

func TestValidateConfig(t *testing.T) {
	dev := &config.CoreConfig{Env: "dev"}
	prod := &config.CoreConfig{Env: "prod"}

	tests := []struct {
		name    string
		core    *config.CoreConfig
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", dev, func(*AppConfig) {}, ""},
		{"valid with redis", dev, func(c *AppConfig) { c.RedisURL = "redis://localhost:6379/0" }, ""},
		{"no database", dev, func(c *AppConfig) { c.MongoDatabase = "" }, "mongo_database"},
		{"short jwt secret", dev, func(c *AppConfig) { c.JWTSecret = "short" }, "jwt_secret"},
		{"zero ttl", dev, func(c *AppConfig) { c.JWTTTL = 0 }, "jwt_ttl"},
		{"no session key", dev, func(c *AppConfig) { c.SessionKey = "" }, "session_key"},
		{"bcrypt too low", dev, func(c *AppConfig) { c.BcryptCost = 1 }, "bcrypt_cost"},
		{"bcrypt too high", dev, func(c *AppConfig) { c.BcryptCost = 40 }, "bcrypt_cost"},
		{"bad redis url", dev, func(c *AppConfig) { c.RedisURL = "tcp://what" }, "redis_url"},
		{"bad audit mode", dev, func(c *AppConfig) { c.AuditLogChanges = "sometimes" }, "audit_log"},
		{"bad auth audit mode", dev, func(c *AppConfig) { c.AuditLogAuth = "" }, "audit_log_auth"},
		{"dev jwt secret allowed in dev", dev, func(c *AppConfig) { c.JWTSecret = devJWTSecret }, ""},
		{"dev jwt secret refused in prod", prod, func(c *AppConfig) { c.JWTSecret = devJWTSecret }, "production"},
		{"dev session key refused in prod", prod, func(c *AppConfig) { c.SessionKey = devSessionKey }, "production"},
		{"short session key refused in prod", prod, func(c *AppConfig) { c.SessionKey = "tiny" }, "production"},
		{"strong secrets in prod", prod, func(*AppConfig) {}, ""},
		{"admin with group", dev, func(c *AppConfig) { c.AdminEmail, c.AdminGroup = "boss@example.com", "1" }, ""},
		{"admin without group", dev, func(c *AppConfig) { c.AdminEmail, c.AdminGroup = "boss@example.com", "0" }, "admin_group"},
		{"admin with blank group", dev, func(c *AppConfig) { c.AdminEmail, c.AdminGroup = "boss@example.com", "" }, "admin_group"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(tt.core, cfg, testLogger())
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestMaintenanceJobs(t *testing.T) {
	cfg := validConfig()
	cfg.HistoryPruneInterval = 2 * time.Hour
	cfg.ReconcileInterval = 0

	jobs := maintenanceJobs(cfg, nil, nil, nil, nil, testLogger())
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}

	want := map[string]time.Duration{
		"history-prune":       2 * time.Hour,
		"reference-reconcile": time.Hour, // zero falls back to the default
	}
	for _, j := range jobs {
		interval, known := want[j.Name]
		if !known {
			t.Errorf("unexpected job %q", j.Name)
			continue
		}
		if j.Interval != interval {
			t.Errorf("%s: interval = %v, want %v", j.Name, j.Interval, interval)
		}
		if j.Run == nil {
			t.Errorf("%s: no Run func", j.Name)
		}
	}
}

func TestEnsureAdmin(t *testing.T) {
	tests := []struct {
		name      string
		existing  *models.User
		email     string
		wantGroup string
		wantAdmin bool
	}{
		{
			name:      "default group member moves into admin group",
			existing:  &models.User{Name: "ana", Email: "ana@example.com", Group: models.DefaultGroup, IsSS: true},
			email:     "ana@example.com",
			wantGroup: "7",
			wantAdmin: true,
		},
		{
			name:      "member of a real group stays there",
			existing:  &models.User{Name: "ana", Email: "ana@example.com", Group: "3"},
			email:     "ana@example.com",
			wantGroup: "3",
			wantAdmin: true,
		},
		{
			name:      "already admin in a group",
			existing:  &models.User{Name: "ana", Email: "ana@example.com", Group: "3", IsAdmin: true},
			email:     "ana@example.com",
			wantGroup: "3",
			wantAdmin: true,
		},
		{name: "not registered", email: "ghost@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.NewUsers()
			var id primitive.ObjectID
			if tt.existing != nil {
				id = store.Put(*tt.existing).ID
			}

			if err := ensureAdmin(context.Background(), store, tt.email, "7", testLogger()); err != nil {
				t.Fatalf("ensureAdmin failed: %v", err)
			}
			if tt.existing == nil {
				return
			}
			u, _ := store.Get(id)
			if u.Group != tt.wantGroup {
				t.Errorf("group = %q, want %q", u.Group, tt.wantGroup)
			}
			if u.IsAdmin != tt.wantAdmin {
				t.Errorf("isAdmin = %v, want %v", u.IsAdmin, tt.wantAdmin)
			}
		})
	}
}

func TestEnsureAdmin_RefusesDefaultGroup(t *testing.T) {
	store := memstore.NewUsers()
	store.Put(models.User{Name: "ana", Email: "ana@example.com", Group: models.DefaultGroup})

	if err := ensureAdmin(context.Background(), store, "ana@example.com", " ", testLogger()); err == nil {
		t.Fatal("expected error for a blank admin group")
	}
}

// From an empty directory: two registrations, admin bootstrap, then the
// admin places the other account into the group.
func TestEnsureAdmin_AdminCanPlaceMembers(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewUsers()
	cards := cardsfeature.NewService(cardsfeature.Deps{
		Cards:     memstore.NewCards(),
		Addresses: memstore.NewAddresses(),
		Users:     store,
		Notifier:  &memstore.Notifier{},
	})
	svc := usersfeature.NewService(usersfeature.Deps{
		Users:     store,
		Cards:     cards,
		Passwords: auth.NewPasswordService(4),
	})

	boss, err := svc.Register(ctx, usersfeature.RegisterInput{Name: "Boss", Email: "boss@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("register boss: %v", err)
	}
	ana, err := svc.Register(ctx, usersfeature.RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("register ana: %v", err)
	}

	if err := ensureAdmin(ctx, store, "boss@example.com", "7", testLogger()); err != nil {
		t.Fatalf("ensureAdmin failed: %v", err)
	}
	boss, _ = store.Get(boss.ID)
	if boss.Group != "7" || !boss.IsAdmin {
		t.Fatalf("boss = group %q admin %v, want group 7 admin", boss.Group, boss.IsAdmin)
	}

	group := "7"
	placed, err := svc.Designate(ctx, auth.PrincipalFromUser(boss), ana.ID.Hex(), userpolicy.Designation{Group: &group})
	if err != nil {
		t.Fatalf("designate ana: %v", err)
	}
	if placed.Group != "7" {
		t.Errorf("ana group = %q, want 7", placed.Group)
	}
}

func TestBuildHandler_RequiresStartup(t *testing.T) {
	_, err := BuildHandler(&config.CoreConfig{Env: "dev"}, validConfig(), DBDeps{}, testLogger())
	if err == nil {
		t.Fatal("expected error when Startup has not run")
	}
}

func TestStartup_RequiresConnectDB(t *testing.T) {
	err := Startup(context.Background(), &config.CoreConfig{Env: "dev"}, validConfig(), DBDeps{}, testLogger())
	if err == nil {
		t.Fatal("expected error when ConnectDB has not run")
	}
}
