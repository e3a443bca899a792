package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Directory is the external credential store the login flow delegates to.
type Directory interface {
	// CheckCredentials returns ErrInvalidCredentials on any mismatch.
	CheckCredentials(ctx context.Context, email, password string) (Identity, error)
	// LookupIdentity returns ErrUnknownIdentity when subject no longer exists.
	LookupIdentity(ctx context.Context, subject string) (Identity, error)
}

type Provisioner interface {
	UpsertUser(ctx context.Context, email, password, role string) error
}

const RoleAdmin = "admin"

func BootstrapFromEnv(ctx context.Context, provisioner Provisioner, adminEmail, adminPassword string) error {
	adminEmail = normalizeEmail(adminEmail)
	adminPassword = strings.TrimSpace(adminPassword)

	if adminEmail == "" && adminPassword == "" {
		return nil
	}
	if adminEmail == "" || adminPassword == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}

	return provisioner.UpsertUser(ctx, adminEmail, adminPassword, RoleAdmin)
}

type memoryUser struct {
	identity     Identity
	passwordHash []byte
}

// MemoryDirectory keeps bcrypt-hashed users in process memory.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byEmail map[string]memoryUser
	cost    int
}

var (
	_ Directory   = (*MemoryDirectory)(nil)
	_ Provisioner = (*MemoryDirectory)(nil)
)

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byEmail: make(map[string]memoryUser),
		cost:    bcrypt.DefaultCost,
	}
}

func (d *MemoryDirectory) WithCost(cost int) *MemoryDirectory {
	d.cost = cost
	return d
}

func (d *MemoryDirectory) UpsertUser(_ context.Context, email, password, role string) error {
	email = normalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.byEmail[email]
	if !ok {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate uuid v7: %w", err)
		}
		user.identity = Identity{ID: id.String(), Email: email}
	}
	user.identity.Role = role
	user.passwordHash = hash
	d.byEmail[email] = user

	return nil
}

func (d *MemoryDirectory) CheckCredentials(_ context.Context, email, password string) (Identity, error) {
	d.mu.RLock()
	user, ok := d.byEmail[normalizeEmail(email)]
	d.mu.RUnlock()

	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.passwordHash, []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	return user.identity, nil
}

func (d *MemoryDirectory) LookupIdentity(_ context.Context, subject string) (Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, user := range d.byEmail {
		if user.identity.ID == subject {
			return user.identity, nil
		}
	}
	return Identity{}, ErrUnknownIdentity
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
