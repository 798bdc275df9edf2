// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/memstore"
	"github.com/keyward/keyward/pkg/errutil"
)

const validFixtures = `users:
  - username: alice
    email: alice@example.com
    password: "Secr3t!pass"
    verified: true
  - username: bob
    email: bob@example.com
    password: "Hunter2!xyz"
`

// plainHasher keeps seed tests fast.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error)    { return "plain$" + p, nil }
func (plainHasher) Verify(p, h string) (bool, error) { return h == "plain$"+p, nil }
func (plainHasher) NeedsUpgrade(string) bool         { return false }

func writeFixtures(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSeedUsers_CreatesAndMarksVerified(t *testing.T) {
	creds := memstore.New()
	seeds, err := loadSeedFile(writeFixtures(t, validFixtures))
	require.NoError(t, err)

	cmd, out := newMockCmd()
	created, err := seedUsers(context.Background(), cmd, creds, plainHasher{}, seeds.Users)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Contains(t, out.String(), "Created user alice (alice@example.com)")

	alice, err := creds.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, alice.EmailVerified)
	assert.Equal(t, "plain$Secr3t!pass", alice.PasswordHash)

	bob, err := creds.GetUserByEmail(context.Background(), "bob@example.com")
	require.NoError(t, err)
	assert.False(t, bob.EmailVerified)
}

func TestSeedUsers_IsIdempotent(t *testing.T) {
	creds := memstore.New()
	seeds, err := loadSeedFile(writeFixtures(t, validFixtures))
	require.NoError(t, err)

	cmd, out := newMockCmd()
	_, err = seedUsers(context.Background(), cmd, creds, plainHasher{}, seeds.Users)
	require.NoError(t, err)

	created, err := seedUsers(context.Background(), cmd, creds, plainHasher{}, seeds.Users)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Contains(t, out.String(), "User alice@example.com already exists, skipping")
}

type failingUsers struct {
	auth.UserRepository
	err error
}

func (f failingUsers) CreateUser(context.Context, *auth.User) error { return f.err }

func TestSeedUsers_StorageFailure(t *testing.T) {
	cmd, _ := newMockCmd()
	users := failingUsers{err: errors.New("conn reset")}

	_, err := seedUsers(context.Background(), cmd, users, plainHasher{}, []SeedUser{{Username: "a", Email: "a@example.com", Password: "x"}})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SEED_FAILED")
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, isDuplicate(auth.ErrDuplicateEmail))
	assert.True(t, isDuplicate(auth.ErrDuplicateUsername))
	assert.True(t, isDuplicate(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.False(t, isDuplicate(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}))
	assert.False(t, isDuplicate(errors.New("boom")))
}

func TestRunSeedWithDeps(t *testing.T) {
	configFile = ""
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	creds := memstore.New()
	pool := &fakePool{}
	deps := memDeps(pool, creds)

	cmd := NewSeedCmd()
	_, out := newMockCmd()
	cmd.SetOut(out)
	path := writeFixtures(t, validFixtures)
	require.NoError(t, cmd.ParseFlags([]string{"--file", path, "--database-url", testDatabaseURL}))

	require.NoError(t, runSeedWithDeps(cmd, &seedConfig{file: path, timeout: defaultSeedTimeout}, &deps))
	assert.Contains(t, out.String(), "Seeding complete: 2 created, 0 skipped")
	assert.True(t, pool.isClosed())

	user, err := creds.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	ok, err := auth.NewArgon2idHasher().Verify("Secr3t!pass", user.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok, "seeded passwords are hashed with argon2id")
}

func TestRunSeedWithDeps_RejectsInvalidFixtures(t *testing.T) {
	configFile = ""
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	deps := memDeps(&fakePool{}, memstore.New())
	path := writeFixtures(t, "users:\n  - username: alice\n    email: not-an-email\n    password: short\n")

	cmd := NewSeedCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--database-url", testDatabaseURL}))

	err := runSeedWithDeps(cmd, &seedConfig{file: path, timeout: defaultSeedTimeout}, &deps)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SEED_INVALID")
}

func TestLoadSeedFile_Errors(t *testing.T) {
	_, err := loadSeedFile(filepath.Join(t.TempDir(), "missing.yaml"))
	errutil.AssertErrorCode(t, err, "SEED_READ_FAILED")

	_, err = loadSeedFile(writeFixtures(t, "users: [unterminated"))
	errutil.AssertErrorCode(t, err, "SEED_PARSE_FAILED")
}

func TestValidateSeeds(t *testing.T) {
	seeds := &SeedFile{Users: []SeedUser{
		{Username: "alice", Email: "alice@example.com", Password: "Secr3t!pass"},
		{Username: "alice", Email: "ALICE@example.com", Password: "Secr3t!pass"},
		{Username: "carol", Email: "alice@example.com", Password: "nospecial1A"},
		{Username: "", Email: "bad", Password: ""},
	}}

	problems := validateSeeds(seeds)
	assert.Contains(t, problems, "users[1].username: duplicates users[0]")
	assert.Contains(t, problems, "users[2].email: duplicates users[0]")
	assert.Contains(t, problems, "users[2].password: "+auth.MsgPasswordSpecial)
	assert.Contains(t, problems, "users[3].username: "+auth.MsgEmpty)
	assert.Contains(t, problems, "users[3].email: "+auth.MsgInvalidEmail)
	assert.Contains(t, problems, "users[3].password: "+auth.MsgEmpty)
	assert.NotContains(t, problems, "users[1].email: duplicates users[0]", "emails compare exactly")
}

func TestValidateSeedsCommand(t *testing.T) {
	out, err := executeRoot(t, "validate-seeds", "--file", writeFixtures(t, validFixtures))
	require.NoError(t, err)
	assert.Contains(t, out, "All 2 fixtures valid")

	_, err = executeRoot(t, "validate-seeds", "--file", writeFixtures(t, "users:\n  - username: x\n    email: x\n    password: x\n"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SEED_INVALID")
}
