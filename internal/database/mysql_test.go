package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momento/entity"
	"momento/internal/config"
)

func TestMySQLDSN(t *testing.T) {
	dsn := mysqlDSN(config.MySQLConfig{
		Host:     "db.local",
		Port:     "3307",
		User:     "momento",
		Password: "p@ss:word",
		Database: "codes",
	})

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "db.local:3307", parsed.Addr)
	assert.Equal(t, "momento", parsed.User)
	assert.Equal(t, "p@ss:word", parsed.Passwd)
	assert.Equal(t, "codes", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.True(t, parsed.ClientFoundRows)
	assert.Equal(t, time.UTC, parsed.Loc)
}

func TestMySQLDuplicateKey(t *testing.T) {
	assert.True(t, isDuplicateKey(&mysql.MySQLError{Number: errDuplicateEntry}))
	assert.True(t, isDuplicateKey(fmt.Errorf("insert: %w", &mysql.MySQLError{Number: errDuplicateEntry})))
	assert.False(t, isDuplicateKey(&mysql.MySQLError{Number: 1146}))
	assert.False(t, isDuplicateKey(errors.New("boom")))
	assert.False(t, isDuplicateKey(nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))

	// "é" is two bytes, "日" three
	assert.Equal(t, "a", truncate("aé", 2))
	assert.Equal(t, "aé", truncate("aé", 3))
	assert.Equal(t, "x", truncate("x日本", 3))
	assert.Equal(t, "x日", truncate("x日本", 4))
	assert.Equal(t, "", truncate("日本", 2))

	agent := strings.Repeat("a", 511) + "日本"
	cut := truncate(agent, 512)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, strings.Repeat("a", 511), cut)
}

func setupTestMySQL(t *testing.T) *MySql {
	host := os.Getenv("MOMENTO_TEST_MYSQL_HOST")
	if host == "" {
		t.Skip("MOMENTO_TEST_MYSQL_HOST not set")
	}
	conf := &config.Config{MySQL: config.MySQLConfig{
		Enabled:  true,
		Host:     host,
		Port:     "3306",
		User:     os.Getenv("MOMENTO_TEST_MYSQL_USER"),
		Password: os.Getenv("MOMENTO_TEST_MYSQL_PASSWORD"),
		Database: "momento_test",
		Prefix:   "t" + strings.ReplaceAll(uuid.NewString()[:8], "-", "") + "_",
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := NewSQLClient(ctx, conf)
	require.NoError(t, err)

	t.Cleanup(func() {
		for _, name := range []string{collectionBetaCodes, collectionEventCodes, collectionBetaUsage, collectionEventUsage, collectionUsers} {
			_, _ = s.db.Exec("DROP TABLE IF EXISTS " + s.table(name))
		}
		s.Close()
	})
	return s
}

func TestMySQLCodeLifecycle(t *testing.T) {
	s := setupTestMySQL(t)
	ctx := context.Background()
	expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Microsecond)

	record := &entity.AccessCode{
		Id: uuid.NewString(), Kind: entity.KindEvent, Code: "PARTY", Name: "Party", IsActive: true,
		MaxUses: intPtr(5), ExpiresAt: &expires, CreatedAt: time.Now().UTC(), CreatedBy: "admin",
		MaxFiles: intPtr(10), MaxFileSize: intPtr(25), AllowedTypes: []string{"image/jpeg"}, TableCount: 4,
	}
	require.NoError(t, s.CreateCode(ctx, record))
	assert.ErrorIs(t, s.CreateCode(ctx, record), ErrDuplicate)

	got, err := s.GetCode(ctx, entity.KindEvent, "PARTY")
	require.NoError(t, err)
	assert.Equal(t, 5, *got.MaxUses)
	assert.Equal(t, 25, *got.MaxFileSize)
	assert.Equal(t, []string{"image/jpeg"}, got.AllowedTypes)
	assert.True(t, got.ExpiresAt.Equal(expires))
	assert.Nil(t, got.LastUsedAt)

	_, err = s.GetCode(ctx, entity.KindBeta, "PARTY")
	assert.ErrorIs(t, err, ErrNotFound)

	after, err := s.IncrementUsage(ctx, entity.KindEvent, "PARTY", 1, 2, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, after.CurrentUses)
	assert.Equal(t, 2, after.CurrentFiles)
	assert.NotNil(t, after.LastUsedAt)

	after, err = s.SetCodeActive(ctx, entity.KindEvent, "PARTY", false)
	require.NoError(t, err)
	assert.False(t, after.IsActive)

	_, err = s.IncrementUsageBelow(ctx, entity.KindEvent, "PARTY", time.Now())
	assert.ErrorIs(t, err, ErrConditionFailed)

	after, err = s.ResetUsage(ctx, entity.KindEvent, "PARTY")
	require.NoError(t, err)
	assert.Zero(t, after.CurrentUses)
	assert.Zero(t, after.CurrentFiles)

	codes, err := s.ListCodes(ctx, entity.KindEvent)
	require.NoError(t, err)
	assert.Len(t, codes, 1)

	require.NoError(t, s.DeleteCode(ctx, entity.KindEvent, "PARTY"))
	assert.ErrorIs(t, s.DeleteCode(ctx, entity.KindEvent, "PARTY"), ErrNotFound)
	_, err = s.SetCodeActive(ctx, entity.KindEvent, "PARTY", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMySQLIncrementUsageBelowConcurrent(t *testing.T) {
	s := setupTestMySQL(t)
	ctx := context.Background()
	const n = 10
	require.NoError(t, s.CreateCode(ctx, &entity.AccessCode{
		Id: uuid.NewString(), Kind: entity.KindBeta, Code: "RACE", IsActive: true, MaxUses: intPtr(n),
		CreatedAt: time.Now().UTC(),
	}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 3*n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementUsageBelow(ctx, entity.KindBeta, "RACE", time.Now()); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, n, succeeded)
	got, err := s.GetCode(ctx, entity.KindBeta, "RACE")
	require.NoError(t, err)
	assert.Equal(t, n, got.CurrentUses)
}

func TestMySQLUsageAndUsers(t *testing.T) {
	s := setupTestMySQL(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AddUsage(ctx, &entity.UsageRecord{
			Id: fmt.Sprintf("U%d", i), Kind: entity.KindEvent, Code: "PARTY",
			Action: entity.ActionFileUpload, UsedAt: base.Add(time.Duration(i) * time.Minute),
			FileCount: 1, TableNumber: i + 1,
		}))
	}
	records, err := s.ListUsage(ctx, entity.KindEvent, "PARTY", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "U2", records[0].Id)
	assert.Equal(t, "U1", records[1].Id)

	all, err := s.ListUsage(ctx, entity.KindEvent, "PARTY", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	user := &entity.User{Username: "admin", Token: "0123456789abcdef", IsAdmin: true, CreatedAt: base}
	require.NoError(t, s.SaveUser(ctx, user))
	user.Name = "Admin"
	require.NoError(t, s.SaveUser(ctx, user))
	got, err := s.GetUser(ctx, user.Token)
	require.NoError(t, err)
	assert.Equal(t, "Admin", got.Name)
	assert.True(t, got.IsAdmin)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
