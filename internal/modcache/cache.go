// Package modcache is an optional, explicit persisted cache of compiled
// modules keyed by the SHA-256 digest of a query source plus its linked
// grammar identity (SPEC_FULL.md §0.3). It mirrors the teacher's own
// "don't recompute, cache by content hash" house style
// (providers/base/cache.go's sync.Map AST cache) but persists to a gorm
// database instead of an in-process map, the way db/sqlite.go persists
// morfx's own stage/apply records. internal/graph, internal/bytecode and
// internal/vm never depend on this package: compiling without a cache
// configured behaves exactly as if modcache did not exist.
package modcache

import (
	"crypto/sha256"
	"database/sql"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	libsql "github.com/tursodatabase/libsql-client-go/libsql"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// CompiledModule is one cache row: a compiled module's encoded bytes, the
// digest it was compiled from, and a JSON summary of its diagnostics and
// entrypoints for cheap inspection without decoding the bytes column.
type CompiledModule struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)"`
	Digest    string         `gorm:"type:varchar(64);uniqueIndex;not null"`
	Bytes     []byte         `gorm:"type:blob;not null"`
	Summary   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
}

func (CompiledModule) TableName() string { return "compiled_modules" }

// Cache wraps a gorm.DB scoped to the compiled_modules table.
type Cache struct {
	db *gorm.DB
}

// Open connects to dsn (a local sqlite file path, or a libsql/http(s) URL
// for a remote cache, mirroring db/sqlite.go's Connect dual dialing) and
// runs the compiled_modules migration.
func Open(dsn string) (*Cache, error) {
	if !isURL(dsn) {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("modcache: create cache directory: %w", err)
			}
		}
	}

	var (
		dialector gorm.Dialector
		conn      *sql.DB
	)
	if isURL(dsn) {
		var (
			connector driver.Connector
			err       error
		)
		token := os.Getenv("PLOTNIK_LIBSQL_AUTH_TOKEN")
		if token != "" {
			connector, err = libsql.NewConnector(dsn, libsql.WithAuthToken(token))
		} else {
			connector, err = libsql.NewConnector(dsn)
		}
		if err != nil {
			return nil, fmt.Errorf("modcache: libsql connector: %w", err)
		}
		conn = sql.OpenDB(connector)
		dialector = sqlite.New(sqlite.Config{DriverName: "libsql", Conn: conn, DSN: dsn})
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, fmt.Errorf("modcache: connect: %w", err)
	}
	if err := db.AutoMigrate(&CompiledModule{}); err != nil {
		return nil, fmt.Errorf("modcache: migrate: %w", err)
	}
	return &Cache{db: db}, nil
}

func isURL(dsn string) bool {
	return strings.HasPrefix(dsn, "http://") || strings.HasPrefix(dsn, "https://") || strings.HasPrefix(dsn, "libsql:")
}

// Digest hashes a query source together with the grammar identity it was
// linked against, so the same source compiled against two different
// grammars never collides in the cache.
func Digest(source, grammar string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(grammar))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached module bytes for digest, if present.
func (c *Cache) Get(digest string) ([]byte, bool, error) {
	var row CompiledModule
	err := c.db.Where("digest = ?", digest).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("modcache: get: %w", err)
	}
	return row.Bytes, true, nil
}

// Put stores moduleBytes under digest, overwriting any prior entry; summary
// is an arbitrary small JSON payload (diagnostics, entrypoint names) the
// caller wants alongside the bytes without decoding them.
func (c *Cache) Put(digest string, moduleBytes []byte, summary []byte) error {
	row := CompiledModule{
		ID:      uuid.NewString(),
		Digest:  digest,
		Bytes:   moduleBytes,
		Summary: datatypes.JSON(summary),
	}
	err := c.db.Where("digest = ?", digest).
		Assign(CompiledModule{Bytes: moduleBytes, Summary: datatypes.JSON(summary)}).
		FirstOrCreate(&row).Error
	if err != nil {
		return fmt.Errorf("modcache: put: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
