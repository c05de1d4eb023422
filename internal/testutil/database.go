package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"foodmarket/internal/infrastructure/mysql"
)

// SetupTestDB connects to the MySQL test database and applies the
// migrations. TEST_DATABASE_DSN overrides the default local database
// foodmarket_test; the test is skipped when it is unreachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "root:@tcp(localhost:3306)/foodmarket_test?parseTime=true&loc=UTC&multiStatements=true&clientFoundRows=true&time_zone=%27%2B00%3A00%27"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("test database not available: %v", err)
	}

	if err := mysql.Migrate(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB empties every table and closes db.
func CleanupTestDB(t *testing.T, db *sql.DB) {
	if db == nil {
		return
	}

	tables := []string{
		"Payments", "OrderItems", "Orders", "CartItems", "Carts", "PushTokens",
		"Addresses", "MenuProducts", "Menus", "ProductVariants", "Products", "Restaurants",
	}
	for _, table := range tables {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}

	db.Close()
}

// SeedCatalog inserts a restaurant owned by ownerID with one product and
// one available variant.
func SeedCatalog(t *testing.T, db *sql.DB, restaurantID, ownerID, productID, variantID string, price int64) {
	t.Helper()

	stmts := []struct {
		query string
		args  []interface{}
	}{
		{`INSERT INTO Restaurants (id, name, ownerId) VALUES (?, ?, ?)`, []interface{}{restaurantID, "Chez " + restaurantID, ownerID}},
		{`INSERT INTO Products (id, restaurantId, name) VALUES (?, ?, ?)`, []interface{}{productID, restaurantID, "Product " + productID}},
		{`INSERT INTO ProductVariants (id, productId, label, price) VALUES (?, ?, 'Standard', ?)`, []interface{}{variantID, productID, price}},
	}
	for _, s := range stmts {
		if _, err := db.Exec(s.query, s.args...); err != nil {
			t.Fatalf("seeding catalog: %v", err)
		}
	}
}
