package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notary-payments/internal/config"
	"notary-payments/internal/logger"
	"notary-payments/internal/models"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
)

const (
	mysqlDuplicateKeyName = 1061 // ER_DUP_KEYNAME
	mysqlDuplicateEntry   = 1062 // ER_DUP_ENTRY
)

type MySQLStore struct {
	db  *bun.DB
	log *logger.Logger
}

func NewMySQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*MySQLStore, error) {
	log.LogDatabase("CONNECT", "mysql", fmt.Sprintf("Connecting to MySQL at %s:%s", cfg.Host, cfg.Port))

	sqldb, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		log.Error("DATABASE", "Failed to open MySQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqldb.PingContext(ctx); err != nil {
		log.Error("DATABASE", "Failed to ping MySQL: "+err.Error())
		_ = sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := newMySQLStore(sqldb, log)

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
			_ = store.Close()
			return nil, err
		}
	}

	log.LogDatabase("SUCCESS", "mysql", "MySQL connection established")
	return store, nil
}

func newMySQLStore(sqldb *sql.DB, log *logger.Logger) *MySQLStore {
	return &MySQLStore{
		db:  bun.NewDB(sqldb, mysqldialect.New()),
		log: log,
	}
}

// Migrate creates the payment_orders table and its receipt index.
func (s *MySQLStore) Migrate(ctx context.Context) error {
	s.log.LogDatabase("MIGRATE", "payment_orders", "Creating table if not exists")

	if _, err := s.db.NewCreateTable().
		Model((*models.PaymentOrder)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create payment_orders table: %w", err)
	}

	_, err := s.db.NewCreateIndex().
		Model((*models.PaymentOrder)(nil)).
		Index("idx_payment_orders_receipt").
		Column("receipt").
		Exec(ctx)
	if err != nil && !isDuplicateIndex(err) {
		return fmt.Errorf("failed to create receipt index: %w", err)
	}

	s.log.LogDatabase("SUCCESS", "payment_orders", "Table ready")
	return nil
}

func (s *MySQLStore) SaveOrder(ctx context.Context, order *models.PaymentOrder) error {
	s.log.LogDatabase("INSERT", "payment_orders", fmt.Sprintf("Saving order %s", order.OrderID))

	if _, err := s.db.NewInsert().Model(order).Exec(ctx); err != nil {
		var mysqlErr *mysqldrv.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return ErrOrderExists
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save order %s: %s", order.OrderID, err.Error()))
		return fmt.Errorf("failed to save order: %w", err)
	}

	s.log.LogDatabase("SUCCESS", "payment_orders", fmt.Sprintf("Order %s saved", order.OrderID))
	return nil
}

func (s *MySQLStore) GetOrder(ctx context.Context, orderID string) (*models.PaymentOrder, error) {
	s.log.LogDatabase("SELECT", "payment_orders", fmt.Sprintf("Fetching order %s", orderID))

	order := new(models.PaymentOrder)
	err := s.db.NewSelect().Model(order).Where("order_id = ?", orderID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.log.LogDatabase("NOT_FOUND", "payment_orders", fmt.Sprintf("Order %s not found", orderID))
			return nil, ErrOrderNotFound
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get order %s: %s", orderID, err.Error()))
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return order, nil
}

func (s *MySQLStore) UpdateOrder(ctx context.Context, order *models.PaymentOrder) error {
	s.log.LogDatabase("UPDATE", "payment_orders", fmt.Sprintf("Updating order %s", order.OrderID))

	res, err := s.db.NewUpdate().
		Model(order).
		Column("status", "payment_id", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to update order %s: %s", order.OrderID, err.Error()))
		return fmt.Errorf("failed to update order: %w", err)
	}

	// MySQL reports matched-but-unchanged rows as 0 affected, so only a
	// definite zero with a missing row is treated as not found.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := s.GetOrder(ctx, order.OrderID); err != nil {
			return err
		}
	}

	s.log.LogDatabase("SUCCESS", "payment_orders", fmt.Sprintf("Order %s updated", order.OrderID))
	return nil
}

func (s *MySQLStore) ListOrders(ctx context.Context, receipt string, limit, offset int) ([]*models.PaymentOrder, error) {
	s.log.LogDatabase("SELECT", "payment_orders", fmt.Sprintf("Listing orders for receipt %q (limit: %d, offset: %d)", receipt, limit, offset))

	orders := make([]*models.PaymentOrder, 0)
	q := s.db.NewSelect().Model(&orders).Order("created_at DESC", "order_id ASC")
	if receipt != "" {
		q = q.Where("receipt = ?", receipt)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to list orders: %s", err.Error()))
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return orders, nil
}

func (s *MySQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MySQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "mysql", "Closing MySQL connection")
	return s.db.Close()
}

func isDuplicateIndex(err error) bool {
	var mysqlErr *mysqldrv.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateKeyName
}
