package di

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"
	gmaildomain "github.com/reworx/mailorder/internal/domain/gmail"
	orderdomain "github.com/reworx/mailorder/internal/domain/order"
	userdomain "github.com/reworx/mailorder/internal/domain/user"
	gmailrepo "github.com/reworx/mailorder/internal/infrastructure/repository/gmail"
	orderrepo "github.com/reworx/mailorder/internal/infrastructure/repository/order"
	userrepo "github.com/reworx/mailorder/internal/infrastructure/repository/user"
	"github.com/reworx/mailorder/internal/service/extraction"
)

type Container struct {
	DB                *sql.DB
	MailboxRepo       gmaildomain.MailboxRepo
	UserRepo          userdomain.UserRepo
	OrderRepo         orderdomain.OrderRepo
	ExtractionService *extraction.Service
}

type Config struct {
	GmailCredentialsPath string
	DBHost               string
	DBPort               string
	DBUser               string
	DBPassword           string
	DBName               string
}

func NewContainer(cfg Config) (*Container, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		slog.Warn("database ping failed", "error", err)
	} else {
		slog.Info("database connected")
	}

	mailboxRepo, err := gmailrepo.NewMailboxRepo(cfg.GmailCredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gmail repository: %w", err)
	}

	userRepo := userrepo.NewUserRepo(db)
	orderRepo := orderrepo.NewOrderRepo(db)

	extractionService := extraction.NewService(mailboxRepo, userRepo, orderRepo)

	return &Container{
		DB:                db,
		MailboxRepo:       mailboxRepo,
		UserRepo:          userRepo,
		OrderRepo:         orderRepo,
		ExtractionService: extractionService,
	}, nil
}

func (c *Container) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
