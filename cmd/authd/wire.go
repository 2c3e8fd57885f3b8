package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/reachend/auth-service/internal/core/ports"
	mongostore "github.com/reachend/auth-service/internal/infrastructure/db/mongo"
	pgstore "github.com/reachend/auth-service/internal/infrastructure/db/postgres"
	"github.com/reachend/auth-service/internal/infrastructure/notify"
	"github.com/reachend/auth-service/internal/pkg/config"
)

// userStore is the selected credential store and the hook that releases it.
type userStore struct {
	Users ports.UserRepository
	close func()
}

func (s *userStore) Close() {
	if s.close != nil {
		s.close()
	}
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*userStore, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		repo := mongostore.NewUserRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("mongo store ready")
		return &userStore{Users: repo, close: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}}, nil

	default:
		db, err := pgstore.Connect(ctx, pgstore.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.AutoMigrate {
			if err := pgstore.Migrate(db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		log.Info().Bool("migrated", cfg.Postgres.AutoMigrate).Msg("postgres store ready")
		return &userStore{Users: pgstore.NewUserRepository(db), close: func() { _ = db.Close() }}, nil
	}
}

// closingNotifier pairs a notifier with whatever connection it holds open.
type closingNotifier struct {
	ports.Notifier
	close func()
}

func (n *closingNotifier) Close() {
	if n.close != nil {
		n.close()
	}
}

func openNotifier(cfg *config.Config, log zerolog.Logger) (*closingNotifier, error) {
	switch cfg.NotifierDriver {
	case config.NotifierSMTP:
		return &closingNotifier{Notifier: notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Insecure: cfg.SMTP.Insecure,
		}, log)}, nil

	case config.NotifierAMQP:
		amqpCfg := notify.AMQPConfig{
			URL:        cfg.AMQP.URL,
			Exchange:   cfg.AMQP.Exchange,
			Queue:      cfg.AMQP.Queue,
			RoutingKey: cfg.AMQP.RoutingKey,
			Retries:    cfg.AMQP.Retries,
			RetryDelay: cfg.AMQP.RetryDelay,
		}
		conn, err := notify.DialAMQP(amqpCfg)
		if err != nil {
			return nil, err
		}
		ch, err := notify.SetupChannel(conn, amqpCfg)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("amqp channel: %w", err)
		}
		log.Info().Str("exchange", amqpCfg.Exchange).Str("queue", amqpCfg.Queue).Msg("amqp notifier ready")
		return &closingNotifier{
			Notifier: notify.NewAMQPNotifier(ch, amqpCfg.Exchange, amqpCfg.RoutingKey),
			close:    func() { closeAMQP(ch, conn) },
		}, nil

	default:
		log.Warn().Msg("notifications are logged, not delivered")
		return &closingNotifier{Notifier: notify.NewLogNotifier(log)}, nil
	}
}

func closeAMQP(ch *amqp.Channel, conn *amqp.Connection) {
	_ = ch.Close()
	_ = conn.Close()
}
