package services

import (
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/mosaichq/backoffice/internal/config"
	"github.com/mosaichq/backoffice/internal/db"
	"github.com/mosaichq/backoffice/internal/notify"
	"github.com/mosaichq/backoffice/internal/services/company"
	"github.com/mosaichq/backoffice/internal/services/membership"
	"github.com/mosaichq/backoffice/internal/services/token"
	"github.com/mosaichq/backoffice/internal/services/user"
	"github.com/mosaichq/backoffice/internal/services/workspace"
)

type Services struct {
	DB          *sqlx.DB
	Notifier    notify.Sender
	Users       *user.UserService
	Memberships *membership.MembershipService
	Tokens      *token.TokenService
	Companies   *company.CompanyService
	Workspaces  *workspace.WorkspaceService
}

// NewServices opens the database, picks the notification transport and
// wires every service over its Postgres repo.
func NewServices(conf *config.Config) (*Services, error) {
	conn := db.NewConn(conf)

	var notifier notify.Sender
	if conf.AMQP_URL != "" {
		sender, err := notify.NewAMQPSender(conf.AMQP_URL, conf.NOTIFY_ROUTING)
		if err != nil {
			return nil, err
		}
		notifier = sender
	} else {
		slog.Warn("AMQP_URL not set, notifications will only be logged")
		notifier = notify.LogSender{}
	}

	userRepo := user.NewUserRepo(conn)
	membershipRepo := membership.NewMembershipRepo(conn)
	tokenRepo := token.NewTokenRepo(conn)
	companyRepo := company.NewCompanyRepo(conn)
	workspaceRepo := workspace.NewWorkspaceRepo(conn)

	memberships := membership.NewMembershipService(membershipRepo, userRepo)
	users := user.NewUserService(userRepo, membershipRepo)
	tokens := token.NewTokenService(tokenRepo, userRepo, conf.PASSWORD_RESET_TTL, conf.FIRST_ACCESS_TTL)
	companies := company.NewCompanyService(companyRepo, userRepo, tokens, memberships, notifier, conf.BASE_URL)
	workspaces := workspace.NewWorkspaceService(workspaceRepo, userRepo, companyRepo, tokens, memberships, notifier, conf.BASE_URL)

	return &Services{
		DB:          conn,
		Notifier:    notifier,
		Users:       users,
		Memberships: memberships,
		Tokens:      tokens,
		Companies:   companies,
		Workspaces:  workspaces,
	}, nil
}

func (s *Services) Close() {
	if s.Notifier != nil {
		if c, ok := s.Notifier.(*notify.AMQPSender); ok {
			c.Close()
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
