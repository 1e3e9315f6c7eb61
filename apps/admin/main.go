package main

import (
	"log"
	"os"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/audit"
	"github.com/eventsoft/eventsoft/core/enrollment"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/invitation"
	"github.com/eventsoft/eventsoft/core/user"
	"github.com/eventsoft/eventsoft/services/email"
	"github.com/eventsoft/eventsoft/services/filestore"
	"github.com/eventsoft/eventsoft/services/logger"
	"github.com/eventsoft/eventsoft/storage/database"
	"github.com/eventsoft/eventsoft/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.Conf
	appLogger := logsvc.NewRollbarLogger(logger, conf)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	// set up services
	store := sqlxrepos.New(db)
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(appLogger)
	} else {
		mailSvc = emailsvc.NewSendgridService(appLogger)
	}
	files := filestore.NewMemoryStore(conf.Storage.PublicBaseURL) // lifecycle commands never touch media
	usrRepo := sqlxrepos.NewUserRepository(store)
	users := user.NewService(usrRepo, mailSvc)
	auditLog := audit.NewLog(sqlxrepos.NewAuditRepository(store))
	roster := enrollment.NewRoster(sqlxrepos.NewEnrollmentRepository(store))

	// start CLI
	cli := commandLine{
		db:          db.DB,
		usrRepo:     usrRepo,
		users:       users,
		events:      event.NewService(store, sqlxrepos.NewEventRepository(store), roster, users, files, mailSvc, auditLog, appLogger),
		invitations: invitation.NewService(store, sqlxrepos.NewInvitationRepository(store), users, mailSvc, auditLog),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		db.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
