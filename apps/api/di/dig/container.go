package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/eventsoft/eventsoft/apps/api/echo"
	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/audit"
	"github.com/eventsoft/eventsoft/core/certificate"
	"github.com/eventsoft/eventsoft/core/criterion"
	"github.com/eventsoft/eventsoft/core/enrollment"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/instrument"
	"github.com/eventsoft/eventsoft/core/invitation"
	"github.com/eventsoft/eventsoft/core/notification"
	"github.com/eventsoft/eventsoft/core/site"
	"github.com/eventsoft/eventsoft/core/user"
	"github.com/eventsoft/eventsoft/services/email"
	"github.com/eventsoft/eventsoft/services/filestore"
	"github.com/eventsoft/eventsoft/services/logger"
	"github.com/eventsoft/eventsoft/services/push"
	"github.com/eventsoft/eventsoft/services/render"
	"github.com/eventsoft/eventsoft/services/scheduler"
	"github.com/eventsoft/eventsoft/services/sms"
	"github.com/eventsoft/eventsoft/storage/database"
	"github.com/eventsoft/eventsoft/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type SchedulerParam struct {
	dig.In
	Events *event.Service
	Conf   *core.Config
	Logger core.Logger `name:"schedLogger"`
}

// DepsParam collects the services exposed by the API.
type DepsParam struct {
	dig.In
	Users         *user.Service
	Events        *event.Service
	Enrollments   *enrollment.Service
	Criteria      *criterion.Service
	Notifications *notification.Service
	Certificates  *certificate.Service
	Instruments   *instrument.Service
	Invitations   *invitation.Service
	Site          *site.Service
	Audit         *audit.Log
}

func newConfig() *core.Config {
	return core.Conf
}

func newStdLogger(conf *core.Config, prefix string, flags int) core.Logger {
	stdLogger := log.New(os.Stdout, prefix, flags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newLogger(conf *core.Config) core.Logger {
	return newStdLogger(conf, "API : ", log.LstdFlags)
}

func newDBLogger(conf *core.Config) core.Logger {
	return newStdLogger(conf, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
}

func newSchedLogger(conf *core.Config) core.Logger {
	return newStdLogger(conf, "SCHED : ", log.LstdFlags)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, *sqlxrepos.DB) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, sqlxrepos.New(db)
}

func newTransactor(db *sqlxrepos.DB) core.Transactor {
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(logger)
	}
	return emailsvc.NewSendgridService(logger)
}

func newSMSService(conf *core.Config, logger core.Logger) core.SMSService {
	if conf.Debug || conf.Twilio.AccountSid == "" {
		return smssvc.NewConsoleService(logger)
	}
	return smssvc.NewTwilioService(conf.Twilio)
}

// newPublisher connects to NATS when configured; push notifications stay in memory otherwise.
func newPublisher(conf *core.Config, logger core.Logger) core.Publisher {
	if conf.NatsURL == "" {
		return pushsvc.NewMemoryPublisher()
	}
	pub, err := pushsvc.Connect(conf.NatsURL)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to broker: %v", err), err)
	}
	return pub
}

func newFileStore(conf *core.Config, logger core.Logger) core.FileStore {
	files, err := filestore.New(context.Background(), conf.Storage)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
	}
	return files
}

func newSenders(mailSvc core.EmailService, smsSvc core.SMSService, pub core.Publisher, repo notification.Repository) []notification.Sender {
	return []notification.Sender{
		notification.NewEmailSender(mailSvc),
		notification.NewSMSSender(smsSvc),
		notification.NewPushSender(pub),
		notification.NewInAppSender(repo),
	}
}

func newNotificationFinder(svc *enrollment.Service) notification.RecipientFinder { return svc }

func newCertificateFinder(svc *enrollment.Service) certificate.RecipientFinder { return svc }

func newScheduler(p SchedulerParam) *scheduler.Scheduler {
	sched, err := scheduler.New(p.Events, p.Conf.Lifecycle, p.Logger)
	if err != nil {
		p.Logger.Fatal(fmt.Sprintf("setting up scheduler: %v", err), err)
	}
	return sched
}

func newDeps(p DepsParam) *echoapi.Deps {
	return &echoapi.Deps{
		Users:         p.Users,
		Events:        p.Events,
		Enrollments:   p.Enrollments,
		Criteria:      p.Criteria,
		Notifications: p.Notifications,
		Certificates:  p.Certificates,
		Instruments:   p.Instruments,
		Invitations:   p.Invitations,
		Site:          p.Site,
		Audit:         p.Audit,
	}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	// infrastructure
	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newSchedLogger, dig.Name("schedLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newTransactor))
	must(c.Provide(newEmailService))
	must(c.Provide(newSMSService))
	must(c.Provide(newPublisher))
	must(c.Provide(newFileStore))
	must(c.Provide(rendersvc.New, dig.As(
		new(enrollment.QRRenderer), new(certificate.Renderer), new(instrument.Renderer),
	)))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewEventRepository))
	must(c.Provide(sqlxrepos.NewEnrollmentRepository))
	must(c.Provide(sqlxrepos.NewCriterionRepository))
	must(c.Provide(sqlxrepos.NewNotificationRepository))
	must(c.Provide(sqlxrepos.NewCertificateRepository))
	must(c.Provide(sqlxrepos.NewInstrumentRepository))
	must(c.Provide(sqlxrepos.NewInvitationRepository))
	must(c.Provide(sqlxrepos.NewSiteRepository))
	must(c.Provide(sqlxrepos.NewAuditRepository))

	// domain
	must(c.Provide(audit.NewLog))
	must(c.Provide(user.NewService))
	must(c.Provide(enrollment.NewRoster, dig.As(new(event.Roster))))
	must(c.Provide(event.NewService))
	must(c.Provide(enrollment.NewService))
	must(c.Provide(criterion.NewService))
	must(c.Provide(newNotificationFinder))
	must(c.Provide(newCertificateFinder))
	must(c.Provide(newSenders))
	must(c.Provide(notification.NewService))
	must(c.Provide(certificate.NewService))
	must(c.Provide(instrument.NewService))
	must(c.Provide(invitation.NewService))
	must(c.Provide(site.NewService))

	// apps
	must(c.Provide(newDeps))
	must(c.Provide(echoapi.NewServer))
	must(c.Provide(newScheduler))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
