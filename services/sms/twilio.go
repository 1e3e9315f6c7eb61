package smssvc

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/eventsoft/eventsoft/core"
)

type twilioService struct {
	client      *twilio.RestClient
	from        string
	countryCode string
}

var _ core.SMSService = (*twilioService)(nil)

func NewTwilioService(conf core.TwilioConfig) core.SMSService {
	return &twilioService{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: conf.AccountSid,
			Password: conf.AuthToken,
		}),
		from:        conf.From,
		countryCode: conf.DefaultCountryCode,
	}
}

// Normalize strips formatting characters from a phone number and prefixes the country code when missing.
func Normalize(phone, countryCode string) string {
	phone = strings.Map(func(r rune) rune {
		if r == '+' || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, phone)
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return countryCode + strings.TrimLeft(phone, "0")
}

func (svc *twilioService) SendSMS(ctx context.Context, to, body string) (core.DeliveryReceipt, error) {
	if err := ctx.Err(); err != nil {
		return core.DeliveryReceipt{}, err
	}
	to = Normalize(to, svc.countryCode)
	if to == "" {
		return core.DeliveryReceipt{}, errors.New("empty phone number")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(svc.from)
	params.SetBody(body)

	resp, err := svc.client.Api.CreateMessage(params)
	if err != nil {
		return core.DeliveryReceipt{}, errors.Wrap(err, "sending sms")
	}
	rec := core.DeliveryReceipt{AcceptedAt: core.Now()}
	if resp.Sid != nil {
		rec.ID = *resp.Sid
	}
	return rec, nil
}

type consoleService struct {
	logger core.Logger
}

// NewConsoleService logs text messages instead of sending them.
func NewConsoleService(logger core.Logger) core.SMSService {
	return &consoleService{logger: logger}
}

func (svc *consoleService) SendSMS(_ context.Context, to, body string) (core.DeliveryReceipt, error) {
	svc.logger.Info("sms to "+to, map[string]interface{}{"body": body})
	return core.DeliveryReceipt{ID: core.NewID(), AcceptedAt: core.Now()}, nil
}
