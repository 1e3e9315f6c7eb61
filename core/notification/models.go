package notification

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/event"
)

// Audience selects the confirmed subjects of one or all tracks.
type Audience string

const (
	AllConfirmed          Audience = "ALL_CONFIRMED"
	ParticipantsConfirmed Audience = "PARTICIPANTS_CONFIRMED"
	EvaluatorsConfirmed   Audience = "EVALUATORS_CONFIRMED"
	AssistantsConfirmed   Audience = "ASSISTANTS_CONFIRMED"
)

var audienceTracks = map[Audience][]event.Track{
	AllConfirmed:          event.Tracks,
	ParticipantsConfirmed: {event.TrackParticipant},
	EvaluatorsConfirmed:   {event.TrackEvaluator},
	AssistantsConfirmed:   {event.TrackAssistant},
}

func (a Audience) Tracks() []event.Track { return audienceTracks[a] }

type Channel string

const (
	ChannelEmail Channel = "Email"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "Push"
	ChannelInApp Channel = "In-App"
)

var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp}

var (
	audienceTag  = "audience"
	audienceText = "{0} must be one of ALL_CONFIRMED, PARTICIPANTS_CONFIRMED, EVALUATORS_CONFIRMED, ASSISTANTS_CONFIRMED"
	channelTag   = "channel"
	channelText  = "{0} must be one of Email, SMS, Push, In-App"
)

func init() {
	_ = core.Validate.RegisterValidation(audienceTag, func(fl validator.FieldLevel) bool {
		_, ok := audienceTracks[Audience(fl.Field().String())]
		return ok
	})
	core.RegisterCustomTranslation(audienceTag, audienceText)

	_ = core.Validate.RegisterValidation(channelTag, func(fl validator.FieldLevel) bool {
		for _, ch := range Channels {
			if Channel(fl.Field().String()) == ch {
				return true
			}
		}
		return false
	})
	core.RegisterCustomTranslation(channelTag, channelText)
}

// Message is what every recipient of a dispatch receives.
type Message struct {
	Title   string  `json:"title" validate:"required,notblank,max=200"`
	Content string  `json:"content" validate:"required,notblank,max=5000"`
	Channel Channel `json:"channel" validate:"required,channel"`
}

// Request asks for a dispatch to an event's audience.
// Repeating a request with the same DispatchID delivers only to recipients not yet served.
type Request struct {
	DispatchID string   `json:"dispatch_id" validate:"omitempty,max=64"`
	Audience   Audience `json:"audience" validate:"required,audience"`
	Specialty  string   `json:"specialty" validate:"omitempty,max=100"`
	Message
}

func (r *Request) Validate() error {
	r.DispatchID = core.CleanString(r.DispatchID)
	r.Specialty = core.CleanString(r.Specialty, true /* lower */)
	r.Title = core.CleanString(r.Title)
	r.Content = core.CleanString(r.Content)
	return core.Validate.Struct(r)
}

// Dispatch is the persisted record of a notification sent to an event's audience.
type Dispatch struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	IssuerID    string    `json:"issuer_id"`
	Audience    Audience  `json:"audience"`
	Specialty   string    `json:"specialty,omitempty"`
	Channel     Channel   `json:"channel"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	TargetCount int       `json:"target_count"`
	Succeeded   int       `json:"exitosos"`
	Failed      int       `json:"fallidos"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// matches reports whether req asks for the same delivery as d; a retry may not change it.
func (d Dispatch) matches(req Request) bool {
	return d.Audience == req.Audience && d.Specialty == req.Specialty && d.Channel == req.Channel &&
		d.Title == req.Title && d.Content == req.Content
}

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusFailed    DeliveryStatus = "failed"
	StatusCancelled DeliveryStatus = "cancelled"
)

// Delivery is the outcome of a dispatch for one recipient.
type Delivery struct {
	DispatchID string         `json:"dispatch_id"`
	EventID    string         `json:"event_id"`
	UserID     string         `json:"user_id"`
	Channel    Channel        `json:"channel"`
	Status     DeliveryStatus `json:"status"`
	ReceiptID  string         `json:"receipt_id,omitempty"`
	Error      string         `json:"error,omitempty"`
	At         time.Time      `json:"at"`
}

type Outcome struct {
	UserID string         `json:"user_id"`
	Name   string         `json:"name"`
	Status DeliveryStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
	// Repeated is set when the recipient was already served by an earlier run of the dispatch.
	Repeated bool `json:"repeated,omitempty"`
}

// Report summarises a dispatch run.
type Report struct {
	DispatchID string    `json:"dispatch_id"`
	Targets    int       `json:"targets"`
	Succeeded  int       `json:"exitosos"`
	Failed     int       `json:"fallidos"`
	Coverage   float64   `json:"coverage"` // percentage of targets served
	Cancelled  bool      `json:"cancelled"`
	Outcomes   []Outcome `json:"outcomes"`
}

// InboxItem is an In-App notification of a user.
type InboxItem struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	EventID    string    `json:"event_id"`
	DispatchID string    `json:"dispatch_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}
