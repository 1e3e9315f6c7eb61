package enrollment

import (
	"net/mail"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/user"
)

const qrFilename = "codigo_qr.png"

var trackLabels = map[event.Track]string{
	event.TrackParticipant: "participante",
	event.TrackEvaluator:   "evaluador",
	event.TrackAssistant:   "asistente",
}

// TrackLabel is the human name of t used in messages.
func TrackLabel(t event.Track) string {
	if l, ok := trackLabels[t]; ok {
		return l
	}
	return string(t)
}

type messageData struct {
	Name      string
	Event     string
	Track     string
	State     string
	AccessKey string
	Reason    string
	HasQR     bool

	// credentials, set only when the subject's account was created by the enrollment
	Username string
	Password string
}

func newMessage(usr user.User, subject, tmpl string, data messageData) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: data,
	}
}

func issuedMessage(ev event.Event, res user.Resolution, enr Enrollment, qr []byte) *core.EmailMessage {
	data := messageData{
		Name:      res.User.FullName(),
		Event:     ev.Name,
		Track:     TrackLabel(enr.Track),
		State:     string(enr.State),
		AccessKey: enr.AccessKey,
		HasQR:     len(qr) > 0,
	}
	if res.Created {
		data.Username = res.User.Username
		data.Password = res.Password
	}
	msg := newMessage(res.User, "Inscripción a "+ev.Name, "enrollment_issued", data)
	if len(qr) > 0 {
		msg.AttachBytes(qr, qrFilename, "image/png")
	}
	return msg
}

func approvedMessage(ev event.Event, usr user.User, enr Enrollment, qr []byte) *core.EmailMessage {
	msg := newMessage(usr, "Inscripción aprobada - "+ev.Name, "enrollment_approved", messageData{
		Name:      usr.FullName(),
		Event:     ev.Name,
		Track:     TrackLabel(enr.Track),
		State:     string(enr.State),
		AccessKey: enr.AccessKey,
		HasQR:     len(qr) > 0,
	})
	if len(qr) > 0 {
		msg.AttachBytes(qr, qrFilename, "image/png")
	}
	return msg
}

func rejectedMessage(ev event.Event, usr user.User, enr Enrollment) *core.EmailMessage {
	return newMessage(usr, "Inscripción rechazada - "+ev.Name, "enrollment_rejected", messageData{
		Name:   usr.FullName(),
		Event:  ev.Name,
		Track:  TrackLabel(enr.Track),
		State:  string(enr.State),
		Reason: enr.RejectionReason,
	})
}

func confirmedMessage(ev event.Event, usr user.User, enr Enrollment) *core.EmailMessage {
	return newMessage(usr, "Inscripción confirmada - "+ev.Name, "enrollment_confirmed", messageData{
		Name:      usr.FullName(),
		Event:     ev.Name,
		Track:     TrackLabel(enr.Track),
		State:     string(enr.State),
		AccessKey: enr.AccessKey,
	})
}

func cancelledMessage(ev event.Event, usr user.User, enr Enrollment) *core.EmailMessage {
	return newMessage(usr, "Inscripción cancelada - "+ev.Name, "enrollment_cancelled", messageData{
		Name:  usr.FullName(),
		Event: ev.Name,
		Track: TrackLabel(enr.Track),
		State: string(enr.State),
	})
}

func updatedMessage(ev event.Event, usr user.User, enr Enrollment) *core.EmailMessage {
	return newMessage(usr, "Inscripción actualizada - "+ev.Name, "enrollment_updated", messageData{
		Name:      usr.FullName(),
		Event:     ev.Name,
		Track:     TrackLabel(enr.Track),
		State:     string(enr.State),
		AccessKey: enr.AccessKey,
	})
}
