package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/utafrali/glowskin/internal/config"
	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/pkg/httpclient"
)

// WhatsAppSender sends WhatsApp messages through the Twilio Messages API.
type WhatsAppSender struct {
	http httpclient.Doer
	cfg  config.TwilioConfig
}

// NewWhatsAppSender creates a Twilio-backed sender.
func NewWhatsAppSender(cfg config.TwilioConfig, doer httpclient.Doer) *WhatsAppSender {
	return &WhatsAppSender{http: doer, cfg: cfg}
}

// Name implements Sender.
func (s *WhatsAppSender) Name() string { return domain.ChannelWhatsApp }

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// Send implements Sender. msg.To is a phone number; msg.Text is the body.
func (s *WhatsAppSender) Send(ctx context.Context, msg *Message) error {
	to, err := WhatsAppAddress(msg.To)
	if err != nil {
		return err
	}
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.cfg.From)
	form.Set("Body", msg.Text)

	creds := base64.StdEncoding.EncodeToString([]byte(s.cfg.AccountSID + ":" + s.cfg.AuthToken))
	var resp twilioMessage
	err = httpclient.DoForm(ctx, s.http, httpclient.Request{
		Method:  http.MethodPost,
		URL:     s.cfg.BaseURL + "/2010-04-01/Accounts/" + url.PathEscape(s.cfg.AccountSID) + "/Messages.json",
		Header:  http.Header{"Authorization": []string{"Basic " + creds}},
		Service: "twilio",
	}, form, &resp)
	if err != nil {
		return fmt.Errorf("send whatsapp: %w", err)
	}
	if resp.Status == "failed" || resp.Status == "undelivered" {
		return fmt.Errorf("send whatsapp: message %s %s", resp.SID, resp.Status)
	}
	return nil
}

// WhatsAppAddress normalizes an Indian mobile number to "whatsapp:+91XXXXXXXXXX".
func WhatsAppAddress(phone string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	switch {
	case len(digits) == 10:
		digits = "91" + digits
	case len(digits) == 11 && digits[0] == '0':
		digits = "91" + digits[1:]
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
	default:
		return "", fmt.Errorf("unsupported phone number %q", phone)
	}
	return "whatsapp:+" + digits, nil
}
