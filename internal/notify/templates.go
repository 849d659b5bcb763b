package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/pkg/money"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

var subjects = map[string]string{
	domain.TemplateOrderPlaced:    "Your order %s has been placed",
	domain.TemplateOrderConfirmed: "Your order %s is confirmed",
	domain.TemplateOrderShipped:   "Your order %s has shipped",
	domain.TemplateOrderDelivered: "Your order %s has been delivered",
	domain.TemplateOrderCancelled: "Your order %s has been cancelled",
	domain.TemplatePasswordReset:  "Reset your password",
}

// Item is an order line prepared for templates.
type Item struct {
	Name      string
	Quantity  int
	LineTotal string
}

// Data is the template context.
type Data struct {
	StoreName     string
	StoreURL      string
	Name          string
	OrderNumber   string
	Total         string
	PaymentMethod string
	Items         []Item
	Courier       string
	AWB           string
	TrackingURL   string
	ResetURL      string
	Note          string
}

// OrderData fills the order fields of a template context.
func OrderData(o *domain.Order) Data {
	d := Data{
		Name:          o.Customer.Name,
		OrderNumber:   o.OrderNumber,
		Total:         money.Format(o.Total),
		PaymentMethod: paymentLabel(o.PaymentMethod),
	}
	for _, it := range o.Items {
		d.Items = append(d.Items, Item{Name: it.Name, Quantity: it.Quantity, LineTotal: money.Format(it.LineTotal)})
	}
	if o.Shipment != nil {
		d.Courier = o.Shipment.CourierName
		d.AWB = o.Shipment.AWBCode
		d.TrackingURL = o.Shipment.TrackingURL
	}
	return d
}

func paymentLabel(method string) string {
	switch method {
	case domain.PaymentCOD:
		return "Cash on delivery"
	case domain.PaymentRazorpay:
		return "Razorpay"
	case domain.PaymentCashfree:
		return "Cashfree"
	}
	return method
}

// Renderer turns a template name and data into a Message.
type Renderer struct {
	html      *htmltemplate.Template
	text      *texttemplate.Template
	storeName string
	storeURL  string
}

// NewRenderer parses the embedded templates.
func NewRenderer(storeName, storeURL string) (*Renderer, error) {
	html, err := htmltemplate.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Renderer{html: html, text: text, storeName: storeName, storeURL: strings.TrimRight(storeURL, "/")}, nil
}

// Render builds the subject, HTML and text bodies of template name.
func (r *Renderer) Render(name string, data Data) (*Message, error) {
	subject, ok := subjects[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", name)
	}
	if data.StoreName == "" {
		data.StoreName = r.storeName
	}
	if data.StoreURL == "" {
		data.StoreURL = r.storeURL
	}

	var html, text bytes.Buffer
	if err := r.html.ExecuteTemplate(&html, name+".html", data); err != nil {
		return nil, fmt.Errorf("render %s html: %w", name, err)
	}
	if err := r.text.ExecuteTemplate(&text, name+".txt", data); err != nil {
		return nil, fmt.Errorf("render %s text: %w", name, err)
	}

	if strings.Contains(subject, "%s") {
		subject = fmt.Sprintf(subject, data.OrderNumber)
	}
	return &Message{
		Subject: data.StoreName + ": " + subject,
		HTML:    strings.TrimSpace(html.String()),
		Text:    strings.TrimSpace(text.String()),
	}, nil
}
