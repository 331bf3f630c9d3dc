package flutterwave

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	StatusSuccessful = "successful"
	StatusFailed     = "failed"
	StatusPending    = "pending"

	EventChargeCompleted = "charge.completed"

	SignatureHeader = "verif-hash"
)

type Customer struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type Customizations struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Logo        string `json:"logo,omitempty"`
}

// InitializeRequest uses major currency units, as the gateway expects.
type InitializeRequest struct {
	TxRef          string            `json:"tx_ref"`
	Amount         float64           `json:"amount"`
	Currency       string            `json:"currency"`
	RedirectURL    string            `json:"redirect_url"`
	Customer       Customer          `json:"customer"`
	Meta           map[string]string `json:"meta,omitempty"`
	Customizations *Customizations   `json:"customizations,omitempty"`
}

type InitializeResult struct {
	PaymentURL string
	TxRef      string
}

// Meta tolerates the gateway echoing meta as an object or as a list of
// {metaname, metavalue} pairs.
type Meta map[string]string

func (m *Meta) UnmarshalJSON(b []byte) error {
	out := Meta{}
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" || trimmed == "null" {
		*m = out
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var pairs []struct {
			Name  string `json:"metaname"`
			Value any    `json:"metavalue"`
		}
		if err := json.Unmarshal(b, &pairs); err != nil {
			return err
		}
		for _, p := range pairs {
			out[p.Name] = stringify(p.Value)
		}
		*m = out
		return nil
	}
	raw := map[string]any{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		out[k] = stringify(v)
	}
	*m = out
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// Transaction is the verified view of a charge, shared by verify responses and
// webhook payloads.
type Transaction struct {
	ID            int64    `json:"id"`
	TxRef         string   `json:"tx_ref"`
	FlwRef        string   `json:"flw_ref"`
	Amount        float64  `json:"amount"`
	ChargedAmount float64  `json:"charged_amount"`
	Currency      string   `json:"currency"`
	Status        string   `json:"status"`
	PaymentType   string   `json:"payment_type"`
	ProcessorResp string   `json:"processor_response"`
	Customer      Customer `json:"customer"`
	Meta          Meta     `json:"meta"`
	// Raw is the undecoded data object, kept for audit.
	Raw json.RawMessage `json:"-"`
}

func (t *Transaction) IDString() string {
	if t == nil || t.ID == 0 {
		return ""
	}
	return strconv.FormatInt(t.ID, 10)
}

func (t *Transaction) Successful() bool {
	return t != nil && strings.EqualFold(t.Status, StatusSuccessful)
}

// AmountMinor converts the major-unit amount to minor units (x100, rounded).
func (t *Transaction) AmountMinor() int64 {
	if t == nil {
		return 0
	}
	return ToMinor(t.Amount)
}

func ToMinor(major float64) int64 { return int64(math.Round(major * 100)) }

func ToMajor(minor int64) float64 { return float64(minor) / 100 }

// WebhookEvent is the body the gateway pushes to the webhook endpoint.
type WebhookEvent struct {
	Event     string          `json:"event"`
	EventType string          `json:"event.type,omitempty"`
	Data      json.RawMessage `json:"data"`
	// MetaData is sent beside data on some charge events.
	MetaData Meta `json:"meta_data,omitempty"`
}

// ParseWebhook decodes a webhook body into its event and transaction.
// Meta sent beside data is merged in when data carries none.
func ParseWebhook(raw []byte) (*WebhookEvent, *Transaction, error) {
	ev := &WebhookEvent{}
	if err := json.Unmarshal(raw, ev); err != nil {
		return nil, nil, err
	}
	tx := &Transaction{}
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, tx); err != nil {
			return nil, nil, err
		}
		tx.Raw = append(json.RawMessage(nil), ev.Data...)
	}
	if len(tx.Meta) == 0 && len(ev.MetaData) > 0 {
		tx.Meta = ev.MetaData
	}
	return ev, tx, nil
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}
