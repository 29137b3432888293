package models

import "time"

type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
	StateReconnecting ConnectionState = "RECONNECTING"
)

// StockUpdate is a normalized live price tick. It is never stored.
type StockUpdate struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        float64   `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
	// HasChange is set when the provider supplied Change/ChangePercent itself.
	HasChange bool `json:"-"`
}

type FrameKind int

const (
	FrameQuote FrameKind = iota
	FrameTrade
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameTrade:
		return "trade"
	case FrameError:
		return "error"
	default:
		return "quote"
	}
}

// Frame is a decoded push message. Updates is empty for error frames and for
// quote frames that carry no usable price.
type Frame struct {
	Kind    FrameKind
	Updates []StockUpdate
	Message string
}

// StreamEvent is what the subscription manager broadcasts to listeners.
type StreamEvent struct {
	Kind   FrameKind   `json:"kind"`
	Symbol string      `json:"symbol"`
	Update StockUpdate `json:"update"`
	Err    error       `json:"-"`
}

type SubscriptionStatus struct {
	Symbol            string          `json:"symbol"`
	State             ConnectionState `json:"state"`
	ReconnectAttempts int             `json:"reconnect_attempts"`
}

// ReconciledUpdate pairs a delivered tick with the opportunity it moved, if any.
type ReconciledUpdate struct {
	Update      StockUpdate  `json:"update"`
	Opportunity *Opportunity `json:"opportunity,omitempty"`
}
