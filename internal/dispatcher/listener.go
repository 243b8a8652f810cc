package dispatcher

import (
	"github.com/muurk/groundlink/internal/protocol"
)

// Listener receives dispatcher notifications.
type Listener interface {
	// MessageReceived is called for every decoded message, including
	// self-originated ones excluded from accounting.
	MessageReceived(link protocol.LinkHandle, msg *protocol.Message)

	// LossRateChanged is called when a source's interval loss count changed.
	// rate is lost / (received + lost) over the current interval.
	LossRateChanged(source uint8, rate float64)

	// StatusMessage carries diagnostics such as malformed data or capture
	// failures.
	StatusMessage(title, text string)
}

// ListenerFuncs adapts optional functions to the Listener interface.
type ListenerFuncs struct {
	OnMessage  func(link protocol.LinkHandle, msg *protocol.Message)
	OnLossRate func(source uint8, rate float64)
	OnStatus   func(title, text string)
}

// MessageReceived implements Listener
func (f ListenerFuncs) MessageReceived(link protocol.LinkHandle, msg *protocol.Message) {
	if f.OnMessage != nil {
		f.OnMessage(link, msg)
	}
}

// LossRateChanged implements Listener
func (f ListenerFuncs) LossRateChanged(source uint8, rate float64) {
	if f.OnLossRate != nil {
		f.OnLossRate(source, rate)
	}
}

// StatusMessage implements Listener
func (f ListenerFuncs) StatusMessage(title, text string) {
	if f.OnStatus != nil {
		f.OnStatus(title, text)
	}
}
