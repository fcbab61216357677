// Package channel defines the chat surfaces a user talks through.
package channel

import (
	"context"

	"github.com/eachlabs/chatline/internal/exchange"
	"github.com/eachlabs/chatline/internal/transcript"
)

// Channel is an interactive chat surface (line terminal, full-screen TUI).
type Channel interface {
	// Run blocks until the user leaves or ctx is done.
	Run(ctx context.Context) error

	// Name returns the channel identifier.
	Name() string
}

// Session is the part of the exchange controller a channel drives.
type Session interface {
	Send(ctx context.Context, text string, stream bool) error
	Status() exchange.Status
	Subscribe(fn func(exchange.Status)) (unsubscribe func())
	Transcript() *transcript.Transcript
	Clear()
	LoadConversation(ctx context.Context, id string) error
}

var _ Session = (*exchange.Controller)(nil)
