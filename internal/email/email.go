package email

import (
	"context"
	"fmt"

	"github.com/MiladFarazian/park-and-sync-sub001/internal/kafka"
)

type Sender struct{}

func NewSender() *Sender {
	return &Sender{}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	if event.Email == "" {
		return nil
	}
	fmt.Printf("send email to %s about %s for booking %s (spot %s)\n", event.Email, event.Type, event.BookingID, event.SpotID)
	return nil
}
