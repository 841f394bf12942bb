package notifier

import (
	"errors"
	"fmt"
	"log"
	"time"
)

// Notifier delivers a rendered notification to a user. Implementations may
// ignore userID when they only have a shared channel.
type Notifier interface {
	Notify(userID, subject, message string) error
}

type ConsoleNotifier struct{}

func NewConsole() *ConsoleNotifier {
	return &ConsoleNotifier{}
}

func (c *ConsoleNotifier) Notify(userID, subject, message string) error {
	log.Printf("[notify] to=%s %s :: %s", userID, subject, message)
	return nil
}

// Multi sends through every notifier and reports all failures.
type Multi []Notifier

func (m Multi) Notify(userID, subject, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(userID, subject, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HumanTimeRange formats a booking interval in loc.
func HumanTimeRange(startUnix, endUnix int64, loc *time.Location) string {
	st := time.Unix(startUnix, 0).In(loc)
	et := time.Unix(endUnix, 0).In(loc)
	if st.YearDay() == et.YearDay() && st.Year() == et.Year() {
		return fmt.Sprintf("%s - %s", st.Format("2006-01-02 15:04"), et.Format("15:04"))
	}
	return fmt.Sprintf("%s - %s", st.Format("2006-01-02 15:04"), et.Format("2006-01-02 15:04"))
}
