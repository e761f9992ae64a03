package notifications

import (
	"encoding/json"

	"github.com/pkg/errors"

	"greensteps/storage"
)

// Category tags a notification with the activity that produced it.
type Category int

const (
	REWARDS Category = iota
	STAKING
)

func (c Category) String() string {
	switch c {
	case REWARDS:
		return "Rewards"
	case STAKING:
		return "Staking"
	}

	return "General"
}

const (
	telegram = "telegram"
	email    = "email"
)

type Notifier interface {
	Send(msg string)
	IsEnabled() bool
	SaveConfig() error
}

type NotificationHandler struct {
	Storage   *storage.Storage
	Notifiers map[string]Notifier
}

// NewHandler loads each notifier's config from the DB and constructs
// the fan-out handler. A notifier with no stored config starts
// disabled.
func NewHandler(db *storage.Storage) (*NotificationHandler, error) {

	n := &NotificationHandler{
		Storage:   db,
		Notifiers: make(map[string]Notifier, 2),
	}

	for _, notifier := range []string{telegram, email} {

		config, err := db.GetNotifiersConfig(notifier)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to load %s config", notifier)
		}

		// Don't re-save what we just loaded
		if err := n.Configure(notifier, config, false); err != nil {
			return nil, errors.Wrapf(err, "Unable to init %s", notifier)
		}
	}

	return n, nil
}

// Configure (re)builds one notifier from a JSON config blob, provided
// either from DB lookup at startup or from the web UI. If saveConfig
// is true the new config is written back to the DB.
func (n *NotificationHandler) Configure(notifier string, config []byte, saveConfig bool) error {

	switch notifier {
	case telegram:
		nt, err := n.NewTelegram(config, saveConfig)
		if err != nil {
			return err
		}
		n.Notifiers[telegram] = nt

	case email:
		ne, err := n.NewEmail(config, saveConfig)
		if err != nil {
			return err
		}
		n.Notifiers[email] = ne

	default:
		return errors.Errorf("Unknown notification type %s", notifier)
	}

	return nil
}

// SendNotification fans the message out to every enabled notifier.
// Delivery is best-effort in the background; ledger state never
// depends on it.
func (n *NotificationHandler) SendNotification(msg string, category Category) {

	// A nil handler drops messages rather than crashing the caller
	if n == nil {
		return
	}

	tagged := "[" + category.String() + "] " + msg

	for _, notifier := range n.Notifiers {
		if !notifier.IsEnabled() {
			continue
		}
		go notifier.Send(tagged)
	}
}

// GetConfig marshals the current notifiers as the current config.
// Returns RawMessage so as not to double-marshal.
func (n *NotificationHandler) GetConfig() (json.RawMessage, error) {

	bts, err := json.Marshal(n.Notifiers)

	return json.RawMessage(bts), err
}
