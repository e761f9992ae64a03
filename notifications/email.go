package notifications

import (
	"encoding/json"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"greensteps/storage"
)

type NotifyEmail struct {
	Username string `json:"username"`
	Password string `json:"password"`
	SMTPHost string `json:"smtphost"`
	SMTPPort int    `json:"smtpport"`
	Enabled  bool   `json:"enabled"`

	storage *storage.Storage
}

func (n *NotificationHandler) NewEmail(config []byte, saveConfig bool) (*NotifyEmail, error) {

	ne := &NotifyEmail{
		storage: n.Storage,
	}

	if config != nil {
		if err := json.Unmarshal(config, ne); err != nil {
			return ne, errors.Wrap(err, "Unable to unmarshal email config")
		}
	}

	if saveConfig {
		if err := ne.SaveConfig(); err != nil {
			return ne, err
		}
	}

	return ne, nil
}

func (n *NotifyEmail) IsEnabled() bool {
	return n.Enabled && n.SMTPHost != ""
}

func (n *NotifyEmail) Send(msg string) {
	// TODO: SMTP delivery; config plumbing is in place
	log.Warn("email notifications not yet implemented")
}

func (n *NotifyEmail) SaveConfig() error {

	config, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "Unable to marshal email config")
	}

	if err := n.storage.SaveNotifiersConfig(email, config); err != nil {
		return errors.Wrap(err, "Unable to save email config")
	}

	return nil
}
