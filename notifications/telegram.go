package notifications

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"greensteps/storage"
)

type NotifyTelegram struct {
	ChatIDs []int  `json:"chatids"`
	APIKey  string `json:"apikey"`
	Enabled bool   `json:"enabled"`

	storage *storage.Storage
}

// NewTelegram creates a new NotifyTelegram object using a JSON
// byte-stream provided from either DB lookup or web UI.
//
// If saveConfig is true, save the new object's config to DB. Normally
// would not do this when loading from DB at startup, but would after
// getting new config from the web UI.
func (n *NotificationHandler) NewTelegram(config []byte, saveConfig bool) (*NotifyTelegram, error) {

	nt := &NotifyTelegram{
		storage: n.Storage,
	}

	// empty config from db means not configured yet
	if config != nil {
		if err := json.Unmarshal(config, nt); err != nil {
			return nt, errors.Wrap(err, "Unable to unmarshal telegram config")
		}
	}

	if saveConfig {
		if err := nt.SaveConfig(); err != nil {
			return nt, err
		}
	}

	return nt, nil
}

func (n *NotifyTelegram) IsEnabled() bool {
	return n.Enabled && n.APIKey != ""
}

func (n *NotifyTelegram) Send(msg string) {

	req, err := http.NewRequest("GET", fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.APIKey), nil)
	if err != nil {
		log.WithError(err).Error("Unable to make telegram request")
		return
	}

	req.Header.Add("Content-type", "application/x-www-form-urlencoded")

	q := req.URL.Query()
	q.Add("text", msg)

	// HTTP client 10s timeout
	client := &http.Client{
		Timeout: time.Second * 10,
	}

	for _, id := range n.ChatIDs {
		sendMessage(client, req, q, id)
	}

	log.WithField("MSG", msg).Debug("Sent Telegram Message(s)")
}

func sendMessage(client *http.Client, req *http.Request, queryParams url.Values, chatID int) {

	queryParams.Set("chat_id", strconv.Itoa(chatID))
	req.URL.RawQuery = queryParams.Encode()

	resp, err := client.Do(req)
	if err != nil {
		log.WithField("ChatId", chatID).WithError(err).Error("Unable to send telegram message")
		return
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		log.WithField("ChatId", chatID).WithError(err).Error("Unable to read telegram message response")
		return
	}

	log.WithField("Resp", string(body)).Debug("Telegram Reply")
}

func (n *NotifyTelegram) SaveConfig() error {

	config, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "Unable to marshal telegram config")
	}

	if err := n.storage.SaveNotifiersConfig(telegram, config); err != nil {
		return errors.Wrap(err, "Unable to save telegram config")
	}

	return nil
}
