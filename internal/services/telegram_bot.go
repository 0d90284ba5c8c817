package services

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"korner-support-service/internal/config"
)

var ErrTelegramNotConfigured = errors.New("telegram bot token or chat id is empty")

// MessageSender delivers a formatted HTML message to a chat.
type MessageSender interface {
	SendMessage(chatID int64, text string) error
}

type TelegramService struct {
	token    string
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegramService(cfg config.TelegramConfig, client *http.Client) *TelegramService {
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TelegramService{token: cfg.BotToken, endpoint: endpoint, client: client}
}

// botAPI создаёт клиента при первом использовании: конструктор tgbotapi ходит в getMe.
func (t *TelegramService) botAPI() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	t.bot = bot
	return bot, nil
}

func (t *TelegramService) SendMessage(chatID int64, text string) error {
	if t == nil || t.token == "" || chatID == 0 {
		logrus.Warnf("[tg][skip] token or chatID empty (token? %v chatID=%d)", t != nil && t.token != "", chatID)
		return ErrTelegramNotConfigured
	}
	bot, err := t.botAPI()
	if err != nil {
		logrus.Errorf("[tg][init][err] %v", err)
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	sent, err := bot.Send(msg)
	if err != nil {
		logrus.Errorf("[tg][send][err] chatID=%d: %v", chatID, err)
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	logrus.Debugf("[tg][send] chatID=%d message_id=%d", chatID, sent.MessageID)
	return nil
}
