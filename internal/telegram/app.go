package telegram

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ananyabot/ananya/internal/core"
	"github.com/ananyabot/ananya/internal/metrics"
)

// AppDeps carries everything the bot needs besides the Telegram connection.
type AppDeps struct {
	Token          string
	Options        Options
	Gate           core.GateConfig
	BroadcastDelay time.Duration

	Availability  *core.AvailabilitySwitch
	Users         *core.UserDirectory
	Personalities *core.PersonalityRegistry
	History       *core.HistoryStore
	LLM           core.Completer
	Speech        core.Synthesizer
	Metrics       *metrics.Metrics
}

// App is a connected bot and the router that serves it.
type App struct {
	Bot    *Bot
	Router *core.Router
}

func BuildApp(deps AppDeps) (*App, error) {
	bot, err := NewBot(deps.Token, deps.Options)
	if err != nil {
		return nil, err
	}
	router := core.NewRouter(core.RouterDeps{
		Bot:           bot.Identity(),
		Messenger:     bot,
		Sessions:      core.NewSessionRegistry(),
		Gate:          core.NewVerificationGate(deps.Gate, bot, bot),
		Availability:  deps.Availability,
		Users:         deps.Users,
		Personalities: deps.Personalities,
		History:       deps.History,
		LLM:           deps.LLM,
		Speech:        deps.Speech,
		Broadcaster:   core.NewBroadcastEngine(bot, deps.Gate.AdminID, deps.BroadcastDelay, deps.Metrics),
		Metrics:       deps.Metrics,
	})
	return &App{Bot: bot, Router: router}, nil
}

// Handle converts and routes one Telegram update. Updates the bot does not
// act on are dropped.
func (a *App) Handle(ctx context.Context, u tgbotapi.Update) {
	update, ok := ConvertUpdate(u, a.Bot.Identity())
	if !ok {
		return
	}
	a.Router.HandleUpdate(ctx, update)
}

func (a *App) SetWebhook(ctx context.Context, webhookURL, secretToken string, adminID int64) error {
	return a.Bot.SetWebhook(ctx, webhookURL, secretToken, adminID)
}

func (a *App) DeleteWebhook(ctx context.Context) error {
	return a.Bot.DeleteWebhook(ctx)
}

// Provider builds the App on first use. The build runs exactly once; a
// failure is remembered and returned to every caller.
type Provider struct {
	once  sync.Once
	build func() (*App, error)
	app   *App
	err   error
}

func NewProvider(build func() (*App, error)) *Provider {
	return &Provider{build: build}
}

func (p *Provider) Get() (*App, error) {
	p.once.Do(func() {
		p.app, p.err = p.build()
	})
	return p.app, p.err
}
