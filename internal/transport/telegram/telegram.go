// Package telegram adapts the platform-neutral transport boundary to the
// Telegram Bot API via telebot.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"starcast/internal/domain"
	"starcast/internal/transport"
	"starcast/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot       *tele.Bot
	out       chan<- transport.Update
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
			}
		}
	}()

	a.registerHandlers()

	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop() is called
	}()

	return nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.push(transport.Update{Kind: transport.UpdateMessage, Message: baseMessage(m)})
		return nil
	})

	media := func(kind domain.MediaKind, fileID func(*tele.Message) string) func(tele.Context) error {
		return func(c tele.Context) error {
			m := c.Message()
			if m == nil || m.Sender == nil {
				return nil
			}
			msg := baseMessage(m)
			msg.Media = &transport.Media{
				Kind:    kind,
				FileID:  fileID(m),
				AlbumID: m.AlbumID,
				Caption: m.Caption,
			}
			a.push(transport.Update{Kind: transport.UpdateMessage, Message: msg})
			return nil
		}
	}
	a.bot.Handle(tele.OnPhoto, media(domain.KindPhoto, func(m *tele.Message) string { return m.Photo.FileID }))
	a.bot.Handle(tele.OnVideo, media(domain.KindVideo, func(m *tele.Message) string { return m.Video.FileID }))
	a.bot.Handle(tele.OnDocument, media(domain.KindDocument, func(m *tele.Message) string { return m.Document.FileID }))

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil {
			return nil
		}
		a.push(transport.Update{
			Kind: transport.UpdateCallback,
			Callback: &transport.Callback{
				ID:        cb.ID,
				FromID:    cb.Sender.ID,
				ChatID:    m.Chat.ID,
				MessageID: m.ID,
				Data:      strings.TrimSpace(cb.Data),
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnCheckout, func(c tele.Context) error {
		q := c.PreCheckoutQuery()
		if q == nil || q.Sender == nil {
			return nil
		}
		a.push(transport.Update{
			Kind: transport.UpdateCheckout,
			Checkout: &transport.Checkout{
				ID:      q.ID,
				FromID:  q.Sender.ID,
				Payload: q.Payload,
				Total:   q.Total,
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnPayment, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Payment == nil || m.Sender == nil {
			return nil
		}
		a.push(transport.Update{
			Kind: transport.UpdatePayment,
			Payment: &transport.Payment{
				FromID:     m.Sender.ID,
				ChatID:     m.Chat.ID,
				Payload:    m.Payment.Payload,
				Total:      m.Payment.Total,
				PaymentRef: m.Payment.TelegramChargeID,
			},
		})
		return nil
	})
}

func baseMessage(m *tele.Message) *transport.Message {
	return &transport.Message{
		ID:           m.ID,
		ChatID:       m.Chat.ID,
		FromID:       m.Sender.ID,
		FromUsername: m.Sender.Username,
		FirstName:    m.Sender.FirstName,
		LastName:     m.Sender.LastName,
		Text:         m.Text,
		IsGroup:      m.Chat.Type != tele.ChatPrivate,
	}
}

func (a *Adapter) push(up transport.Update) {
	select {
	case a.out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	// Cancelling rctx is the only stop signal; the watcher spawned in Start
	// owns the bot.Stop() call. A second caller here would race it.
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Grace window: keep shutdown snappy even if the long-poll is mid-wait.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		a.log.Warn("telegram stop cancelled", logx.Err(ctx.Err()))
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

// ---- Gateway ----

func (a *Adapter) SendText(ctx context.Context, to transport.DeliveryTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	msg, err := a.bot.Send(tele.ChatID(to.ChatID), text, sendOptions(opt))
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.Edit(m, text, sendOptions(opt))
	return err
}

func (a *Adapter) SendAsset(ctx context.Context, to transport.DeliveryTarget, kind domain.MediaKind, fileID, caption string) error {
	var what any
	switch kind {
	case domain.KindPhoto:
		what = &tele.Photo{File: tele.File{FileID: fileID}, Caption: caption}
	case domain.KindVideo:
		what = &tele.Video{File: tele.File{FileID: fileID}, Caption: caption}
	case domain.KindDocument:
		what = &tele.Document{File: tele.File{FileID: fileID}, Caption: caption}
	default:
		return errors.New("telegram: unsupported asset kind " + string(kind))
	}
	_, err := a.bot.Send(tele.ChatID(to.ChatID), what)
	return err
}

func (a *Adapter) SendAssetGroup(ctx context.Context, to transport.DeliveryTarget, items []transport.GroupItem) error {
	album := make(tele.Album, 0, len(items))
	for _, it := range items {
		switch it.Kind {
		case domain.KindPhoto:
			album = append(album, &tele.Photo{File: tele.File{FileID: it.FileID}, Caption: it.Caption})
		case domain.KindVideo:
			album = append(album, &tele.Video{File: tele.File{FileID: it.FileID}, Caption: it.Caption})
		case domain.KindDocument:
			album = append(album, &tele.Document{File: tele.File{FileID: it.FileID}, Caption: it.Caption})
		default:
			return errors.New("telegram: unsupported group item kind " + string(it.Kind))
		}
	}
	_, err := a.bot.SendAlbum(tele.ChatID(to.ChatID), album)
	return err
}

func (a *Adapter) SendPaidAsset(ctx context.Context, to transport.DeliveryTarget, stars int, assets []domain.Asset, caption string) error {
	album := make(tele.PaidAlbum, 0, len(assets))
	for i, as := range assets {
		itemCaption := ""
		if i == 0 {
			itemCaption = caption
		}
		switch as.Kind {
		case domain.KindPhoto:
			album = append(album, &tele.Photo{File: tele.File{FileID: as.FileID}, Caption: itemCaption})
		case domain.KindVideo:
			album = append(album, &tele.Video{File: tele.File{FileID: as.FileID}, Caption: itemCaption})
		default:
			return errors.New("telegram: paid media supports photo and video only")
		}
	}
	_, err := a.bot.SendPaidMedia(tele.ChatID(to.ChatID), stars, album)
	return err
}

func (a *Adapter) SendInvoice(ctx context.Context, to transport.DeliveryTarget, title, description, payload string, stars int) error {
	inv := tele.Invoice{
		Title:       title,
		Description: description,
		Payload:     payload,
		Currency:    "XTR", // Telegram Stars; provider token stays empty
		Prices:      []tele.Price{{Label: title, Amount: stars}},
	}
	_, err := a.bot.Send(tele.ChatID(to.ChatID), &inv)
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

func (a *Adapter) AnswerCheckout(ctx context.Context, checkoutID string, ok bool, errMessage string) error {
	q := &tele.PreCheckoutQuery{ID: checkoutID}
	if ok {
		return a.bot.Accept(q)
	}
	if errMessage == "" {
		errMessage = "This content is no longer available."
	}
	return a.bot.Accept(q, errMessage)
}

func sendOptions(opt *transport.SendOptions) *tele.SendOptions {
	if opt == nil {
		return &tele.SendOptions{}
	}
	so := &tele.SendOptions{DisableWebPagePreview: opt.DisablePreview}
	if opt.Markup != nil {
		so.ReplyMarkup = toTeleMarkup(opt.Markup)
	}
	return so
}

func toTeleMarkup(m *transport.InlineMarkup) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(m.Rows))
	for _, row := range m.Rows {
		btns := make([]tele.Btn, 0, len(row))
		for _, b := range row {
			btns = append(btns, tele.Btn{Text: b.Text, Data: b.Data})
		}
		rows = append(rows, rm.Row(btns...))
	}
	rm.Inline(rows...)
	return rm
}
