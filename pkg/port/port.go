// Package port connects a media adapter to the event channel of a display.
// Commands arriving as events are started in arrival order and each one is
// answered with exactly one result event to its sender. A play request the
// host has not confirmed yet is answered once it settles, so later commands
// may be answered before it.
package port

import (
	"context"
	"net/url"
	"sync"

	"emperror.dev/errors"
	"github.com/je4/mediaport/pkg/event"
	"github.com/je4/mediaport/pkg/media"
	"github.com/je4/utils/v2/pkg/zLogger"
)

// Sender delivers answers back to the controller.
type Sender interface {
	SendData(data event.DataInterface, target, token string) error
}

// Source delivers incoming events to one handler.
type Source interface {
	On(recFunc func(evt *event.Event))
}

// Navigator loads a new page into the display.
type Navigator interface {
	Navigate(u *url.URL) error
}

// Inspector shows what the display shows.
type Inspector interface {
	Screenshot(width int, height int, sigma float64) ([]byte, string, error)
	Log() []string
}

const defaultScreenshotWidth = 640

func New(adapter *media.Adapter, sender Sender, logger zLogger.ZLogger) *Port {
	ctx, cancel := context.WithCancel(context.Background())
	return &Port{
		adapter: adapter,
		sender:  sender,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

type Port struct {
	adapter    *media.Adapter
	sender     Sender
	logger     zLogger.ZLogger
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	subscribed bool
	closed     bool
	navigator  Navigator
	inspector  Inspector
	pending    sync.WaitGroup
}

// SetNavigator enables browser-navigate events.
func (p *Port) SetNavigator(nav Navigator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigator = nav
}

// SetInspector enables browser-screenshot and browser-log events.
func (p *Port) SetInspector(inspector Inspector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inspector = inspector
}

// Subscribe registers the port as the event handler of source. A port can
// be subscribed only once.
func (p *Port) Subscribe(source Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subscribed {
		return errors.New("port already subscribed")
	}
	p.subscribed = true
	source.On(p.Handle)
	return nil
}

// Close abandons the play requests still waiting for confirmation and
// returns after their host errors are sent.
func (p *Port) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.pending.Wait()
}

// Handle processes one event. Only a pending play request outlives it.
func (p *Port) Handle(evt *event.Event) {
	switch evt.GetType() {
	case event.TypeMediaCommand:
		p.command(evt)
	case event.TypeMediaCanPlayType:
		p.canPlayType(evt)
	case event.TypeMediaState:
		p.state(evt)
	case event.TypeBrowserNavigate:
		p.navigate(evt)
	case event.TypeBrowserScreenshot:
		p.screenshot(evt)
	case event.TypeBrowserLog:
		p.consoleLog(evt)
	default:
		p.logger.Debug().Msgf("ignoring event %s from %s", evt.GetType(), evt.GetSource())
	}
}

func (p *Port) reply(evt *event.Event, data event.DataInterface) {
	if err := p.sender.SendData(data, evt.GetSource(), evt.GetToken()); err != nil {
		p.logger.Error().Err(err).Msgf("cannot send %s to %s", data.Type(), evt.GetSource())
	}
}

func (p *Port) command(evt *event.Event) {
	data, err := evt.GetData()
	if err != nil {
		p.logger.Warn().Err(err).Msgf("invalid media command from %s", evt.GetSource())
		p.reply(evt, decodeError("", "", err))
		return
	}
	msg, ok := data.(*event.CommandMessage)
	if !ok {
		p.reply(evt, decodeError("", "", errors.Errorf("unexpected payload %T", data)))
		return
	}
	cmd, err := msg.Command()
	if err != nil {
		p.logger.Warn().Err(err).Msgf("invalid media command from %s: %s", evt.GetSource(), msg)
		p.reply(evt, decodeError(msg.Tag, msg.ID, err))
		return
	}
	p.logger.Debug().Msgf("executing %s from %s", msg, evt.GetSource())
	pending, err := p.adapter.Start(p.ctx, cmd)
	if pending == nil {
		p.result(evt, cmd, err)
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.result(evt, cmd, pending.Wait(p.ctx))
		return
	}
	p.pending.Add(1)
	p.mu.Unlock()
	p.logger.Debug().Msgf("waiting for #%s to play", pending.ID())
	go func() {
		defer p.pending.Done()
		p.result(evt, cmd, pending.Wait(p.ctx))
	}()
}

func (p *Port) result(evt *event.Event, cmd media.Command, err error) {
	result := event.NewResultMessage(cmd.Tag(), cmd.TargetID(), err)
	if result.Result != media.ResultSuccess {
		p.logger.Info().Msgf("media command failed: %s", result)
	}
	p.reply(evt, result)
}

func decodeError(tag, id string, err error) *event.ResultMessage {
	return &event.ResultMessage{
		Tag:    tag,
		ID:     id,
		Result: event.ResultDecodeError,
		Reason: err.Error(),
	}
}

func (p *Port) canPlayType(evt *event.Event) {
	var query *event.CanPlayTypeMessage
	data, err := evt.GetData()
	if err == nil {
		var ok bool
		if query, ok = data.(*event.CanPlayTypeMessage); !ok {
			err = errors.Errorf("unexpected payload %T", data)
		}
	}
	if err != nil {
		p.logger.Warn().Err(err).Msgf("invalid canPlayType query from %s", evt.GetSource())
		answer := event.NewCanPlayTypeAnswer("", "", "", err)
		answer.Result = event.ResultDecodeError
		p.reply(evt, answer)
		return
	}
	answer, err := p.adapter.CanPlayType(p.ctx, query.ID, query.MimeType)
	p.reply(evt, event.NewCanPlayTypeAnswer(query.ID, query.MimeType, answer, err))
}

func (p *Port) state(evt *event.Event) {
	var query *event.StateMessage
	data, err := evt.GetData()
	if err == nil {
		var ok bool
		if query, ok = data.(*event.StateMessage); !ok {
			err = errors.Errorf("unexpected payload %T", data)
		}
	}
	if err != nil {
		p.logger.Warn().Err(err).Msgf("invalid state query from %s", evt.GetSource())
		answer := event.NewStateAnswer("", nil, err)
		answer.Result = event.ResultDecodeError
		p.reply(evt, answer)
		return
	}
	state, err := p.adapter.State(p.ctx, query.ID)
	p.reply(evt, event.NewStateAnswer(query.ID, state, err))
}

func (p *Port) navigate(evt *event.Event) {
	p.mu.Lock()
	nav := p.navigator
	p.mu.Unlock()
	if nav == nil {
		p.logger.Debug().Msgf("no navigator, ignoring navigation request from %s", evt.GetSource())
		return
	}
	data, err := evt.GetData()
	if err != nil {
		p.logger.Error().Err(err).Msg("Error getting browser navigate data")
		return
	}
	urlString, _ := data.(string)
	u, err := url.Parse(urlString)
	if err != nil {
		p.logger.Error().Err(err).Msgf("Error parsing browser navigate data %s", urlString)
		return
	}
	if err := nav.Navigate(u); err != nil {
		p.logger.Error().Err(err).Msgf("Error navigating to %s", u.String())
	}
}

func (p *Port) screenshot(evt *event.Event) {
	p.mu.Lock()
	inspector := p.inspector
	p.mu.Unlock()
	data, err := evt.GetData()
	if err != nil {
		p.logger.Warn().Err(err).Msgf("invalid screenshot request from %s", evt.GetSource())
		answer := event.NewScreenshotAnswer(0, 0, nil, "", err)
		answer.Result = event.ResultDecodeError
		p.reply(evt, answer)
		return
	}
	req, _ := data.(*event.ScreenshotMessage)
	width, height := max(req.Width, 0), max(req.Height, 0)
	if width == 0 && height == 0 {
		width = defaultScreenshotWidth
	}
	if inspector == nil {
		p.reply(evt, event.NewScreenshotAnswer(width, height, nil, "", errors.New("cannot create screenshot: no browser")))
		return
	}
	p.logger.Info().Msgf("screenshot %dx%d for %s", width, height, evt.GetSource())
	buf, mime, err := inspector.Screenshot(width, height, req.Sigma)
	if err != nil {
		p.logger.Error().Err(err).Msg("cannot create screenshot")
	}
	p.reply(evt, event.NewScreenshotAnswer(width, height, buf, mime, err))
}

func (p *Port) consoleLog(evt *event.Event) {
	p.mu.Lock()
	inspector := p.inspector
	p.mu.Unlock()
	if inspector == nil {
		p.reply(evt, event.NewLogAnswer(nil, errors.New("cannot read console log: no browser")))
		return
	}
	p.reply(evt, event.NewLogAnswer(inspector.Log(), nil))
}
