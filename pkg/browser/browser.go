package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"emperror.dev/errors"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/disintegration/imaging"
	"github.com/je4/utils/v2/pkg/zLogger"
	"github.com/sahmad98/go-ringbuffer"
)

const consoleLogSize = 100

// NewBrowser prepares a chrome instance. opts are command line flags; a
// false value removes a default flag (e.g. "headless": false).
func NewBrowser(opts map[string]interface{}, logger zLogger.ZLogger, logFunc func(string, ...interface{})) (*Browser, error) {
	if logFunc == nil {
		logFunc = func(string, ...interface{}) {}
	}
	b := &Browser{
		opts:       opts,
		logger:     logger,
		logFunc:    logFunc,
		consoleLog: ringbuffer.NewRingBuffer(consoleLogSize),
	}
	return b, nil
}

type Browser struct {
	opts           map[string]interface{}
	logger         zLogger.ZLogger
	logFunc        func(string, ...interface{})
	mu             sync.Mutex
	allocCancel    context.CancelFunc
	ctx            context.Context
	cancel         context.CancelFunc
	shimsInstalled bool
	consoleLog     *ringbuffer.RingBuffer
	consoleLogMu   sync.Mutex
}

func (b *Browser) Startup() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil && b.ctx.Err() == nil {
		return errors.New("browser already running")
	}
	execOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range b.opts {
		execOpts = append(execOpts, chromedp.Flag(name, value))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(b.logFunc), chromedp.WithErrorf(b.logFunc))
	chromedp.ListenTarget(ctx, b.targetEvent)
	// the first Run starts the browser
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return errors.Wrap(err, "cannot start browser")
	}
	b.allocCancel = allocCancel
	b.ctx = ctx
	b.cancel = cancel
	b.shimsInstalled = false
	b.logger.Info().Msg("browser started")
	return nil
}

// Run starts the browser unless it is already running.
func (b *Browser) Run() error {
	if b.IsRunning() {
		return nil
	}
	return b.Startup()
}

func (b *Browser) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx != nil && b.ctx.Err() == nil
}

func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.allocCancel()
	}
	b.ctx = nil
	b.cancel = nil
	b.allocCancel = nil
}

func (b *Browser) browserContext() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil || b.ctx.Err() != nil {
		return nil, errors.New("browser not running")
	}
	return b.ctx, nil
}

// Do runs actions in the browser tab. They are abandoned when ctx is done.
func (b *Browser) Do(ctx context.Context, actions ...chromedp.Action) error {
	bctx, err := b.browserContext()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(bctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "browser action abandoned")
		}
		return err
	}
	return nil
}

func (b *Browser) Tasks(tasks chromedp.Tasks) error {
	return b.Do(context.Background(), tasks)
}

func (b *Browser) Navigate(u *url.URL) error {
	if err := b.Tasks(chromedp.Tasks{chromedp.Navigate(u.String())}); err != nil {
		return errors.Wrapf(err, "cannot navigate to %s", u.String())
	}
	return nil
}

// InstallShims makes the compatibility patches part of every document
// loaded from now on and applies them to the current one. Calling it again
// on the same browser session does nothing.
func (b *Browser) InstallShims() error {
	b.mu.Lock()
	installed := b.shimsInstalled
	b.mu.Unlock()
	if installed {
		return nil
	}
	if err := b.Tasks(chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(ShimScript).Do(ctx)
			return err
		}),
		chromedp.Evaluate(ShimScript, nil),
	}); err != nil {
		return errors.Wrap(err, "cannot install compatibility shims")
	}
	b.mu.Lock()
	b.shimsInstalled = true
	b.mu.Unlock()
	b.logger.Debug().Msg("compatibility shims installed")
	return nil
}

// Screenshot captures the visible page, scaled to width x height and
// blurred with sigma if sigma > 0.
func (b *Browser) Screenshot(width int, height int, sigma float64) ([]byte, string, error) {
	var buf []byte
	if err := b.Tasks(chromedp.Tasks{chromedp.CaptureScreenshot(&buf)}); err != nil {
		return nil, "", errors.Wrap(err, "cannot capture screenshot")
	}
	result, err := scaleScreenshot(buf, width, height, sigma)
	if err != nil {
		return nil, "", err
	}
	return result, "image/png", nil
}

func scaleScreenshot(buf []byte, width int, height int, sigma float64) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, errors.Wrap(err, "cannot decode screenshot")
	}
	img = imaging.Resize(img, width, height, imaging.Lanczos)
	if sigma > 0 {
		img = imaging.Blur(img, sigma)
	}
	out := &bytes.Buffer{}
	if err := imaging.Encode(out, img, imaging.PNG); err != nil {
		return nil, errors.Wrap(err, "cannot encode screenshot")
	}
	return out.Bytes(), nil
}

func (b *Browser) targetEvent(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		args := make([]string, 0, len(e.Args))
		for _, arg := range e.Args {
			if len(arg.Value) > 0 {
				args = append(args, strings.Trim(string(arg.Value), `"`))
			} else {
				args = append(args, arg.Description)
			}
		}
		msg := fmt.Sprintf("console.%s: %s", e.Type, strings.Join(args, " "))
		b.writeLog(msg)
		b.logger.Debug().Msg(msg)
	case *runtime.EventExceptionThrown:
		msg := fmt.Sprintf("exception: %s", e.ExceptionDetails.Error())
		b.writeLog(msg)
		b.logger.Warn().Msg(msg)
	}
}

func (b *Browser) writeLog(msg string) {
	b.consoleLogMu.Lock()
	defer b.consoleLogMu.Unlock()
	b.consoleLog.Write(msg)
}

// Log returns the most recent console messages of the page.
func (b *Browser) Log() []string {
	b.consoleLogMu.Lock()
	defer b.consoleLogMu.Unlock()
	result := []string{}
	reader := b.consoleLog.Reader
	b.consoleLog.Reader = b.consoleLog.Writer
	var i int32
	for ; i < b.consoleLog.Size; i++ {
		elem := b.consoleLog.Read()
		str, ok := elem.(string)
		if !ok {
			continue
		}
		result = append(result, str)
	}
	b.consoleLog.Reader = reader
	return result
}
