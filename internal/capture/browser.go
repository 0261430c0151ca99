package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/okian/abrantes/internal/domain/model"
	"github.com/okian/abrantes/pkg/logger"
)

// BindingName is the page function the listener reports through.
const BindingName = "__abrantesCapture"

const tabClosedTimeout = 5 * time.Second

// TabCloser receives the tab-closed signal.
type TabCloser interface {
	TabClosed(ctx context.Context, tabID int) error
}

// Script installs capturing-phase listeners for every recognised event on
// document. Details are cloned in the page with the same chain used in Go:
// structured clone, then JSON round trip, then string coercion.
var Script = buildScript()

func buildScript() string {
	names, _ := json.Marshal(model.EventNames())
	return fmt.Sprintf(`(() => {
  if (window.__abrantesInstalled) return;
  window.__abrantesInstalled = true;
  const names = %s;
  const clone = (v) => {
    if (v === undefined) return null;
    try { return JSON.parse(JSON.stringify(structuredClone(v))); } catch (_) {}
    try { return JSON.parse(JSON.stringify(v)); } catch (_) {}
    return String(v);
  };
  const send = (eventName, event) => {
    try {
      window.%s(JSON.stringify({
        eventName,
        timestamp: Date.now(),
        href: location.href,
        detail: clone(event && event.detail),
      }));
    } catch (_) {}
  };
  for (const name of names) {
    document.addEventListener(name, (event) => send(name, event), true);
  }
})();`, names, BindingName)
}

// Browser drives a Chrome tab over the DevTools protocol and feeds the
// events its page emits to a Capturer.
type Browser struct {
	capturer  *Capturer
	closer    TabCloser
	headless  bool
	allocOpts []chromedp.ExecAllocatorOption
	logger    logger.Logger
}

// NewBrowser creates a browser capture for capturer.
func NewBrowser(capturer *Capturer, opts ...BrowserOption) *Browser {
	b := &Browser{capturer: capturer, logger: logger.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run opens url and captures until ctx is done or the tab goes away. The
// tab-closed signal is sent on the way out.
func (b *Browser) Run(ctx context.Context, url string) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("disable-gpu", b.headless),
	)
	opts = append(opts, b.allocOpts...)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	detached := make(chan struct{})
	var once bool
	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *runtime.EventBindingCalled:
			if e.Name != BindingName {
				return
			}
			if err := b.capturer.HandleBinding(tabCtx, e.Payload); err != nil {
				b.logger.Debug(tabCtx, "binding payload dropped", logger.Error(err))
			}
		case *inspector.EventDetached:
			if !once {
				once = true
				close(detached)
			}
		}
	})

	defer b.signalClosed(ctx)

	if err := chromedp.Run(tabCtx,
		runtime.AddBinding(BindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(Script).Do(ctx)
			return err
		}),
		chromedp.Navigate(url),
	); err != nil {
		return fmt.Errorf("%w: %w", ErrNoTarget, err)
	}
	b.logger.Info(ctx, "capturing", logger.String("url", url), logger.TabID(b.capturer.TabID()))

	select {
	case <-ctx.Done():
	case <-tabCtx.Done():
	case <-detached:
	}
	return nil
}

func (b *Browser) signalClosed(ctx context.Context) {
	if b.closer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tabClosedTimeout)
	defer cancel()
	if err := b.closer.TabClosed(ctx, b.capturer.TabID()); err != nil {
		b.logger.Warn(ctx, "tab closed signal failed", logger.TabID(b.capturer.TabID()), logger.Error(err))
	}
}
